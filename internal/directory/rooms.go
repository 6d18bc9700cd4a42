package directory

import "github.com/staybook/hotel-server-go/internal/model"

// roomCatalog is the fixed room inventory; the directory does not list rooms.
var roomCatalog = []model.Room{
	{ID: "101", HotelID: "1", Name: "Standart Oda", Capacity: 2, Price: 1200, Image: "https://via.placeholder.com/300x200?text=Standart+Oda"},
	{ID: "102", HotelID: "1", Name: "Deluxe Oda", Capacity: 3, Price: 1800, Image: "https://via.placeholder.com/300x200?text=Deluxe+Oda"},
	{ID: "201", HotelID: "2", Name: "Manzaralı Oda", Capacity: 2, Price: 1500, Image: "https://via.placeholder.com/300x200?text=Manzarali+Oda"},
}

// Rooms returns the rooms of hotelID in catalog order.
func Rooms(hotelID string) []model.Room {
	out := []model.Room{}
	for _, r := range roomCatalog {
		if r.HotelID == hotelID {
			out = append(out, r)
		}
	}
	return out
}

// Room returns one room of hotelID, or false.
func Room(hotelID, roomID string) (model.Room, bool) {
	for _, r := range roomCatalog {
		if r.HotelID == hotelID && r.ID == roomID {
			return r, true
		}
	}
	return model.Room{}, false
}
