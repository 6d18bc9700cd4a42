package model

// Relation store collections.
const (
	CollectionFavorites    = "favorites"
	CollectionReservations = "reservations"
)

// Collections lists every collection the relation store serves.
var Collections = []string{CollectionFavorites, CollectionReservations}

func IsCollection(name string) bool {
	for _, c := range Collections {
		if c == name {
			return true
		}
	}
	return false
}

// Document field names.
const (
	FieldUserID     = "userId"
	FieldHotelID    = "hotelId"
	FieldHotelName  = "hotelName"
	FieldRoomName   = "roomName"
	FieldGuestCount = "guestCount"
	FieldNightCount = "nightCount"
	FieldTotalPrice = "totalPrice"
	FieldCheckIn    = "checkIn"
	FieldCheckOut   = "checkOut"
	FieldCreatedAt  = "createdAt"
)

// DateLayout is the calendar-day format for check-in and check-out.
const DateLayout = "2006-01-02"
