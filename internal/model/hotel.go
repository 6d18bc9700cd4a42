package model

// Hotel is a read-only listing from the hotel directory.
type Hotel struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Location    string  `json:"location"`
	Image       string  `json:"image"`
	Rating      float64 `json:"rating"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Price       float64 `json:"price,omitempty"`
	Description string  `json:"description,omitempty"`
}

type Room struct {
	ID       string  `json:"id"`
	HotelID  string  `json:"hotelId"`
	Name     string  `json:"name"`
	Capacity int     `json:"capacity"`
	Price    float64 `json:"price"`
	Image    string  `json:"image"`
}
