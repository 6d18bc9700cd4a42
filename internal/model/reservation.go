package model

import (
	"time"

	apperrors "github.com/staybook/hotel-server-go/internal/errors"
)

type Reservation struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	HotelID    string    `json:"hotelId,omitempty"`
	HotelName  string    `json:"hotelName"`
	RoomName   string    `json:"roomName,omitempty"`
	GuestCount int       `json:"guestCount"`
	NightCount int       `json:"nightCount"`
	TotalPrice float64   `json:"totalPrice"`
	CheckIn    time.Time `json:"checkIn"`
	CheckOut   time.Time `json:"checkOut"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (r Reservation) Fields() map[string]any {
	fields := map[string]any{
		FieldUserID:     r.UserID,
		FieldHotelName:  r.HotelName,
		FieldGuestCount: r.GuestCount,
		FieldNightCount: r.NightCount,
		FieldTotalPrice: r.TotalPrice,
		FieldCheckIn:    r.CheckIn.Format(DateLayout),
		FieldCheckOut:   r.CheckOut.Format(DateLayout),
		FieldCreatedAt:  r.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if r.HotelID != "" {
		fields[FieldHotelID] = r.HotelID
	}
	if r.RoomName != "" {
		fields[FieldRoomName] = r.RoomName
	}
	return fields
}

// ReservationFromDocument maps a reservations row, validating required fields.
func ReservationFromDocument(doc Document) (Reservation, error) {
	malformed := func(reason string) (Reservation, error) {
		return Reservation{}, apperrors.MalformedRecord(CollectionReservations, doc.ID, reason)
	}

	userID, ok := stringField(doc.Data, FieldUserID)
	if !ok || userID == "" {
		return malformed("userId missing or not a string")
	}
	hotelName, ok := stringField(doc.Data, FieldHotelName)
	if !ok || hotelName == "" {
		return malformed("hotelName missing or not a string")
	}
	guests, ok := intField(doc.Data, FieldGuestCount)
	if !ok || guests < 1 {
		return malformed("guestCount must be a positive integer")
	}
	total, ok := numberField(doc.Data, FieldTotalPrice)
	if !ok || total < 0 {
		return malformed("totalPrice must be a non-negative number")
	}
	checkIn, ok := dateField(doc.Data, FieldCheckIn)
	if !ok {
		return malformed("checkIn must be a date")
	}
	checkOut, ok := dateField(doc.Data, FieldCheckOut)
	if !ok {
		return malformed("checkOut must be a date")
	}
	nights, ok := intField(doc.Data, FieldNightCount)
	if !ok {
		nights = int(checkOut.Sub(checkIn).Hours() / 24)
	}
	createdAt, ok := timeField(doc.Data, FieldCreatedAt)
	if !ok {
		createdAt = doc.CreatedAt
	}
	hotelID, _ := stringField(doc.Data, FieldHotelID)
	roomName, _ := stringField(doc.Data, FieldRoomName)

	return Reservation{
		ID:         doc.ID,
		UserID:     userID,
		HotelID:    hotelID,
		HotelName:  hotelName,
		RoomName:   roomName,
		GuestCount: guests,
		NightCount: nights,
		TotalPrice: total,
		CheckIn:    checkIn,
		CheckOut:   checkOut,
		CreatedAt:  createdAt,
	}, nil
}
