package reservations

import (
	"time"

	apperrors "github.com/staybook/hotel-server-go/internal/errors"
	"github.com/staybook/hotel-server-go/internal/model"
)

// Quote is a priced, validated stay that has not been booked yet.
type Quote struct {
	Hotel       model.Hotel
	Room        *model.Room
	GuestCount  int
	CheckIn     time.Time
	CheckOut    time.Time
	NightCount  int
	NightlyRate float64
	TotalPrice  float64
}

// NewQuote prices a stay at hotel. The room's rate applies when a room is
// given, the hotel's otherwise. Dates are reduced to calendar days.
func NewQuote(hotel model.Hotel, room *model.Room, guests int, checkIn, checkOut time.Time) (Quote, error) {
	if hotel.ID == "" || hotel.Name == "" {
		return Quote{}, apperrors.MissingRequired("hotel")
	}
	if guests < 1 {
		return Quote{}, apperrors.InvalidInput("guestCount", "at least one guest is required")
	}
	if room != nil && room.Capacity > 0 && guests > room.Capacity {
		return Quote{}, apperrors.InvalidInput("guestCount", "exceeds room capacity")
	}

	in, out := calendarDay(checkIn), calendarDay(checkOut)
	if !out.After(in) {
		return Quote{}, apperrors.InvalidInput("checkOut", "must be after check-in")
	}
	nights := int(out.Sub(in).Hours() / 24)

	rate := hotel.Price
	if room != nil {
		rate = room.Price
	}
	if rate <= 0 {
		return Quote{}, apperrors.ValidationError("No nightly rate available for this stay")
	}

	return Quote{
		Hotel:       hotel,
		Room:        room,
		GuestCount:  guests,
		CheckIn:     in,
		CheckOut:    out,
		NightCount:  nights,
		NightlyRate: rate,
		TotalPrice:  rate * float64(nights),
	}, nil
}

func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
