// Package reservations prices stays and keeps the signed-in user's bookings in
// the relation store.
package reservations

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/staybook/hotel-server-go/internal/config"
	apperrors "github.com/staybook/hotel-server-go/internal/errors"
	"github.com/staybook/hotel-server-go/internal/identity"
	"github.com/staybook/hotel-server-go/internal/model"
	"github.com/staybook/hotel-server-go/internal/relation"
)

const Collection = model.CollectionReservations

// SessionSource reports who is signed in; nil means guest.
type SessionSource interface {
	Current() *identity.Session
}

type Book struct {
	store    relation.Store
	sessions SessionSource
	timeout  time.Duration
	now      func() time.Time
}

func NewBook(store relation.Store, sessions SessionSource) *Book {
	return &Book{
		store:    store,
		sessions: sessions,
		timeout:  config.DefaultBackendTimeout,
		now:      time.Now,
	}
}

// WithTimeout returns b with every store call bounded by d.
func (b *Book) WithTimeout(d time.Duration) *Book {
	if d > 0 {
		b.timeout = d
	}
	return b
}

// Book stores q for the current user.
func (b *Book) Book(ctx context.Context, q Quote) (*model.Reservation, error) {
	sess := b.sessions.Current()
	if sess == nil {
		return nil, apperrors.AuthenticationRequired()
	}

	res := model.Reservation{
		UserID:     sess.UserID,
		HotelID:    q.Hotel.ID,
		HotelName:  q.Hotel.Name,
		GuestCount: q.GuestCount,
		NightCount: q.NightCount,
		TotalPrice: q.TotalPrice,
		CheckIn:    q.CheckIn,
		CheckOut:   q.CheckOut,
		CreatedAt:  b.now().UTC(),
	}
	if q.Room != nil {
		res.RoomName = q.Room.Name
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	id, err := b.store.Insert(ctx, Collection, res.Fields())
	if err != nil {
		log.Warn().Err(err).Str("userId", sess.UserID).Str("hotelId", q.Hotel.ID).Msg("failed to store reservation")
		return nil, apperrors.BackendUnavailable(err)
	}
	res.ID = id

	log.Info().Str("userId", sess.UserID).Str("reservationId", id).Int("nights", res.NightCount).Msg("reservation booked")
	return &res, nil
}

// History lists the current user's reservations, newest first.
func (b *Book) History(ctx context.Context) ([]model.Reservation, error) {
	sess := b.sessions.Current()
	if sess == nil {
		return nil, apperrors.AuthenticationRequired()
	}

	docs, err := b.query(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}

	out := make([]model.Reservation, 0, len(docs))
	for _, doc := range docs {
		res, err := model.ReservationFromDocument(doc)
		if err != nil {
			log.Error().Err(err).Str("userId", sess.UserID).Str("documentId", doc.ID).Msg("malformed reservation row")
			return nil, err
		}
		out = append(out, res)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Cancel deletes reservation id if it belongs to the current user.
func (b *Book) Cancel(ctx context.Context, id string) error {
	sess := b.sessions.Current()
	if sess == nil {
		return apperrors.AuthenticationRequired()
	}
	if id == "" {
		return apperrors.MissingRequired("id")
	}

	docs, err := b.query(ctx, sess.UserID)
	if err != nil {
		return err
	}
	owned := false
	for _, doc := range docs {
		if doc.ID == id {
			owned = true
			break
		}
	}
	if !owned {
		return apperrors.NotFound("Reservation")
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	if err := b.store.Delete(ctx, Collection, id); err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeNotFound) {
			return apperrors.NotFound("Reservation")
		}
		log.Warn().Err(err).Str("userId", sess.UserID).Str("reservationId", id).Msg("failed to cancel reservation")
		return apperrors.BackendUnavailable(err)
	}

	log.Info().Str("userId", sess.UserID).Str("reservationId", id).Msg("reservation cancelled")
	return nil
}

func (b *Book) query(ctx context.Context, userID string) ([]model.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	docs, err := b.store.Query(ctx, Collection, model.OwnerFilter(userID))
	if err != nil {
		log.Warn().Err(err).Str("userId", userID).Msg("failed to load reservations")
		return nil, apperrors.BackendUnavailable(err)
	}
	return docs, nil
}
