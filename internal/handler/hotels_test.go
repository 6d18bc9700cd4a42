package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/staybook/hotel-server-go/internal/errors"
	"github.com/staybook/hotel-server-go/internal/model"
)

type fakeDirectory struct {
	hotels []model.Hotel
	err    error
}

func (f *fakeDirectory) ListHotels(ctx context.Context) ([]model.Hotel, error) {
	return f.hotels, f.err
}

func (f *fakeDirectory) GetHotel(ctx context.Context, id string) (*model.Hotel, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, h := range f.hotels {
		if h.ID == id {
			return &h, nil
		}
	}
	return nil, apperrors.NotFound("Hotel")
}

func serveHotels(dir HotelDirectory, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	NewHotelsHandler(dir).Routes().ServeHTTP(rec, req)
	return rec
}

var testHotels = []model.Hotel{
	{ID: "1", Name: "Grand Palas", Location: "Istanbul"},
	{ID: "2", Name: "Sea Breeze", Location: "Izmir"},
}

func TestHotelsHandler_ListHotels(t *testing.T) {
	t.Run("returns a bare array", func(t *testing.T) {
		rec := serveHotels(&fakeDirectory{hotels: testHotels}, "/")

		assert.Equal(t, http.StatusOK, rec.Code)
		var hotels []model.Hotel
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hotels))
		require.Len(t, hotels, 2)
		assert.Equal(t, "Sea Breeze", hotels[1].Name)
	})

	t.Run("empty directory is an empty array", func(t *testing.T) {
		rec := serveHotels(&fakeDirectory{}, "/")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[]`, rec.Body.String())
	})

	t.Run("directory failure is a bad gateway", func(t *testing.T) {
		dir := &fakeDirectory{err: apperrors.DirectoryUnavailable(errors.New("connection refused"))}

		rec := serveHotels(dir, "/")

		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, apperrors.ErrCodeDirectoryUnavailable, decodeError(t, rec).Code)
	})
}

func TestHotelsHandler_GetHotel(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		rec := serveHotels(&fakeDirectory{hotels: testHotels}, "/2")

		assert.Equal(t, http.StatusOK, rec.Code)
		var hotel model.Hotel
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hotel))
		assert.Equal(t, "Izmir", hotel.Location)
	})

	t.Run("unknown id", func(t *testing.T) {
		rec := serveHotels(&fakeDirectory{hotels: testHotels}, "/99")

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHotelsHandler_ListRooms(t *testing.T) {
	t.Run("lists rooms of a known hotel", func(t *testing.T) {
		rec := serveHotels(&fakeDirectory{hotels: testHotels}, "/1/rooms")

		assert.Equal(t, http.StatusOK, rec.Code)
		var rooms []model.Room
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rooms))
		assert.Len(t, rooms, 2)
		for _, room := range rooms {
			assert.Equal(t, "1", room.HotelID)
		}
	})

	t.Run("unknown hotel", func(t *testing.T) {
		rec := serveHotels(&fakeDirectory{hotels: testHotels}, "/99/rooms")

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
