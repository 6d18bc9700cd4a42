package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/staybook/hotel-server-go/internal/directory"
	apperrors "github.com/staybook/hotel-server-go/internal/errors"
	"github.com/staybook/hotel-server-go/internal/model"
)

type HotelDirectory interface {
	ListHotels(ctx context.Context) ([]model.Hotel, error)
	GetHotel(ctx context.Context, id string) (*model.Hotel, error)
}

// HotelsHandler proxies the hotel directory so clients need a single base URL.
// The listing keeps the directory's bare JSON array shape.
type HotelsHandler struct {
	directory HotelDirectory
}

func NewHotelsHandler(directory HotelDirectory) *HotelsHandler {
	return &HotelsHandler{directory: directory}
}

func (h *HotelsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListHotels)
	r.Get("/{id}", h.GetHotel)
	r.Get("/{id}/rooms", h.ListRooms)

	return r
}

// GET /v1/hotels
func (h *HotelsHandler) ListHotels(w http.ResponseWriter, r *http.Request) {
	hotels, err := h.directory.ListHotels(r.Context())
	if err != nil {
		log.Warn().Err(err).Msg("failed to list hotels")
		writeError(w, err)
		return
	}
	if hotels == nil {
		hotels = []model.Hotel{}
	}
	writeJSON(w, http.StatusOK, hotels)
}

// GET /v1/hotels/{id}
func (h *HotelsHandler) GetHotel(w http.ResponseWriter, r *http.Request) {
	hotel, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, hotel)
}

// GET /v1/hotels/{id}/rooms
func (h *HotelsHandler) ListRooms(w http.ResponseWriter, r *http.Request) {
	hotel, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, directory.Rooms(hotel.ID))
}

func (h *HotelsHandler) lookup(w http.ResponseWriter, r *http.Request) (*model.Hotel, bool) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, apperrors.MissingRequired("id"))
		return nil, false
	}

	hotel, err := h.directory.GetHotel(r.Context(), id)
	if err != nil {
		if !apperrors.HasCode(err, apperrors.ErrCodeNotFound) {
			log.Warn().Err(err).Str("hotelId", id).Msg("failed to get hotel")
		}
		writeError(w, err)
		return nil, false
	}
	return hotel, true
}
