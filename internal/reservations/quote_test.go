package reservations

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/staybook/hotel-server-go/internal/errors"
	"github.com/staybook/hotel-server-go/internal/model"
)

func TestNewQuote(t *testing.T) {
	t.Run("prices room nights", func(t *testing.T) {
		q, err := NewQuote(grandPalas, deluxe, 3, day("2025-06-01"), day("2025-06-05"))
		require.NoError(t, err)
		assert.Equal(t, 4, q.NightCount)
		assert.Equal(t, 1800.0, q.NightlyRate)
		assert.Equal(t, 7200.0, q.TotalPrice)
	})

	t.Run("counts calendar days regardless of clock time", func(t *testing.T) {
		in := time.Date(2025, 6, 1, 23, 30, 0, 0, time.UTC)
		out := time.Date(2025, 6, 2, 0, 15, 0, 0, time.UTC)
		q, err := NewQuote(grandPalas, deluxe, 1, in, out)
		require.NoError(t, err)
		assert.Equal(t, 1, q.NightCount)
		assert.Equal(t, day("2025-06-01"), q.CheckIn)
	})

	t.Run("falls back to hotel rate without a room", func(t *testing.T) {
		hotel := grandPalas
		hotel.Price = 900
		q, err := NewQuote(hotel, nil, 5, day("2025-06-01"), day("2025-06-03"))
		require.NoError(t, err)
		assert.Equal(t, 1800.0, q.TotalPrice)
	})

	t.Run("rejects invalid stays", func(t *testing.T) {
		tests := []struct {
			name     string
			hotel    model.Hotel
			room     *model.Room
			guests   int
			checkIn  string
			checkOut string
			code     apperrors.ErrorCode
		}{
			{"no guests", grandPalas, deluxe, 0, "2025-06-01", "2025-06-02", apperrors.ErrCodeInvalidInput},
			{"over capacity", grandPalas, deluxe, 4, "2025-06-01", "2025-06-02", apperrors.ErrCodeInvalidInput},
			{"same day", grandPalas, deluxe, 1, "2025-06-01", "2025-06-01", apperrors.ErrCodeInvalidInput},
			{"check-out first", grandPalas, deluxe, 1, "2025-06-03", "2025-06-01", apperrors.ErrCodeInvalidInput},
			{"no rate", grandPalas, nil, 1, "2025-06-01", "2025-06-02", apperrors.ErrCodeValidation},
			{"no hotel", model.Hotel{}, deluxe, 1, "2025-06-01", "2025-06-02", apperrors.ErrCodeMissingRequired},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := NewQuote(tt.hotel, tt.room, tt.guests, day(tt.checkIn), day(tt.checkOut))
				assert.True(t, apperrors.HasCode(err, tt.code), "got %v", err)
			})
		}
	})
}
