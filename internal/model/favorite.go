package model

import (
	"time"

	apperrors "github.com/staybook/hotel-server-go/internal/errors"
)

// FavoriteRelation records that a user marked a hotel as favorite.
type FavoriteRelation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	HotelID   string    `json:"hotelId"`
	CreatedAt time.Time `json:"createdAt"`
}

func (f FavoriteRelation) Fields() map[string]any {
	return map[string]any{
		FieldUserID:    f.UserID,
		FieldHotelID:   f.HotelID,
		FieldCreatedAt: f.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// FavoriteFromDocument maps a favorites row. Rows written without createdAt
// fall back to the row's own creation time.
func FavoriteFromDocument(doc Document) (FavoriteRelation, error) {
	userID, ok := stringField(doc.Data, FieldUserID)
	if !ok || userID == "" {
		return FavoriteRelation{}, apperrors.MalformedRecord(CollectionFavorites, doc.ID, "userId missing or not a string")
	}
	hotelID, ok := stringField(doc.Data, FieldHotelID)
	if !ok || hotelID == "" {
		return FavoriteRelation{}, apperrors.MalformedRecord(CollectionFavorites, doc.ID, "hotelId missing or not a string")
	}
	createdAt, ok := timeField(doc.Data, FieldCreatedAt)
	if !ok {
		createdAt = doc.CreatedAt
	}

	return FavoriteRelation{
		ID:        doc.ID,
		UserID:    userID,
		HotelID:   hotelID,
		CreatedAt: createdAt,
	}, nil
}
