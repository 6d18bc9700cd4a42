package favorites

import (
	"sort"

	"github.com/staybook/hotel-server-go/internal/model"
)

// Set is an immutable set of hotel IDs. The zero value is empty.
type Set struct {
	ids map[string]struct{}
}

func NewSet(ids ...string) Set {
	if len(ids) == 0 {
		return Set{}
	}
	m := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return Set{ids: m}
}

func (s Set) Contains(id string) bool {
	_, ok := s.ids[id]
	return ok
}

func (s Set) Len() int {
	return len(s.ids)
}

// IDs returns the members in ascending order.
func (s Set) IDs() []string {
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s Set) Equal(other Set) bool {
	if len(s.ids) != len(other.ids) {
		return false
	}
	for id := range s.ids {
		if !other.Contains(id) {
			return false
		}
	}
	return true
}

func (s Set) with(id string) Set {
	if s.Contains(id) {
		return s
	}
	m := make(map[string]struct{}, len(s.ids)+1)
	for k := range s.ids {
		m[k] = struct{}{}
	}
	m[id] = struct{}{}
	return Set{ids: m}
}

func (s Set) without(id string) Set {
	if !s.Contains(id) {
		return s
	}
	m := make(map[string]struct{}, len(s.ids))
	for k := range s.ids {
		if k != id {
			m[k] = struct{}{}
		}
	}
	return Set{ids: m}
}

// projectFavorites maps favorites rows to their hotel IDs. Any malformed row
// fails the whole projection.
func projectFavorites(docs []model.Document) (Set, error) {
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		fav, err := model.FavoriteFromDocument(doc)
		if err != nil {
			return Set{}, err
		}
		ids = append(ids, fav.HotelID)
	}
	return NewSet(ids...), nil
}

// FilterHotels returns the hotels in set, keeping list order.
func FilterHotels(hotels []model.Hotel, set Set) []model.Hotel {
	out := make([]model.Hotel, 0, set.Len())
	for _, h := range hotels {
		if set.Contains(h.ID) {
			out = append(out, h)
		}
	}
	return out
}
