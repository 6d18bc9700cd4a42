package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Document is an untyped row of the relation store.
type Document struct {
	ID         string         `json:"id"`
	Collection string         `json:"collection"`
	OwnerID    string         `json:"ownerId"`
	Data       map[string]any `json:"data"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// Filter is an equality predicate on a document field.
type Filter struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func (f Filter) String() string {
	return fmt.Sprintf("%s==%s", f.Field, f.Value)
}

// OwnerFilter returns the userId equality predicate every query must carry.
func OwnerFilter(userID string) Filter {
	return Filter{Field: FieldUserID, Value: userID}
}

// OwnerOf returns the value of the userId equality predicate in filters.
func OwnerOf(filters []Filter) (string, bool) {
	for _, f := range filters {
		if f.Field == FieldUserID {
			return f.Value, true
		}
	}
	return "", false
}

// Matches reports whether every filter equals the corresponding data field.
// Non-string values compare by their JSON encoding.
func (d Document) Matches(filters []Filter) bool {
	for _, f := range filters {
		v, ok := d.Data[f.Field]
		if !ok {
			return false
		}
		if s, ok := v.(string); ok {
			if s != f.Value {
				return false
			}
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil || string(raw) != f.Value {
			return false
		}
	}
	return true
}

func stringField(data map[string]any, key string) (string, bool) {
	s, ok := data[key].(string)
	return s, ok
}

func numberField(data map[string]any, key string) (float64, bool) {
	switch v := data[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func intField(data map[string]any, key string) (int, bool) {
	f, ok := numberField(data, key)
	if !ok || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}

func timeField(data map[string]any, key string) (time.Time, bool) {
	switch v := data[key].(type) {
	case time.Time:
		return v, true
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		return t, err == nil
	default:
		return time.Time{}, false
	}
}

func dateField(data map[string]any, key string) (time.Time, bool) {
	s, ok := stringField(data, key)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(DateLayout, s)
	return t, err == nil
}
