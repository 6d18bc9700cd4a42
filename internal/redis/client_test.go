package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRelationChannel(t *testing.T) {
	assert.Equal(t, "relations:favorites:u1", RelationChannel("favorites", "u1"))
	assert.Equal(t, "relations:reservations:u2", RelationChannel("reservations", "u2"))
}

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := NewClient("not a url")
	assert.Error(t, err)
}
