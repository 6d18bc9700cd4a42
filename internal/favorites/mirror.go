package favorites

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	apperrors "github.com/staybook/hotel-server-go/internal/errors"
	"github.com/staybook/hotel-server-go/internal/identity"
	"github.com/staybook/hotel-server-go/internal/model"
	"github.com/staybook/hotel-server-go/internal/relation"
)

// Mirror keeps a live query open on the current session's favorites and
// replaces the Synchronizer's set with every snapshot the store pushes.
type Mirror struct {
	store  relation.Store
	syncer *Synchronizer

	mu          sync.Mutex
	userID      string
	unsubscribe func()

	// current identifies the live subscription; snapshots from any other
	// subscription are stale.
	current atomic.Uint64
}

// NewMirror binds a Mirror to syncer. Closing syncer closes the Mirror.
func NewMirror(store relation.Store, syncer *Synchronizer) *Mirror {
	m := &Mirror{store: store, syncer: syncer}
	syncer.onClose(m.Close)
	return m
}

// Follow re-targets the live query at sess. Following the user already followed
// keeps the existing subscription; a nil session tears it down.
func (m *Mirror) Follow(ctx context.Context, sess *identity.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.syncer.closed() {
		m.stopLocked()
		if sess == nil {
			return nil
		}
		return ErrClosed
	}

	if sess != nil && m.unsubscribe != nil && m.userID == sess.UserID {
		return nil
	}
	m.stopLocked()
	if sess == nil {
		return nil
	}

	gen := m.current.Add(1)
	userID := sess.UserID
	unsubscribe, err := m.store.Subscribe(ctx, Collection, []model.Filter{model.OwnerFilter(userID)},
		func(docs []model.Document) {
			m.deliver(gen, userID, docs)
		})
	if err != nil {
		log.Warn().Err(err).Str("userId", userID).Msg("failed to open favorites live query")
		return apperrors.BackendUnavailable(err)
	}

	m.userID = userID
	m.unsubscribe = unsubscribe
	log.Debug().Str("userId", userID).Msg("favorites live query opened")
	return nil
}

// Close tears down the live query.
func (m *Mirror) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

func (m *Mirror) stopLocked() {
	m.current.Add(1)
	if m.unsubscribe != nil {
		m.unsubscribe()
		log.Debug().Str("userId", m.userID).Msg("favorites live query closed")
	}
	m.unsubscribe = nil
	m.userID = ""
}

func (m *Mirror) deliver(gen uint64, userID string, docs []model.Document) {
	if m.current.Load() != gen {
		log.Debug().Str("userId", userID).Msg("discarding stale favorites snapshot")
		return
	}
	set, err := projectFavorites(docs)
	if err != nil {
		log.Warn().Err(err).Str("userId", userID).Msg("ignoring malformed favorites snapshot")
		return
	}
	if !m.syncer.applySnapshot(userID, set) {
		log.Debug().Str("userId", userID).Msg("favorites snapshot for inactive session dropped")
	}
}
