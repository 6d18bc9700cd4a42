package favorites

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/staybook/hotel-server-go/internal/errors"
	"github.com/staybook/hotel-server-go/internal/relation"
)

func TestSessionWatcher(t *testing.T) {
	ctx := context.Background()
	store := relation.NewMemoryStore()
	seed(t, store, "a", "H1", "H2")
	seed(t, store, "b", "H3")

	s := newSynchronizer(t, store)
	sessions := &fakeSessions{current: session("a")}
	w := NewSessionWatcher(sessions, s, NewMirror(store, s))

	w.Start(ctx)
	assert.Equal(t, []string{"H1", "H2"}, s.Favorites().IDs(), "initial session is loaded on start")

	sessions.set(session("b"))
	assert.Equal(t, []string{"H3"}, s.Favorites().IDs())
	assert.Equal(t, "b", s.Session().UserID)

	seed(t, store, "b", "H4")
	assert.Equal(t, []string{"H3", "H4"}, s.Favorites().IDs(), "live query follows the new session")

	sessions.set(nil)
	assert.Equal(t, 0, s.Favorites().Len())
	assert.Nil(t, s.Session())

	sessions.set(session("a"))
	assert.Equal(t, []string{"H1", "H2"}, s.Favorites().IDs())

	w.Stop()
	sessions.set(session("b"))
	assert.Equal(t, "a", s.Session().UserID, "stopped watcher ignores session changes")

	seed(t, store, "a", "H5")
	assert.Equal(t, []string{"H1", "H2"}, s.Favorites().IDs(), "stopped watcher closes the live query")
}

func TestSessionWatcherWithoutMirror(t *testing.T) {
	store := relation.NewMemoryStore()
	seed(t, store, "a", "H1")
	s := newSynchronizer(t, store)
	sessions := &fakeSessions{}
	w := NewSessionWatcher(sessions, s, nil)

	w.Start(context.Background())
	defer w.Stop()
	assert.True(t, s.Loaded())
	assert.Nil(t, s.Session())

	sessions.set(session("a"))
	assert.Equal(t, []string{"H1"}, s.Favorites().IDs())
}

func TestSessionWatcherReportsErrors(t *testing.T) {
	store := newCountingStore(relation.NewMemoryStore())
	store.failQueries(errors.New("unreachable"))
	s := newSynchronizer(t, store)
	sessions := &fakeSessions{}
	w := NewSessionWatcher(sessions, s, nil)

	var mu sync.Mutex
	var reported []error
	w.OnError(func(err error) {
		mu.Lock()
		reported = append(reported, err)
		mu.Unlock()
	})
	w.Start(context.Background())
	defer w.Stop()

	sessions.set(session("a"))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, reported, 1)
	assert.True(t, apperrors.HasCode(reported[0], apperrors.ErrCodeBackendUnavailable))
	assert.Equal(t, 0, s.Favorites().Len())
}

func TestSessionWatcherStartIsIdempotent(t *testing.T) {
	store := newCountingStore(relation.NewMemoryStore())
	s := newSynchronizer(t, store)
	sessions := &fakeSessions{current: session("a")}
	w := NewSessionWatcher(sessions, s, nil)

	w.Start(context.Background())
	w.Start(context.Background())
	defer w.Stop()

	assert.Equal(t, 1, store.callCount("query"))
}
