package favorites

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/staybook/hotel-server-go/internal/identity"
	"github.com/staybook/hotel-server-go/internal/model"
	"github.com/staybook/hotel-server-go/internal/relation"
)

func session(userID string) *identity.Session {
	return &identity.Session{UserID: userID, Email: userID + "@example.com", Token: "tok-" + userID}
}

func seed(t *testing.T, store relation.Store, userID string, hotelIDs ...string) {
	t.Helper()
	for _, id := range hotelIDs {
		_, err := store.Insert(context.Background(), Collection, map[string]any{
			model.FieldUserID:  userID,
			model.FieldHotelID: id,
		})
		require.NoError(t, err)
	}
}

// storedHotelIDs returns the user's stored hotel IDs, duplicates included.
func storedHotelIDs(t *testing.T, store relation.Store, userID string) []string {
	t.Helper()
	docs, err := store.Query(context.Background(), Collection, model.OwnerFilter(userID))
	require.NoError(t, err)
	ids := []string{}
	for _, d := range docs {
		ids = append(ids, d.Data[model.FieldHotelID].(string))
	}
	sort.Strings(ids)
	return ids
}

// fakeSessions is an in-memory SessionSource.
type fakeSessions struct {
	mu        sync.Mutex
	current   *identity.Session
	listeners []func(*identity.Session)
}

func (f *fakeSessions) OnSessionChange(fn func(*identity.Session)) func() {
	f.mu.Lock()
	idx := len(f.listeners)
	f.listeners = append(f.listeners, fn)
	current := f.current
	f.mu.Unlock()

	fn(current)
	return func() {
		f.mu.Lock()
		f.listeners[idx] = nil
		f.mu.Unlock()
	}
}

func (f *fakeSessions) set(sess *identity.Session) {
	f.mu.Lock()
	f.current = sess
	listeners := append(([]func(*identity.Session))(nil), f.listeners...)
	f.mu.Unlock()

	for _, fn := range listeners {
		if fn != nil {
			fn(sess)
		}
	}
}

// countingStore records calls and can fail chosen operations.
type countingStore struct {
	relation.Store

	mu        sync.Mutex
	calls     map[string]int
	open      int
	queryErr  error
	insertErr error
	deleteErr error
}

func newCountingStore(next relation.Store) *countingStore {
	return &countingStore{Store: next, calls: map[string]int{}}
}

func (c *countingStore) count(op string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[op]++
	switch op {
	case "query":
		return c.queryErr
	case "insert":
		return c.insertErr
	case "delete":
		return c.deleteErr
	}
	return nil
}

func (c *countingStore) failQueries(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queryErr = err
}

func (c *countingStore) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.calls {
		n += v
	}
	return n
}

func (c *countingStore) callCount(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[op]
}

func (c *countingStore) Query(ctx context.Context, collection string, filters ...model.Filter) ([]model.Document, error) {
	if err := c.count("query"); err != nil {
		return nil, err
	}
	return c.Store.Query(ctx, collection, filters...)
}

func (c *countingStore) Insert(ctx context.Context, collection string, data map[string]any) (string, error) {
	if err := c.count("insert"); err != nil {
		return "", err
	}
	return c.Store.Insert(ctx, collection, data)
}

func (c *countingStore) Delete(ctx context.Context, collection, id string) error {
	if err := c.count("delete"); err != nil {
		return err
	}
	return c.Store.Delete(ctx, collection, id)
}

func (c *countingStore) Subscribe(ctx context.Context, collection string, filters []model.Filter, fn relation.SnapshotFunc) (func(), error) {
	if err := c.count("subscribe"); err != nil {
		return nil, err
	}
	unsubscribe, err := c.Store.Subscribe(ctx, collection, filters, fn)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.open++
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			c.open--
			c.mu.Unlock()
		})
		unsubscribe()
	}, nil
}

func (c *countingStore) openSubscriptions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// gatedStore blocks queries for one user until release is called.
type gatedStore struct {
	relation.Store
	userID  string
	entered chan struct{}
	gate    chan struct{}
}

func newGatedStore(next relation.Store, userID string) *gatedStore {
	return &gatedStore{Store: next, userID: userID, entered: make(chan struct{}, 1), gate: make(chan struct{})}
}

func (g *gatedStore) release() { close(g.gate) }

func (g *gatedStore) Query(ctx context.Context, collection string, filters ...model.Filter) ([]model.Document, error) {
	if owner, _ := model.OwnerOf(filters); owner == g.userID {
		docs, err := g.Store.Query(ctx, collection, filters...)
		select {
		case g.entered <- struct{}{}:
		default:
		}
		<-g.gate
		return docs, err
	}
	return g.Store.Query(ctx, collection, filters...)
}

// hangingStore never answers until the context ends.
type hangingStore struct {
	relation.Store
}

func (h hangingStore) Query(ctx context.Context, collection string, filters ...model.Filter) ([]model.Document, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (h hangingStore) Insert(ctx context.Context, collection string, data map[string]any) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

// setRecorder collects every set a watcher observes.
type setRecorder struct {
	mu   sync.Mutex
	seen [][]string
}

func (r *setRecorder) observe(s Set) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, s.IDs())
}

func (r *setRecorder) all() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.seen...)
}

func (r *setRecorder) last() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.seen) == 0 {
		return nil
	}
	return r.seen[len(r.seen)-1]
}
