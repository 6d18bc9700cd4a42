package relation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/staybook/hotel-server-go/internal/errors"
	"github.com/staybook/hotel-server-go/internal/model"
)

// MemoryStore is an in-process Store. Snapshots are delivered synchronously on
// the goroutine that caused the change, after the store lock is released.
type MemoryStore struct {
	mu      sync.Mutex
	docs    map[string][]model.Document
	subs    map[int]*memorySubscription
	nextSub int
	now     func() time.Time
}

type memorySubscription struct {
	collection string
	filters    []model.Filter
	fn         SnapshotFunc
	version    uint64 // guarded by MemoryStore.mu

	mu        sync.Mutex
	closed    bool
	delivered uint64
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string][]model.Document),
		subs: make(map[int]*memorySubscription),
		now:  time.Now,
	}
}

func (s *MemoryStore) Query(ctx context.Context, collection string, filters ...model.Filter) ([]model.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matchLocked(collection, filters), nil
}

func (s *MemoryStore) Insert(ctx context.Context, collection string, data map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	owner, _ := data[model.FieldUserID].(string)
	doc := model.Document{
		ID:         uuid.NewString(),
		Collection: collection,
		OwnerID:    owner,
		Data:       copyData(data),
		CreatedAt:  s.now(),
	}

	s.mu.Lock()
	s.docs[collection] = append(s.docs[collection], doc)
	pending := s.pendingLocked(collection)
	s.mu.Unlock()

	deliver(pending)
	return doc.ID, nil
}

func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	rows := s.docs[collection]
	idx := -1
	for i, d := range rows {
		if d.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return apperrors.NotFound("Document")
	}
	s.docs[collection] = append(rows[:idx:idx], rows[idx+1:]...)
	pending := s.pendingLocked(collection)
	s.mu.Unlock()

	deliver(pending)
	return nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, collection string, filters []model.Filter, fn SnapshotFunc) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sub := &memorySubscription{
		collection: collection,
		filters:    append([]model.Filter(nil), filters...),
		fn:         fn,
	}

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = sub
	sub.version++
	initial := pendingSnapshot{sub: sub, version: sub.version, docs: s.matchLocked(collection, sub.filters)}
	s.mu.Unlock()

	deliver([]pendingSnapshot{initial})

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
		sub.close()
	}, nil
}

// Len returns the number of rows in collection.
func (s *MemoryStore) Len(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs[collection])
}

func (s *MemoryStore) matchLocked(collection string, filters []model.Filter) []model.Document {
	var out []model.Document
	for _, d := range s.docs[collection] {
		if d.Matches(filters) {
			d.Data = copyData(d.Data)
			out = append(out, d)
		}
	}
	return out
}

type pendingSnapshot struct {
	sub     *memorySubscription
	version uint64
	docs    []model.Document
}

func (s *MemoryStore) pendingLocked(collection string) []pendingSnapshot {
	var out []pendingSnapshot
	for _, sub := range s.subs {
		if sub.collection == collection {
			sub.version++
			out = append(out, pendingSnapshot{sub: sub, version: sub.version, docs: s.matchLocked(collection, sub.filters)})
		}
	}
	return out
}

func deliver(pending []pendingSnapshot) {
	for _, p := range pending {
		p.sub.send(p.version, p.docs)
	}
}

// send drops snapshots older than one already delivered, so concurrent writers
// cannot reorder what a subscriber observes.
func (sub *memorySubscription) send(version uint64, docs []model.Document) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed || version <= sub.delivered {
		return
	}
	sub.delivered = version
	sub.fn(docs)
}

func (sub *memorySubscription) close() {
	sub.mu.Lock()
	sub.closed = true
	sub.mu.Unlock()
}

func copyData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}
