// Package favorites keeps the signed-in user's favorite hotel IDs in memory and
// in step with the relation store.
package favorites

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/staybook/hotel-server-go/internal/config"
	apperrors "github.com/staybook/hotel-server-go/internal/errors"
	"github.com/staybook/hotel-server-go/internal/identity"
	"github.com/staybook/hotel-server-go/internal/model"
	"github.com/staybook/hotel-server-go/internal/relation"
)

const Collection = model.CollectionFavorites

// ErrClosed is returned by loads started after Close.
var ErrClosed = errors.New("favorites synchronizer closed")

type Option func(*Synchronizer)

// WithTimeout bounds every relation store call.
func WithTimeout(d time.Duration) Option {
	return func(s *Synchronizer) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) { s.now = now }
}

// Synchronizer owns the cached favorite set for the current session.
//
// Add and Remove are serialized so the store write and the cache update of one
// mutation never interleave with another. Every cache write, whether from a
// mutation, a reload or a mirror snapshot, is applied by a single goroutine,
// which also delivers watcher notifications in apply order.
type Synchronizer struct {
	store     relation.Store
	timeout   time.Duration
	now       func() time.Time
	mutations metric.Int64Counter

	mutateMu sync.Mutex

	updates   chan update
	done      chan struct{}
	closeOnce sync.Once

	closersMu sync.Mutex
	closers   []func()

	mu    sync.RWMutex
	state state
}

type state struct {
	loaded  bool
	session *identity.Session
	set     Set

	// gen advances on every session change. Reload results carry the gen
	// they were started under and are dropped if it moved on.
	gen uint64

	watchers    []watcher
	nextWatcher int
}

type watcher struct {
	id int
	fn func(Set)
}

type update struct {
	apply  func(st *state) (changed bool)
	notify func(Set)
	done   chan struct{}
}

func New(store relation.Store, opts ...Option) *Synchronizer {
	mutations, err := otel.Meter("github.com/staybook/hotel-server-go/internal/favorites").
		Int64Counter("favorites.mutations", metric.WithDescription("Favorite adds and removes that reached the store"))
	if err != nil {
		otel.Handle(err)
	}

	s := &Synchronizer{
		store:     store,
		timeout:   config.DefaultBackendTimeout,
		now:       time.Now,
		mutations: mutations,
		updates:   make(chan update),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.run()
	return s
}

func (s *Synchronizer) run() {
	for {
		select {
		case <-s.done:
			return
		case u := <-s.updates:
			s.mu.Lock()
			changed := u.apply(&s.state)
			snap := s.state.set
			var targets []func(Set)
			if changed {
				for _, w := range s.state.watchers {
					targets = append(targets, w.fn)
				}
			} else if u.notify != nil {
				targets = append(targets, u.notify)
			}
			s.mu.Unlock()

			for _, fn := range targets {
				fn(snap)
			}
			close(u.done)
		}
	}
}

// submit hands apply to the apply goroutine and waits until it and the
// resulting notifications have run.
func (s *Synchronizer) submit(apply func(st *state) bool, notify func(Set)) {
	u := update{apply: apply, notify: notify, done: make(chan struct{})}
	select {
	case s.updates <- u:
	case <-s.done:
		return
	}
	select {
	case <-u.done:
	case <-s.done:
	}
}

func (st *state) replace(set Set) bool {
	if st.set.Equal(set) {
		return false
	}
	st.set = set
	return true
}

func (st *state) owns(userID string) bool {
	return st.session != nil && st.session.UserID == userID
}

// LoadForSession makes sess the current session and replaces the cached set
// with the store's rows for it. A nil session clears the set without touching
// the store. On failure the set is left empty.
func (s *Synchronizer) LoadForSession(ctx context.Context, sess *identity.Session) (Set, error) {
	if s.closed() {
		return Set{}, ErrClosed
	}
	if sess != nil {
		copied := *sess
		sess = &copied
	}

	var gen uint64
	s.submit(func(st *state) bool {
		first := !st.loaded
		st.loaded = true
		if first || !identity.SameUser(st.session, sess) {
			st.gen++
			st.session = sess
			gen = st.gen
			return st.replace(Set{}) || first
		}
		st.session = sess
		gen = st.gen
		return false
	}, nil)

	if sess == nil {
		return Set{}, nil
	}

	reset := func() {
		s.submit(func(st *state) bool {
			if st.gen != gen {
				return false
			}
			return st.replace(Set{})
		}, nil)
	}

	qctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	docs, err := s.store.Query(qctx, Collection, model.OwnerFilter(sess.UserID))
	if err != nil {
		reset()
		log.Warn().Err(err).Str("userId", sess.UserID).Msg("failed to load favorites")
		return Set{}, apperrors.BackendUnavailable(err)
	}

	set, err := projectFavorites(docs)
	if err != nil {
		reset()
		log.Error().Err(err).Str("userId", sess.UserID).Msg("malformed favorites row")
		return Set{}, err
	}

	applied := false
	s.submit(func(st *state) bool {
		if st.gen != gen {
			return false
		}
		applied = true
		return st.replace(set)
	}, nil)
	if !applied {
		if s.closed() {
			return Set{}, ErrClosed
		}
		log.Debug().Str("userId", sess.UserID).Msg("discarding favorites load for superseded session")
		return s.Favorites(), nil
	}

	log.Debug().Str("userId", sess.UserID).Int("count", set.Len()).Msg("favorites loaded")
	return set, nil
}

// Refresh reloads the set for the current session.
func (s *Synchronizer) Refresh(ctx context.Context) (Set, error) {
	return s.LoadForSession(ctx, s.Session())
}

// Add favorites hotelID. Adding a cached ID is a no-op.
func (s *Synchronizer) Add(ctx context.Context, hotelID string) error {
	s.mutateMu.Lock()
	defer s.mutateMu.Unlock()
	return s.add(ctx, hotelID)
}

// Remove deletes the first stored row for hotelID. Removing an ID with no
// stored row is a no-op.
func (s *Synchronizer) Remove(ctx context.Context, hotelID string) error {
	s.mutateMu.Lock()
	defer s.mutateMu.Unlock()
	return s.remove(ctx, hotelID)
}

// Toggle removes hotelID if cached and adds it otherwise.
func (s *Synchronizer) Toggle(ctx context.Context, hotelID string) error {
	s.mutateMu.Lock()
	defer s.mutateMu.Unlock()
	if s.Contains(hotelID) {
		return s.remove(ctx, hotelID)
	}
	return s.add(ctx, hotelID)
}

func (s *Synchronizer) add(ctx context.Context, hotelID string) error {
	sess, set := s.snapshot()
	if sess == nil {
		return apperrors.AuthenticationRequired()
	}
	if hotelID == "" {
		return apperrors.MissingRequired("hotelId")
	}
	if set.Contains(hotelID) {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	fav := model.FavoriteRelation{UserID: sess.UserID, HotelID: hotelID, CreatedAt: s.now().UTC()}
	if _, err := s.store.Insert(ctx, Collection, fav.Fields()); err != nil {
		log.Warn().Err(err).Str("userId", sess.UserID).Str("hotelId", hotelID).Msg("failed to add favorite")
		return apperrors.BackendUnavailable(err)
	}

	s.submit(func(st *state) bool {
		if !st.owns(sess.UserID) {
			return false
		}
		return st.replace(st.set.with(hotelID))
	}, nil)
	s.record(ctx, "add")

	log.Info().Str("userId", sess.UserID).Str("hotelId", hotelID).Msg("favorite added")
	return nil
}

func (s *Synchronizer) remove(ctx context.Context, hotelID string) error {
	sess, _ := s.snapshot()
	if sess == nil {
		return apperrors.AuthenticationRequired()
	}
	if hotelID == "" {
		return apperrors.MissingRequired("hotelId")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	docs, err := s.store.Query(ctx, Collection,
		model.OwnerFilter(sess.UserID),
		model.Filter{Field: model.FieldHotelID, Value: hotelID},
	)
	if err != nil {
		log.Warn().Err(err).Str("userId", sess.UserID).Str("hotelId", hotelID).Msg("failed to look up favorite")
		return apperrors.BackendUnavailable(err)
	}
	if len(docs) == 0 {
		return nil
	}

	if err := s.store.Delete(ctx, Collection, docs[0].ID); err != nil && !apperrors.HasCode(err, apperrors.ErrCodeNotFound) {
		log.Warn().Err(err).Str("userId", sess.UserID).Str("hotelId", hotelID).Msg("failed to remove favorite")
		return apperrors.BackendUnavailable(err)
	}

	s.submit(func(st *state) bool {
		if !st.owns(sess.UserID) {
			return false
		}
		return st.replace(st.set.without(hotelID))
	}, nil)
	s.record(ctx, "remove")

	log.Info().Str("userId", sess.UserID).Str("hotelId", hotelID).Msg("favorite removed")
	return nil
}

// applySnapshot replaces the set with a pushed snapshot if userID is still the
// current session.
func (s *Synchronizer) applySnapshot(userID string, set Set) bool {
	applied := false
	s.submit(func(st *state) bool {
		if !st.owns(userID) {
			return false
		}
		applied = true
		return st.replace(set)
	}, nil)
	return applied
}

// Watch calls fn with the current set and again after every change. fn runs on
// the apply goroutine and must not call Add, Remove, Toggle or LoadForSession.
func (s *Synchronizer) Watch(fn func(Set)) (unwatch func()) {
	var id int
	s.submit(func(st *state) bool {
		id = st.nextWatcher
		st.nextWatcher++
		st.watchers = append(st.watchers, watcher{id: id, fn: fn})
		return false
	}, fn)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, w := range s.state.watchers {
				if w.id == id {
					s.state.watchers = append(s.state.watchers[:i:i], s.state.watchers[i+1:]...)
					return
				}
			}
		})
	}
}

func (s *Synchronizer) Favorites() Set {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.set
}

func (s *Synchronizer) Contains(hotelID string) bool {
	return s.Favorites().Contains(hotelID)
}

// Session returns the session the set belongs to, or nil in guest mode.
func (s *Synchronizer) Session() *identity.Session {
	sess, _ := s.snapshot()
	return sess
}

// Loaded reports whether LoadForSession has run at least once.
func (s *Synchronizer) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.loaded
}

// Close stops the apply goroutine and tears down every Mirror bound to s.
// Later calls do not update the set.
func (s *Synchronizer) Close() {
	s.closeOnce.Do(func() {
		close(s.done)

		s.closersMu.Lock()
		closers := s.closers
		s.closers = nil
		s.closersMu.Unlock()

		for _, fn := range closers {
			fn()
		}
	})
}

func (s *Synchronizer) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// onClose registers fn to run when s is closed, or runs it now if s already is.
func (s *Synchronizer) onClose(fn func()) {
	s.closersMu.Lock()
	if !s.closed() {
		s.closers = append(s.closers, fn)
		s.closersMu.Unlock()
		return
	}
	s.closersMu.Unlock()
	fn()
}

func (s *Synchronizer) snapshot() (*identity.Session, Set) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.session == nil {
		return nil, s.state.set
	}
	sess := *s.state.session
	return &sess, s.state.set
}

func (s *Synchronizer) record(ctx context.Context, op string) {
	if s.mutations != nil {
		s.mutations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
	}
}
