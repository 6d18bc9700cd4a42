package favorites

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/staybook/hotel-server-go/internal/identity"
)

// SessionSource announces session changes, starting with the current session.
type SessionSource interface {
	OnSessionChange(fn func(*identity.Session)) (unsubscribe func())
}

// SessionWatcher reloads the Synchronizer and re-targets the Mirror on every
// session change.
type SessionWatcher struct {
	source SessionSource
	syncer *Synchronizer
	mirror *Mirror

	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	onError     func(error)
}

// NewSessionWatcher wires source to syncer. mirror may be nil, in which case the
// set changes only on reloads and local mutations.
func NewSessionWatcher(source SessionSource, syncer *Synchronizer, mirror *Mirror) *SessionWatcher {
	return &SessionWatcher{source: source, syncer: syncer, mirror: mirror}
}

// OnError registers a callback for reload and live query failures.
func (w *SessionWatcher) OnError(fn func(error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onError = fn
}

// Start subscribes to the session source. The current session is loaded before
// Start returns. ctx bounds the lifetime of the live query.
func (w *SessionWatcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	unsubscribe := w.source.OnSessionChange(w.handle)

	w.mu.Lock()
	w.unsubscribe = unsubscribe
	w.mu.Unlock()
}

// Stop unsubscribes from the session source and closes the live query.
func (w *SessionWatcher) Stop() {
	w.mu.Lock()
	unsubscribe, cancel := w.unsubscribe, w.cancel
	w.unsubscribe, w.cancel = nil, nil
	w.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if w.mirror != nil {
		w.mirror.Close()
	}
	if cancel != nil {
		cancel()
	}
}

func (w *SessionWatcher) handle(sess *identity.Session) {
	w.mu.Lock()
	ctx := w.ctx
	w.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	if _, err := w.syncer.LoadForSession(ctx, sess); err != nil {
		log.Warn().Err(err).Msg("favorites reload after session change failed")
		w.report(err)
	}
	if w.mirror != nil {
		if err := w.mirror.Follow(ctx, sess); err != nil {
			w.report(err)
		}
	}
}

func (w *SessionWatcher) report(err error) {
	w.mu.Lock()
	fn := w.onError
	w.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}
