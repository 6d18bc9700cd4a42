// Package identity holds the client's view of who is signed in.
package identity

import (
	"context"
	"sync"
)

// Session is a signed-in user. A nil *Session means guest mode.
type Session struct {
	UserID      string `json:"userId"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Token       string `json:"-"`
}

// SameUser reports whether a and b identify the same signed-in user. Two guest
// sessions are the same.
func SameUser(a, b *Session) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.UserID == b.UserID
}

// Provider authenticates users and announces session changes.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (*Session, error)
	Register(ctx context.Context, email, password, displayName string) (*Session, error)
	SignOut(ctx context.Context) error
	// OnSessionChange calls fn with the current session before returning and
	// again after every change. Listeners must not call back into the provider
	// synchronously.
	OnSessionChange(fn func(*Session)) (unsubscribe func())
	Current() *Session
}

type listener struct {
	id int
	fn func(*Session)
}

// listeners keeps subscribers in registration order.
type listeners struct {
	mu     sync.Mutex
	nextID int
	list   []listener
}

func (l *listeners) add(fn func(*Session)) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextID
	l.nextID++
	l.list = append(l.list, listener{id: id, fn: fn})
	return id
}

func (l *listeners) remove(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, ln := range l.list {
		if ln.id == id {
			l.list = append(l.list[:i:i], l.list[i+1:]...)
			return
		}
	}
}

func (l *listeners) snapshot() []func(*Session) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fns := make([]func(*Session), len(l.list))
	for i, ln := range l.list {
		fns[i] = ln.fn
	}
	return fns
}
