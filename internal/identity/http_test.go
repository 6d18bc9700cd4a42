package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staybook/hotel-server-go/internal/apiclient"
	apperrors "github.com/staybook/hotel-server-go/internal/errors"
	"github.com/staybook/hotel-server-go/internal/httputil"
	"github.com/staybook/hotel-server-go/internal/model"
)

type authServer struct {
	mu         sync.Mutex
	logoutSeen []string
}

func (a *authServer) handler() http.Handler {
	r := chi.NewRouter()
	user := model.User{ID: "u1", Email: "ada@example.com", DisplayName: "Ada Lovelace"}

	r.Post("/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "secret1" {
			httputil.WriteError(w, apperrors.InvalidCredentials())
			return
		}
		httputil.WriteJSON(w, http.StatusOK, authResponse{Token: "tok-1", User: user})
	})
	r.Post("/v1/auth/register", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteError(w, apperrors.AlreadyExists("Email"))
	})
	r.Post("/v1/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		a.logoutSeen = append(a.logoutSeen, r.Header.Get("Authorization"))
		a.mu.Unlock()
		httputil.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
	})
	r.Get("/v1/auth/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			httputil.WriteError(w, apperrors.InvalidToken("Invalid or expired token"))
			return
		}
		httputil.WriteJSON(w, http.StatusOK, meResponse{User: user})
	})
	return r
}

func newProvider(t *testing.T, tokens TokenStore) (*HTTPProvider, *authServer) {
	t.Helper()
	as := &authServer{}
	srv := httptest.NewServer(as.handler())
	t.Cleanup(srv.Close)
	return NewHTTPProvider(apiclient.New(srv.URL, time.Second), tokens), as
}

func TestHTTPProviderSignIn(t *testing.T) {
	ctx := context.Background()

	t.Run("establishes session and notifies", func(t *testing.T) {
		p, _ := newProvider(t, nil)

		var seen []*Session
		unsubscribe := p.OnSessionChange(func(s *Session) { seen = append(seen, s) })
		defer unsubscribe()

		sess, err := p.SignIn(ctx, "ada@example.com", "secret1")
		require.NoError(t, err)
		assert.Equal(t, "u1", sess.UserID)
		assert.Equal(t, "tok-1", p.Token())

		require.Len(t, seen, 2)
		assert.Nil(t, seen[0])
		assert.Equal(t, "u1", seen[1].UserID)
	})

	t.Run("surfaces server message verbatim", func(t *testing.T) {
		p, _ := newProvider(t, nil)

		_, err := p.SignIn(ctx, "ada@example.com", "wrong")
		appErr, ok := apperrors.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrCodeInvalidCredentials, appErr.Code)
		assert.Equal(t, "Invalid email or password", appErr.Message)
		assert.Nil(t, p.Current())
	})

	t.Run("rejects empty email without a request", func(t *testing.T) {
		p, _ := newProvider(t, nil)
		_, err := p.SignIn(ctx, " ", "secret1")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeMissingRequired))
	})

	t.Run("register failure keeps guest mode", func(t *testing.T) {
		p, _ := newProvider(t, nil)
		_, err := p.Register(ctx, "ada@example.com", "secret1", "Ada Lovelace")
		appErr, ok := apperrors.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, "Email already exists", appErr.Message)
		assert.Nil(t, p.Current())
	})
}

func TestHTTPProviderListeners(t *testing.T) {
	ctx := context.Background()
	p, _ := newProvider(t, nil)

	var order []string
	unsubA := p.OnSessionChange(func(*Session) { order = append(order, "a") })
	unsubB := p.OnSessionChange(func(*Session) { order = append(order, "b") })
	assert.Equal(t, []string{"a", "b"}, order)

	order = nil
	_, err := p.SignIn(ctx, "ada@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, order)

	unsubA()
	unsubA()
	order = nil
	require.NoError(t, p.SignOut(ctx))
	assert.Equal(t, []string{"b"}, order)
	unsubB()
}

func TestHTTPProviderSignOut(t *testing.T) {
	ctx := context.Background()
	tokens := NewTokenFile(filepath.Join(t.TempDir(), "token"))
	p, as := newProvider(t, tokens)

	_, err := p.SignIn(ctx, "ada@example.com", "secret1")
	require.NoError(t, err)
	saved, _ := tokens.Load()
	assert.Equal(t, "tok-1", saved)

	require.NoError(t, p.SignOut(ctx))
	assert.Nil(t, p.Current())
	assert.Equal(t, "", p.Token())
	assert.Equal(t, []string{"Bearer tok-1"}, as.logoutSeen)

	saved, _ = tokens.Load()
	assert.Equal(t, "", saved)
}

func TestHTTPProviderRestore(t *testing.T) {
	ctx := context.Background()

	t.Run("resumes a valid token", func(t *testing.T) {
		tokens := NewTokenFile(filepath.Join(t.TempDir(), "token"))
		require.NoError(t, tokens.Save("tok-1"))
		p, _ := newProvider(t, tokens)

		require.NoError(t, p.Restore(ctx))
		require.NotNil(t, p.Current())
		assert.Equal(t, "u1", p.Current().UserID)
	})

	t.Run("discards a rejected token", func(t *testing.T) {
		tokens := NewTokenFile(filepath.Join(t.TempDir(), "token"))
		require.NoError(t, tokens.Save("stale"))
		p, _ := newProvider(t, tokens)

		require.NoError(t, p.Restore(ctx))
		assert.Nil(t, p.Current())
		saved, _ := tokens.Load()
		assert.Equal(t, "", saved)
	})

	t.Run("no stored token is guest mode", func(t *testing.T) {
		tokens := NewTokenFile(filepath.Join(t.TempDir(), "nested", "token"))
		p, _ := newProvider(t, tokens)
		require.NoError(t, p.Restore(ctx))
		assert.Nil(t, p.Current())
	})
}

func TestSameUser(t *testing.T) {
	assert.True(t, SameUser(nil, nil))
	assert.False(t, SameUser(nil, &Session{UserID: "u1"}))
	assert.True(t, SameUser(&Session{UserID: "u1", Token: "a"}, &Session{UserID: "u1", Token: "b"}))
	assert.False(t, SameUser(&Session{UserID: "u1"}, &Session{UserID: "u2"}))
}
