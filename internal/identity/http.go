package identity

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/staybook/hotel-server-go/internal/apiclient"
	apperrors "github.com/staybook/hotel-server-go/internal/errors"
	"github.com/staybook/hotel-server-go/internal/model"
)

// HTTPProvider is the Provider backed by the server's /v1/auth API.
type HTTPProvider struct {
	api    *apiclient.Client
	tokens TokenStore

	// changeMu orders session changes with their notifications.
	changeMu sync.Mutex

	mu      sync.RWMutex
	session *Session

	listeners listeners
}

var _ Provider = (*HTTPProvider)(nil)

// NewHTTPProvider returns a provider in guest mode. tokens may be nil, in which
// case sessions last only as long as the process.
func NewHTTPProvider(api *apiclient.Client, tokens TokenStore) *HTTPProvider {
	return &HTTPProvider{api: api, tokens: tokens}
}

type authResponse struct {
	Token string     `json:"token"`
	User  model.User `json:"user"`
}

type meResponse struct {
	User model.User `json:"user"`
}

func (p *HTTPProvider) SignIn(ctx context.Context, email, password string) (*Session, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, apperrors.MissingRequired("email")
	}
	if password == "" {
		return nil, apperrors.MissingRequired("password")
	}

	var resp authResponse
	body := map[string]string{"email": email, "password": password}
	if err := p.api.Do(ctx, http.MethodPost, "/v1/auth/login", "", body, &resp); err != nil {
		return nil, err
	}
	return p.establish(resp)
}

func (p *HTTPProvider) Register(ctx context.Context, email, password, displayName string) (*Session, error) {
	email = strings.TrimSpace(email)
	displayName = strings.TrimSpace(displayName)
	switch {
	case displayName == "":
		return nil, apperrors.MissingRequired("displayName")
	case email == "":
		return nil, apperrors.MissingRequired("email")
	case password == "":
		return nil, apperrors.MissingRequired("password")
	}

	var resp authResponse
	body := map[string]string{"email": email, "password": password, "displayName": displayName}
	if err := p.api.Do(ctx, http.MethodPost, "/v1/auth/register", "", body, &resp); err != nil {
		return nil, err
	}
	return p.establish(resp)
}

// SignOut always ends the local session. A failed server-side revoke is logged.
func (p *HTTPProvider) SignOut(ctx context.Context) error {
	if token := p.Token(); token != "" {
		if err := p.api.Do(ctx, http.MethodPost, "/v1/auth/logout", token, nil, nil); err != nil {
			log.Warn().Err(err).Msg("server sign-out failed")
		}
	}
	if p.tokens != nil {
		if err := p.tokens.Clear(); err != nil {
			log.Warn().Err(err).Msg("failed to clear stored token")
		}
	}
	p.setSession(nil)
	return nil
}

// Restore resumes the session saved in the token store. A token the server no
// longer accepts is discarded and the provider stays in guest mode.
func (p *HTTPProvider) Restore(ctx context.Context) error {
	if p.tokens == nil {
		return nil
	}
	token, err := p.tokens.Load()
	if err != nil {
		return err
	}
	if token == "" {
		return nil
	}

	var resp meResponse
	if err := p.api.Do(ctx, http.MethodGet, "/v1/auth/me", token, nil, &resp); err != nil {
		switch apperrors.GetCode(err) {
		case apperrors.ErrCodeUnauthorized, apperrors.ErrCodeInvalidToken:
			log.Info().Msg("stored session expired")
			if clearErr := p.tokens.Clear(); clearErr != nil {
				log.Warn().Err(clearErr).Msg("failed to clear stored token")
			}
			p.setSession(nil)
			return nil
		default:
			return err
		}
	}

	p.setSession(sessionFor(resp.User, token))
	return nil
}

func (p *HTTPProvider) OnSessionChange(fn func(*Session)) func() {
	p.changeMu.Lock()
	id := p.listeners.add(fn)
	fn(p.Current())
	p.changeMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { p.listeners.remove(id) })
	}
}

func (p *HTTPProvider) Current() *Session {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.session == nil {
		return nil
	}
	s := *p.session
	return &s
}

// Token returns the bearer token of the current session, or "".
func (p *HTTPProvider) Token() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.session == nil {
		return ""
	}
	return p.session.Token
}

func (p *HTTPProvider) establish(resp authResponse) (*Session, error) {
	if resp.Token == "" || resp.User.ID == "" {
		return nil, apperrors.BackendUnavailable(apperrors.Internal("auth response missing token or user"))
	}
	sess := sessionFor(resp.User, resp.Token)
	if p.tokens != nil {
		if err := p.tokens.Save(resp.Token); err != nil {
			log.Warn().Err(err).Msg("failed to persist session token")
		}
	}
	p.setSession(sess)
	log.Info().Str("userId", sess.UserID).Msg("signed in")
	return p.Current(), nil
}

func (p *HTTPProvider) setSession(sess *Session) {
	p.changeMu.Lock()
	defer p.changeMu.Unlock()

	p.mu.Lock()
	p.session = sess
	p.mu.Unlock()

	current := p.Current()
	for _, fn := range p.listeners.snapshot() {
		fn(current)
	}
}

func sessionFor(u model.User, token string) *Session {
	return &Session{
		UserID:      u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Token:       token,
	}
}
