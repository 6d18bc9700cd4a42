package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/staybook/hotel-server-go/internal/audit"
	apperrors "github.com/staybook/hotel-server-go/internal/errors"
	"github.com/staybook/hotel-server-go/internal/httputil"
	"github.com/staybook/hotel-server-go/internal/middleware"
	"github.com/staybook/hotel-server-go/internal/service"
	"github.com/staybook/hotel-server-go/internal/util"
)

type Authenticator interface {
	Register(ctx context.Context, email, password, displayName string) (*service.AuthResult, error)
	Login(ctx context.Context, email, password string) (*service.AuthResult, error)
	Logout(ctx context.Context, token string) error
}

type AuthHandler struct {
	auth        Authenticator
	requireAuth func(http.Handler) http.Handler
	loginLimit  func(http.Handler) http.Handler
}

func NewAuthHandler(auth Authenticator, requireAuth, loginLimit func(http.Handler) http.Handler) *AuthHandler {
	return &AuthHandler{
		auth:        auth,
		requireAuth: requireAuth,
		loginLimit:  loginLimit,
	}
}

func (h *AuthHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(h.loginLimit)
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Post("/logout", h.Logout)
		r.Get("/me", h.Me)
	})

	return r
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// POST /v1/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.auth.Register(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		if !apperrors.IsAppError(err) || apperrors.GetCode(err) == apperrors.ErrCodeDatabase {
			log.Error().Err(err).Msg("failed to register user")
		}
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{Type: audit.EventRegister, UserID: result.User.ID})
	writeJSON(w, http.StatusCreated, result)
}

// POST /v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeInvalidCredentials) {
			audit.LogFromRequest(r, audit.Event{Type: audit.EventLoginFailure, Email: util.NormalizeEmail(req.Email)})
		} else if apperrors.HasCode(err, apperrors.ErrCodeDatabase) {
			log.Error().Err(err).Msg("failed to log in")
		}
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{Type: audit.EventLoginSuccess, UserID: result.User.ID})
	writeJSON(w, http.StatusOK, result)
}

// POST /v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if err := h.auth.Logout(r.Context(), middleware.GetToken(r.Context())); err != nil {
		log.Error().Err(err).Str("userId", user.ID).Msg("failed to log out")
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{Type: audit.EventLogout, UserID: user.ID})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// GET /v1/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"user": middleware.GetUser(r.Context())})
}
