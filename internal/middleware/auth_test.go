package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/staybook/hotel-server-go/internal/errors"
	"github.com/staybook/hotel-server-go/internal/httputil"
	"github.com/staybook/hotel-server-go/internal/model"
)

type mockValidator struct {
	validateFunc func(ctx context.Context, token string) (*model.User, error)
}

func (m *mockValidator) ValidateToken(ctx context.Context, token string) (*model.User, error) {
	if m.validateFunc != nil {
		return m.validateFunc(ctx, token)
	}
	return nil, nil
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) httputil.ErrorResponse {
	t.Helper()
	var body httputil.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestAuthMiddleware(t *testing.T) {
	testUser := &model.User{ID: "u1", Email: "ada@example.com"}
	validator := &mockValidator{
		validateFunc: func(ctx context.Context, token string) (*model.User, error) {
			if token == "valid-token" {
				return testUser, nil
			}
			return nil, nil
		},
	}

	t.Run("allows request with valid bearer token", func(t *testing.T) {
		handler := NewAuthMiddleware(validator).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := GetUser(r.Context())
			if assert.NotNil(t, user) {
				assert.Equal(t, "u1", user.ID)
			}
			assert.Equal(t, "valid-token", GetToken(r.Context()))
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("Authorization", "Bearer valid-token")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("allows request with query token", func(t *testing.T) {
		handler := NewAuthMiddleware(validator).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest("GET", "/test?token=valid-token", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("rejects request without token", func(t *testing.T) {
		handler := NewAuthMiddleware(validator).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("handler should not be called")
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/test", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, apperrors.ErrCodeAuthenticationRequired, decodeError(t, rec).Code)
	})

	t.Run("rejects unknown token", func(t *testing.T) {
		handler := NewAuthMiddleware(validator).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("handler should not be called")
		}))

		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("Authorization", "Bearer stale-token")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, apperrors.ErrCodeInvalidToken, decodeError(t, rec).Code)
	})

	t.Run("surfaces validator failure", func(t *testing.T) {
		failing := &mockValidator{
			validateFunc: func(ctx context.Context, token string) (*model.User, error) {
				return nil, apperrors.Database(errors.New("connection refused"))
			},
		}
		handler := NewAuthMiddleware(failing).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("handler should not be called")
		}))

		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("Authorization", "Bearer valid-token")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestGetUserWithoutAuth(t *testing.T) {
	assert.Nil(t, GetUser(context.Background()))
	assert.Empty(t, GetToken(context.Background()))
}
