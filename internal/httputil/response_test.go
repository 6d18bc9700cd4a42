package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/staybook/hotel-server-go/internal/errors"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   apperrors.ErrorCode
	}{
		{"authentication required", apperrors.AuthenticationRequired(), http.StatusUnauthorized, apperrors.ErrCodeAuthenticationRequired},
		{"backend unavailable", apperrors.BackendUnavailable(errors.New("x")), http.StatusServiceUnavailable, apperrors.ErrCodeBackendUnavailable},
		{"directory unavailable", apperrors.DirectoryUnavailable(errors.New("x")), http.StatusBadGateway, apperrors.ErrCodeDirectoryUnavailable},
		{"malformed record", apperrors.MalformedRecord("favorites", "1", "bad"), http.StatusInternalServerError, apperrors.ErrCodeMalformedRecord},
		{"not found", apperrors.NotFound("Hotel"), http.StatusNotFound, apperrors.ErrCodeNotFound},
		{"missing required", apperrors.MissingRequired("email"), http.StatusBadRequest, apperrors.ErrCodeMissingRequired},
		{"forbidden", apperrors.Forbidden("no"), http.StatusForbidden, apperrors.ErrCodeForbidden},
		{"already exists", apperrors.AlreadyExists("Account"), http.StatusConflict, apperrors.ErrCodeAlreadyExists},
		{"invalid credentials", apperrors.InvalidCredentials(), http.StatusUnauthorized, apperrors.ErrCodeInvalidCredentials},
		{"rate limited", apperrors.RateLimitExceeded(), http.StatusTooManyRequests, apperrors.ErrCodeRateLimitExceeded},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, apperrors.ErrCodeInternal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tc.err)

			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.code, body.Code)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	t.Run("decodes body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@b.co"}`))
		var v struct {
			Email string `json:"email"`
		}
		require.NoError(t, DecodeJSON(req, &v))
		assert.Equal(t, "a@b.co", v.Email)
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":`))
		var v map[string]any
		err := DecodeJSON(req, &v)
		assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.GetCode(err))
	})

	t.Run("rejects trailing data", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{} {}`))
		var v map[string]any
		err := DecodeJSON(req, &v)
		assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.GetCode(err))
	})
}
