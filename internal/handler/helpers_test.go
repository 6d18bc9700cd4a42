package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/staybook/hotel-server-go/internal/httputil"
	"github.com/staybook/hotel-server-go/internal/middleware"
	"github.com/staybook/hotel-server-go/internal/model"
)

var ada = &model.User{ID: "user-1", Email: "ada@example.com", DisplayName: "Ada Lovelace"}

func passthrough(next http.Handler) http.Handler { return next }

// asUser stands in for the auth middleware.
func asUser(user *model.User) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(middleware.WithUser(r.Context(), user, "token-1")))
		})
	}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) httputil.ErrorResponse {
	t.Helper()
	var resp httputil.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}
