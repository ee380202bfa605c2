package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAPIKeyAuth(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetAPIKey(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("disabled without keys", func(t *testing.T) {
		rec := httptest.NewRecorder()
		APIKeyAuth(nil)(next).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	h := APIKeyAuth([]string{"alpha", "beta"})(next)

	tests := []struct {
		name   string
		method string
		header string
		value  string
		want   int
		key    string
	}{
		{name: "missing", method: http.MethodPost, want: http.StatusUnauthorized},
		{name: "wrong key", method: http.MethodPost, header: "X-API-Key", value: "gamma", want: http.StatusUnauthorized},
		{name: "header key", method: http.MethodPost, header: "X-API-Key", value: "beta", want: http.StatusNoContent, key: "beta"},
		{name: "bearer token", method: http.MethodPut, header: "Authorization", value: "Bearer alpha", want: http.StatusNoContent, key: "alpha"},
		{name: "basic auth is not a key", method: http.MethodPost, header: "Authorization", value: "Basic alpha", want: http.StatusUnauthorized},
		{name: "preflight", method: http.MethodOptions, want: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(tt.method, "/", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, tt.key, seen)
			if tt.want == http.StatusUnauthorized {
				assert.Contains(t, rec.Body.String(), "API key")
			}
		})
	}
}
