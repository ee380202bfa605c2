package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

// ContextKey is a type for context keys
type ContextKey string

// ContextKeyAPIKey is the context key for the API key
const ContextKeyAPIKey ContextKey = "api_key"

// APIKeyAuth returns middleware that requires one of keys as a Bearer
// token or X-API-Key header. With no keys configured every request passes.
func APIKeyAuth(keys []string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(keys) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip auth for OPTIONS requests (CORS preflight)
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			apiKey := extractAPIKey(r)
			if apiKey == "" {
				writeUnauthorized(w, "missing API key")
				return
			}
			if !validKey(keys, apiKey) {
				writeUnauthorized(w, "invalid API key")
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyAPIKey, apiKey)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractAPIKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

func validKey(keys []string, candidate string) bool {
	for _, k := range keys {
		if subtle.ConstantTimeCompare([]byte(k), []byte(candidate)) == 1 {
			return true
		}
	}
	return false
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}

// GetAPIKey returns the API key from context
func GetAPIKey(ctx context.Context) string {
	if key, ok := ctx.Value(ContextKeyAPIKey).(string); ok {
		return key
	}
	return ""
}
