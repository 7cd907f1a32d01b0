package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// APITokenAuth requires the configured token as a Bearer token or in the
// x-api-key header. An empty token disables the check.
func APITokenAuth(token string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
				if matches(strings.TrimPrefix(authHeader, "Bearer "), token) {
					next.ServeHTTP(w, r)
					return
				}
			}

			if matches(r.Header.Get("x-api-key"), token) {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"success":false,"error":"Invalid API token"}`))
		})
	}
}

func matches(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
