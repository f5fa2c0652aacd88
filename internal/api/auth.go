package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// OperatorAuth guards the operator surface (weights, uploads, evaluations,
// reindex) with the static token from config. The public search endpoints
// stay outside this middleware. Token comparison is constant time.
func OperatorAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(auth, prefix) || subtle.ConstantTimeCompare([]byte(auth[len(prefix):]), []byte(token)) != 1 {
				httpError(w, http.StatusUnauthorized, "authentication_error", "valid operator token required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
