package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/fulmenhq/gofulmen/errors"
)

// BearerToken rejects requests whose Authorization header does not carry
// token. An empty token disables the check.
func BearerToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if strings.TrimSpace(token) == "" {
			return next
		}
		expected := []byte(token)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), expected) != 1 {
				envelope := errors.NewErrorEnvelope("UNAUTHORIZED", "missing or invalid bearer token").
					WithCorrelationID(GetRequestID(r.Context()))
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeErrorResponse(w, envelope, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
