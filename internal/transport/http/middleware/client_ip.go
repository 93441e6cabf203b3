package middleware

import (
	"net/http"

	"asistencia/internal/requestctx"
)

// ClientIP resolves the caller's address once so handlers and the audit
// trail agree on it.
func ClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestctx.WithClientIP(r.Context(), clientIPKey(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
