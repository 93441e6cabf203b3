package middleware

import (
	"crypto/subtle"
	"net/http"

	"asistencia/internal/transport/http/api"
)

// CronGuard protects scheduler endpoints with a shared secret header.
func CronGuard(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get("X-Cron-Secret")
			if secret == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
				api.Fail(w, http.StatusUnauthorized, "unauthorized", "invalid cron secret", GetRequestID(r.Context()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
