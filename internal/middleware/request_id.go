package middleware

import (
	"net/http"

	"github.com/google/uuid"
)

// RequestID tags each request with a unique id, honoring one supplied by the
// caller. The id rides on the header so downstream handlers and the logger
// can pick it up.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		w.Header().Set("X-Request-ID", requestID)
		r.Header.Set("X-Request-ID", requestID)

		next.ServeHTTP(w, r)
	})
}
