package middleware

import (
	"net/http"

	"scribe-console/internal/observability"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// RequestLogging copies the chi request id into the logging context so
// observability.FromContext tags every line of the request with it. It must
// run after chimiddleware.RequestID.
func RequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := chimiddleware.GetReqID(r.Context()); id != "" {
			r = r.WithContext(observability.WithRequestID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}
