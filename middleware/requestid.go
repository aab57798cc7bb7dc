package middleware

import (
	"net/http"

	"github.com/google/uuid"
)

// RequestIDHeader is where the assigned ID is echoed back.
const RequestIDHeader = "X-Request-ID"

// RequestID assigns each request a UUID for log correlation. An incoming
// header value is reused so IDs survive proxy hops.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}

		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(withRequestID(r.Context(), id)))
	})
}
