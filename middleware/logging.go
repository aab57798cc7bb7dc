package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/melodix/core/logger"
	"github.com/dmitrymomot/melodix/pkg/clientip"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Logging emits one structured record per request. Principal details are
// included when the gate resolved one; credentials themselves never are.
func Logging(log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			trace := &principalTrace{}
			r = r.WithContext(withPrincipalTrace(r.Context(), trace))

			next.ServeHTTP(rec, r)

			attrs := []slog.Attr{
				logger.Method(r.Method),
				logger.Path(r.URL.Path),
				logger.Status(rec.status),
				logger.IP(clientip.GetIP(r)),
				logger.Elapsed(start),
			}
			if id, ok := RequestIDFromContext(r.Context()); ok {
				attrs = append(attrs, logger.RequestID(id))
			}
			if trace.resolved {
				p := trace.principal
				attrs = append(attrs,
					logger.UserID(p.UserID.String()),
					logger.AuthKind(string(p.AuthKind)),
					logger.KeyID(p.KeyID),
				)
			}

			level := slog.LevelInfo
			if rec.status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			log.LogAttrs(r.Context(), level, "request", attrs...)
		})
	}
}
