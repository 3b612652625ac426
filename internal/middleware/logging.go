package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/aegis-sec/aegis/pkg/logger"
)

// SecureLogger logs one structured line per request. Query strings pass
// through logger.SanitizeQueryString so codes, tokens, and phone numbers
// never reach the log stream.
func SecureLogger(log *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			// Redact the whole query string when it names sensitive parameters
			path := r.URL.Path
			if logger.SanitizeQueryString(r.URL.RawQuery) {
				path = path + "?[REDACTED]"
			} else if r.URL.RawQuery != "" {
				path = r.URL.Path + "?" + r.URL.RawQuery
			}

			attrs := []any{
				slog.String("method", r.Method),
				slog.String("path", path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			}

			if ww.Status() >= 500 {
				log.Error("request completed", attrs...)
			} else {
				log.Info("request completed", attrs...)
			}
		})
	}
}
