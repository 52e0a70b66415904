package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// RequestLogger 为每个请求输出一条结构化访问日志。
func RequestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := newResponseWriter(w)

			next.ServeHTTP(rw, r)

			event := log.Info()
			switch {
			case rw.statusCode >= http.StatusInternalServerError:
				event = log.Error()
			case rw.statusCode >= http.StatusBadRequest:
				event = log.Warn()
			}

			event = event.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rw.statusCode).
				Int("bytes", rw.bytes).
				Int64("duration_ms", time.Since(start).Milliseconds()).
				Str("remote", clientKey(r))
			if reqID := chimw.GetReqID(r.Context()); reqID != "" {
				event = event.Str("request_id", reqID)
			}
			event.Msg("request.complete")
		})
	}
}
