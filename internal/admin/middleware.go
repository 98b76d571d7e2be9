package admin

import (
	"log/slog"
	"net/http"
	"time"
)

type Middleware = func(http.Handler) http.Handler

// LogRequests logs every handled request on the debug level.
func LogRequests(logger *slog.Logger) Middleware {
	return func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			handler.ServeHTTP(w, r)

			logger.LogAttrs(r.Context(), slog.LevelDebug, "request",
				slog.Group("request",
					slog.String("method", r.Method),
					slog.String("remote", r.RemoteAddr),
					slog.String("path", r.URL.Path),
					slog.String("query", r.URL.RawQuery),
					slog.Int64("duration_ms", time.Since(start).Milliseconds()),
				),
			)
		})
	}
}

// Wrap handler with middlewares.
func Wrap(handler http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		mw := mws[i]
		if mw != nil {
			handler = mw(handler)
		}
	}

	return handler
}
