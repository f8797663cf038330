// logging.go — slog middleware логирования HTTP-запросов.
package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// RequestLogger возвращает HTTP middleware, логирующее каждый запрос:
// метод, путь, статус ответа и длительность.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	log := logger.With(slog.String("component", "http"))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			attrs := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", wrapped.statusCode),
				slog.Duration("duration", time.Since(start)),
				slog.String("remote_addr", r.RemoteAddr),
			}

			if wrapped.statusCode >= 500 {
				log.Error("HTTP-запрос", attrs...)
			} else {
				log.Info("HTTP-запрос", attrs...)
			}
		})
	}
}
