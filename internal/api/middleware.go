package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aatumaykin/stockpilot/internal/logger"
)

// requestLogger logs every request through the application logger and
// records it in metrics under its route pattern.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		defer func() {
			elapsed := time.Since(start)
			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			s.metrics.RecordHTTPRequest(route, r.Method, status, elapsed)

			fields := []logger.Field{
				{Key: "method", Value: r.Method},
				{Key: "path", Value: r.URL.Path},
				{Key: "status", Value: status},
				{Key: "bytes", Value: ww.BytesWritten()},
				{Key: "duration_ms", Value: elapsed.Milliseconds()},
				{Key: "request_id", Value: middleware.GetReqID(r.Context())},
			}
			if status >= http.StatusInternalServerError {
				s.logger.Warn("http request failed", fields...)
				return
			}
			s.logger.Debug("http request", fields...)
		}()

		next.ServeHTTP(ww, r)
	})
}
