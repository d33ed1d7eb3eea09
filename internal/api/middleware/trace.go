// Package middleware contains HTTP middleware shared by the API routes.
package middleware

import (
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/reminder-api/internal/api/shared"
	"github.com/phrazzld/reminder-api/internal/platform/logger"
)

// NewTraceMiddleware tags every request with a trace ID. The ID is taken
// from the X-Trace-ID header when the caller sent a well-formed one, echoed
// on the response, and attached to a request-scoped logger stored in the
// context so that service logs carry it.
func NewTraceMiddleware(log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID := shared.TraceIDFromHeader(r.Header.Get(shared.TraceIDHeader))
			reqLog := log.With(slog.String("trace_id", traceID))

			ctx := shared.WithTraceID(r.Context(), traceID)
			ctx = logger.WithContext(ctx, reqLog)
			w.Header().Set(shared.TraceIDHeader, traceID)

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLog.Debug("request completed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)))
		})
	}
}
