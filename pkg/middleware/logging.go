package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"civicstream/pkg/logging"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// RequestLogger creates a middleware that logs requests and injects a
// request-scoped logger through logging.WithContext. Each request gets
// an id, echoed back in the X-Request-ID header; when tracing is active
// the trace id is attached so log lines correlate with spans.
func RequestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := uuid.NewString()
			reqLog := log.With(
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr),
				logging.RequestID(reqID),
			)
			if sc := trace.SpanContextFromContext(r.Context()); sc.HasTraceID() {
				reqLog = reqLog.With(logging.TraceID(sc.TraceID().String()))
			}
			w.Header().Set("X-Request-ID", reqID)

			ctx := logging.WithContext(r.Context(), reqLog)

			reqLog.Info("request started")

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Logger returns the request-scoped logger, falling back to the default.
func Logger(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx)
}
