package middleware

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"civicstream/pkg/logging"
)

func TestRequestLoggerInjectsScopedLogger(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	var viaMiddleware, viaLogging *slog.Logger
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		viaMiddleware = Logger(r.Context())
		viaLogging = logging.FromContext(r.Context())
		viaMiddleware.Info("handled")
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
	RequestLogger(base)(inner).ServeHTTP(rec, req)

	if viaMiddleware != viaLogging {
		t.Fatal("middleware.Logger and logging.FromContext returned different loggers")
	}
	out := buf.String()
	if !strings.Contains(out, `"path":"/api/notifications"`) {
		t.Fatalf("log output missing request fields: %s", out)
	}
	if !strings.Contains(out, `"request_id"`) {
		t.Fatalf("log output missing request id: %s", out)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("X-Request-ID response header not set")
	}
}

func TestLoggerFallsBackToDefault(t *testing.T) {
	if Logger(context.Background()) != slog.Default() {
		t.Fatal("bare context did not fall back to the default logger")
	}
}
