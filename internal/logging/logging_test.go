package logging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMiddleware(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	var seenID string
	handler := Middleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = GetRequestID(r.Context())
		WithContext(r.Context()).Info("inside")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("nope"))
	}))

	t.Run("propagates incoming request id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/fs/missing.txt", nil)
		req.Header.Set("X-Request-ID", "abc")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if seenID != "abc" || rec.Header().Get("X-Request-ID") != "abc" {
			t.Fatalf("expected request id abc, got %q / %q", seenID, rec.Header().Get("X-Request-ID"))
		}

		completed := logs.FilterMessage("request completed").All()
		if len(completed) != 1 {
			t.Fatalf("expected one completion entry, got %d", len(completed))
		}
		fields := completed[0].ContextMap()
		if fields["status"] != int64(404) || fields["size"] != int64(4) || fields["request_id"] != "abc" {
			t.Errorf("unexpected fields %v", fields)
		}
		if inside := logs.FilterMessage("inside").All(); len(inside) != 1 || inside[0].ContextMap()["request_id"] != "abc" {
			t.Errorf("expected handler log to carry request id, got %v", inside)
		}
	})

	t.Run("generates request id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Header().Get("X-Request-ID") == "" || seenID == "" {
			t.Error("expected generated request id")
		}
	})
}

func TestWithContextFallback(t *testing.T) {
	fallback := zap.NewExample()
	if got := WithContext(context.Background(), fallback); got != fallback {
		t.Error("expected fallback logger")
	}
	if WithContext(context.Background()) == nil {
		t.Error("expected non-nil process logger")
	}

	stored := zap.NewNop()
	ctx := NewContext(context.Background(), stored)
	if got := WithContext(ctx, fallback); got != stored {
		t.Error("expected logger from context to win")
	}
}

func TestNewLevels(t *testing.T) {
	logger, level, err := New(Config{Level: "warn", Format: "console", OutputPath: "stderr"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if logger.Core().Enabled(zapcore.InfoLevel) {
		t.Error("expected info disabled at warn level")
	}
	level.SetLevel(zapcore.DebugLevel)
	if !logger.Core().Enabled(zapcore.DebugLevel) {
		t.Error("expected atomic level to take effect")
	}

	if _, level, err := New(Config{Level: "bogus"}); err != nil || level.Level() != zapcore.InfoLevel {
		t.Errorf("expected info fallback, got %v, %v", level.Level(), err)
	}
}
