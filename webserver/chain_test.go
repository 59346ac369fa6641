package webserver

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// brokenWriter accepts headers but fails every body write.
type brokenWriter struct {
	*httptest.ResponseRecorder
}

func (brokenWriter) Write([]byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestChainThen(t *testing.T) {
	hello := HandlerFunc(func(r *http.Request) *Envelope {
		if r.URL.Path != "/hello" {
			return nil
		}
		return newEnvelope(http.StatusOK, "text/plain", []byte("hi"))
	})

	t.Run("falls through", func(t *testing.T) {
		next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		})
		h := Chain{hello}.Then(next, nil)
		if rec := get(h, "/other"); rec.Code != http.StatusTeapot {
			t.Errorf("expected next handler, got %d", rec.Code)
		}
		if rec := get(h, "/hello"); rec.Code != http.StatusOK || rec.Body.String() != "hi" {
			t.Errorf("expected envelope, got %d %q", rec.Code, rec.Body.String())
		}
	})

	t.Run("nil next is a 404", func(t *testing.T) {
		h := Chain{hello}.Then(nil, nil)
		if rec := get(h, "/other"); rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("write failures are logged", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		h := Chain{hello}.Then(nil, zap.New(core))

		h.ServeHTTP(brokenWriter{httptest.NewRecorder()}, httptest.NewRequest(http.MethodGet, "/hello", nil))

		entries := logs.FilterMessage("write response").All()
		if len(entries) != 1 {
			t.Fatalf("expected one logged write failure, got %d", len(entries))
		}
		if got := entries[0].ContextMap()["path"]; got != "/hello" {
			t.Errorf("logged path = %v, want /hello", got)
		}
	})
}
