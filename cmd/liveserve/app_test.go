package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"github.com/gobeaver/livefs"
	"github.com/gobeaver/livefs/driver/memory"
)

func newTestApp(t *testing.T) *app {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	cfg := &serveConfig{
		Query:        "route=fs",
		Metrics:      true,
		UserSettings: "/app/settings.json",
		StateDB:      filepath.Join(t.TempDir(), "state.db"),
	}
	fsCfg := &livefs.Config{Driver: "memory", ProjectMount: "/project", ScratchMount: "/app"}
	reg := livefs.NewRegistry()
	memory.Register(reg)

	a, err := newApp(ctx, cfg, fsCfg, reg, zap.NewNop())
	if err != nil {
		cancel()
		t.Fatalf("newApp() error = %v", err)
	}
	t.Cleanup(func() {
		if err := a.Close(context.Background()); err != nil {
			t.Errorf("Close() error = %v", err)
		}
		cancel()
	})

	if err := a.mounts.Write(ctx, "/project/index.html", strings.NewReader("<h1>hi</h1>")); err != nil {
		t.Fatal(err)
	}
	return a
}

func serve(a *app, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var v map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("response %q is not JSON: %v", rec.Body.String(), err)
	}
	return v
}

func TestPreview(t *testing.T) {
	a := newTestApp(t)

	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantType   string
		wantBody   string
	}{
		{"file", "/fs/project/index.html", http.StatusOK, "text/html", "<h1>hi</h1>"},
		{"missing", "/fs/project/nope.css", http.StatusNotFound, "application/json", ""},
		{"redirect", "/fs", http.StatusFound, "", ""},
		{"outside route", "/elsewhere", http.StatusNotFound, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(a, http.MethodGet, tt.target, "")
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantType != "" && !strings.HasPrefix(rec.Header().Get("Content-Type"), tt.wantType) {
				t.Errorf("Content-Type = %q, want %q", rec.Header().Get("Content-Type"), tt.wantType)
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}

	if id := serve(a, http.MethodGet, "/fs/project/index.html", "").Header().Get("X-Request-ID"); id == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestVirtualContent(t *testing.T) {
	a := newTestApp(t)

	rec := serve(a, http.MethodGet, "/_live/url?path=/project/index.html", "")
	if got := decode(t, rec)["url"]; got != "/fs/project/index.html" {
		t.Errorf("url = %v", got)
	}

	if rec := serve(a, http.MethodPut, "/_live/content?path=/project/index.html", "<h1>draft</h1>"); rec.Code != http.StatusNoContent {
		t.Fatalf("PUT content status = %d", rec.Code)
	}
	if got := serve(a, http.MethodGet, "/fs/project/index.html", "").Body.String(); got != "<h1>draft</h1>" {
		t.Errorf("body with draft = %q", got)
	}

	serve(a, http.MethodDelete, "/_live/content?path=/project/index.html", "")
	if got := serve(a, http.MethodGet, "/fs/project/index.html", "").Body.String(); got != "<h1>hi</h1>" {
		t.Errorf("body after delete = %q", got)
	}
}

func TestPreferenceEndpoints(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)

	if err := a.mounts.Write(ctx, "/project/.phcode.json", strings.NewReader(`{"spaceUnits": 9}`)); err != nil {
		t.Fatal(err)
	}
	if err := a.prefs.FileChanged(ctx, "/project/.phcode.json"); err != nil {
		t.Fatal(err)
	}

	got := decode(t, serve(a, http.MethodGet, "/_live/prefs/spaceUnits?path=/project/a.js", ""))
	if diff := cmp.Diff(map[string]any{"id": "spaceUnits", "value": float64(9), "scope": "project"}, got); diff != "" {
		t.Errorf("inside project (-want +got):\n%s", diff)
	}
	got = decode(t, serve(a, http.MethodGet, "/_live/prefs/spaceUnits?path=/app/notes.txt", ""))
	if got["value"] != nil {
		t.Errorf("outside project value = %v, want nil", got["value"])
	}

	if rec := serve(a, http.MethodPut, "/_live/prefs/wordWrap", "false"); rec.Code != http.StatusNoContent {
		t.Fatalf("PUT pref status = %d: %s", rec.Code, rec.Body.String())
	}
	raw, err := a.mounts.ReadAll(ctx, "/app/settings.json")
	if err != nil {
		t.Fatalf("user settings not saved: %v", err)
	}
	if !strings.Contains(string(raw), `"wordWrap": false`) {
		t.Errorf("user settings = %s", raw)
	}

	tests := []struct {
		target, body string
		want         int
	}{
		{"/_live/prefs/x?scope=nope", "1", http.StatusNotFound},
		{"/_live/prefs/x", "{not json", http.StatusBadRequest},
	}
	for _, tt := range tests {
		if rec := serve(a, http.MethodPut, tt.target, tt.body); rec.Code != tt.want {
			t.Errorf("PUT %s status = %d, want %d", tt.target, rec.Code, tt.want)
		}
	}
}

func TestStateEndpoints(t *testing.T) {
	a := newTestApp(t)

	if rec := serve(a, http.MethodPut, "/_live/state/sidebar?context=project", "true"); rec.Code != http.StatusNoContent {
		t.Fatalf("PUT state status = %d: %s", rec.Code, rec.Body.String())
	}
	got := decode(t, serve(a, http.MethodGet, "/_live/state/sidebar?context=any", ""))
	if got["value"] != true {
		t.Errorf("state value = %v, want true", got["value"])
	}
	got = decode(t, serve(a, http.MethodGet, "/_live/state/sidebar", ""))
	if got["value"] != nil {
		t.Errorf("global value = %v, want nil", got["value"])
	}
	if rec := serve(a, http.MethodPut, "/_live/state/sidebar?context=any", "true"); rec.Code != http.StatusBadRequest {
		t.Errorf("PUT any status = %d, want 400", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	a := newTestApp(t)
	serve(a, http.MethodGet, "/fs/project/index.html", "")

	rec := serve(a, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	for _, name := range []string{"livefs_http_requests_total", "livefs_preview_requests_total"} {
		if !strings.Contains(rec.Body.String(), name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}
