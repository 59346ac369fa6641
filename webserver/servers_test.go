package webserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
)

type prefixServer struct {
	name   string
	prefix string
}

func (s prefixServer) CanServe(p string) bool {
	return strings.HasPrefix(p, s.prefix)
}

func TestServerManager(t *testing.T) {
	m := NewServerManager()

	if m.Get("/project/index.html") != nil {
		t.Fatal("expected no server from an empty manager")
	}
	if m.Register(nil, 1) != nil {
		t.Error("expected nil factory to be rejected")
	}

	fallback := m.Register(func() Server { return prefixServer{"fallback", "/"} }, 0)
	m.Register(func() Server { return prefixServer{"project", "/project/"} }, 10)
	m.Register(func() Server { return prefixServer{"project-late", "/project/"} }, 10)
	m.Register(func() Server { return nil }, 20)

	tests := []struct {
		path string
		want string
	}{
		{"/project/index.html", "project"},
		{"/app/scratch.html", "fallback"},
	}
	for _, tt := range tests {
		got, ok := m.Get(tt.path).(prefixServer)
		if !ok || got.name != tt.want {
			t.Errorf("Get(%q) = %v, want %s", tt.path, got, tt.want)
		}
	}

	m.Remove(fallback)
	if m.Get("/app/scratch.html") != nil {
		t.Error("expected removed provider to be skipped")
	}
}

func TestProjectServer(t *testing.T) {
	s := NewProjectServer("/project/", Config{Route: "fs"}, nil)

	if s.Root() != "/project" {
		t.Errorf("unexpected root %q", s.Root())
	}
	if !s.CanServe("/project/a.html") || !s.CanServe("/project") || s.CanServe("/projects/a.html") {
		t.Error("unexpected CanServe result")
	}
	if got := s.PathToURL("/project/my page.html"); got != "/fs/project/my%20page.html" {
		t.Errorf("PathToURL() = %q", got)
	}
	if got := s.PathToURL("/elsewhere/a.html"); got != "" {
		t.Errorf("expected no URL outside the project, got %q", got)
	}
	if got := s.URLToPath("/fs/project/my%20page.html"); got != "/project/my page.html" {
		t.Errorf("URLToPath() = %q", got)
	}
	if got := s.URLToPath("/fs/app/x.html"); got != "" {
		t.Errorf("expected no path outside the project, got %q", got)
	}

	s.AddVirtualContentAtPath("/project/a.html", "ignored without overlay")
	s.RemoveVirtualContentAtPath("/project/a.html")
}

func TestControlHandler(t *testing.T) {
	cfg := Config{Route: "fs"}
	overlay := NewOverlay(newTestFS(t, map[string]string{"project/index.html": "saved"}))
	project := NewProjectServer("/project", cfg, overlay)

	servers := NewServerManager()
	servers.Register(func() Server { return project }, 0)

	control := ControlHandler(servers)
	preview := Chain{NewRouter(overlay, cfg)}.Then(nil, zap.NewNop())

	t.Run("url", func(t *testing.T) {
		rec := get(control, "/url?path=/project/index.html")
		var body map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("expected JSON, got %q", rec.Body.String())
		}
		if body["url"] != "/fs/project/index.html" {
			t.Errorf("unexpected url %q", body["url"])
		}
		if rec := get(control, "/url?path=/app/x.html"); rec.Code != http.StatusNotFound {
			t.Errorf("expected 404 for unservable path, got %d", rec.Code)
		}
	})

	t.Run("virtual content round trip", func(t *testing.T) {
		rec := httptest.NewRecorder()
		control.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/content?path=/project/index.html", strings.NewReader("draft")))
		if rec.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", rec.Code)
		}
		if body := get(preview, "/fs/project/index.html").Body.String(); body != "draft" {
			t.Errorf("expected draft served, got %q", body)
		}

		if rec := do(control, http.MethodDelete, "/content?path=/project/index.html"); rec.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", rec.Code)
		}
		if body := get(preview, "/fs/project/index.html").Body.String(); body != "saved" {
			t.Errorf("expected saved content back, got %q", body)
		}
	})

	t.Run("put outside project", func(t *testing.T) {
		rec := httptest.NewRecorder()
		control.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/content?path=/app/x", strings.NewReader("x")))
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})
}
