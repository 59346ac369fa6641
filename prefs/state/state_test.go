package state

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/gobeaver/livefs/internal/metrics"
)

func open(t *testing.T, path string, opts ...Option) *Manager {
	t.Helper()
	m, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func mustGet(t *testing.T, m *Manager, id string, c Context) any {
	t.Helper()
	v, err := m.Get(id, c)
	if err != nil {
		t.Fatalf("Get(%s, %s) error = %v", id, c, err)
	}
	return v
}

func TestKeys(t *testing.T) {
	m := open(t, filepath.Join(t.TempDir(), "state.db"))

	if got := m.key("sidebar", Global); got != "STATE_sidebar" {
		t.Errorf("global key = %q", got)
	}
	if got := m.key("sidebar", Project); got != "" {
		t.Errorf("project key without root = %q, want empty", got)
	}
	m.SetProjectRoot("/work/site")
	if got := m.key("sidebar", Project); got != "STATE_/work/site/sidebar" {
		t.Errorf("project key = %q", got)
	}
}

func TestContexts(t *testing.T) {
	m := open(t, filepath.Join(t.TempDir(), "state.db"))
	if _, err := m.Define("panelWidth", float64(200)); err != nil {
		t.Fatal(err)
	}

	if got := mustGet(t, m, "panelWidth", Any); got != float64(200) {
		t.Errorf("initial = %v, want 200", got)
	}
	if err := m.Set("panelWidth", 250, Project); !errors.Is(err, ErrNoProject) {
		t.Errorf("Set(project) without root error = %v", err)
	}

	if err := m.Set("panelWidth", 300, Global); err != nil {
		t.Fatal(err)
	}
	m.SetProjectRoot("/a")
	if got := mustGet(t, m, "panelWidth", Any); got != float64(300) {
		t.Errorf("Any without project value = %v, want global 300", got)
	}
	if got := mustGet(t, m, "panelWidth", Project); got != float64(200) {
		t.Errorf("Project without value = %v, want initial 200", got)
	}

	if err := m.Set("panelWidth", 120, Project); err != nil {
		t.Fatal(err)
	}
	if got := mustGet(t, m, "panelWidth", Any); got != float64(120) {
		t.Errorf("Any = %v, want project 120", got)
	}
	if got := mustGet(t, m, "panelWidth", Global); got != float64(300) {
		t.Errorf("Global = %v, want 300", got)
	}

	m.SetProjectRoot("/b/")
	if got := mustGet(t, m, "panelWidth", Any); got != float64(300) {
		t.Errorf("Any in another project = %v, want global 300", got)
	}

	if err := m.Set("panelWidth", 1, Any); !errors.Is(err, ErrInvalidContext) {
		t.Errorf("Set(any) error = %v, want ErrInvalidContext", err)
	}
	if _, err := m.Get("panelWidth", "workspace"); !errors.Is(err, ErrInvalidContext) {
		t.Errorf("Get(unknown) error = %v, want ErrInvalidContext", err)
	}

	m.SetProjectRoot("/a")
	if err := m.Delete("panelWidth", Project); err != nil {
		t.Fatal(err)
	}
	if got := mustGet(t, m, "panelWidth", Any); got != float64(300) {
		t.Errorf("Any after delete = %v, want 300", got)
	}
}

func TestPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	m, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]any{"files": []any{"index.html", "style.css"}, "split": "vertical"}
	if err := m.Set("recent", want, Global); err != nil {
		t.Fatal(err)
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}

	m = open(t, path)
	if diff := cmp.Diff(any(want), mustGet(t, m, "recent", Global)); diff != "" {
		t.Errorf("after reopen (-want +got):\n%s", diff)
	}
	if got := mustGet(t, m, "unknown", Global); got != nil {
		t.Errorf("undefined id = %v, want nil", got)
	}
}

func TestDefine(t *testing.T) {
	m := open(t, filepath.Join(t.TempDir(), "state.db"))
	d, err := m.Define("ui.theme", "dark")
	if err != nil {
		t.Fatal(err)
	}
	if d.ID != "ui:theme" {
		t.Errorf("ID = %q, want dots replaced", d.ID)
	}
	if _, err := m.Define("ui.theme", "light"); !errors.Is(err, ErrAlreadyDefined) {
		t.Errorf("redefine error = %v, want ErrAlreadyDefined", err)
	}
	if got := mustGet(t, m, "ui.theme", Global); got != "dark" {
		t.Errorf("Get() = %v, want dark", got)
	}
}

func TestChangeEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	mt := metrics.New(reg)
	m := open(t, filepath.Join(t.TempDir(), "state.db"), WithMetrics(mt))
	m.SetProjectRoot("/p")

	d, err := m.Define("scroll", float64(0))
	if err != nil {
		t.Fatal(err)
	}
	var got []Context
	off := d.OnChange(func(c Context) { got = append(got, c) })
	others := 0
	m.OnChange("other", func(string, Context) { others++ })

	_ = m.Set("scroll", 10, Global)
	_ = m.Set("scroll", 20, Project)
	off()
	_ = m.Set("scroll", 30, Global)

	if diff := cmp.Diff([]Context{Global, Project}, got); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}
	if others != 0 {
		t.Errorf("unrelated listener called %d times", others)
	}
	expected := `
# HELP livefs_state_writes_total Total view state writes
# TYPE livefs_state_writes_total counter
livefs_state_writes_total 3
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "livefs_state_writes_total"); err != nil {
		t.Errorf("state writes metric: %v", err)
	}
}

func TestForExtension(t *testing.T) {
	m := open(t, filepath.Join(t.TempDir(), "state.db"))

	first := m.ForExtension("acme.linter")
	second := m.ForExtension("acme.linter")
	third := m.ForExtension("acme.linter")
	ids := []string{first.ID(), second.ID(), third.ID()}
	if diff := cmp.Diff([]string{"acme:linter", "acme:linter_0", "acme:linter_1"}, ids); diff != "" {
		t.Errorf("extension ids (-want +got):\n%s", diff)
	}

	if _, err := first.Define("open", false); err != nil {
		t.Fatal(err)
	}
	if _, err := second.Define("open", true); err != nil {
		t.Errorf("same id in another extension view error = %v", err)
	}

	changed := 0
	first.OnChange("open", func(Context) { changed++ })
	if err := first.Set("open", true, Global); err != nil {
		t.Fatal(err)
	}
	if got, _ := first.Get("open", Global); got != true {
		t.Errorf("first.Get() = %v, want true", got)
	}
	if got, _ := second.Get("open", Global); got != true {
		t.Errorf("second.Get() = %v, want its own initial true", got)
	}
	if got := mustGet(t, m, "EXT_acme:linter_open", Global); got != true {
		t.Errorf("raw key value = %v", got)
	}
	if changed != 1 {
		t.Errorf("change events = %d, want 1", changed)
	}
}
