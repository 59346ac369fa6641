package prefs_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/gobeaver/livefs/driver/memory"
	"github.com/gobeaver/livefs/prefs"
)

const userSettings = "/user/settings.json"

func newManager(t *testing.T, files map[string]string) (*prefs.Manager, *memory.Adapter) {
	t.Helper()
	fs := memory.New()
	for p, content := range files {
		writeFile(t, fs, p, content)
	}
	m := prefs.NewManager(context.Background(), fs, prefs.ManagerConfig{
		UserSettingsPath: userSettings,
		PollInterval:     10 * time.Millisecond,
	})
	if _, err := m.DefinePreference("spaceUnits", prefs.TypeNumber, 4, prefs.Meta{}); err != nil {
		t.Fatal(err)
	}
	return m, fs
}

func TestManagerScopeOrder(t *testing.T) {
	m, _ := newManager(t, nil)
	want := []string{"session", "project", "user", "default"}
	if diff := cmp.Diff(want, m.System().ScopeOrder()); diff != "" {
		t.Errorf("scope order (-want +got):\n%s", diff)
	}
}

func TestManagerProjectSettings(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t, map[string]string{
		"/proj/.brackets.json": `{"spaceUnits": 9}`,
	})
	var ev events
	m.OnChange(ev.record, "spaceUnits")

	if got := m.Get("spaceUnits"); got != float64(4) {
		t.Fatalf("Get() before project = %v, want 4", got)
	}

	if err := m.SetProjectRoot(ctx, "/proj"); err != nil {
		t.Fatalf("SetProjectRoot() error = %v", err)
	}
	if got := m.ProjectSettingsFile(); got != "/proj/.brackets.json" {
		t.Errorf("ProjectSettingsFile() = %q, want legacy file", got)
	}

	m.SetCurrentFile("/proj/src/main.js")
	if got := m.Get("spaceUnits"); got != float64(9) {
		t.Errorf("Get() inside project = %v, want 9", got)
	}

	m.SetCurrentFile("/elsewhere/notes.js")
	if got := m.Get("spaceUnits"); got != float64(4) {
		t.Errorf("Get() outside project = %v, want 4", got)
	}
	if got := m.Get("spaceUnits", prefs.Context{Path: "/proj/other.js"}); got != float64(9) {
		t.Errorf("Get() with explicit project path = %v, want 9", got)
	}

	if got := len(ev.take()); got < 2 {
		t.Errorf("change events = %d, want one per context switch", got)
	}
}

func TestManagerPrefersPhcodeFile(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t, map[string]string{
		"/proj/.brackets.json": `{"spaceUnits": 9}`,
		"/proj/.phcode.json":   `{"spaceUnits": 2}`,
	})
	if err := m.SetProjectRoot(ctx, "/proj"); err != nil {
		t.Fatal(err)
	}
	m.SetCurrentFile("/proj/a.js")

	if got := m.ProjectSettingsFile(); got != "/proj/.phcode.json" {
		t.Errorf("ProjectSettingsFile() = %q", got)
	}
	if got := m.Get("spaceUnits"); got != float64(2) {
		t.Errorf("Get() = %v, want 2", got)
	}
}

func TestManagerProjectBeatsUser(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t, map[string]string{
		userSettings:         `{"spaceUnits": 3, "language": {"go": {"spaceUnits": 8}}}`,
		"/proj/.phcode.json": `{"spaceUnits": 5, "path": {"*.md": {"spaceUnits": 1}}}`,
	})
	if err := m.SetProjectRoot(ctx, "/proj"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		file, lang string
		want       float64
	}{
		{"/proj/a.js", "", 5},
		{"/proj/docs/readme.md", "", 1},
		{"/proj/main.go", "go", 5},
		{"/tmp/a.js", "", 3},
		{"/tmp/main.go", "go", 8},
	}
	for _, tt := range tests {
		m.SetCurrentFile(tt.file)
		m.SetCurrentLanguage(tt.lang)
		if got := m.Get("spaceUnits"); got != tt.want {
			t.Errorf("Get() for %s (%s) = %v, want %v", tt.file, tt.lang, got, tt.want)
		}
	}
}

func TestManagerCorruptUserSettings(t *testing.T) {
	ctx := context.Background()
	m, fs := newManager(t, map[string]string{
		userSettings: `{"spaceUnits": 3`,
	})

	if !m.IsUserScopeCorrupt() {
		t.Fatal("IsUserScopeCorrupt() = false")
	}
	if got := m.Get("spaceUnits"); got != float64(4) {
		t.Errorf("Get() = %v, want default 4", got)
	}
	if err := m.Set("spaceUnits", 6); !errors.Is(err, prefs.ErrCorruptScope) {
		t.Errorf("Set() error = %v, want ErrCorruptScope", err)
	}
	if err := m.Set("spaceUnits", 6, prefs.At(prefs.Location{Scope: prefs.ScopeSession})); err != nil {
		t.Fatalf("Set(session) error = %v", err)
	}
	if got := m.Get("spaceUnits"); got != float64(6) {
		t.Errorf("Get() = %v, want session value 6", got)
	}

	writeFile(t, fs, userSettings, `{"spaceUnits": 3}`)
	if err := m.FileChanged(ctx, userSettings); err != nil {
		t.Fatalf("FileChanged() error = %v", err)
	}
	if m.IsUserScopeCorrupt() {
		t.Error("IsUserScopeCorrupt() = true after fix")
	}
}

func TestManagerSave(t *testing.T) {
	ctx := context.Background()
	m, fs := newManager(t, nil)
	if err := m.SetProjectRoot(ctx, "/proj"); err != nil {
		t.Fatal(err)
	}
	m.SetCurrentFile("/proj/a.js")

	if err := m.Set("spaceUnits", 7, prefs.At(prefs.Location{Scope: prefs.ScopeProject})); err != nil {
		t.Fatal(err)
	}
	if err := m.Set("wordWrap", false); err != nil {
		t.Fatal(err)
	}
	if err := m.Save(ctx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	check := func(p string, want map[string]any) {
		t.Helper()
		raw, err := fs.ReadAll(ctx, p)
		if err != nil {
			t.Fatalf("ReadAll(%s) error = %v", p, err)
		}
		var got map[string]any
		if err := json.Unmarshal(raw, &got); err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("%s (-want +got):\n%s", p, diff)
		}
	}
	check("/proj/.phcode.json", map[string]any{"spaceUnits": float64(7)})
	check(userSettings, map[string]any{"wordWrap": false})
}

func TestManagerExtensionPrefs(t *testing.T) {
	m, _ := newManager(t, map[string]string{
		userSettings: `{"linter.enabled": false}`,
	})
	ext := m.ExtensionPrefs("linter")
	if _, err := ext.DefinePreference("enabled", prefs.TypeBoolean, true, prefs.Meta{}); err != nil {
		t.Fatal(err)
	}
	if got := ext.Get("enabled"); got != false {
		t.Errorf("Get() = %v, want false from user settings", got)
	}
}

func TestManagerWatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m, fs := newManager(t, map[string]string{
		userSettings: `{"spaceUnits": 3}`,
	})
	stop := m.Watch(ctx)
	defer stop()

	deadline := time.Now().Add(2 * time.Second)
	for m.Get("spaceUnits") != float64(11) {
		if time.Now().After(deadline) {
			t.Fatalf("Get() = %v, want 11 after the settings file changed", m.Get("spaceUnits"))
		}
		writeFile(t, fs, userSettings, `{"spaceUnits": 11}`)
		time.Sleep(20 * time.Millisecond)
	}
}
