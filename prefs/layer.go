package prefs

import (
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/gobwas/glob"
)

// Layer narrows part of a scope's data to a context. Its data lives under
// Key() in the scope as a map of layer ids to preference maps:
//
//	{"path": {"*.css": {"spaceUnits": 2}}}
type Layer interface {
	// Key is the section of the scope data owned by the layer.
	Key() string
	// Match returns the layer ids in section that apply to c, strongest
	// first.
	Match(section map[string]any, c Context) []string
}

// PathLayer applies settings to files matching a glob. Globs are relative
// to the directory of the settings file that holds them; a glob without a
// slash also matches the base name anywhere below it.
type PathLayer struct {
	mu      sync.RWMutex
	baseDir string
	globs   map[string]glob.Glob
}

// NewPathLayer creates a path layer for the settings file at prefFilePath.
func NewPathLayer(prefFilePath string) *PathLayer {
	l := &PathLayer{globs: make(map[string]glob.Glob)}
	l.SetPrefFilePath(prefFilePath)
	return l
}

func (l *PathLayer) Key() string { return "path" }

// SetPrefFilePath moves the layer to a new settings file.
func (l *PathLayer) SetPrefFilePath(prefFilePath string) {
	dir := ""
	if prefFilePath != "" {
		dir = path.Dir(path.Clean("/" + strings.TrimPrefix(prefFilePath, "/")))
	}
	l.mu.Lock()
	l.baseDir = dir
	l.mu.Unlock()
}

// Match returns the first glob, in lexical order, matching c.Path.
func (l *PathLayer) Match(section map[string]any, c Context) []string {
	rel, ok := l.relative(c.Path)
	if !ok {
		return nil
	}

	patterns := make([]string, 0, len(section))
	for p := range section {
		patterns = append(patterns, p)
	}
	sort.Strings(patterns)

	for _, p := range patterns {
		g := l.compile(p)
		if g == nil {
			continue
		}
		if g.Match(rel) || (!strings.Contains(p, "/") && g.Match(path.Base(rel))) {
			return []string{p}
		}
	}
	return nil
}

func (l *PathLayer) relative(p string) (string, bool) {
	if p == "" {
		return "", false
	}
	p = path.Clean("/" + strings.TrimPrefix(p, "/"))

	l.mu.RLock()
	base := l.baseDir
	l.mu.RUnlock()

	if base == "" || base == "/" {
		return strings.TrimPrefix(p, "/"), true
	}
	if !strings.HasPrefix(p, base+"/") {
		return "", false
	}
	return strings.TrimPrefix(p, base+"/"), true
}

// compile caches compiled globs; invalid patterns compile to nil and
// never match.
func (l *PathLayer) compile(pattern string) glob.Glob {
	l.mu.RLock()
	g, ok := l.globs[pattern]
	l.mu.RUnlock()
	if ok {
		return g
	}

	g, err := glob.Compile(pattern, '/')
	if err != nil {
		g = nil
	}
	l.mu.Lock()
	l.globs[pattern] = g
	l.mu.Unlock()
	return g
}

// LanguageLayer applies settings to files of a language id.
type LanguageLayer struct{}

// NewLanguageLayer creates a language layer.
func NewLanguageLayer() *LanguageLayer { return &LanguageLayer{} }

func (*LanguageLayer) Key() string { return "language" }

func (*LanguageLayer) Match(section map[string]any, c Context) []string {
	if c.Language == "" {
		return nil
	}
	if _, ok := section[c.Language]; ok {
		return []string{c.Language}
	}
	return nil
}

// ProjectLayer applies settings to one project, keyed by project root.
type ProjectLayer struct{}

// NewProjectLayer creates a project layer.
func NewProjectLayer() *ProjectLayer { return &ProjectLayer{} }

func (*ProjectLayer) Key() string { return "projects" }

func (*ProjectLayer) Match(section map[string]any, c Context) []string {
	if c.Project == "" {
		return nil
	}
	for _, key := range []string{c.Project, strings.TrimSuffix(c.Project, "/") + "/"} {
		if _, ok := section[key]; ok {
			return []string{key}
		}
	}
	return nil
}

var (
	_ Layer = (*PathLayer)(nil)
	_ Layer = (*LanguageLayer)(nil)
	_ Layer = (*ProjectLayer)(nil)
)
