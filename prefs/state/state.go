// Package state persists editor view state (open panels, scroll
// positions, recent choices) in a bbolt database. Values live either in
// the global context or in the context of the current project.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/gobeaver/livefs/internal/metrics"
)

const (
	bucketState = "state"
	keyPrefix   = "STATE_"
)

// Context selects where a value is read or written.
type Context string

const (
	// Global values are shared by all projects.
	Global Context = "global"
	// Project values are namespaced by the project root.
	Project Context = "project"
	// Any reads the project value and falls back to the global one. It
	// cannot be written.
	Any Context = "any"
)

var (
	// ErrInvalidContext is returned for unknown contexts and for Set with
	// Any.
	ErrInvalidContext = errors.New("invalid state context")
	// ErrAlreadyDefined is returned when an id is defined twice.
	ErrAlreadyDefined = errors.New("state already defined")
	// ErrNoProject is returned when writing project state without a
	// project root.
	ErrNoProject = errors.New("no project root set")
)

// Definition is a defined state entry with an initial value.
type Definition struct {
	ID      string
	Initial any

	m *Manager
}

// OnChange registers fn for writes of this entry in any context.
func (d *Definition) OnChange(fn func(Context)) func() {
	return d.m.OnChange(d.ID, func(_ string, c Context) { fn(c) })
}

type listener struct {
	seq int
	fn  func(string, Context)
}

// Manager reads and writes view state.
type Manager struct {
	db      *bolt.DB
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu          sync.RWMutex
	projectRoot string
	defs        map[string]*Definition
	listeners   map[string][]listener
	seq         int
	extensions  map[string]bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetrics counts state writes.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// Open opens (creating if needed) the state database at path.
func Open(path string, opts ...Option) (*Manager, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open state db %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketState))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize state db: %w", err)
	}

	m := &Manager{
		db:         db,
		logger:     zap.NewNop(),
		defs:       make(map[string]*Definition),
		listeners:  make(map[string][]listener),
		extensions: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Close closes the database.
func (m *Manager) Close() error {
	return m.db.Close()
}

// SetProjectRoot selects the project whose state Project reads and writes.
func (m *Manager) SetProjectRoot(root string) {
	if root != "" && !strings.HasSuffix(root, "/") {
		root += "/"
	}
	m.mu.Lock()
	m.projectRoot = root
	m.mu.Unlock()
}

// ProjectRoot returns the current project root with a trailing slash.
func (m *Manager) ProjectRoot() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.projectRoot
}

// Define registers id with the value returned while nothing is stored.
func (m *Manager) Define(id string, initial any) (*Definition, error) {
	id = normalizeID(id)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.defs[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyDefined, id)
	}
	d := &Definition{ID: id, Initial: initial, m: m}
	m.defs[id] = d
	return d, nil
}

// Definition returns a defined entry.
func (m *Manager) Definition(id string) (*Definition, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.defs[normalizeID(id)]
	return d, ok
}

// Get reads id in context c. Missing values fall back to the defined
// initial value, or nil.
func (m *Manager) Get(id string, c Context) (any, error) {
	id = normalizeID(id)

	var keys []string
	switch c {
	case Global:
		keys = []string{m.key(id, Global)}
	case Project:
		keys = []string{m.key(id, Project)}
	case Any:
		keys = []string{m.key(id, Project), m.key(id, Global)}
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidContext, c)
	}

	var raw []byte
	err := m.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketState))
		for _, k := range keys {
			if k == "" {
				continue
			}
			if v := b.Get([]byte(k)); v != nil {
				raw = slices.Clone(v)
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if raw == nil {
		if d, ok := m.Definition(id); ok {
			return d.Initial, nil
		}
		return nil, nil
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode state %s: %w", id, err)
	}
	return v, nil
}

// Set writes id in context c and notifies its listeners.
func (m *Manager) Set(id string, value any, c Context) error {
	id = normalizeID(id)
	if c != Global && c != Project {
		return fmt.Errorf("%w: cannot set in %q", ErrInvalidContext, c)
	}
	k := m.key(id, c)
	if k == "" {
		return ErrNoProject
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode state %s: %w", id, err)
	}
	err = m.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketState)).Put([]byte(k), raw)
	})
	if err != nil {
		return err
	}

	m.metrics.RecordStateWrite()
	m.logger.Debug("state written", zap.String("key", k))
	m.notify(id, c)
	return nil
}

// Delete removes id from context c.
func (m *Manager) Delete(id string, c Context) error {
	id = normalizeID(id)
	if c != Global && c != Project {
		return fmt.Errorf("%w: cannot delete in %q", ErrInvalidContext, c)
	}
	k := m.key(id, c)
	if k == "" {
		return ErrNoProject
	}
	err := m.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketState)).Delete([]byte(k))
	})
	if err != nil {
		return err
	}
	m.notify(id, c)
	return nil
}

// OnChange registers fn for writes of id. The returned func unregisters.
func (m *Manager) OnChange(id string, fn func(id string, c Context)) func() {
	id = normalizeID(id)
	m.mu.Lock()
	defer m.mu.Unlock()
	seq := m.seq
	m.seq++
	m.listeners[id] = append(m.listeners[id], listener{seq: seq, fn: fn})
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.listeners[id] = slices.DeleteFunc(m.listeners[id], func(l listener) bool { return l.seq == seq })
	}
}

func (m *Manager) notify(id string, c Context) {
	m.mu.RLock()
	ls := slices.Clone(m.listeners[id])
	m.mu.RUnlock()
	for _, l := range ls {
		l.fn(id, c)
	}
}

// key returns the database key of id, or "" for project state without a
// project root.
func (m *Manager) key(id string, c Context) string {
	if c != Project {
		return keyPrefix + id
	}
	root := m.ProjectRoot()
	if root == "" {
		return ""
	}
	return keyPrefix + root + id
}

// normalizeID stores dots as colons.
func normalizeID(id string) string {
	return strings.ReplaceAll(id, ".", ":")
}

// ============================================================================
// Extension state
// ============================================================================

// Extension is a view of the Manager whose ids are namespaced to one
// extension.
type Extension struct {
	m      *Manager
	id     string
	prefix string
}

// ForExtension returns the state view of an extension. A second view for
// the same extension id gets a fresh id with a numeric suffix.
func (m *Manager) ForExtension(extensionID string) *Extension {
	base := normalizeID(extensionID)

	m.mu.Lock()
	id := base
	for i := 0; m.extensions[id]; i++ {
		id = fmt.Sprintf("%s_%d", base, i)
	}
	m.extensions[id] = true
	m.mu.Unlock()

	if id != base {
		m.logger.Warn("duplicate extension state id",
			zap.String("extension", base), zap.String("using", id))
	}
	return &Extension{m: m, id: id, prefix: "EXT_" + id + "_"}
}

// ID returns the extension id in use, including any suffix.
func (e *Extension) ID() string { return e.id }

// Define defines an extension entry.
func (e *Extension) Define(id string, initial any) (*Definition, error) {
	return e.m.Define(e.prefix+id, initial)
}

// Get reads an extension entry.
func (e *Extension) Get(id string, c Context) (any, error) {
	return e.m.Get(e.prefix+id, c)
}

// Set writes an extension entry.
func (e *Extension) Set(id string, value any, c Context) error {
	return e.m.Set(e.prefix+id, value, c)
}

// OnChange registers fn for writes of an extension entry.
func (e *Extension) OnChange(id string, fn func(Context)) func() {
	return e.m.OnChange(e.prefix+id, func(_ string, c Context) { fn(c) })
}
