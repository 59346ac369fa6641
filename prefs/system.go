// Package prefs resolves layered editor preferences.
//
// A System holds named scopes in precedence order (by default session,
// project, user, default). A lookup walks the scopes from strongest to
// weakest; within a scope the layers (path globs, language, project) are
// consulted before the scope's base data. The first valid value wins and
// values are never merged. When no scope has a value the preference's
// initial value is returned.
//
// Manager wires a System for an editor: a user settings file, a project
// settings file that follows the open project, and an in-memory session
// scope.
package prefs

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/gobeaver/livefs/internal/metrics"
)

// ScopeDefault is the bottom scope every System starts with.
const ScopeDefault = "default"

// ChangeEvent lists the preference ids whose value may have changed.
type ChangeEvent struct {
	IDs []string
}

type changeListener struct {
	id  int
	ids []string
	fn  func(ChangeEvent)
}

// System is a preferences resolution engine. It is safe for concurrent
// use; listeners are called synchronously, in registration order, outside
// the lock.
type System struct {
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu             sync.RWMutex
	scopes         map[string]*Scope
	order          []string
	prefs          map[string]*Preference
	listeners      []changeListener
	orderListeners []changeListener
	nextListener   int
	paused         int
	pending        []string
	contextBuilder func(Context) Context
	defaultScope   string
}

// Option configures a System.
type Option func(*System)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *System) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records preference changes and reloads.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *System) { s.metrics = m }
}

// WithDefaultScope names the scope Set writes to when a value has no
// location yet. Defaults to "user".
func WithDefaultScope(name string) Option {
	return func(s *System) { s.defaultScope = name }
}

// NewSystem creates a System containing only the default scope.
func NewSystem(opts ...Option) *System {
	s := &System{
		logger:       zap.NewNop(),
		scopes:       map[string]*Scope{ScopeDefault: NewScope(NewMemoryStorage())},
		order:        []string{ScopeDefault},
		prefs:        make(map[string]*Preference),
		defaultScope: "user",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ============================================================================
// Scopes
// ============================================================================

// ScopePosition places a new scope relative to an existing one.
type ScopePosition struct {
	Before string
	After  string
}

// Before places a scope directly above (stronger than) name.
func Before(name string) ScopePosition { return ScopePosition{Before: name} }

// After places a scope directly below (weaker than) name.
func After(name string) ScopePosition { return ScopePosition{After: name} }

// AddScope loads scope and inserts it into the scope order. Without a
// position it becomes the strongest scope. Adding an existing name is a
// no-op. A scope whose storage fails to load is still added; a corrupt one
// is skipped by lookups until it loads cleanly. The load error is returned.
func (s *System) AddScope(ctx context.Context, name string, scope *Scope, pos ...ScopePosition) error {
	s.mu.RLock()
	_, exists := s.scopes[name]
	s.mu.RUnlock()
	if exists {
		return nil
	}

	changed, loadErr := scope.Load(ctx)
	if loadErr != nil {
		s.logger.Warn("failed to load preferences scope",
			zap.String("scope", name), zap.Error(loadErr))
	}

	s.mu.Lock()
	if _, exists := s.scopes[name]; exists {
		s.mu.Unlock()
		return nil
	}
	order, err := insertScope(s.order, name, pos...)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.scopes[name] = scope
	s.order = order
	s.mu.Unlock()

	s.emitScopeOrderChange()
	s.emitChange(changed)
	return loadErr
}

// RemoveScope drops a scope entirely.
func (s *System) RemoveScope(name string) {
	s.mu.Lock()
	scope, ok := s.scopes[name]
	if !ok || name == ScopeDefault {
		s.mu.Unlock()
		return
	}
	delete(s.scopes, name)
	s.order = slices.DeleteFunc(s.order, func(n string) bool { return n == name })
	s.mu.Unlock()

	s.emitScopeOrderChange()
	s.emitChange(scope.Keys(Context{}))
}

// Scope returns the named scope.
func (s *System) Scope(name string) (*Scope, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scope, ok := s.scopes[name]
	return scope, ok
}

// ScopeOrder returns the current default scope order, strongest first.
func (s *System) ScopeOrder() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.order)
}

// RemoveFromScopeOrder takes a scope out of the default order without
// dropping it. Lookups with an explicit ScopeOrder can still reach it.
func (s *System) RemoveFromScopeOrder(name string) {
	s.mu.Lock()
	if !slices.Contains(s.order, name) {
		s.mu.Unlock()
		return
	}
	s.order = slices.DeleteFunc(s.order, func(n string) bool { return n == name })
	s.mu.Unlock()
	s.emitScopeOrderChange()
}

// AddToScopeOrder puts a known scope back into the default order.
func (s *System) AddToScopeOrder(name string, pos ...ScopePosition) error {
	s.mu.Lock()
	if _, ok := s.scopes[name]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrScopeNotFound, name)
	}
	if slices.Contains(s.order, name) {
		s.mu.Unlock()
		return nil
	}
	order, err := insertScope(s.order, name, pos...)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.order = order
	s.mu.Unlock()
	s.emitScopeOrderChange()
	return nil
}

func insertScope(order []string, name string, pos ...ScopePosition) ([]string, error) {
	if len(pos) == 0 || (pos[0].Before == "" && pos[0].After == "") {
		return slices.Insert(slices.Clone(order), 0, name), nil
	}
	target, offset := pos[0].Before, 0
	if target == "" {
		target, offset = pos[0].After, 1
	}
	i := slices.Index(order, target)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrScopeNotFound, target)
	}
	return slices.Insert(slices.Clone(order), i+offset, name), nil
}

// IsScopeCorrupt reports whether the named scope failed to parse.
func (s *System) IsScopeCorrupt(name string) bool {
	scope, ok := s.Scope(name)
	return ok && scope.Corrupt() != nil
}

// ============================================================================
// Definitions and lookup
// ============================================================================

// DefinePreference registers a preference with its type and initial
// value. Defining an id twice fails with ErrAlreadyDefined.
func (s *System) DefinePreference(id string, typ Type, initial any, meta Meta) (*Preference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.prefs[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyDefined, id)
	}
	p := &Preference{ID: id, Type: typ, Initial: normalize(typ, initial), Meta: meta, system: s}
	s.prefs[id] = p
	return p, nil
}

// Preference returns a defined preference.
func (s *System) Preference(id string) (*Preference, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prefs[id]
	return p, ok
}

// SetContextBuilder installs a hook that completes the context of every
// Get, Set and location lookup.
func (s *System) SetContextBuilder(fn func(Context) Context) {
	s.mu.Lock()
	s.contextBuilder = fn
	s.mu.Unlock()
}

func (s *System) buildContext(c []Context) Context {
	var ctx Context
	if len(c) > 0 {
		ctx = c[0]
	}
	s.mu.RLock()
	build := s.contextBuilder
	s.mu.RUnlock()
	if build != nil {
		ctx = build(ctx)
	}
	return ctx
}

// Get resolves id for the optional context. Numbers are returned as
// float64. Unknown ids with no stored value return nil.
func (s *System) Get(id string, c ...Context) any {
	v, _ := s.resolve(id, s.buildContext(c))
	return v
}

// Location reports which scope and layer supplies id.
func (s *System) Location(id string, c ...Context) (Location, bool) {
	_, loc := s.resolve(id, s.buildContext(c))
	return loc, loc.Scope != ""
}

func (s *System) resolve(id string, c Context) (any, Location) {
	s.mu.RLock()
	order := c.ScopeOrder
	if order == nil {
		order = s.order
	}
	order = slices.Clone(order)
	scopes := make([]*Scope, len(order))
	for i, name := range order {
		scopes[i] = s.scopes[name]
	}
	pref := s.prefs[id]
	s.mu.RUnlock()

	for i, scope := range scopes {
		if scope == nil || scope.Corrupt() != nil {
			continue
		}
		v, ok := scope.Get(id, c)
		if !ok {
			continue
		}
		if pref == nil {
			loc, _ := scope.Location(id, c)
			loc.Scope = order[i]
			return v, loc
		}
		if !pref.Valid(v) {
			s.logger.Debug("ignoring invalid preference value",
				zap.String("id", id), zap.String("scope", order[i]))
			continue
		}
		loc, _ := scope.Location(id, c)
		loc.Scope = order[i]
		return normalize(pref.Type, v), loc
	}

	if pref != nil {
		return pref.Initial, Location{}
	}
	return nil, Location{}
}

// ============================================================================
// Mutation
// ============================================================================

type setOptions struct {
	location *Location
	context  *Context
}

// SetOption configures Set.
type SetOption func(*setOptions)

// At stores the value at an explicit location.
func At(loc Location) SetOption {
	return func(o *setOptions) { o.location = &loc }
}

// InContext resolves the target location for c instead of the current
// context.
func InContext(c Context) SetOption {
	return func(o *setOptions) { o.context = &c }
}

// Set stores value for id. Without At the value goes where it is currently
// defined, or to the default write scope when it only has its initial
// value. A change event fires when the stored value changes.
func (s *System) Set(id string, value any, opts ...SetOption) error {
	var o setOptions
	for _, opt := range opts {
		opt(&o)
	}

	pref, _ := s.Preference(id)
	if pref != nil {
		if !pref.Valid(value) {
			return fmt.Errorf("%w: %s=%v", ErrInvalidValue, id, value)
		}
		value = normalize(pref.Type, value)
	}

	loc := o.location
	if loc == nil {
		var c []Context
		if o.context != nil {
			c = append(c, *o.context)
		}
		found, ok := s.Location(id, c...)
		if !ok || found.Scope == ScopeDefault {
			found = Location{Scope: s.defaultWriteScope()}
		}
		loc = &found
	}

	scope, ok := s.Scope(loc.Scope)
	if !ok {
		return fmt.Errorf("%w: %s", ErrScopeNotFound, loc.Scope)
	}
	changed, err := scope.Set(id, value, loc.Layer, loc.LayerID)
	if err != nil {
		return fmt.Errorf("set %s in %s: %w", id, loc.Scope, err)
	}
	if changed {
		s.metrics.RecordPreferenceChange(loc.Scope)
		s.emitChange([]string{id})
	}
	return nil
}

func (s *System) defaultWriteScope() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.scopes[s.defaultScope]; ok {
		return s.defaultScope
	}
	return s.order[0]
}

// Save writes every modified scope. Corrupt scopes are never written.
func (s *System) Save(ctx context.Context) error {
	s.mu.RLock()
	scopes := make(map[string]*Scope, len(s.scopes))
	for name, scope := range s.scopes {
		scopes[name] = scope
	}
	s.mu.RUnlock()

	var errs []error
	for name, scope := range scopes {
		if err := scope.Save(ctx); err != nil {
			errs = append(errs, fmt.Errorf("save scope %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// ReloadScope reloads one scope from its storage and fires a change event
// for every id whose stored value differs.
func (s *System) ReloadScope(ctx context.Context, name string) error {
	scope, ok := s.Scope(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrScopeNotFound, name)
	}
	changed, err := scope.Load(ctx)
	s.metrics.RecordPreferenceReload(name, err == nil)
	if err != nil {
		s.logger.Warn("failed to reload preferences scope",
			zap.String("scope", name), zap.Error(err))
	}
	s.emitChange(changed)
	return err
}

// FileChanged reloads every scope stored in the file at p.
func (s *System) FileChanged(ctx context.Context, p string) error {
	type pathed interface{ Path() string }

	s.mu.RLock()
	var names []string
	for _, name := range s.order {
		if st, ok := s.scopes[name].storage.(pathed); ok && st.Path() == p {
			names = append(names, name)
		}
	}
	for name, scope := range s.scopes {
		if slices.Contains(names, name) {
			continue
		}
		if st, ok := scope.storage.(pathed); ok && st.Path() == p {
			names = append(names, name)
		}
	}
	s.mu.RUnlock()

	var errs []error
	for _, name := range names {
		if err := s.ReloadScope(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SignalContextChanged fires a change event for the ids that resolve
// differently in next than in prev.
func (s *System) SignalContextChanged(prev, next Context) {
	s.mu.RLock()
	scopes := make([]*Scope, 0, len(s.scopes))
	for _, scope := range s.scopes {
		scopes = append(scopes, scope)
	}
	s.mu.RUnlock()

	candidates := make(map[string]struct{})
	for _, scope := range scopes {
		for _, id := range scope.Keys(prev) {
			candidates[id] = struct{}{}
		}
		for _, id := range scope.Keys(next) {
			candidates[id] = struct{}{}
		}
	}

	var changed []string
	for _, id := range sortedKeys(candidates) {
		a, _ := s.resolve(id, prev)
		b, _ := s.resolve(id, next)
		if !reflect.DeepEqual(a, b) {
			changed = append(changed, id)
		}
	}
	s.emitChange(changed)
}

// ============================================================================
// Events
// ============================================================================

// OnChange registers fn for change events. With ids, fn only sees events
// touching those ids, narrowed to them. The returned func unregisters.
func (s *System) OnChange(fn func(ChangeEvent), ids ...string) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextListener
	s.nextListener++
	s.listeners = append(s.listeners, changeListener{id: id, ids: ids, fn: fn})
	return func() {
		s.mu.Lock()
		s.listeners = slices.DeleteFunc(s.listeners, func(l changeListener) bool { return l.id == id })
		s.mu.Unlock()
	}
}

// OnScopeOrderChange registers fn for scope order changes.
func (s *System) OnScopeOrderChange(fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextListener
	s.nextListener++
	s.orderListeners = append(s.orderListeners, changeListener{id: id, fn: func(ChangeEvent) { fn() }})
	return func() {
		s.mu.Lock()
		s.orderListeners = slices.DeleteFunc(s.orderListeners, func(l changeListener) bool { return l.id == id })
		s.mu.Unlock()
	}
}

// PauseChangeEvents queues change events until the matching
// ResumeChangeEvents. Pauses nest.
func (s *System) PauseChangeEvents() {
	s.mu.Lock()
	s.paused++
	s.mu.Unlock()
}

// ResumeChangeEvents delivers the queued ids as a single event once the
// last pause is lifted.
func (s *System) ResumeChangeEvents() {
	s.mu.Lock()
	if s.paused == 0 {
		s.mu.Unlock()
		return
	}
	s.paused--
	if s.paused > 0 {
		s.mu.Unlock()
		return
	}
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	s.emitChange(pending)
}

func (s *System) emitChange(ids []string) {
	if len(ids) == 0 {
		return
	}

	s.mu.Lock()
	if s.paused > 0 {
		for _, id := range ids {
			if !slices.Contains(s.pending, id) {
				s.pending = append(s.pending, id)
			}
		}
		s.mu.Unlock()
		return
	}
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()

	for _, l := range listeners {
		if len(l.ids) == 0 {
			l.fn(ChangeEvent{IDs: slices.Clone(ids)})
			continue
		}
		var hit []string
		for _, id := range ids {
			if slices.Contains(l.ids, id) {
				hit = append(hit, id)
			}
		}
		if len(hit) > 0 {
			l.fn(ChangeEvent{IDs: hit})
		}
	}
}

func (s *System) emitScopeOrderChange() {
	s.mu.RLock()
	listeners := slices.Clone(s.orderListeners)
	s.mu.RUnlock()
	for _, l := range listeners {
		l.fn(ChangeEvent{})
	}
}
