package prefs

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"sync"
)

// Context describes what a lookup is for.
type Context struct {
	// Path is the file the preference applies to.
	Path string
	// Language is the language id of that file.
	Language string
	// Project is the project root directory.
	Project string
	// ScopeOrder overrides the system's scope order when non-nil.
	ScopeOrder []string
}

// Location identifies where a value is stored.
type Location struct {
	Scope   string
	Layer   string
	LayerID string
}

// Scope is one level of the preference hierarchy: the data of a Storage
// plus the layers that refine it.
type Scope struct {
	storage Storage

	saveMu sync.Mutex

	mu      sync.RWMutex
	layers  []Layer
	data    map[string]any
	dirty   bool
	gen     uint64
	corrupt error
}

// NewScope creates an unloaded scope backed by storage.
func NewScope(storage Storage, layers ...Layer) *Scope {
	return &Scope{storage: storage, layers: layers, data: map[string]any{}}
}

// Storage returns the backing storage.
func (s *Scope) Storage() Storage { return s.storage }

// AddLayer appends a layer; earlier layers take precedence.
func (s *Scope) AddLayer(l Layer) {
	s.mu.Lock()
	s.layers = append(s.layers, l)
	s.mu.Unlock()
}

// Corrupt returns the parse error of the last load, if any.
func (s *Scope) Corrupt() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.corrupt
}

// Load replaces the scope data with the storage contents and returns the
// ids whose values changed. A corrupt storage leaves the scope empty and
// flagged; other errors keep the previous data.
func (s *Scope) Load(ctx context.Context) ([]string, error) {
	data, err := s.storage.Load(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.data
	if err != nil {
		if !errors.Is(err, ErrCorruptScope) {
			return nil, err
		}
		s.corrupt = err
		s.data = map[string]any{}
		s.dirty = false
		s.gen++
		return s.diff(old, s.data), err
	}

	s.corrupt = nil
	s.data = data
	s.dirty = false
	s.gen++
	return s.diff(old, data), nil
}

// Save writes the data back when it has been modified. Writes made while
// the storage is busy keep the scope dirty for the next Save.
func (s *Scope) Save(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.RLock()
	if !s.dirty || s.corrupt != nil {
		s.mu.RUnlock()
		return nil
	}
	data, gen := cloneData(s.data), s.gen
	s.mu.RUnlock()

	if err := s.storage.Save(ctx, data); err != nil {
		return err
	}

	s.mu.Lock()
	if s.gen == gen {
		s.dirty = false
	}
	s.mu.Unlock()
	return nil
}

// Get returns the value for id in c: matching layers first, then the base
// data.
func (s *Scope) Get(id string, c Context) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, l := range s.layers {
		section := sectionOf(s.data, l.Key())
		for _, lid := range l.Match(section, c) {
			if v, ok := valuesOf(section, lid)[id]; ok {
				return v, true
			}
		}
	}
	if s.isLayerKey(id) {
		return nil, false
	}
	v, ok := s.data[id]
	return v, ok
}

// Location reports where Get would find id. Scope is left empty.
func (s *Scope) Location(id string, c Context) (Location, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, l := range s.layers {
		section := sectionOf(s.data, l.Key())
		for _, lid := range l.Match(section, c) {
			if _, ok := valuesOf(section, lid)[id]; ok {
				return Location{Layer: l.Key(), LayerID: lid}, true
			}
		}
	}
	if s.isLayerKey(id) {
		return Location{}, false
	}
	_, ok := s.data[id]
	return Location{}, ok
}

// Set stores value for id in the base data, or in the named layer section
// when layer is non-empty. It reports whether the stored value changed.
func (s *Scope) Set(id string, value any, layer, layerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.corrupt != nil {
		return false, s.corrupt
	}

	target := s.data
	if layer != "" {
		if !s.isLayerKey(layer) {
			return false, ErrLayerNotFound
		}
		section, ok := s.data[layer].(map[string]any)
		if !ok {
			section = map[string]any{}
			s.data[layer] = section
		}
		values, ok := section[layerID].(map[string]any)
		if !ok {
			values = map[string]any{}
			section[layerID] = values
		}
		target = values
	} else if s.isLayerKey(id) {
		return false, ErrInvalidValue
	}

	if old, ok := target[id]; ok && reflect.DeepEqual(old, value) {
		return false, nil
	}
	target[id] = value
	s.dirty = true
	s.gen++
	return true, nil
}

// Delete removes id from the base data.
func (s *Scope) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[id]; !ok || s.isLayerKey(id) {
		return false
	}
	delete(s.data, id)
	s.dirty = true
	s.gen++
	return true
}

// Keys returns the ids with a value visible in c.
func (s *Scope) Keys(c Context) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := make(map[string]struct{})
	for k := range s.data {
		if !s.isLayerKey(k) {
			set[k] = struct{}{}
		}
	}
	for _, l := range s.layers {
		section := sectionOf(s.data, l.Key())
		for _, lid := range l.Match(section, c) {
			for k := range valuesOf(section, lid) {
				set[k] = struct{}{}
			}
		}
	}
	return sortedKeys(set)
}

func (s *Scope) isLayerKey(k string) bool {
	for _, l := range s.layers {
		if l.Key() == k {
			return true
		}
	}
	return false
}

// diff lists ids stored differently in a and b, in any layer.
func (s *Scope) diff(a, b map[string]any) []string {
	flatA, flatB := s.flatten(a), s.flatten(b)
	set := make(map[string]struct{})
	for id, v := range flatA {
		if !reflect.DeepEqual(v, flatB[id]) {
			set[id] = struct{}{}
		}
	}
	for id := range flatB {
		if _, ok := flatA[id]; !ok {
			set[id] = struct{}{}
		}
	}
	return sortedKeys(set)
}

// flatten maps each id to all of its stored values keyed by location.
func (s *Scope) flatten(data map[string]any) map[string]map[string]any {
	out := make(map[string]map[string]any)
	put := func(id, where string, v any) {
		if out[id] == nil {
			out[id] = make(map[string]any)
		}
		out[id][where] = v
	}
	for k, v := range data {
		if !s.isLayerKey(k) {
			put(k, "", v)
		}
	}
	for _, l := range s.layers {
		section := sectionOf(data, l.Key())
		for lid := range section {
			for id, v := range valuesOf(section, lid) {
				put(id, l.Key()+"\x00"+lid, v)
			}
		}
	}
	return out
}

// cloneData deep-copies nested maps and slices of decoded JSON data.
func cloneData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		return cloneData(v)
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = cloneValue(e)
		}
		return out
	}
	return v
}

func sectionOf(data map[string]any, key string) map[string]any {
	section, _ := data[key].(map[string]any)
	return section
}

func valuesOf(section map[string]any, layerID string) map[string]any {
	values, _ := section[layerID].(map[string]any)
	return values
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
