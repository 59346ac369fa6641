package prefs

import "strings"

// PrefixedSystem is a view of a System that namespaces ids under a
// prefix, as extensions use it.
type PrefixedSystem struct {
	base   *System
	prefix string
}

// Prefixed returns a view that maps id to prefix+"."+id.
func (s *System) Prefixed(prefix string) *PrefixedSystem {
	return &PrefixedSystem{base: s, prefix: strings.TrimSuffix(prefix, ".") + "."}
}

// Base returns the underlying System.
func (p *PrefixedSystem) Base() *System { return p.base }

func (p *PrefixedSystem) full(id string) string { return p.prefix + id }

// DefinePreference defines prefix.id.
func (p *PrefixedSystem) DefinePreference(id string, typ Type, initial any, meta Meta) (*Preference, error) {
	return p.base.DefinePreference(p.full(id), typ, initial, meta)
}

// Get resolves prefix.id.
func (p *PrefixedSystem) Get(id string, c ...Context) any {
	return p.base.Get(p.full(id), c...)
}

// Set stores prefix.id.
func (p *PrefixedSystem) Set(id string, value any, opts ...SetOption) error {
	return p.base.Set(p.full(id), value, opts...)
}

// OnChange registers fn for changes under the prefix. Event ids are
// reported without the prefix.
func (p *PrefixedSystem) OnChange(fn func(ChangeEvent), ids ...string) func() {
	full := make([]string, len(ids))
	for i, id := range ids {
		full[i] = p.full(id)
	}
	return p.base.OnChange(func(e ChangeEvent) {
		var local []string
		for _, id := range e.IDs {
			if rest, ok := strings.CutPrefix(id, p.prefix); ok {
				local = append(local, rest)
			}
		}
		if len(local) > 0 {
			fn(ChangeEvent{IDs: local})
		}
	}, full...)
}
