package prefs

import (
	"reflect"
	"slices"
)

// Type is the declared value type of a preference.
type Type string

const (
	TypeAny     Type = ""
	TypeNumber  Type = "number"
	TypeBoolean Type = "boolean"
	TypeString  Type = "string"
	TypeArray   Type = "array"
	TypeObject  Type = "object"
)

// Meta carries optional preference metadata.
type Meta struct {
	Description string
	// Values restricts the preference to an enumeration.
	Values []any
	// Validator rejects values beyond the type check.
	Validator func(any) bool
	// ExcludeFromHints hides the preference from editor hints.
	ExcludeFromHints bool
}

// Preference is a defined preference: its type, initial value and
// metadata.
type Preference struct {
	ID      string
	Type    Type
	Initial any
	Meta    Meta

	system *System
}

// OnChange registers fn for changes of this preference.
func (p *Preference) OnChange(fn func()) func() {
	return p.system.OnChange(func(ChangeEvent) { fn() }, p.ID)
}

// Valid reports whether v satisfies the type, enumeration and validator.
func (p *Preference) Valid(v any) bool {
	if !typeMatches(p.Type, v) {
		return false
	}
	if len(p.Meta.Values) > 0 && !slices.ContainsFunc(p.Meta.Values, func(allowed any) bool {
		return reflect.DeepEqual(normalize(p.Type, allowed), normalize(p.Type, v))
	}) {
		return false
	}
	if p.Meta.Validator != nil && !p.Meta.Validator(v) {
		return false
	}
	return true
}

func typeMatches(t Type, v any) bool {
	switch t {
	case TypeNumber:
		_, ok := toFloat(v)
		return ok
	case TypeBoolean:
		_, ok := v.(bool)
		return ok
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeArray:
		if v == nil {
			return false
		}
		k := reflect.TypeOf(v).Kind()
		return k == reflect.Slice || k == reflect.Array
	case TypeObject:
		if v == nil {
			return false
		}
		return reflect.TypeOf(v).Kind() == reflect.Map
	default:
		return true
	}
}

// normalize converts numbers to float64 so Go values and decoded JSON
// compare equal.
func normalize(t Type, v any) any {
	if t != TypeNumber {
		return v
	}
	if f, ok := toFloat(v); ok {
		return f
	}
	return v
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
