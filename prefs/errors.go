package prefs

import (
	"errors"
	"fmt"
)

var (
	// ErrCorruptScope is returned when a scope's storage cannot be parsed.
	ErrCorruptScope = errors.New("preferences storage is corrupt")
	// ErrScopeNotFound is returned for operations naming an unknown scope.
	ErrScopeNotFound = errors.New("scope not found")
	// ErrLayerNotFound is returned when a location names a layer the scope
	// does not have.
	ErrLayerNotFound = errors.New("layer not found")
	// ErrInvalidValue is returned by Set for values rejected by the
	// preference's type or validator.
	ErrInvalidValue = errors.New("invalid preference value")
	// ErrAlreadyDefined is returned when a preference id is defined twice.
	ErrAlreadyDefined = errors.New("preference already defined")
)

// ParseError records the settings file that failed to parse.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

// Unwrap exposes both ErrCorruptScope and the decoder error.
func (e *ParseError) Unwrap() []error {
	return []error{ErrCorruptScope, e.Err}
}
