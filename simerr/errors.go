// Package simerr defines the fatal error kinds raised by simulation setup and actions.
//
// None of these are recoverable: a configuration or prerequisite error aborts the run
// before the first timestep, a data consistency error aborts it where it is detected.
package simerr

import (
	"errors"
	"fmt"
)

// Kind sentinels. Match them with errors.Is.
var (
	ErrConfiguration       = errors.New("configuration error")
	ErrPrerequisiteMissing = errors.New("prerequisite missing")
	ErrDataConsistency     = errors.New("data consistency error")
)

// Error describes a fatal failure in one component.
type Error struct {
	Kind      error  // one of the sentinels above
	Component string // behavior or term that failed, e.g. "crowding effect default"
	Field     string // offending parameter tag or tree field name, if any
	Msg       string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s: %s", e.Kind, e.Component, e.Field, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Component, e.Msg)
}

// Is reports whether target is the error's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

// Unwrap returns the kind sentinel.
func (e *Error) Unwrap() error {
	return e.Kind
}

// Config returns a ConfigurationError for a bad or missing parameter.
func Config(component, field, format string, args ...any) error {
	return &Error{Kind: ErrConfiguration, Component: component, Field: field, Msg: fmt.Sprintf(format, args...)}
}

// Prerequisite returns a PrerequisiteMissingError for a tree field nobody registered.
func Prerequisite(component, field, format string, args ...any) error {
	return &Error{Kind: ErrPrerequisiteMissing, Component: component, Field: field, Msg: fmt.Sprintf(format, args...)}
}

// Consistency returns a DataConsistencyError for a violated internal invariant.
func Consistency(component, format string, args ...any) error {
	return &Error{Kind: ErrDataConsistency, Component: component, Msg: fmt.Sprintf(format, args...)}
}
