package plugin

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrPluginNotFound is returned when a lookup by name or type has no match.
	ErrPluginNotFound = errors.New("plugin not found")

	// ErrConflictingPluginName is returned when a name is already registered.
	ErrConflictingPluginName = errors.New("conflicting plugin name")

	// ErrConflictingPluginTypes is returned when a content type is already
	// claimed by another plugin.
	ErrConflictingPluginTypes = errors.New("conflicting plugin types")

	// ErrInvalidPluginPackage is returned when discovery cannot load,
	// identify or parse a candidate package.
	ErrInvalidPluginPackage = errors.New("invalid plugin package")
)

// NotFoundError describes a failed lookup. Exactly one of Name or Type is set.
type NotFoundError struct {
	Kind Kind
	Name string
	Type string
}

func (e *NotFoundError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("no %s registered for type %q", e.Kind, e.Type)
	}
	return fmt.Sprintf("no %s registered with name %q", e.Kind, e.Name)
}

func (e *NotFoundError) Unwrap() error { return ErrPluginNotFound }

// ConflictError describes a rejected registration. When Types is empty the
// conflict is on the name; otherwise Holders maps each conflicting type to
// the name that already claims it.
type ConflictError struct {
	Kind    Kind
	Name    string
	Types   []string
	Holders map[string]string
}

func (e *ConflictError) Error() string {
	if len(e.Types) == 0 {
		return fmt.Sprintf("%s %q already registered", e.Kind, e.Name)
	}
	parts := make([]string, 0, len(e.Types))
	for _, t := range e.Types {
		parts = append(parts, fmt.Sprintf("%s (held by %s)", t, e.Holders[t]))
	}
	return fmt.Sprintf("%s %q declares types already claimed: %s", e.Kind, e.Name, strings.Join(parts, ", "))
}

func (e *ConflictError) Unwrap() error {
	if len(e.Types) == 0 {
		return ErrConflictingPluginName
	}
	return ErrConflictingPluginTypes
}

func newTypeConflict(kind Kind, name string, holders map[string]string) *ConflictError {
	types := make([]string, 0, len(holders))
	for t := range holders {
		types = append(types, t)
	}
	sort.Strings(types)
	return &ConflictError{Kind: kind, Name: name, Types: types, Holders: holders}
}

// PackageError reports a candidate package that could not be loaded.
type PackageError struct {
	Kind   Kind
	Dir    string
	Reason string
	Err    error
}

func (e *PackageError) Error() string {
	msg := fmt.Sprintf("%s package %s: %s", e.Kind, e.Dir, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is matches ErrInvalidPluginPackage while still allowing errors.Is to reach
// the wrapped cause through Unwrap.
func (e *PackageError) Is(target error) bool { return target == ErrInvalidPluginPackage }

func (e *PackageError) Unwrap() error { return e.Err }
