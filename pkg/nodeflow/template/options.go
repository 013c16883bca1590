package template

import "os"

// MissingAction specifies how to handle names that resolve to nothing.
type MissingAction int

const (
	// MissingKeep leaves the reference as written. This is the default.
	MissingKeep MissingAction = iota

	// MissingEmpty replaces the reference with an empty string.
	MissingEmpty

	// MissingError reports an UndefinedVariableError.
	MissingError
)

// Option configures an Expander.
type Option func(*Expander)

// WithMissingAction sets how unresolved names are handled.
func WithMissingAction(action MissingAction) Option {
	return func(e *Expander) {
		e.missingAction = action
	}
}

// Lookup resolves a variable name.
type Lookup func(name string) (string, bool)

// MapLookup resolves names from m.
func MapLookup(m map[string]string) Lookup {
	return func(name string) (string, bool) {
		v, ok := m[name]
		return v, ok
	}
}

// EnvLookup resolves names from the process environment.
func EnvLookup() Lookup {
	return os.LookupEnv
}

// Chain tries each lookup in order and returns the first hit.
func Chain(lookups ...Lookup) Lookup {
	return func(name string) (string, bool) {
		for _, l := range lookups {
			if l == nil {
				continue
			}
			if v, ok := l(name); ok {
				return v, true
			}
		}
		return "", false
	}
}
