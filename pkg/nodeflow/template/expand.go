package template

import (
	"fmt"
	"regexp"
	"strings"
)

// refPattern matches ${NAME} and ${NAME:-fallback}.
var refPattern = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_]*)(?::-([^}]*))?\}`)

// Expander expands ${NAME} references.
type Expander struct {
	lookup        Lookup
	missingAction MissingAction
}

// NewExpander creates an Expander resolving names with lookup. A nil
// lookup resolves nothing, so only fallbacks apply.
func NewExpander(lookup Lookup, opts ...Option) *Expander {
	if lookup == nil {
		lookup = func(string) (string, bool) { return "", false }
	}
	e := &Expander{lookup: lookup, missingAction: MissingKeep}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Expand replaces every reference in s. An error is returned only under
// MissingError, and then lists every unresolved name.
func (e *Expander) Expand(s string) (string, error) {
	if !strings.Contains(s, "${") {
		return s, nil
	}

	var missing []string
	result := refPattern.ReplaceAllStringFunc(s, func(match string) string {
		sub := refPattern.FindStringSubmatch(match)
		name := sub[1]
		if v, ok := e.lookup(name); ok {
			return v
		}
		if strings.Contains(match, ":-") {
			return sub[2]
		}
		switch e.missingAction {
		case MissingEmpty:
			return ""
		case MissingError:
			missing = append(missing, name)
		}
		return match
	})

	if len(missing) > 0 {
		return result, &UndefinedVariableError{Names: missing}
	}
	return result, nil
}

// ExpandValue expands strings inside v, descending into maps and slices.
// Other values are returned unchanged. Containers are copied, never
// modified in place.
func (e *Expander) ExpandValue(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return e.Expand(val)
	case map[string]any:
		return e.ExpandMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			expanded, err := e.ExpandValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = expanded
		}
		return out, nil
	default:
		return v, nil
	}
}

// ExpandMap expands every value of m into a new map.
func (e *Expander) ExpandMap(m map[string]any) (map[string]any, error) {
	if m == nil {
		return nil, nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		expanded, err := e.ExpandValue(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = expanded
	}
	return out, nil
}

// UndefinedVariableError lists names that resolved to nothing under
// MissingError.
type UndefinedVariableError struct {
	Names []string
}

// Error implements the error interface.
func (e *UndefinedVariableError) Error() string {
	if len(e.Names) == 1 {
		return fmt.Sprintf("undefined variable: %s", e.Names[0])
	}
	return fmt.Sprintf("undefined variables: %s", strings.Join(e.Names, ", "))
}
