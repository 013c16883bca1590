package nodeflow

import (
	"fmt"
	"strings"
)

// Policy controls when a node is considered in need of recomputation.
type Policy int

const (
	// DirtyIfInputsChange recomputes a node only when it has been marked
	// dirty by an upstream change, a property edit, or a new connection.
	DirtyIfInputsChange Policy = iota

	// AlwaysDirty recomputes a node on every scheduling pass.
	AlwaysDirty

	// NeverDirty computes a node once; after its cache is populated it
	// ignores upstream changes and property edits.
	NeverDirty
)

// String returns the display name of the policy.
func (p Policy) String() string {
	switch p {
	case AlwaysDirty:
		return "Always dirty"
	case NeverDirty:
		return "Never dirty"
	default:
		return "Dirty if inputs change"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Policy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Policy) UnmarshalText(text []byte) error {
	parsed, err := ParsePolicy(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParsePolicy accepts the display name or a snake_case form
// ("dirty_if_inputs_change", "always_dirty", "never_dirty"). An empty
// string yields DirtyIfInputsChange.
func ParsePolicy(s string) (Policy, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("_", " ", "-", " ").Replace(norm)
	switch norm {
	case "", "dirty if inputs change":
		return DirtyIfInputsChange, nil
	case "always dirty":
		return AlwaysDirty, nil
	case "never dirty":
		return NeverDirty, nil
	default:
		return DirtyIfInputsChange, fmt.Errorf("unknown recalculation policy %q", s)
	}
}
