package nodeflow

import "fmt"

// DataKind tags the values a port carries.
type DataKind string

// Data kinds understood by the engine.
const (
	KindAny     DataKind = "any"
	KindString  DataKind = "string"
	KindNumber  DataKind = "number"
	KindBoolean DataKind = "boolean"
	KindObject  DataKind = "object"
	KindArray   DataKind = "array"
)

// ParseDataKind converts a kind name into a DataKind. An empty name is KindAny.
func ParseDataKind(s string) (DataKind, error) {
	switch k := DataKind(s); k {
	case "":
		return KindAny, nil
	case KindAny, KindString, KindNumber, KindBoolean, KindObject, KindArray:
		return k, nil
	default:
		return "", fmt.Errorf("unknown data kind %q", s)
	}
}

// CompatibleWith reports whether values of kind k may flow into a port of
// kind other. Every kind is compatible with KindAny; otherwise the kinds must
// match exactly.
func (k DataKind) CompatibleWith(other DataKind) bool {
	if k == KindAny || other == KindAny {
		return true
	}
	return k == other
}

// Empty returns the value an unconnected input of this kind reads as.
func (k DataKind) Empty() any {
	switch k {
	case KindString:
		return ""
	case KindNumber:
		return 0.0
	case KindBoolean:
		return false
	case KindObject:
		return map[string]any{}
	case KindArray:
		return []any{}
	default:
		return nil
	}
}
