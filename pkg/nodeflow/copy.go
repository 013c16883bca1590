package nodeflow

import "reflect"

// copyMap deep-copies a value map. nil stays nil.
func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

// copyValue deep-copies maps, slices and arrays of any element type, and
// pointers to them. Scalars, structs and other values are shared.
func copyValue(v any) any {
	switch val := v.(type) {
	case nil, string, bool, int, int64, float64:
		return v
	case map[string]any:
		return copyMap(val)
	case []any:
		if val == nil {
			return val
		}
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	case []string:
		if val == nil {
			return val
		}
		return append([]string{}, val...)
	case []byte:
		if val == nil {
			return val
		}
		return append([]byte{}, val...)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Pointer:
		return deepCopy(rv).Interface()
	default:
		return v
	}
}

func deepCopy(v reflect.Value) reflect.Value {
	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return v
		}
		out := reflect.New(v.Type()).Elem()
		out.Set(deepCopy(v.Elem()))
		return out
	case reflect.Map:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), deepCopy(iter.Value()))
		}
		return out
	case reflect.Slice:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		if !holdsReferences(v.Type().Elem()) {
			reflect.Copy(out, v)
			return out
		}
		for i := range v.Len() {
			out.Index(i).Set(deepCopy(v.Index(i)))
		}
		return out
	case reflect.Array:
		out := reflect.New(v.Type()).Elem()
		for i := range v.Len() {
			out.Index(i).Set(deepCopy(v.Index(i)))
		}
		return out
	case reflect.Pointer:
		if v.IsNil() {
			return v
		}
		switch v.Elem().Kind() {
		case reflect.Map, reflect.Slice, reflect.Array:
			out := reflect.New(v.Type().Elem())
			out.Elem().Set(deepCopy(v.Elem()))
			return out
		}
		return v
	default:
		return v
	}
}

// holdsReferences reports whether values of t may share memory with a
// copy made by plain assignment.
func holdsReferences(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Map, reflect.Slice, reflect.Interface, reflect.Pointer:
		return true
	case reflect.Array:
		return holdsReferences(t.Elem())
	default:
		return false
	}
}

// outputsEqual reports whether two caches hold the same keys with deeply
// equal values.
func outputsEqual(a, b Outputs) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !reflect.DeepEqual(av, bv) {
			return false
		}
	}
	return true
}
