package config

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Config is a read-only view of a property map with typed accessors.
// Accessors return the supplied default when the key is missing or the
// value cannot be converted.
type Config struct {
	data map[string]any
}

// New wraps data. A nil map yields an empty Config. The map must not be
// modified afterwards.
func New(data map[string]any) Config {
	if data == nil {
		data = make(map[string]any)
	}
	return Config{data: data}
}

// String returns the string at key. Numbers and booleans are formatted.
func (c Config) String(key, defaultVal string) string {
	v := c.data[key]
	if i, ok := asInt64(v); ok {
		return strconv.FormatInt(i, 10)
	}
	switch v := v.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}
	return defaultVal
}

// Bool returns the boolean at key. The strings "true", "false", "yes",
// "no", "1" and "0" are accepted in any case.
func (c Config) Bool(key string, defaultVal bool) bool {
	switch v := c.data[key].(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "1":
			return true
		case "false", "no", "0":
			return false
		}
	}
	return defaultVal
}

// Int returns the integer at key. Floats convert only without a
// fractional part; numeric strings are parsed.
func (c Config) Int(key string, defaultVal int) int {
	v := c.data[key]
	if i, ok := asInt64(v); ok {
		return int(i)
	}
	switch v := v.(type) {
	case float64:
		if v == float64(int(v)) {
			return int(v)
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return defaultVal
}

// Float returns the float at key. Integers convert; numeric strings are
// parsed.
func (c Config) Float(key string, defaultVal float64) float64 {
	v := c.data[key]
	if i, ok := asInt64(v); ok {
		return float64(i)
	}
	switch v := v.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return defaultVal
}

// asInt64 converts any integer type. Decoders such as msgpack produce
// the narrowest type that fits.
func asInt64(v any) (int64, bool) {
	switch v := v.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return int64(v), true
	}
	return 0, false
}

// Duration returns the duration at key. Strings are parsed with
// time.ParseDuration; bare numbers are seconds.
func (c Config) Duration(key string, defaultVal time.Duration) time.Duration {
	v := c.data[key]
	if i, ok := asInt64(v); ok {
		return time.Duration(i) * time.Second
	}
	switch v := v.(type) {
	case time.Duration:
		return v
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	case float64:
		return time.Duration(v * float64(time.Second))
	}
	return defaultVal
}

// StringSlice returns the strings at key. A []any must hold only strings.
func (c Config) StringSlice(key string, defaultVal []string) []string {
	switch v := c.data[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return defaultVal
			}
			out = append(out, s)
		}
		return out
	}
	return defaultVal
}

// Section returns the nested map at key as a Config. Missing or
// non-map values yield an empty Config.
func (c Config) Section(key string) Config {
	if m, ok := c.data[key].(map[string]any); ok {
		return New(m)
	}
	return New(nil)
}

// Any returns the raw value at key, or defaultVal.
func (c Config) Any(key string, defaultVal any) any {
	if v, ok := c.data[key]; ok {
		return v
	}
	return defaultVal
}

// Has reports whether key is present.
func (c Config) Has(key string) bool {
	_, ok := c.data[key]
	return ok
}

// Keys returns the keys in sorted order.
func (c Config) Keys() []string {
	keys := make([]string, 0, len(c.data))
	for k := range c.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WithDefaults returns a Config where keys missing from c are taken from
// defaults. Neither input is modified.
func (c Config) WithDefaults(defaults map[string]any) Config {
	merged := make(map[string]any, len(c.data)+len(defaults))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range c.data {
		merged[k] = v
	}
	return New(merged)
}

// Raw returns the underlying map. It must not be modified.
func (c Config) Raw() map[string]any {
	return c.data
}
