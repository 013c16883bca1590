package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// decoders maps a file extension to the function decoding it into a map.
var decoders = map[string]func([]byte, any) error{
	".yaml": yaml.Unmarshal,
	".yml":  yaml.Unmarshal,
	".json": json.Unmarshal,
}

// FromFile loads a Config from a .yaml, .yml or .json file. An empty file
// yields an empty Config.
func FromFile(path string) (Config, error) {
	ext := strings.ToLower(filepath.Ext(path))
	decode, ok := decoders[ext]
	if !ok {
		return Config{}, fmt.Errorf("config %s: unsupported extension %q", path, ext)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	cfg, err := parse(data, decode, strings.TrimPrefix(ext, "."))
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// FromYAML parses a YAML mapping. Nested mappings decode as
// map[string]any so Section works on them.
func FromYAML(data []byte) (Config, error) {
	return parse(data, yaml.Unmarshal, "yaml")
}

// FromJSON parses a JSON object.
func FromJSON(data []byte) (Config, error) {
	return parse(data, json.Unmarshal, "json")
}

func parse(data []byte, decode func([]byte, any) error, format string) (Config, error) {
	var m map[string]any
	if len(strings.TrimSpace(string(data))) == 0 {
		return New(nil), nil
	}
	if err := decode(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", format, err)
	}
	return New(m), nil
}
