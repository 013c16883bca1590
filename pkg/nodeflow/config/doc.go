/*
Package config provides typed access to map[string]any values.

Node properties and engine settings both arrive as loosely typed maps,
from YAML or JSON documents or from property editors. Config wraps such a
map and converts values on read, returning the caller's default when a key
is missing or cannot be converted.

	props := config.New(map[string]any{
	    "delimiter":  "-",
	    "max_splits": 2,
	    "dotall":     "true",
	})

	props.String("delimiter", "\n") // "-"
	props.Int("max_splits", -1)     // 2
	props.Bool("dotall", false)     // true

Engine settings are usually one section of a larger file:

	cfg, err := config.FromFile("nodeflow.yaml")
	if err != nil {
	    return err
	}
	settings := nodeflow.SettingsFromConfig(cfg.Section("engine"))

Config is safe for concurrent reads as long as the wrapped map is not
modified.
*/
package config
