package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"go.trai.ch/zerr"
	yaml "go.yaml.in/yaml/v3"
)

// IsYAML reports whether path names a YAML config file.
func IsYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// coerceToJSON converts YAML input to JSON so both formats go through the
// same strict decoder. JSON input is returned unchanged.
func coerceToJSON(path string, data []byte) ([]byte, error) {
	if !IsYAML(path) {
		return data, nil
	}
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, zerr.Wrap(err, ErrConfigDecode.Error())
	}
	if v == nil {
		return []byte("{}"), nil
	}
	j, err := json.Marshal(normalizeYAML(v))
	if err != nil {
		return nil, zerr.Wrap(err, ErrConfigDecode.Error())
	}
	return j, nil
}

// normalizeYAML ensures map keys are strings so the value can be JSON-marshaled.
func normalizeYAML(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = normalizeYAML(v)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[k] = normalizeYAML(v)
		}
		return m
	case []any:
		for i := range x {
			x[i] = normalizeYAML(x[i])
		}
		return x
	default:
		return in
	}
}
