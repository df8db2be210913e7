package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// coerceToJSON converts YAML config files to JSON bytes so the strict JSON
// decoder (DisallowUnknownFields) covers both formats. Files without a
// .yaml/.yml extension pass through untouched.
func coerceToJSON(path string, data []byte) ([]byte, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return data, nil
	}

	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}

	v = normalizeKeys(v)

	j, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("yaml->json marshal: %w", err)
	}
	return j, nil
}

// normalizeKeys makes all map keys strings so the result can be JSON-marshaled.
func normalizeKeys(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = normalizeKeys(v)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[k] = normalizeKeys(v)
		}
		return m
	case []any:
		for i := range x {
			x[i] = normalizeKeys(x[i])
		}
		return x
	default:
		return in
	}
}
