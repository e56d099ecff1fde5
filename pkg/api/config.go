package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"reflect"
	"slices"
)

// ErrNotRoundTrippable is returned when a config value cannot be encoded as JSON.
var ErrNotRoundTrippable = errors.New("value is not JSON round-trippable")

// Config is the externally writable key-value record of a step. Values are
// always stored in their JSON-decoded form: numbers are float64, lists are
// []any and objects are map[string]any.
type Config map[string]any

// Normalize passes value through a JSON encode/decode cycle and returns the
// decoded form.
func Normalize(value any) (any, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotRoundTrippable, err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotRoundTrippable, err)
	}
	return out, nil
}

// NormalizeConfig normalizes every value of c into a new Config.
func NormalizeConfig(c Config) (Config, error) {
	out := make(Config, len(c))
	for k, v := range c {
		n, err := Normalize(v)
		if err != nil {
			return nil, fmt.Errorf("config key %q: %w", k, err)
		}
		out[k] = n
	}
	return out, nil
}

// MergeConfig performs a shallow merge of overlay over base.
func MergeConfig(base, overlay Config) Config {
	merged := make(Config, len(base)+len(overlay))
	maps.Copy(merged, base)
	maps.Copy(merged, overlay)
	return merged
}

// Clone returns a deep copy of c.
func (c Config) Clone() Config {
	if c == nil {
		return Config{}
	}
	out := make(Config, len(c))
	for k, v := range c {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = cloneValue(e)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = cloneValue(e)
		}
		return s
	default:
		return v
	}
}

// Equal reports whether c and other hold the same keys and values. A nil
// Config equals an empty one.
func (c Config) Equal(other Config) bool {
	if len(c) == 0 && len(other) == 0 {
		return true
	}
	return reflect.DeepEqual(map[string]any(c), map[string]any(other))
}

// ChangedKeys returns the sorted keys whose values differ between old and new,
// including keys present in only one of them.
func ChangedKeys(old, new Config) []string {
	var keys []string
	for k, v := range new {
		if ov, ok := old[k]; !ok || !reflect.DeepEqual(ov, v) {
			keys = append(keys, k)
		}
	}
	for k := range old {
		if _, ok := new[k]; !ok {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}

// Has reports whether key is set to a non-null, non-empty value.
func (c Config) Has(key string) bool {
	v, ok := c[key]
	if !ok || v == nil {
		return false
	}
	switch t := v.(type) {
	case []any:
		return len(t) > 0
	case string:
		return t != ""
	}
	return true
}

func (c Config) String(key string) (string, bool) {
	s, ok := c[key].(string)
	return s, ok && s != ""
}

func (c Config) Float(key string) (float64, bool) {
	f, ok := c[key].(float64)
	return f, ok
}

func (c Config) Bool(key string) bool {
	b, _ := c[key].(bool)
	return b
}

// Map returns the object stored under key, or nil.
func (c Config) Map(key string) map[string]any {
	m, _ := c[key].(map[string]any)
	return m
}

// Names extracts the "name" field of every object in the list stored under
// key, e.g. variableResults: [{"name": "col2"}].
func (c Config) Names(key string) []string {
	list, _ := c[key].([]any)
	names := make([]string, 0, len(list))
	for _, item := range list {
		switch t := item.(type) {
		case map[string]any:
			if n, ok := t["name"].(string); ok {
				names = append(names, n)
			}
		case string:
			names = append(names, t)
		}
	}
	return names
}
