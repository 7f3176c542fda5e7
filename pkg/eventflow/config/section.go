package config

import (
	"encoding/json"
	"time"

	"gopkg.in/yaml.v3"
)

// Section wraps a map[string]any for type-safe value extraction.
// All accessor methods return default values if the key is missing
// or the value cannot be converted to the requested type.
type Section struct {
	data map[string]any
}

// NewSection creates a Section from the given map.
// If data is nil, an empty Section is returned.
func NewSection(data map[string]any) Section {
	if data == nil {
		data = make(map[string]any)
	}
	return Section{data: data}
}

// UnmarshalYAML decodes a YAML mapping into the section.
func (s *Section) UnmarshalYAML(node *yaml.Node) error {
	var m map[string]any
	if err := node.Decode(&m); err != nil {
		return err
	}
	*s = NewSection(m)
	return nil
}

// UnmarshalJSON decodes a JSON object into the section.
func (s *Section) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*s = NewSection(m)
	return nil
}

// String returns the string value for key, or defaultVal if missing or not a string.
func (s Section) String(key, defaultVal string) string {
	if v, ok := s.data[key].(string); ok {
		return v
	}
	return defaultVal
}

// Duration returns the duration value for key, or defaultVal if missing or invalid.
//
// Accepts:
//   - string: parsed with time.ParseDuration
//   - int, int64, float64: interpreted as seconds
func (s Section) Duration(key string, defaultVal time.Duration) time.Duration {
	v, ok := s.data[key]
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case string:
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	case float64:
		return time.Duration(val * float64(time.Second))
	case int:
		return time.Duration(val) * time.Second
	case int64:
		return time.Duration(val) * time.Second
	}
	return defaultVal
}

// Bool returns the boolean value for key, or defaultVal if missing or not a bool.
func (s Section) Bool(key string, defaultVal bool) bool {
	if b, ok := s.data[key].(bool); ok {
		return b
	}
	return defaultVal
}

// Int returns the integer value for key, or defaultVal if missing or not convertible.
// Floats are accepted only when they have no fractional part.
func (s Section) Int(key string, defaultVal int) int {
	switch val := s.data[key].(type) {
	case int:
		return val
	case int64:
		return int(val)
	case float64:
		if val == float64(int(val)) {
			return int(val)
		}
	}
	return defaultVal
}

// Float returns the float64 value for key, or defaultVal if missing or not convertible.
func (s Section) Float(key string, defaultVal float64) float64 {
	switch val := s.data[key].(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case int64:
		return float64(val)
	}
	return defaultVal
}

// StringSlice returns the string slice for key, or defaultVal if missing
// or if any element is not a string.
func (s Section) StringSlice(key string, defaultVal []string) []string {
	switch val := s.data[key].(type) {
	case []string:
		return val
	case []any:
		result := make([]string, 0, len(val))
		for _, item := range val {
			str, ok := item.(string)
			if !ok {
				return defaultVal
			}
			result = append(result, str)
		}
		return result
	}
	return defaultVal
}

// Has returns true if the key exists in the section.
func (s Section) Has(key string) bool {
	_, ok := s.data[key]
	return ok
}
