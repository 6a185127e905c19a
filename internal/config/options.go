package config

import "encoding/json"

// Options is a free-form option bag for parser and sink settings.
// It decodes from arbitrary JSON objects and exposes typed accessors with
// defaults, so component code never touches raw map[string]any.
type Options map[string]any

// Any returns the raw value for key, or nil when absent.
func (o Options) Any(key string) any {
	if o == nil {
		return nil
	}
	return o[key]
}

// String returns the value for key when it is a string, otherwise def.
func (o Options) String(key, def string) string {
	if v, ok := o[key].(string); ok {
		return v
	}
	return def
}

// Bool returns the value for key when it is a bool, otherwise def.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key].(bool); ok {
		return v
	}
	return def
}

// Int returns the value for key as an int when it is numeric, otherwise def.
// JSON numbers decode as float64; both float64 and json.Number are accepted.
func (o Options) Int(key string, def int) int {
	switch v := o[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return def
}

// Rune returns the first rune of a one-character string value, otherwise def.
func (o Options) Rune(key string, def rune) rune {
	if v, ok := o[key].(string); ok && v != "" {
		return []rune(v)[0]
	}
	return def
}

// StringMap returns the value for key as map[string]string. Non-string
// entries are skipped. A missing or mistyped value yields an empty map.
func (o Options) StringMap(key string) map[string]string {
	out := map[string]string{}
	switch m := o[key].(type) {
	case map[string]string:
		for k, v := range m {
			out[k] = v
		}
	case map[string]any:
		for k, v := range m {
			if s, ok := v.(string); ok {
				out[k] = s
			}
		}
	}
	return out
}

// Strings returns the value for key as a []string, accepting both []string
// and JSON-decoded []any of strings.
func (o Options) Strings(key string) []string {
	switch v := o[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, it := range v {
			if s, ok := it.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
