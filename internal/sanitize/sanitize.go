// Package sanitize repairs invalid UTF-8 in strings and decoded JSON structures.
package sanitize

import (
	"strings"
	"unicode/utf8"
)

// Replacement is written in place of every invalid UTF-8 sequence.
const Replacement = "�"

// String returns s with each run of invalid UTF-8 bytes replaced by Replacement.
// Valid input is returned unchanged.
func String(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, Replacement)
}

// Value walks a decoded JSON-like structure and repairs every string it finds,
// including map keys. Unknown scalar types are returned as is.
func Value(v any) any {
	switch val := v.(type) {
	case string:
		return String(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			key := String(k)
			if _, taken := out[key]; taken && key != k {
				// a repaired key must not overwrite a key that was already valid
				continue
			}
			out[key] = Value(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Value(item)
		}
		return out
	case []string:
		out := make([]string, len(val))
		for i, item := range val {
			out[i] = String(item)
		}
		return out
	default:
		return v
	}
}

// Map is Value for the common top-level object case.
func Map(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return Value(m).(map[string]any)
}
