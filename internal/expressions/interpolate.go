package expressions

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Interpolate resolves {{path}} tokens in a template against the trigger
// data. Paths are dotted-segment walks over nested maps; an unresolved path
// substitutes the empty string. Unclosed markers are left as-is.
func Interpolate(template string, data map[string]any) string {
	if !strings.Contains(template, "{{") {
		return template
	}

	var result strings.Builder
	result.Grow(len(template))

	i := 0
	for i < len(template) {
		idx := strings.Index(template[i:], "{{")
		if idx == -1 {
			result.WriteString(template[i:])
			break
		}

		result.WriteString(template[i : i+idx])
		start := i + idx + 2 // skip "{{"

		end := strings.Index(template[start:], "}}")
		if end == -1 {
			// Unclosed marker: keep the rest verbatim.
			result.WriteString(template[i+idx:])
			break
		}
		end += start

		path := strings.TrimSpace(template[start:end])
		if val, ok := LookupPath(data, path); ok {
			result.WriteString(Stringify(val))
		}

		i = end + 2 // skip "}}"
	}

	return result.String()
}

// InterpolateConfig returns a deep copy of an action config with every
// string leaf interpolated. Non-string values pass through untouched,
// including strings nested below them only when reached through maps or
// slices (so templated values inside a create_record data map resolve).
func InterpolateConfig(cfg map[string]any, data map[string]any) map[string]any {
	if cfg == nil {
		return nil
	}
	out := make(map[string]any, len(cfg))
	for k, v := range cfg {
		out[k] = interpolateValue(v, data)
	}
	return out
}

func interpolateValue(v any, data map[string]any) any {
	switch t := v.(type) {
	case string:
		return Interpolate(t, data)
	case map[string]any:
		return InterpolateConfig(t, data)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = interpolateValue(e, data)
		}
		return out
	default:
		return v
	}
}

// LookupPath walks a dot-separated path through nested maps. A missing
// segment or a non-map intermediate yields (nil, false), never an error.
func LookupPath(data map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}

	var current any = data
	for _, seg := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Stringify converts a resolved value to its substitution string.
// Scalars render naturally; maps and slices render as compact JSON.
func Stringify(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		if v {
			return "true"
		}
		return "false"
	case float64:
		// JSON numbers decode as float64; render integers without a mantissa.
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%v", v)
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	case json.RawMessage:
		return string(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
