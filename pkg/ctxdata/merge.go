package ctxdata

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

// appendValue combines an existing value with an incoming one, incoming last.
// Mappings merge shallowly with incoming keys winning; sequences and strings
// concatenate. Mismatched kinds are not combinable and the incoming value
// replaces the existing one.
func appendValue(existing, incoming any) any {
	switch in := incoming.(type) {
	case map[string]any:
		if ex, ok := existing.(map[string]any); ok {
			out := make(map[string]any, len(ex)+len(in))
			maps.Copy(out, ex)
			maps.Copy(out, in)
			return out
		}
	case []any:
		if ex, ok := existing.([]any); ok {
			return slices.Concat(ex, in)
		}
	case string:
		if ex, ok := existing.(string); ok {
			return ex + in
		}
	}
	return incoming
}

// prependValue mirrors appendValue: incoming first, and on a mapping key
// collision the existing value wins.
func prependValue(existing, incoming any) any {
	switch in := incoming.(type) {
	case map[string]any:
		if ex, ok := existing.(map[string]any); ok {
			out := make(map[string]any, len(ex)+len(in))
			maps.Copy(out, in)
			maps.Copy(out, ex)
			return out
		}
	case []any:
		if ex, ok := existing.([]any); ok {
			return slices.Concat(in, ex)
		}
	case string:
		if ex, ok := existing.(string); ok {
			return in + ex
		}
	}
	return incoming
}

// normalize converts decoder output into the value shapes the handler works
// with: map[string]any, []any, int for integral numbers, float64 otherwise.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return int(i)
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case int64:
		return int(t)
	case uint64:
		return int(t)
	case int32:
		return int(t)
	case uint32:
		return int(t)
	case float32:
		return float64(t)
	default:
		return v
	}
}
