package market

import (
	"encoding/json"
	"strconv"
	"strings"
)

func toMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func toSlice(v any) ([]any, bool) {
	s, ok := v.([]any)
	return s, ok
}

func mapAtPath(v any, keys ...string) (map[string]any, bool) {
	current := v
	for _, key := range keys {
		m, ok := toMap(current)
		if !ok {
			return nil, false
		}
		current = m[key]
	}
	return toMap(current)
}

func firstOfSlice(v any) (any, bool) {
	s, ok := toSlice(v)
	if !ok || len(s) == 0 {
		return nil, false
	}
	return s[0], true
}

func stringFromMap(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			if s := stringFromAny(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func stringFromAny(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func floatFromMap(m map[string]any, keys ...string) float64 {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			if f, ok := floatFromAny(v); ok {
				return f
			}
		}
	}
	return 0
}

func floatFromAny(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func floatSliceFromAny(v any) []float64 {
	items, ok := toSlice(v)
	if !ok {
		return nil
	}
	out := make([]float64, 0, len(items))
	for _, item := range items {
		f, _ := floatFromAny(item)
		out = append(out, f)
	}
	return out
}

func int64SliceFromAny(v any) []int64 {
	items, ok := toSlice(v)
	if !ok {
		return nil
	}
	out := make([]int64, 0, len(items))
	for _, item := range items {
		f, _ := floatFromAny(item)
		out = append(out, int64(f))
	}
	return out
}
