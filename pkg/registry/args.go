package registry

import (
	"encoding/json"
	"math"
)

// Args is the positional argument list of a request.
// Values arrive as decoded JSON with numbers kept as json.Number.
type Args []any

// Len returns the number of arguments.
func (a Args) Len() int {
	return len(a)
}

// String returns argument i when it is a string.
func (a Args) String(i int) (string, bool) {
	if i < 0 || i >= len(a) {
		return "", false
	}
	s, ok := a[i].(string)
	return s, ok
}

// Bool returns argument i when it is a boolean.
func (a Args) Bool(i int) (bool, bool) {
	if i < 0 || i >= len(a) {
		return false, false
	}
	b, ok := a[i].(bool)
	return b, ok
}

// Int returns argument i when it holds an integral number.
func (a Args) Int(i int) (int64, bool) {
	if i < 0 || i >= len(a) {
		return 0, false
	}
	switch v := a[i].(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		// NaN fails the Trunc comparison; the bounds exclude Inf and values that would wrap.
		if v != math.Trunc(v) || v < -(1<<63) || v >= 1<<63 {
			return 0, false
		}
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	default:
		return 0, false
	}
}

// Strings returns argument i when it is a list made only of strings.
func (a Args) Strings(i int) ([]string, bool) {
	if i < 0 || i >= len(a) {
		return nil, false
	}
	switch v := a[i].(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

// IsNull reports whether argument i is missing or JSON null.
func (a Args) IsNull(i int) bool {
	return i < 0 || i >= len(a) || a[i] == nil
}
