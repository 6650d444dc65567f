package store

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Normalize converts a document body into its canonical JSON form: numbers
// become float64, times become RFC 3339 strings, nested structs become maps.
// All drivers persist and return normalized data, so readers see the same
// types regardless of backend.
func Normalize(data map[string]any) (map[string]any, error) {
	if data == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	return out, nil
}

// Float reads a numeric field.
func Float(data map[string]any, field string) (float64, bool) {
	return ToFloat(data[field])
}

// ToFloat converts any numeric representation into float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Int reads a numeric field rounded to the nearest int.
func Int(data map[string]any, field string) int {
	f, ok := Float(data, field)
	if !ok {
		return 0
	}
	return int(math.Round(f))
}

// String reads a string field.
func String(data map[string]any, field string) string {
	switch s := data[field].(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	default:
		return ""
	}
}

// Bool reads a boolean field.
func Bool(data map[string]any, field string) bool {
	b, _ := data[field].(bool)
	return b
}

// Time reads a time field stored either as time.Time or as an RFC 3339 string.
func Time(data map[string]any, field string) (time.Time, bool) {
	switch t := data[field].(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	default:
		return time.Time{}, false
	}
}

// IntMap reads a nested object of numeric values.
func IntMap(data map[string]any, field string) map[string]int {
	out := make(map[string]int)
	nested, ok := data[field].(map[string]any)
	if !ok {
		return out
	}
	for k := range nested {
		out[k] = Int(nested, k)
	}
	return out
}

// Compare orders two field values. Numbers compare numerically, everything
// else by its string form. ok is false when either side is nil.
func Compare(a, b any) (cmp int, ok bool) {
	if a == nil || b == nil {
		return 0, false
	}
	af, aNum := ToFloat(a)
	bf, bNum := ToFloat(b)
	if aNum && bNum {
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}
	as, bs := stringOf(a), stringOf(b)
	switch {
	case as < bs:
		return -1, true
	case as > bs:
		return 1, true
	default:
		return 0, true
	}
}

func stringOf(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case bool:
		return strconv.FormatBool(s)
	case time.Time:
		return s.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}

// IsNumeric reports whether v is a number.
func IsNumeric(v any) bool {
	_, ok := ToFloat(v)
	return ok
}

// Matches evaluates one filter against a document body.
func (f Filter) Matches(data map[string]any) bool {
	v, present := data[f.Field]
	if !present || v == nil {
		return false
	}
	switch f.Op {
	case OpEqual:
		c, ok := Compare(v, f.Value)
		return ok && c == 0
	case OpGreater:
		if IsNumeric(f.Value) && !IsNumeric(v) {
			return false
		}
		c, ok := Compare(v, f.Value)
		return ok && c > 0
	case OpGreaterOrEqual:
		if IsNumeric(f.Value) && !IsNumeric(v) {
			return false
		}
		c, ok := Compare(v, f.Value)
		return ok && c >= 0
	case OpIn:
		values, _ := f.Value.([]any)
		for _, candidate := range values {
			if c, ok := Compare(v, candidate); ok && c == 0 {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// MatchesAll evaluates every filter of q against a document body.
func (q Query) MatchesAll(data map[string]any) bool {
	for _, f := range q.Filters {
		if !f.Matches(data) {
			return false
		}
	}
	if q.OrderBy != nil {
		if v, ok := data[q.OrderBy.Field]; !ok || v == nil {
			return false
		}
	}
	return true
}
