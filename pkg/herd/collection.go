// Package herd holds the decision logic that turns stored cow documents into
// profiles and summaries. It performs no I/O; callers hand it whatever the
// document store returned.
package herd

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Entry is one non-nil member of a stored collection.
type Entry struct {
	ID    string
	Value any
}

// Entries flattens a stored collection into ordered (id, record) pairs.
// The store may hand back a keyed map or a positional list with nil holes;
// both come out the same way, holes dropped. Anything else yields nil.
func Entries(raw any) []Entry {
	switch c := raw.(type) {
	case map[string]any:
		keys := make([]string, 0, len(c))
		for k, v := range c {
			if v == nil {
				continue
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]Entry, 0, len(keys))
		for _, k := range keys {
			out = append(out, Entry{ID: k, Value: c[k]})
		}
		return out
	case []any:
		out := make([]Entry, 0, len(c))
		for i, v := range c {
			if v == nil {
				continue
			}
			out = append(out, Entry{ID: strconv.Itoa(i), Value: v})
		}
		return out
	default:
		return nil
	}
}

// Count returns the number of non-nil members of a stored collection.
func Count(raw any) int {
	return len(Entries(raw))
}

// Number extracts a numeric value from a decoded JSON field.
func Number(v any) (float64, bool) {
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
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Text renders a decoded JSON scalar the way it is compared and keyed.
func Text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "bool"
	case []any:
		return "list"
	case map[string]any:
		return "object"
	}
	if _, ok := Number(v); ok {
		return "number"
	}
	return fmt.Sprintf("%T", v)
}
