package store

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// canonical converts an arbitrary Go value into its decoded-JSON form
// (maps, slices, float64, string, bool) with nulls and empty objects pruned.
func canonical(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document value: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode document value: %w", err)
	}
	return prune(out), nil
}

func prune(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, c := range t {
			if p := prune(c); p == nil {
				delete(t, k)
			} else {
				t[k] = p
			}
		}
		if len(t) == 0 {
			return nil
		}
		return t
	case []any:
		kept := false
		for i, c := range t {
			t[i] = prune(c)
			if t[i] != nil {
				kept = true
			}
		}
		if !kept {
			return nil
		}
		return t
	default:
		return v
	}
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, c := range t {
			out[k] = cloneValue(c)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, c := range t {
			out[i] = cloneValue(c)
		}
		return out
	default:
		return v
	}
}

func lookup(node any, segs []string) (any, bool) {
	cur := node
	for _, seg := range segs {
		switch c := cur.(type) {
		case map[string]any:
			cur = c[seg]
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(c) {
				return nil, false
			}
			cur = c[idx]
		default:
			return nil, false
		}
		if cur == nil {
			return nil, false
		}
	}
	return cur, true
}

// setIn writes value below node, creating intermediate objects. A list on
// the way down becomes an index-keyed object; a scalar is replaced.
// Parents left empty by a delete are removed.
func setIn(node map[string]any, segs []string, value any) {
	key := segs[0]
	if len(segs) == 1 {
		if value == nil {
			delete(node, key)
		} else {
			node[key] = value
		}
		return
	}
	child := asObject(node[key])
	setIn(child, segs[1:], value)
	if len(child) == 0 {
		delete(node, key)
	} else {
		node[key] = child
	}
}

func asObject(v any) map[string]any {
	switch t := v.(type) {
	case map[string]any:
		return t
	case []any:
		out := make(map[string]any, len(t))
		for i, c := range t {
			if c != nil {
				out[strconv.Itoa(i)] = c
			}
		}
		return out
	default:
		return make(map[string]any)
	}
}

type write struct {
	segs  []string
	value any
}

// fieldWrites validates every field of an update before anything is applied.
func fieldWrites(base []string, fields map[string]any) ([]write, error) {
	out := make([]write, 0, len(fields))
	for k, v := range fields {
		rel, err := SplitPath(k)
		if err != nil {
			return nil, err
		}
		value, err := canonical(v)
		if err != nil {
			return nil, err
		}
		segs := make([]string, 0, len(base)+len(rel))
		segs = append(append(segs, base...), rel...)
		out = append(out, write{segs: segs, value: value})
	}
	return out, nil
}
