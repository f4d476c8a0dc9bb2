package herd

import "strings"

// MatchCows returns the cows whose field, rendered as text, equals value
// ignoring case. Each match is a copy of the record with cow_id set to its key.
func MatchCows(cows any, field, value string) []map[string]any {
	want := strings.ToLower(value)
	var out []map[string]any
	for _, e := range Entries(cows) {
		record, ok := e.Value.(map[string]any)
		if !ok {
			continue
		}
		v, present := record[field]
		if !present || strings.ToLower(Text(v)) != want {
			continue
		}
		match := make(map[string]any, len(record)+1)
		for k, fv := range record {
			match[k] = fv
		}
		match["cow_id"] = e.ID
		out = append(out, match)
	}
	return out
}
