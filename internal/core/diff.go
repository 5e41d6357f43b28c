package core

import (
	"encoding/json"
	"reflect"
	"sort"
)

// Fields that either change on every write or have their own history entries.
var diffSkip = map[string]struct{}{
	"created_at":          {},
	"updated_at":          {},
	"reservations":        {},
	"maintenance_history": {},
	"checkout_history":    {},
	"notes":               {},
	"reminders":           {},
}

// diffFields compares the JSON form of two values and returns one FieldChange
// per differing top-level field, sorted by field name. Either side may be nil.
func diffFields(before, after any) []FieldChange {
	b := jsonFields(before)
	a := jsonFields(after)
	keys := make(map[string]struct{}, len(a)+len(b))
	for k := range b {
		keys[k] = struct{}{}
	}
	for k := range a {
		keys[k] = struct{}{}
	}
	names := make([]string, 0, len(keys))
	for k := range keys {
		if _, skip := diffSkip[k]; skip {
			continue
		}
		names = append(names, k)
	}
	sort.Strings(names)

	var out []FieldChange
	for _, k := range names {
		bv, av := b[k], a[k]
		if reflect.DeepEqual(bv, av) {
			continue
		}
		out = append(out, FieldChange{Field: k, Before: bv, After: av})
	}
	return out
}

func jsonFields(v any) map[string]any {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}
