package rules

import (
	"strings"

	"github.com/spindlehq/spindle/internal/field"
)

// Matches reports whether a trigger fires for the given update. Field
// triggers require the watched field to appear in the diff, the old value
// to equal From (when set), and the new value to equal To. Root triggers
// match on the event tag alone. A trigger naming a field the entity does
// not carry simply never matches.
//
// Field names may use a dotted path ("status.paid") to watch one key of
// a map-valued field; the diff is still taken on the root field.
func Matches(t Trigger, d field.Diff, old, next map[string]any, schema field.Schema, event string) bool {
	switch t.Category {
	case CategoryRoot:
		return t.Event != "" && t.Event == event
	case CategoryField:
		root, _, _ := strings.Cut(t.Field, ".")
		if !d.Changed(root) {
			return false
		}
		ft := typeAt(schema, t.Field)
		ov, nv := valueAt(old, t.Field), valueAt(next, t.Field)
		if field.Equal(ft, ov, nv) {
			// The root field changed but this sub-key did not.
			return false
		}
		if t.From != nil && !field.Equal(ft, ov, t.From) {
			return false
		}
		return field.Equal(ft, nv, t.To)
	default:
		return false
	}
}

// GuardHolds evaluates an action's guard condition against the
// post-update entity state. A nil guard always holds.
func GuardHolds(g *Condition, next map[string]any, schema field.Schema) bool {
	if g == nil {
		return true
	}
	return field.Equal(typeAt(schema, g.Field), valueAt(next, g.Field), g.Is)
}

// valueAt resolves a possibly-dotted field path against an entity state.
func valueAt(m map[string]any, path string) any {
	root, rest, dotted := strings.Cut(path, ".")
	v := m[root]
	for dotted {
		mm := field.AsMap(v)
		if mm == nil {
			return nil
		}
		root, rest, dotted = strings.Cut(rest, ".")
		v = mm[root]
	}
	return v
}

// typeAt resolves the field type for a possibly-dotted path. Sub-keys of
// map fields compare as plain scalars.
func typeAt(schema field.Schema, path string) field.Type {
	root, _, dotted := strings.Cut(path, ".")
	if dotted {
		return field.ShortText
	}
	if ft, ok := schema[root]; ok {
		return ft
	}
	return field.ShortText
}
