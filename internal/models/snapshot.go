package models

import "github.com/spindlehq/spindle/internal/field"

// Patch is a partial entity: proposed new values keyed by field name.
// Patches never contain the full entity, only the keys being changed.
type Patch = map[string]any

// EntityKind identifies which table a snapshot was read from.
type EntityKind string

const (
	KindCard          EntityKind = "card"
	KindCollectionRow EntityKind = "collectionRow"
	KindProject       EntityKind = "project"
	KindCircle        EntityKind = "circle"
)

// Snapshot is the immutable in-memory view of one entity used during an
// automation pass. Fields holds JSON-shaped values; the stored row is
// never handed out, so nothing downstream can mutate the read model.
type Snapshot struct {
	ID          string
	Kind        EntityKind
	ContainerID string
	ParentID    string
	ChildIDs    []string
	Fields      map[string]any
	Schema      field.Schema
}

// Field returns the named field value, or nil when absent.
func (s *Snapshot) Field(name string) any {
	if s == nil || s.Fields == nil {
		return nil
	}
	return s.Fields[name]
}
