// Package automation orchestrates rule evaluation for entity updates: it
// diffs proposed changes, matches container rules, dispatches actions,
// and folds every resulting mutation into one batched write set.
package automation

import (
	"github.com/spindlehq/spindle/internal/field"
	"github.com/spindlehq/spindle/internal/models"
)

// Accumulator is the working set of pending writes for one resolution
// pass, keyed by entity id. It lives for exactly one pass and is never
// shared across requests.
type Accumulator struct {
	patches map[string]models.Patch
	kinds   map[string]models.EntityKind
	creates map[string]bool
	order   []string
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		patches: make(map[string]models.Patch),
		kinds:   make(map[string]models.EntityKind),
		creates: make(map[string]bool),
	}
}

// Merge folds a partial update into the pending patch for an entity.
// Top-level keys are last-writer-wins; map-valued keys merge key-wise so
// rules touching different sub-keys of status or kudosMinted never
// clobber each other.
func (a *Accumulator) Merge(id string, kind models.EntityKind, patch models.Patch, create bool) {
	existing, ok := a.patches[id]
	if !ok {
		a.order = append(a.order, id)
		existing = models.Patch{}
	}
	a.patches[id] = field.Merge(existing, patch)
	if kind != "" {
		a.kinds[id] = kind
	}
	if create {
		a.creates[id] = true
	}
}

// Get returns the pending patch for an entity, or nil if none.
func (a *Accumulator) Get(id string) models.Patch {
	return a.patches[id]
}

// Len returns the number of entities with pending writes.
func (a *Accumulator) Len() int {
	return len(a.patches)
}

// Result snapshots the accumulator into the per-pass outcome.
func (a *Accumulator) Result() *Result {
	res := &Result{
		Patches: make(map[string]models.Patch, len(a.patches)),
		Kinds:   make(map[string]models.EntityKind, len(a.kinds)),
		Creates: make(map[string]bool, len(a.creates)),
		Order:   append([]string(nil), a.order...),
	}
	for id, p := range a.patches {
		res.Patches[id] = p
	}
	for id, k := range a.kinds {
		res.Kinds[id] = k
	}
	for id := range a.creates {
		res.Creates[id] = true
	}
	return res
}
