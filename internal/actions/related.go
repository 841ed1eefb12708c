package actions

import (
	"fmt"

	"github.com/spindlehq/spindle/internal/models"
	"github.com/spindlehq/spindle/internal/rules"
)

// maxDescendants bounds the flattened-descendant traversal so a corrupt
// parent/child graph cannot hang a pass.
const maxDescendants = 500

// relatedIDs resolves the target card set for a close/open action,
// relative to the triggering card. The triggering card is excluded.
func relatedIDs(env Env, rel rules.Relation, snap *models.Snapshot) ([]string, error) {
	switch rel {
	case rules.RelationImmediateSub:
		return append([]string(nil), snap.ChildIDs...), nil

	case rules.RelationParentCard:
		if snap.ParentID == "" {
			return nil, fmt.Errorf("actions: %s has no parent card", snap.ID)
		}
		return []string{snap.ParentID}, nil

	case rules.RelationSiblings:
		if snap.ParentID == "" {
			return nil, fmt.Errorf("actions: %s has no parent, no siblings to resolve", snap.ID)
		}
		parent, err := env.Source.Get(env.Ctx, snap.ParentID)
		if err != nil {
			return nil, fmt.Errorf("actions: resolve siblings of %s: %w", snap.ID, err)
		}
		return removeString(parent.ChildIDs, snap.ID), nil

	case rules.RelationAllSubCards:
		return descendants(env, snap)

	default:
		return nil, fmt.Errorf("actions: unknown relation %q", rel)
	}
}

// descendants walks the child graph breadth-first and returns the
// flattened id list. Missing children are skipped, not fatal.
func descendants(env Env, snap *models.Snapshot) ([]string, error) {
	seen := map[string]bool{snap.ID: true}
	queue := append([]string(nil), snap.ChildIDs...)
	var out []string
	for len(queue) > 0 && len(out) < maxDescendants {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)

		child, err := env.Source.Get(env.Ctx, id)
		if err != nil {
			continue
		}
		queue = append(queue, child.ChildIDs...)
	}
	return out, nil
}
