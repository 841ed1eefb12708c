package automation

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"

	"github.com/spindlehq/spindle/internal/actions"
	"github.com/spindlehq/spindle/internal/field"
	"github.com/spindlehq/spindle/internal/models"
	"github.com/spindlehq/spindle/internal/rules"
)

// DefaultMaxDepth bounds cascade recursion: second-order mutations may
// re-enter rule evaluation at most this many times per pass.
const DefaultMaxDepth = 5

// Source supplies entity snapshots and container rule sets. Snapshots
// are value copies; the resolver never sees (or mutates) stored rows.
type Source interface {
	Get(ctx context.Context, id string) (*models.Snapshot, error)
	Container(ctx context.Context, id string) (*rules.Container, error)
}

// Update is one proposed entity change entering a resolution pass.
type Update struct {
	EntityID string
	Patch    models.Patch
	// Event tags container-level events (card created, scheduled tick)
	// for root-rule matching. Empty for plain field edits.
	Event string
	// RuleID, when set, restricts evaluation to that single rule. A
	// scheduled tick fires exactly the registered rule; the container's
	// other scheduled rules (inherited ones included) keep their own
	// cron times.
	RuleID string
	// Kind and Create are set on cascade updates synthesized by actions.
	Kind   models.EntityKind
	Create bool
}

// Result is the merged outcome of one pass: exactly one pending write
// per entity, plus the side effects to deliver after commit.
type Result struct {
	Patches map[string]models.Patch
	Kinds   map[string]models.EntityKind
	Creates map[string]bool
	// Order lists entity ids in first-touched order, for deterministic
	// commit batches.
	Order   []string
	Effects []actions.Effect
	// Warnings records recoverable evaluation problems (cascade limit,
	// skipped rules); they never abort the pass.
	Warnings []string
}

// Resolver runs bounded automation passes.
type Resolver struct {
	Source   Source
	MaxDepth int
	// NewID mints ids for entities synthesized by create actions.
	// Defaults to an 8-char hex id with a "card-" prefix.
	NewID func() (string, error)
}

// visitKey suppresses re-evaluating one rule against one entity within a
// single pass.
type visitKey struct {
	entityID string
	ruleID   string
}

// GenerateID creates a unique entity id in card-xxxxxxxx format.
func GenerateID() (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("automation: generate id: %w", err)
	}
	return "card-" + hex.EncodeToString(b), nil
}

// Resolve evaluates container rules for the proposed updates and returns
// the merged mutation set. The only fatal errors are an initial entity or
// container lookup failing; every rule- or action-level problem is logged
// and skipped so the user's own edit always survives.
func (r *Resolver) Resolve(ctx context.Context, updates []Update, caller string) (*Result, error) {
	maxDepth := r.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	newID := r.NewID
	if newID == nil {
		newID = GenerateID
	}

	acc := NewAccumulator()
	visited := make(map[visitKey]bool)
	processed := make(map[string]bool)
	synthesized := make(map[string]*models.Snapshot)
	var effects []actions.Effect
	var warnings []string

	get := func(id string) (*models.Snapshot, error) {
		if s, ok := synthesized[id]; ok {
			return s, nil
		}
		return r.Source.Get(ctx, id)
	}
	src := sourceFunc(get)

	queue := updates
	for depth := 0; len(queue) > 0; depth++ {
		if depth > maxDepth {
			w := fmt.Sprintf("automation: cascade depth %d exceeded, dropping %d pending updates", maxDepth, len(queue))
			log.Print(w)
			warnings = append(warnings, w)
			break
		}

		var next []Update
		pending := make(map[string]int)
		queued := make(map[string]int, len(queue))
		for i, u := range queue {
			queued[u.EntityID] = i
		}
		// Pending state for an entity: its accumulated patch, plus this
		// round's not-yet-dequeued update, plus whatever is already
		// queued for the next round. An update's patch folds into the
		// accumulator only when it is dequeued, so both queues have to
		// be consulted.
		pendingFor := func(id string) models.Patch {
			p := acc.Get(id)
			if i, ok := queued[id]; ok && !processed[id] {
				p = field.Merge(p, queue[i].Patch)
			}
			if i, ok := pending[id]; ok {
				p = field.Merge(p, next[i].Patch)
			}
			return p
		}
		for _, u := range queue {
			processed[u.EntityID] = true
			acc.Merge(u.EntityID, u.Kind, u.Patch, u.Create)

			if u.Create {
				// The entity does not exist in the store yet; evaluate
				// against its proposed fields.
				if _, ok := synthesized[u.EntityID]; !ok {
					synthesized[u.EntityID] = synthInitial(u)
				}
			}
			snap, err := get(u.EntityID)
			if err != nil {
				if depth == 0 {
					return nil, fmt.Errorf("automation: resolve %s: %w", u.EntityID, err)
				}
				log.Printf("automation: cascade target %s: %v", u.EntityID, err)
				continue
			}
			cont, err := r.Source.Container(ctx, snap.ContainerID)
			if err != nil {
				if depth == 0 {
					return nil, fmt.Errorf("automation: container %s: %w", snap.ContainerID, err)
				}
				log.Printf("automation: container %s for cascade target %s: %v", snap.ContainerID, u.EntityID, err)
				continue
			}

			patch := acc.Get(u.EntityID)
			if patch == nil {
				patch = u.Patch
			}
			nextState := field.Merge(snap.Fields, patch)
			diff := field.Compute(snap.Fields, nextState, patch, snap.Schema)

			env := actions.Env{
				Ctx:       ctx,
				Source:    src,
				Container: cont,
				Caller:    caller,
				NewID:     newID,
				Pending:   pendingFor,
			}

			ix := rules.BuildIndex(cont.Rules)
			for _, rl := range ix.Candidates(diffRoots(diff), u.Event) {
				if !rl.Active {
					continue
				}
				if u.RuleID != "" && rl.ID != u.RuleID {
					continue
				}
				key := visitKey{u.EntityID, rl.ID}
				if visited[key] {
					continue
				}
				if !rules.Matches(rl.Trigger, diff, snap.Fields, nextState, snap.Schema, u.Event) {
					continue
				}
				visited[key] = true

				for _, act := range rl.Actions {
					if !rules.GuardHolds(act.Guard, nextState, snap.Schema) {
						log.Printf("automation: rule %s on %s: guard failed for %s action, skipping", rl.ID, u.EntityID, act.Kind)
						continue
					}
					muts, effs, err := actions.Dispatch(env, act, snap, nextState)
					if err != nil {
						log.Printf("automation: rule %s on %s: %s action: %v", rl.ID, u.EntityID, act.Kind, err)
						continue
					}
					effects = append(effects, effs...)
					for _, m := range muts {
						if m.Create {
							synthesized[m.EntityID] = synthSnapshot(m, cont)
						}
						if processed[m.EntityID] {
							// Already evaluated this pass: fold the patch
							// in directly, no re-evaluation.
							acc.Merge(m.EntityID, m.Kind, m.Patch, m.Create)
							continue
						}
						// Cross-entity mutations re-enter rule evaluation
						// and only land in the accumulator when their
						// round is actually processed, so a cascade-limit
						// drop really drops them.
						if i, ok := pending[m.EntityID]; ok {
							next[i].Patch = field.Merge(next[i].Patch, m.Patch)
							continue
						}
						pending[m.EntityID] = len(next)
						next = append(next, Update{
							EntityID: m.EntityID,
							Patch:    m.Patch,
							Event:    m.Event,
							Kind:     m.Kind,
							Create:   m.Create,
						})
					}
				}
			}
		}
		queue = next
	}

	res := acc.Result()
	res.Effects = effects
	res.Warnings = warnings
	return res, nil
}

// diffRoots lists the top-level field names the diff touches, for rule
// index lookup. Dotted sub-key triggers index under their root name.
func diffRoots(d field.Diff) []string {
	return d.Fields()
}

// synthInitial builds a snapshot for a create update arriving at the top
// of a pass, resolving the container from the proposed fields.
func synthInitial(u Update) *models.Snapshot {
	kind := u.Kind
	if kind == "" {
		kind = models.KindCard
	}
	contID, _ := u.Patch["projectId"].(string)
	parentID, _ := u.Patch["parentId"].(string)
	return &models.Snapshot{
		ID:          u.EntityID,
		Kind:        kind,
		ContainerID: contID,
		ParentID:    parentID,
		Fields:      u.Patch,
		Schema:      field.CardSchema(),
	}
}

// synthSnapshot builds an in-memory snapshot for an entity created this
// pass, so cascaded rule evaluation can see it before it is committed.
func synthSnapshot(m actions.Mutation, cont *rules.Container) *models.Snapshot {
	parentID, _ := m.Patch["parentId"].(string)
	return &models.Snapshot{
		ID:          m.EntityID,
		Kind:        m.Kind,
		ContainerID: cont.ID,
		ParentID:    parentID,
		Fields:      m.Patch,
		Schema:      field.CardSchema(),
	}
}

// sourceFunc adapts a lookup function to the actions.Source interface.
type sourceFunc func(id string) (*models.Snapshot, error)

func (f sourceFunc) Get(_ context.Context, id string) (*models.Snapshot, error) {
	return f(id)
}
