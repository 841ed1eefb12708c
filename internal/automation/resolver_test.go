package automation

import (
	"context"
	"fmt"
	"testing"

	"github.com/spindlehq/spindle/internal/field"
	"github.com/spindlehq/spindle/internal/models"
	"github.com/spindlehq/spindle/internal/rules"
)

// fakeSource serves snapshots and containers from maps.
type fakeSource struct {
	snaps      map[string]*models.Snapshot
	containers map[string]*rules.Container
}

func (f *fakeSource) Get(_ context.Context, id string) (*models.Snapshot, error) {
	s, ok := f.snaps[id]
	if !ok {
		return nil, fmt.Errorf("store: entity not found: %s", id)
	}
	return s, nil
}

func (f *fakeSource) Container(_ context.Context, id string) (*rules.Container, error) {
	c, ok := f.containers[id]
	if !ok {
		return nil, fmt.Errorf("store: container not found: %s", id)
	}
	return c, nil
}

func card(id, columnID string, st map[string]any) *models.Snapshot {
	if st == nil {
		st = map[string]any{"active": true}
	}
	return &models.Snapshot{
		ID:          id,
		Kind:        models.KindCard,
		ContainerID: "proj-1",
		Fields: map[string]any{
			"title":    "card " + id,
			"columnId": columnID,
			"status":   st,
			"assignee": []string{"u-amy"},
		},
		Schema: field.CardSchema(),
	}
}

func project(id string, ruleList []rules.Rule) (*models.Snapshot, *rules.Container) {
	snap := &models.Snapshot{
		ID:          id,
		Kind:        models.KindProject,
		ContainerID: id,
		Fields:      map[string]any{"name": "board"},
		Schema:      field.Schema{"name": field.ShortText},
	}
	cont := &rules.Container{
		ID:          id,
		Type:        rules.ContainerProject,
		Rules:       ruleList,
		ColumnOrder: []string{"todo", "doing", "done"},
		ColumnDetails: map[string]rules.Column{
			"todo":  {ID: "todo", Name: "To Do", Cards: []string{"card-a"}},
			"doing": {ID: "doing", Name: "Doing"},
			"done":  {ID: "done", Name: "Done"},
		},
	}
	return snap, cont
}

func newFake(ruleList []rules.Rule, snaps ...*models.Snapshot) *fakeSource {
	projSnap, cont := project("proj-1", ruleList)
	f := &fakeSource{
		snaps: map[string]*models.Snapshot{"proj-1": projSnap},
		containers: map[string]*rules.Container{
			"proj-1":   cont,
			"circle-1": {ID: "circle-1", Type: rules.ContainerCircle},
		},
	}
	for _, s := range snaps {
		f.snaps[s.ID] = s
	}
	return f
}

func resolver(src Source) *Resolver {
	n := 0
	return &Resolver{
		Source: src,
		NewID: func() (string, error) {
			n++
			return fmt.Sprintf("card-new%d", n), nil
		},
	}
}

// --- identity pass-through ---

func TestResolve_NoMatchingRulePassesThrough(t *testing.T) {
	src := newFake(nil, card("card-a", "todo", nil))
	res, err := resolver(src).Resolve(context.Background(), []Update{
		{EntityID: "card-a", Patch: models.Patch{"title": "renamed"}},
	}, "u-amy")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(res.Patches) != 1 {
		t.Fatalf("patches = %v, want only the original update", res.Patches)
	}
	if res.Patches["card-a"]["title"] != "renamed" {
		t.Errorf("card patch = %v", res.Patches["card-a"])
	}
}

func TestResolve_EntityNotFoundIsFatal(t *testing.T) {
	src := newFake(nil)
	_, err := resolver(src).Resolve(context.Background(), []Update{
		{EntityID: "card-missing", Patch: models.Patch{"title": "x"}},
	}, "u-amy")
	if err == nil {
		t.Fatal("expected not-found error for initial entity")
	}
}

// --- paid:false→true moves the card to done ---

func TestResolve_PaidTransitionMovesColumn(t *testing.T) {
	ruleList := []rules.Rule{{
		ID:      "rule-paid",
		Active:  true,
		Trigger: rules.Trigger{Category: rules.CategoryField, Field: "status.paid", From: false, To: true},
		Actions: []rules.Action{{
			Kind:         rules.ActionChangeColumn,
			ChangeColumn: &rules.ChangeColumnParams{ColumnID: "done"},
		}},
	}}
	src := newFake(ruleList, card("card-a", "todo", map[string]any{"active": true, "paid": false}))

	res, err := resolver(src).Resolve(context.Background(), []Update{
		{EntityID: "card-a", Patch: models.Patch{"status": map[string]any{"paid": true}}},
	}, "u-amy")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	cp := res.Patches["card-a"]
	if cp["columnId"] != "done" {
		t.Errorf("card patch = %v, want columnId done", cp)
	}
	// Status patch from the user edit must survive the merge.
	if st := field.AsMap(cp["status"]); st["paid"] != true {
		t.Errorf("status patch = %v", cp["status"])
	}

	pp := res.Patches["proj-1"]
	if pp == nil {
		t.Fatal("container mutation missing")
	}
	details := pp["columnDetails"].(map[string]any)
	if done := details["done"].(map[string]any)["cards"].([]string); len(done) != 1 || done[0] != "card-a" {
		t.Errorf("done column = %v", details["done"])
	}
	if todo := details["todo"].(map[string]any)["cards"].([]string); len(todo) != 0 {
		t.Errorf("todo column = %v, want card-a removed", todo)
	}
}

// --- column change fires a status rule, preserving unrelated flags ---

func TestResolve_ColumnChangeSetsStatusKeyWise(t *testing.T) {
	ruleList := []rules.Rule{{
		ID:      "rule-done-paid",
		Active:  true,
		Trigger: rules.Trigger{Category: rules.CategoryField, Field: "columnId", To: "done"},
		Actions: []rules.Action{{
			Kind:         rules.ActionChangeStatus,
			ChangeStatus: &rules.ChangeStatusParams{Status: map[string]bool{"paid": true}},
		}},
	}}
	src := newFake(ruleList, card("card-a", "todo", map[string]any{"active": true, "archived": false}))

	res, err := resolver(src).Resolve(context.Background(), []Update{
		{EntityID: "card-a", Patch: models.Patch{"columnId": "done"}},
	}, "u-amy")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	st := field.AsMap(res.Patches["card-a"]["status"])
	if st["paid"] != true {
		t.Errorf("status = %v, want paid true", st)
	}
	if _, ok := st["archived"]; ok {
		t.Errorf("patch must not carry unrelated flags wholesale: %v", st)
	}
}

// --- guard conditions ---

func TestResolve_GuardSkipsActionOnly(t *testing.T) {
	ruleList := []rules.Rule{{
		ID:      "rule-guarded",
		Active:  true,
		Trigger: rules.Trigger{Category: rules.CategoryField, Field: "columnId", To: "done"},
		Actions: []rules.Action{
			{
				Kind:         rules.ActionChangeStatus,
				Guard:        &rules.Condition{Field: "status.paid", Is: true},
				ChangeStatus: &rules.ChangeStatusParams{Status: map[string]bool{"archived": true}},
			},
			{
				Kind:         rules.ActionChangeStatus,
				ChangeStatus: &rules.ChangeStatusParams{Status: map[string]bool{"active": false}},
			},
		},
	}}
	src := newFake(ruleList, card("card-a", "todo", map[string]any{"active": true}))

	res, err := resolver(src).Resolve(context.Background(), []Update{
		{EntityID: "card-a", Patch: models.Patch{"columnId": "done"}},
	}, "u-amy")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	st := field.AsMap(res.Patches["card-a"]["status"])
	if _, ok := st["archived"]; ok {
		t.Error("guarded action should have been skipped")
	}
	if st["active"] != false {
		t.Error("sibling action should still run after a guard skip")
	}
}

// --- inactive rules ---

func TestResolve_InactiveRuleSkipped(t *testing.T) {
	ruleList := []rules.Rule{{
		ID:      "rule-off",
		Active:  false,
		Trigger: rules.Trigger{Category: rules.CategoryField, Field: "columnId", To: "done"},
		Actions: []rules.Action{{
			Kind:         rules.ActionChangeStatus,
			ChangeStatus: &rules.ChangeStatusParams{Status: map[string]bool{"paid": true}},
		}},
	}}
	src := newFake(ruleList, card("card-a", "todo", nil))

	res, err := resolver(src).Resolve(context.Background(), []Update{
		{EntityID: "card-a", Patch: models.Patch{"columnId": "done"}},
	}, "u-amy")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, ok := res.Patches["card-a"]["status"]; ok {
		t.Error("inactive rule must not fire")
	}
}

// --- idempotence ---

func TestResolve_IdempotentOnOwnOutput(t *testing.T) {
	ruleList := []rules.Rule{{
		ID:      "rule-done-paid",
		Active:  true,
		Trigger: rules.Trigger{Category: rules.CategoryField, Field: "columnId", To: "done"},
		Actions: []rules.Action{{
			Kind:         rules.ActionChangeStatus,
			ChangeStatus: &rules.ChangeStatusParams{Status: map[string]bool{"paid": true}},
		}},
	}}
	c := card("card-a", "todo", map[string]any{"active": true})
	src := newFake(ruleList, c)

	first, err := resolver(src).Resolve(context.Background(), []Update{
		{EntityID: "card-a", Patch: models.Patch{"columnId": "done"}},
	}, "u-amy")
	if err != nil {
		t.Fatalf("first Resolve: %v", err)
	}

	// Commit the merged result, then feed it back in unchanged.
	c.Fields = field.Merge(c.Fields, first.Patches["card-a"])
	second, err := resolver(src).Resolve(context.Background(), []Update{
		{EntityID: "card-a", Patch: first.Patches["card-a"]},
	}, "u-amy")
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	got := second.Patches["card-a"]
	for k := range got {
		if _, ok := first.Patches["card-a"][k]; !ok {
			t.Errorf("second pass added key %q: %v", k, got)
		}
	}
	if len(second.Patches) > len(first.Patches) {
		t.Errorf("second pass touched extra entities: %v", second.Patches)
	}
}

// --- cascade: cross-entity mutations re-enter evaluation ---

func TestResolve_CascadeClosesDescendantsViaRules(t *testing.T) {
	// Closing a card closes its immediate sub-cards; those closures
	// cascade one level further through the same rule.
	ruleList := []rules.Rule{{
		ID:      "rule-close-subs",
		Active:  true,
		Trigger: rules.Trigger{Category: rules.CategoryField, Field: "status.active", From: true, To: false},
		Actions: []rules.Action{{
			Kind:    rules.ActionCloseRelated,
			Related: &rules.RelatedCardsParams{Relation: rules.RelationImmediateSub},
		}},
	}}
	parent := card("card-p", "todo", map[string]any{"active": true})
	parent.ChildIDs = []string{"card-c"}
	child := card("card-c", "todo", map[string]any{"active": true})
	child.ParentID = "card-p"
	child.ChildIDs = []string{"card-g"}
	grand := card("card-g", "todo", map[string]any{"active": true})
	grand.ParentID = "card-c"

	src := newFake(ruleList, parent, child, grand)
	res, err := resolver(src).Resolve(context.Background(), []Update{
		{EntityID: "card-p", Patch: models.Patch{"status": map[string]any{"active": false}}},
	}, "u-amy")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	for _, id := range []string{"card-c", "card-g"} {
		st := field.AsMap(res.Patches[id]["status"])
		if st == nil || st["active"] != false {
			t.Errorf("%s not closed by cascade: %v", id, res.Patches[id])
		}
	}
}

// --- several cards moving columns in one pass ---

func TestResolve_MultipleMovesKeepColumnMembership(t *testing.T) {
	// Closing a parent closes its immediate sub-cards, and every closed
	// card moves to done. The merged container mutation must list all
	// three cards in done and none in todo; each move has to build on
	// the membership the previous moves produced, not the stored lists.
	ruleList := []rules.Rule{
		{
			ID:      "rule-close-subs",
			Active:  true,
			Trigger: rules.Trigger{Category: rules.CategoryField, Field: "status.active", From: true, To: false},
			Actions: []rules.Action{{
				Kind:    rules.ActionCloseRelated,
				Related: &rules.RelatedCardsParams{Relation: rules.RelationImmediateSub},
			}},
		},
		{
			ID:      "rule-closed-done",
			Active:  true,
			Trigger: rules.Trigger{Category: rules.CategoryField, Field: "status.active", To: false},
			Actions: []rules.Action{{
				Kind:         rules.ActionChangeColumn,
				ChangeColumn: &rules.ChangeColumnParams{ColumnID: "done"},
			}},
		},
	}
	parent := card("card-p", "todo", map[string]any{"active": true})
	parent.ChildIDs = []string{"card-c1", "card-c2"}
	c1 := card("card-c1", "todo", map[string]any{"active": true})
	c1.ParentID = "card-p"
	c2 := card("card-c2", "todo", map[string]any{"active": true})
	c2.ParentID = "card-p"

	src := newFake(ruleList, parent, c1, c2)
	src.containers["proj-1"].ColumnDetails["todo"] = rules.Column{
		ID: "todo", Name: "To Do", Cards: []string{"card-p", "card-c1", "card-c2"},
	}

	res, err := resolver(src).Resolve(context.Background(), []Update{
		{EntityID: "card-p", Patch: models.Patch{"status": map[string]any{"active": false}}},
	}, "u-amy")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	for _, id := range []string{"card-p", "card-c1", "card-c2"} {
		if res.Patches[id]["columnId"] != "done" {
			t.Errorf("%s patch = %v, want columnId done", id, res.Patches[id])
		}
	}

	details := res.Patches["proj-1"]["columnDetails"].(map[string]any)
	done := details["done"].(map[string]any)["cards"].([]string)
	if len(done) != 3 {
		t.Fatalf("done column = %v, want all three moved cards", done)
	}
	seen := map[string]bool{}
	for _, id := range done {
		seen[id] = true
	}
	for _, id := range []string{"card-p", "card-c1", "card-c2"} {
		if !seen[id] {
			t.Errorf("done column = %v, missing %s", done, id)
		}
	}
	if todo := details["todo"].(map[string]any)["cards"].([]string); len(todo) != 0 {
		t.Errorf("todo column = %v, want empty", todo)
	}
}

// --- scheduled ticks run only the named rule ---

func TestResolve_RuleIDRestrictsScheduledTick(t *testing.T) {
	ruleList := []rules.Rule{
		{
			ID:       "rule-proj-tick",
			Active:   true,
			Schedule: "*/5 * * * *",
			Trigger:  rules.Trigger{Category: rules.CategoryRoot, Event: rules.EventScheduled},
			Actions: []rules.Action{{
				Kind:         rules.ActionChangeStatus,
				ChangeStatus: &rules.ChangeStatusParams{Status: map[string]bool{"projTicked": true}},
			}},
		},
		// Inherited from the circle: same event, its own cron time.
		{
			ID:       "rule-circle-tick",
			Active:   true,
			Schedule: "0 0 * * *",
			Trigger:  rules.Trigger{Category: rules.CategoryRoot, Event: rules.EventScheduled},
			Actions: []rules.Action{{
				Kind:         rules.ActionChangeStatus,
				ChangeStatus: &rules.ChangeStatusParams{Status: map[string]bool{"circleTicked": true}},
			}},
		},
	}
	src := newFake(ruleList)

	res, err := resolver(src).Resolve(context.Background(), []Update{
		{EntityID: "proj-1", Event: rules.EventScheduled, RuleID: "rule-proj-tick"},
	}, "scheduler")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	st := field.AsMap(res.Patches["proj-1"]["status"])
	if st["projTicked"] != true {
		t.Errorf("proj patch = %v, want projTicked", res.Patches["proj-1"])
	}
	if _, ok := st["circleTicked"]; ok {
		t.Errorf("proj patch = %v, inherited tick must not fire on the project's cron time", res.Patches["proj-1"])
	}
}

// --- cascade bound ---

func TestResolve_CascadeDepthBound(t *testing.T) {
	// A chain of parent→child close rules longer than the depth bound.
	ruleList := []rules.Rule{{
		ID:      "rule-close-subs",
		Active:  true,
		Trigger: rules.Trigger{Category: rules.CategoryField, Field: "status.active", To: false},
		Actions: []rules.Action{{
			Kind:    rules.ActionCloseRelated,
			Related: &rules.RelatedCardsParams{Relation: rules.RelationImmediateSub},
		}},
	}}
	var snaps []*models.Snapshot
	for i := 0; i < 6; i++ {
		c := card(fmt.Sprintf("card-%d", i), "todo", map[string]any{"active": true})
		if i > 0 {
			c.ParentID = fmt.Sprintf("card-%d", i-1)
		}
		if i < 5 {
			c.ChildIDs = []string{fmt.Sprintf("card-%d", i+1)}
		}
		snaps = append(snaps, c)
	}
	src := newFake(ruleList, snaps...)

	r := resolver(src)
	r.MaxDepth = 2
	res, err := r.Resolve(context.Background(), []Update{
		{EntityID: "card-0", Patch: models.Patch{"status": map[string]any{"active": false}}},
	}, "u-amy")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(res.Warnings) == 0 {
		t.Error("expected a cascade-limit warning")
	}
	// The original edit survives.
	if st := field.AsMap(res.Patches["card-0"]["status"]); st["active"] != false {
		t.Error("original update must still commit")
	}
	// Depth 0 evaluates card-0, depth 1 card-1, depth 2 card-2. The
	// closure of card-3 is still queued when the bound trips, so it is
	// dropped along with everything past it.
	if _, ok := res.Patches["card-2"]; !ok {
		t.Error("card-2 should have been closed within the bound")
	}
	for _, id := range []string{"card-3", "card-4", "card-5"} {
		if _, ok := res.Patches[id]; ok {
			t.Errorf("%s beyond the depth bound should have been dropped", id)
		}
	}
}

// --- cyclical rule graphs terminate ---

func TestResolve_CyclicalCascadeTerminates(t *testing.T) {
	// a closes b, b closes c, c closes a (parent relation wraps around).
	ruleList := []rules.Rule{{
		ID:      "rule-close-parent",
		Active:  true,
		Trigger: rules.Trigger{Category: rules.CategoryField, Field: "status.active", To: false},
		Actions: []rules.Action{{
			Kind:    rules.ActionCloseRelated,
			Related: &rules.RelatedCardsParams{Relation: rules.RelationParentCard},
		}},
	}}
	a := card("card-a", "todo", map[string]any{"active": true})
	a.ParentID = "card-b"
	b := card("card-b", "todo", map[string]any{"active": true})
	b.ParentID = "card-c"
	cc := card("card-c", "todo", map[string]any{"active": true})
	cc.ParentID = "card-a"

	src := newFake(ruleList, a, b, cc)
	res, err := resolver(src).Resolve(context.Background(), []Update{
		{EntityID: "card-a", Patch: models.Patch{"status": map[string]any{"active": false}}},
	}, "u-amy")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	// All three end up closed exactly once; the pass terminates.
	for _, id := range []string{"card-a", "card-b", "card-c"} {
		st := field.AsMap(res.Patches[id]["status"])
		if st == nil || st["active"] != false {
			t.Errorf("%s = %v", id, res.Patches[id])
		}
	}
}

// --- created cards re-enter evaluation with the created event ---

func TestResolve_CreatedCardTriggersRootRule(t *testing.T) {
	ruleList := []rules.Rule{
		{
			ID:      "rule-spawn",
			Active:  true,
			Trigger: rules.Trigger{Category: rules.CategoryField, Field: "columnId", To: "done"},
			Actions: []rules.Action{{
				Kind:       rules.ActionCreateCard,
				CreateCard: &rules.CreateCardParams{Title: "follow-up"},
			}},
		},
		{
			ID:      "rule-greet",
			Active:  true,
			Trigger: rules.Trigger{Category: rules.CategoryRoot, Event: rules.EventCardCreated},
			Actions: []rules.Action{{
				Kind:         rules.ActionChangeStatus,
				ChangeStatus: &rules.ChangeStatusParams{Status: map[string]bool{"fresh": true}},
			}},
		},
	}
	src := newFake(ruleList, card("card-a", "todo", nil))

	res, err := resolver(src).Resolve(context.Background(), []Update{
		{EntityID: "card-a", Patch: models.Patch{"columnId": "done"}},
	}, "u-amy")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !res.Creates["card-new1"] {
		t.Fatalf("created card missing: %v", res.Creates)
	}
	st := field.AsMap(res.Patches["card-new1"]["status"])
	if st["fresh"] != true {
		t.Errorf("root rule did not fire for created card: %v", res.Patches["card-new1"])
	}
	kids := res.Patches["card-a"]["children"].([]string)
	if len(kids) != 1 || kids[0] != "card-new1" {
		t.Errorf("parent children = %v", kids)
	}
}

// --- rule evaluation errors are local ---

func TestResolve_BadActionDoesNotAbortPass(t *testing.T) {
	ruleList := []rules.Rule{{
		ID:      "rule-mixed",
		Active:  true,
		Trigger: rules.Trigger{Category: rules.CategoryField, Field: "columnId", To: "done"},
		Actions: []rules.Action{
			{Kind: rules.ActionChangeColumn, ChangeColumn: &rules.ChangeColumnParams{ColumnID: "no-such-column"}},
			{Kind: rules.ActionChangeStatus, ChangeStatus: &rules.ChangeStatusParams{Status: map[string]bool{"paid": true}}},
		},
	}}
	src := newFake(ruleList, card("card-a", "todo", nil))

	res, err := resolver(src).Resolve(context.Background(), []Update{
		{EntityID: "card-a", Patch: models.Patch{"columnId": "done"}},
	}, "u-amy")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	st := field.AsMap(res.Patches["card-a"]["status"])
	if st["paid"] != true {
		t.Error("sibling action should run after a failed action")
	}
}
