// Package actions executes the effects of fired automation rules. Each
// action kind is a pure function from the entity's post-update state and
// the action's parameters to partial mutations; nothing here writes to
// storage or performs I/O.
package actions

import (
	"context"
	"errors"
	"fmt"

	"github.com/spindlehq/spindle/internal/models"
	"github.com/spindlehq/spindle/internal/rules"
)

// ErrUnknownKind marks an unrecognized action kind. Callers log and skip
// rather than failing the pass.
var ErrUnknownKind = errors.New("actions: unknown action kind")

// Source resolves entity snapshots for cross-entity actions.
type Source interface {
	Get(ctx context.Context, id string) (*models.Snapshot, error)
}

// Mutation is one partial write an action wants applied. Create marks
// entities that do not exist yet and must be inserted rather than
// updated. Event tags mutations that should re-enter rule evaluation
// with a root event (e.g. a freshly created card).
type Mutation struct {
	EntityID string
	Kind     models.EntityKind
	Patch    models.Patch
	Create   bool
	Event    string
}

// WebhookCall is an outbound HTTP post queued by a callWebhook action.
type WebhookCall struct {
	URL     string
	Payload map[string]any
}

// Effect is a side effect queued for delivery after the pass commits.
// Exactly one field is set.
type Effect struct {
	Notification *models.Notification
	Webhook      *WebhookCall
}

// Env carries the execution environment for one action dispatch.
type Env struct {
	Ctx       context.Context
	Source    Source
	Container *rules.Container
	Caller    string
	// NewID mints ids for created entities. Injectable for tests.
	NewID func() (string, error)
	// Pending returns the pass's accumulated patch for an entity, nil
	// when nothing is queued. Column membership must be computed against
	// pending container state so moves earlier in the pass are visible.
	Pending func(id string) models.Patch
}

// Dispatch executes one action against the entity's post-update state and
// returns the mutations and side effects it produces. Errors are local to
// the action: callers log them and continue with sibling actions.
func Dispatch(env Env, a rules.Action, snap *models.Snapshot, next map[string]any) ([]Mutation, []Effect, error) {
	switch a.Kind {
	case rules.ActionChangeColumn:
		return changeColumn(env, a.ChangeColumn, snap, next)
	case rules.ActionChangeStatus:
		return changeStatus(a.ChangeStatus, snap)
	case rules.ActionCreateCard:
		return createCards(env, []rules.CreateCardParams{*a.CreateCard}, snap)
	case rules.ActionCreateCards:
		return createCards(env, a.CreateCards.Items, snap)
	case rules.ActionCloseRelated:
		return setRelatedActive(env, a.Related.Relation, snap, false)
	case rules.ActionOpenRelated:
		return setRelatedActive(env, a.Related.Relation, snap, true)
	case rules.ActionSendNotification:
		return sendNotification(env, a.Notification, snap, next)
	case rules.ActionCallWebhook:
		return callWebhook(a.Webhook, snap, next)
	case rules.ActionGiveKudos:
		return giveKudos(a.Kudos, snap, next)
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownKind, a.Kind)
	}
}

// changeColumn moves the card to the target column at the requested index
// (default: head). It mutates both the card (new column id) and the
// container (membership lists of the old and new columns).
func changeColumn(env Env, p *rules.ChangeColumnParams, snap *models.Snapshot, next map[string]any) ([]Mutation, []Effect, error) {
	cont := env.Container
	if cont == nil {
		return nil, nil, fmt.Errorf("actions: changeColumn: no container for %s", snap.ID)
	}
	cols := effectiveColumns(env, cont)
	target, ok := cols[p.ColumnID]
	if !ok {
		return nil, nil, fmt.Errorf("actions: changeColumn: column %q not found in %s", p.ColumnID, cont.ID)
	}

	fromID, _ := next["columnId"].(string)
	if fromID == p.ColumnID {
		return nil, nil, nil
	}

	details := make(map[string]any, 2)
	if from, ok := cols[fromID]; ok {
		details[fromID] = columnPatch(from, removeString(from.Cards, snap.ID))
	}
	details[p.ColumnID] = columnPatch(target, insertString(removeString(target.Cards, snap.ID), snap.ID, p.Index))

	muts := []Mutation{
		{EntityID: snap.ID, Kind: snap.Kind, Patch: models.Patch{"columnId": p.ColumnID}},
		{EntityID: cont.ID, Kind: models.KindProject, Patch: models.Patch{"columnDetails": details}},
	}
	return muts, nil, nil
}

// changeStatus merges the given flags into the card's status map. The
// resulting patch carries only the named flags; key-wise accumulator
// merging preserves everything else.
func changeStatus(p *rules.ChangeStatusParams, snap *models.Snapshot) ([]Mutation, []Effect, error) {
	status := make(map[string]any, len(p.Status))
	for k, v := range p.Status {
		status[k] = v
	}
	m := Mutation{EntityID: snap.ID, Kind: snap.Kind, Patch: models.Patch{"status": status}}
	return []Mutation{m}, nil, nil
}

// createCards synthesizes child cards parented to the triggering card,
// inheriting the container's reward defaults, and appends their ids to
// the parent's children list and the target column's membership.
func createCards(env Env, items []rules.CreateCardParams, snap *models.Snapshot) ([]Mutation, []Effect, error) {
	cont := env.Container
	if cont == nil {
		return nil, nil, fmt.Errorf("actions: createCard: no container for %s", snap.ID)
	}
	if env.NewID == nil {
		return nil, nil, fmt.Errorf("actions: createCard: no id generator configured")
	}

	children := append([]string(nil), snap.ChildIDs...)
	cols := effectiveColumns(env, cont)
	details := make(map[string]any)
	var muts []Mutation

	for _, item := range items {
		id, err := env.NewID()
		if err != nil {
			return nil, nil, fmt.Errorf("actions: createCard: %w", err)
		}

		columnID := item.ColumnID
		if columnID == "" && len(cont.ColumnOrder) > 0 {
			columnID = cont.ColumnOrder[0]
		}

		fields := models.Patch{
			"title":     item.Title,
			"type":      defaultString(item.Type, "task"),
			"columnId":  columnID,
			"parentId":  snap.ID,
			"projectId": cont.ID,
			"creator":   env.Caller,
			"status":    map[string]any{"active": true},
		}
		if cont.DefaultReward != nil {
			fields["reward"] = *cont.DefaultReward
		}
		for k, v := range item.Template {
			fields[k] = v
		}

		muts = append(muts, Mutation{
			EntityID: id,
			Kind:     models.KindCard,
			Patch:    fields,
			Create:   true,
			Event:    rules.EventCardCreated,
		})
		children = append(children, id)

		if col, ok := cols[columnID]; ok {
			cards := col.Cards
			if prev, ok := details[columnID]; ok {
				if pm, ok := prev.(map[string]any); ok {
					if cs, ok := pm["cards"].([]string); ok {
						cards = cs
					}
				}
			}
			details[columnID] = columnPatch(col, insertString(cards, id, 0))
		}
	}

	muts = append(muts, Mutation{
		EntityID: snap.ID,
		Kind:     snap.Kind,
		Patch:    models.Patch{"children": children},
	})
	if len(details) > 0 {
		muts = append(muts, Mutation{
			EntityID: cont.ID,
			Kind:     models.KindProject,
			Patch:    models.Patch{"columnDetails": details},
		})
	}
	return muts, nil, nil
}

// setRelatedActive emits one status mutation per related card. The
// triggering card itself is never touched.
func setRelatedActive(env Env, rel rules.Relation, snap *models.Snapshot, active bool) ([]Mutation, []Effect, error) {
	ids, err := relatedIDs(env, rel, snap)
	if err != nil {
		return nil, nil, err
	}
	muts := make([]Mutation, 0, len(ids))
	for _, id := range ids {
		muts = append(muts, Mutation{
			EntityID: id,
			Kind:     models.KindCard,
			Patch:    models.Patch{"status": map[string]any{"active": active}},
		})
	}
	return muts, nil, nil
}

// sendNotification queues one in-app notification per resolved recipient.
func sendNotification(env Env, p *rules.SendNotificationParams, snap *models.Snapshot, next map[string]any) ([]Mutation, []Effect, error) {
	recipients := resolveMembers(p.Recipients, next)
	if len(recipients) == 0 {
		return nil, nil, fmt.Errorf("actions: sendNotification: no recipients resolved for %s", snap.ID)
	}
	effects := make([]Effect, 0, len(recipients))
	for _, r := range recipients {
		effects = append(effects, Effect{Notification: &models.Notification{
			Actor:      env.Caller,
			Recipient:  r,
			Content:    p.Content,
			EntityID:   snap.ID,
			EntityType: string(snap.Kind),
		}})
	}
	return nil, effects, nil
}

// callWebhook queues a fire-and-forget HTTP post carrying the entity's
// post-update state.
func callWebhook(p *rules.CallWebhookParams, snap *models.Snapshot, next map[string]any) ([]Mutation, []Effect, error) {
	payload := map[string]any{
		"entityId":   snap.ID,
		"entityType": string(snap.Kind),
		"fields":     next,
	}
	return nil, []Effect{{Webhook: &WebhookCall{URL: p.URL, Payload: payload}}}, nil
}

// giveKudos merges claimable kudos entries into the card's kudosMinted
// map, one key per resolved recipient.
func giveKudos(p *rules.GiveKudosParams, snap *models.Snapshot, next map[string]any) ([]Mutation, []Effect, error) {
	recipients := resolveMembers(p.For, next)
	if len(recipients) == 0 {
		return nil, nil, fmt.Errorf("actions: giveKudos: no recipients resolved for %s", snap.ID)
	}
	minted := make(map[string]any, len(recipients))
	for _, r := range recipients {
		minted[r] = p.TokenID
	}
	m := Mutation{EntityID: snap.ID, Kind: snap.Kind, Patch: models.Patch{"kudosMinted": minted}}
	return []Mutation{m}, nil, nil
}

// resolveMembers expands the assignee/reviewer placeholders against the
// entity's post-update state and deduplicates the result.
func resolveMembers(names []string, next map[string]any) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, n := range names {
		switch n {
		case "assignee", "reviewer":
			for _, id := range stringListOf(next[n]) {
				add(id)
			}
		default:
			add(n)
		}
	}
	return out
}

func stringListOf(v any) []string {
	switch x := v.(type) {
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// effectiveColumns overlays the container's pending columnDetails patch
// on its stored columns. Several cards can move within one pass; each
// move must see the membership lists the previous moves produced, or
// the per-column card lists overwrite each other at commit.
func effectiveColumns(env Env, cont *rules.Container) map[string]rules.Column {
	if env.Pending == nil {
		return cont.ColumnDetails
	}
	patch, _ := env.Pending(cont.ID)["columnDetails"].(map[string]any)
	if len(patch) == 0 {
		return cont.ColumnDetails
	}
	out := make(map[string]rules.Column, len(cont.ColumnDetails))
	for id, col := range cont.ColumnDetails {
		out[id] = col
	}
	for id, v := range patch {
		m, ok := v.(map[string]any)
		if !ok {
			continue
		}
		col := out[id]
		col.ID = id
		if name, ok := m["name"].(string); ok && name != "" {
			col.Name = name
		}
		if cards, ok := m["cards"]; ok {
			col.Cards = stringListOf(cards)
		}
		out[id] = col
	}
	return out
}

// columnPatch rebuilds a column's JSON shape with a new card list.
func columnPatch(col rules.Column, cards []string) map[string]any {
	return map[string]any{"id": col.ID, "name": col.Name, "cards": cards}
}

func removeString(list []string, s string) []string {
	out := make([]string, 0, len(list))
	for _, e := range list {
		if e != s {
			out = append(out, e)
		}
	}
	return out
}

func insertString(list []string, s string, at int) []string {
	if at < 0 || at > len(list) {
		at = len(list)
	}
	out := make([]string, 0, len(list)+1)
	out = append(out, list[:at]...)
	out = append(out, s)
	out = append(out, list[at:]...)
	return out
}

func defaultString(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
