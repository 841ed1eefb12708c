// Package rules defines user-authored automations: triggers, guard
// conditions, the tagged-union action model, and trigger matching.
package rules

import (
	"fmt"

	"github.com/spindlehq/spindle/internal/field"
)

// TriggerCategory separates field-transition triggers from container-level
// event triggers.
type TriggerCategory string

const (
	// CategoryField fires when a named field transitions between values.
	CategoryField TriggerCategory = "field"
	// CategoryRoot fires on a container-level event tag, not a field diff.
	CategoryRoot TriggerCategory = "root"
)

// Event tags carried alongside an update for root triggers.
const (
	EventCardCreated   = "cardCreated"
	EventColumnCreated = "columnCreated"
	EventRowCreated    = "rowCreated"
	EventScheduled     = "scheduled"
)

// Trigger is the condition that activates a rule.
type Trigger struct {
	Category TriggerCategory `json:"category"`
	// Field names the watched field for CategoryField triggers.
	Field string `json:"field,omitempty"`
	// From is the required prior value; nil matches any prior value.
	From any `json:"from,omitempty"`
	// To is the required new value. Required for field triggers.
	To any `json:"to,omitempty"`
	// Event is the event tag for CategoryRoot triggers.
	Event string `json:"event,omitempty"`
}

// Condition is an extra guard attached to a single action, evaluated
// against the post-update entity state.
type Condition struct {
	Field string `json:"field"`
	Is    any    `json:"is"`
}

// Rule is one automation: a trigger plus an ordered action list, scoped
// to the container that owns it. Rule order within the container is the
// tie-break when two rules write the same field in one pass.
type Rule struct {
	ID      string   `json:"id"`
	Name    string   `json:"name,omitempty"`
	Active  bool     `json:"active"`
	Trigger Trigger  `json:"trigger"`
	Actions []Action `json:"actions"`
	// Schedule is an optional 5-field cron expression; only meaningful
	// for root rules with the scheduled event tag.
	Schedule string `json:"schedule,omitempty"`
}

// Validate checks a rule definition on write. Evaluation-time problems
// (a field trigger naming a field the entity lacks) are tolerated as
// non-matches instead, per the container contract.
func (r Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("rules: rule id is required")
	}
	switch r.Trigger.Category {
	case CategoryField:
		if r.Trigger.Field == "" {
			return fmt.Errorf("rules: rule %s: field trigger requires a field name", r.ID)
		}
		if r.Trigger.To == nil {
			return fmt.Errorf("rules: rule %s: field trigger requires a to value", r.ID)
		}
	case CategoryRoot:
		if r.Trigger.Event == "" {
			return fmt.Errorf("rules: rule %s: root trigger requires an event", r.ID)
		}
	default:
		return fmt.Errorf("rules: rule %s: unknown trigger category %q", r.ID, r.Trigger.Category)
	}
	if len(r.Actions) == 0 {
		return fmt.Errorf("rules: rule %s: at least one action is required", r.ID)
	}
	for i, a := range r.Actions {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("rules: rule %s: action %d: %w", r.ID, i, err)
		}
	}
	return nil
}

// Column is one kanban column: a name plus the ordered card id list.
type Column struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Cards []string `json:"cards"`
}

// ContainerType identifies the kind of container a rule set belongs to.
type ContainerType string

const (
	ContainerCircle     ContainerType = "circle"
	ContainerProject    ContainerType = "project"
	ContainerCollection ContainerType = "collection"
)

// Container is the in-memory view of a circle, project, or collection as
// the automation engine sees it: its ordered rule list plus the ordering
// structures actions manipulate.
type Container struct {
	ID            string
	Type          ContainerType
	Rules         []Rule
	ColumnOrder   []string
	ColumnDetails map[string]Column
	DefaultReward *field.RewardValue
	// ParentCircleID points at the owning circle for projects and
	// collections, so inherited circle rules can be resolved.
	ParentCircleID string
}
