package rules

import "fmt"

// ActionKind discriminates the action tagged union.
type ActionKind string

const (
	ActionChangeColumn     ActionKind = "changeColumn"
	ActionChangeStatus     ActionKind = "changeStatus"
	ActionCreateCard       ActionKind = "createCard"
	ActionCreateCards      ActionKind = "createCards"
	ActionCloseRelated     ActionKind = "closeRelatedCards"
	ActionOpenRelated      ActionKind = "openRelatedCards"
	ActionSendNotification ActionKind = "sendNotification"
	ActionCallWebhook      ActionKind = "callWebhook"
	ActionGiveKudos        ActionKind = "giveKudos"
)

// Relation selects which cards a close/open action targets, relative to
// the triggering card.
type Relation string

const (
	RelationSiblings     Relation = "siblings"
	RelationAllSubCards  Relation = "allSubCards"
	RelationImmediateSub Relation = "immediateSubCards"
	RelationParentCard   Relation = "parentCard"
)

// Action is one effect of a fired rule. Kind selects which parameter
// struct is populated; exactly one should be set.
type Action struct {
	Kind ActionKind `json:"kind"`
	// Guard, when set, is evaluated against the post-update entity state
	// and skips this action (log-only) on failure.
	Guard *Condition `json:"guard,omitempty"`

	ChangeColumn *ChangeColumnParams     `json:"changeColumn,omitempty"`
	ChangeStatus *ChangeStatusParams     `json:"changeStatus,omitempty"`
	CreateCard   *CreateCardParams       `json:"createCard,omitempty"`
	CreateCards  *CreateCardsParams      `json:"createCards,omitempty"`
	Related      *RelatedCardsParams     `json:"related,omitempty"`
	Notification *SendNotificationParams `json:"notification,omitempty"`
	Webhook      *CallWebhookParams      `json:"webhook,omitempty"`
	Kudos        *GiveKudosParams        `json:"kudos,omitempty"`
}

// ChangeColumnParams moves the card to a target column at an index in
// that column's ordered card list. Index 0 (the default) is the head.
type ChangeColumnParams struct {
	ColumnID string `json:"columnId"`
	Index    int    `json:"index,omitempty"`
}

// ChangeStatusParams merges the given flags into the card's status map
// without touching unspecified flags.
type ChangeStatusParams struct {
	Status map[string]bool `json:"status"`
}

// CreateCardParams synthesizes one child card parented to the triggering
// card, inheriting the container's reward defaults unless overridden.
type CreateCardParams struct {
	Title    string         `json:"title"`
	Type     string         `json:"type,omitempty"`
	ColumnID string         `json:"columnId,omitempty"`
	Template map[string]any `json:"template,omitempty"`
}

// CreateCardsParams synthesizes several child cards in order.
type CreateCardsParams struct {
	Items []CreateCardParams `json:"items"`
}

// RelatedCardsParams selects the card set a close/open action targets.
type RelatedCardsParams struct {
	Relation Relation `json:"relation"`
}

// SendNotificationParams posts to the in-app feed and, when configured,
// mirrors to the circle's Slack channel or Discord webhook.
type SendNotificationParams struct {
	Content string `json:"content"`
	// Recipients may be member ids or the placeholders "assignee" and
	// "reviewer", resolved from the triggering card.
	Recipients []string `json:"recipients"`
}

// CallWebhookParams posts the update payload to a user-supplied URL,
// fire-and-forget.
type CallWebhookParams struct {
	URL string `json:"url"`
}

// GiveKudosParams merges claimable kudos entries into the card's
// kudosMinted map for each recipient.
type GiveKudosParams struct {
	TokenID string `json:"tokenId"`
	// For may be member ids or the placeholders "assignee" and "reviewer".
	For []string `json:"for"`
}

// Validate checks that the action's kind is known and its parameter
// struct is populated.
func (a Action) Validate() error {
	switch a.Kind {
	case ActionChangeColumn:
		if a.ChangeColumn == nil || a.ChangeColumn.ColumnID == "" {
			return fmt.Errorf("changeColumn requires a target column id")
		}
	case ActionChangeStatus:
		if a.ChangeStatus == nil || len(a.ChangeStatus.Status) == 0 {
			return fmt.Errorf("changeStatus requires at least one status flag")
		}
	case ActionCreateCard:
		if a.CreateCard == nil || a.CreateCard.Title == "" {
			return fmt.Errorf("createCard requires a title")
		}
	case ActionCreateCards:
		if a.CreateCards == nil || len(a.CreateCards.Items) == 0 {
			return fmt.Errorf("createCards requires at least one item")
		}
		for i, item := range a.CreateCards.Items {
			if item.Title == "" {
				return fmt.Errorf("createCards item %d requires a title", i)
			}
		}
	case ActionCloseRelated, ActionOpenRelated:
		if a.Related == nil || a.Related.Relation == "" {
			return fmt.Errorf("%s requires a relation", a.Kind)
		}
		switch a.Related.Relation {
		case RelationSiblings, RelationAllSubCards, RelationImmediateSub, RelationParentCard:
		default:
			return fmt.Errorf("unknown relation %q", a.Related.Relation)
		}
	case ActionSendNotification:
		if a.Notification == nil || a.Notification.Content == "" {
			return fmt.Errorf("sendNotification requires content")
		}
	case ActionCallWebhook:
		if a.Webhook == nil || a.Webhook.URL == "" {
			return fmt.Errorf("callWebhook requires a url")
		}
	case ActionGiveKudos:
		if a.Kudos == nil || a.Kudos.TokenID == "" {
			return fmt.Errorf("giveKudos requires a token id")
		}
	default:
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}
	return nil
}
