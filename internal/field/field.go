// Package field defines the typed field model shared by cards, collection
// rows, and containers, plus type-aware equality and diffing over them.
package field

// Type identifies how a field's values are compared and diffed.
type Type string

const (
	ShortText    Type = "shortText"
	LongText     Type = "longText"
	Number       Type = "number"
	Date         Type = "date"
	Email        Type = "email"
	SingleURL    Type = "singleURL"
	Slider       Type = "slider"
	User         Type = "user"
	UserList     Type = "user[]"
	SingleSelect Type = "singleSelect"
	MultiSelect  Type = "multiSelect"
	MultiURL     Type = "multiURL"
	Reward       Type = "reward"
	StatusMap    Type = "status"
	KudosMap     Type = "kudos"
)

// Option is one choice of a select field. Options are compared by the
// stable Value key, never by the display Label.
type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// RewardValue is a token payment attached to a card.
type RewardValue struct {
	ChainID      string  `json:"chainId"`
	TokenAddress string  `json:"tokenAddress"`
	Amount       float64 `json:"value"`
}

// Schema maps field names to their types for one entity.
type Schema map[string]Type

// CardSchema is the fixed schema shared by every kanban card.
func CardSchema() Schema {
	return Schema{
		"title":       ShortText,
		"description": LongText,
		"columnId":    ShortText,
		"priority":    Number,
		"deadline":    Date,
		"assignee":    UserList,
		"reviewer":    UserList,
		"labels":      MultiSelect,
		"status":      StatusMap,
		"reward":      Reward,
		"kudosMinted": KudosMap,
	}
}
