package models

import "time"

// Card is a kanban work item inside a project.
type Card struct {
	ID          string  `gorm:"primaryKey;size:32"`
	ProjectID   string  `gorm:"size:32;index;not null"`
	CircleID    string  `gorm:"size:32;index"`
	Title       string  `gorm:"not null"`
	Description string  `gorm:"type:text"`
	Type        string  `gorm:"size:16;default:task"`
	ColumnID    string  `gorm:"size:32;index"`
	Priority    int     `gorm:"default:0"`
	Creator     string  `gorm:"size:64"`
	ParentID    *string `gorm:"size:32"`
	Deadline    *time.Time
	// Assignee and Reviewer are JSON arrays of member ids.
	Assignee string `gorm:"type:json"`
	Reviewer string `gorm:"type:json"`
	// Labels is a JSON array of select options.
	Labels string `gorm:"type:json"`
	// Status is a JSON object of boolean flags (active, paid, archived).
	Status string `gorm:"type:json"`
	// Reward is the JSON-encoded token payment for this card.
	Reward string `gorm:"type:json"`
	// KudosMinted is a JSON object mapping kudos token id → claim state.
	KudosMinted string `gorm:"type:json"`
	// ChildIDs is a JSON array of sub-card ids in creation order.
	ChildIDs  string `gorm:"type:json"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Parent   *Card  `gorm:"foreignKey:ParentID"`
	Children []Card `gorm:"foreignKey:ParentID"`
}

// Collection is a form-like container of rows with a user-defined schema.
type Collection struct {
	ID          string `gorm:"primaryKey;size:32"`
	CircleID    string `gorm:"size:32;index;not null"`
	Name        string `gorm:"not null"`
	Slug        string `gorm:"size:64;index"`
	Description string `gorm:"type:text"`
	// Properties is a JSON object mapping property name → field type.
	Properties string `gorm:"type:json"`
	// PropertyOrder is a JSON array of property names in display order.
	PropertyOrder string `gorm:"type:json"`
	// Rules is the JSON-encoded ordered automation list for this collection.
	Rules     string `gorm:"type:json"`
	Archived  bool   `gorm:"default:false"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Rows []CollectionRow `gorm:"foreignKey:CollectionID"`
}

// CollectionRow is one submitted row of a collection.
type CollectionRow struct {
	ID           string `gorm:"primaryKey;size:32"`
	CollectionID string `gorm:"size:32;index;not null"`
	Submitter    string `gorm:"size:64"`
	// Data is the JSON object of property values keyed by property name.
	Data      string `gorm:"type:json"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Notification is one entry in a member's in-app notification feed.
type Notification struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	Actor      string `gorm:"size:64"`
	Recipient  string `gorm:"size:64;index"`
	Content    string `gorm:"type:text"`
	EntityID   string `gorm:"size:32;index"`
	EntityType string `gorm:"size:16"`
	Read       bool   `gorm:"default:false"`
	CreatedAt  time.Time
}
