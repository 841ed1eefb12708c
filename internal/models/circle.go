package models

import "time"

// Circle is the top-level tenant container. Projects and collections hang
// off a circle; the circle's rules apply to every entity beneath it.
type Circle struct {
	ID          string  `gorm:"primaryKey;size:32"`
	Name        string  `gorm:"not null"`
	Slug        string  `gorm:"size:64;uniqueIndex"`
	Description string  `gorm:"type:text"`
	ParentID    *string `gorm:"size:32"`
	Private     bool    `gorm:"default:false"`
	// Members is a JSON array of member ids.
	Members string `gorm:"type:json"`
	// Rules is the JSON-encoded ordered automation list for this circle.
	Rules string `gorm:"type:json"`
	// DefaultReward is JSON-encoded reward defaults inherited by new cards.
	DefaultReward string `gorm:"type:json"`
	CreatedAt     time.Time
	UpdatedAt     time.Time

	Parent   *Circle  `gorm:"foreignKey:ParentID"`
	Children []Circle `gorm:"foreignKey:ParentID"`
}

// Project is a kanban board inside a circle.
type Project struct {
	ID          string `gorm:"primaryKey;size:32"`
	CircleID    string `gorm:"size:32;index;not null"`
	Name        string `gorm:"not null"`
	Slug        string `gorm:"size:64;index"`
	Description string `gorm:"type:text"`
	// ColumnOrder is a JSON array of column ids in board order.
	ColumnOrder string `gorm:"type:json"`
	// ColumnDetails is a JSON object keyed by column id; each value holds
	// the column name and its ordered card id list.
	ColumnDetails string `gorm:"type:json"`
	// Rules is the JSON-encoded ordered automation list for this project.
	Rules     string `gorm:"type:json"`
	Archived  bool   `gorm:"default:false"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
