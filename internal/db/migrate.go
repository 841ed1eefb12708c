package db

import (
	"encoding/json"
	"fmt"

	"github.com/spindlehq/spindle/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AllModels returns the list of all GORM models for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Circle{},
		&models.Project{},
		&models.Card{},
		&models.Collection{},
		&models.CollectionRow{},
		&models.Notification{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// Seed upserts the starter circle and project so a fresh local install
// has somewhere to put cards. Existing rows are left alone.
func Seed(db *gorm.DB) error {
	members, err := marshalJSON([]string{})
	if err != nil {
		return fmt.Errorf("db: marshal members: %w", err)
	}
	circle := models.Circle{
		ID:      "circle-general",
		Name:    "General",
		Slug:    "general",
		Members: members,
	}
	result := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&circle)
	if result.Error != nil {
		return fmt.Errorf("db: seed circle: %w", result.Error)
	}

	order, err := marshalJSON([]string{"todo", "doing", "done"})
	if err != nil {
		return fmt.Errorf("db: marshal column order: %w", err)
	}
	details, err := marshalJSON(map[string]any{
		"todo":  map[string]any{"name": "To Do", "cards": []string{}},
		"doing": map[string]any{"name": "Doing", "cards": []string{}},
		"done":  map[string]any{"name": "Done", "cards": []string{}},
	})
	if err != nil {
		return fmt.Errorf("db: marshal column details: %w", err)
	}
	project := models.Project{
		ID:            "proj-main",
		CircleID:      circle.ID,
		Name:          "Main Board",
		Slug:          "main",
		ColumnOrder:   order,
		ColumnDetails: details,
	}
	result = db.Clauses(clause.OnConflict{DoNothing: true}).Create(&project)
	if result.Error != nil {
		return fmt.Errorf("db: seed project: %w", result.Error)
	}
	return nil
}

// marshalJSON marshals a value to a JSON string, returning empty string for nil.
func marshalJSON(v interface{}) (string, error) {
	if v == nil {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
