package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/spindlehq/spindle/internal/models"
	"github.com/spindlehq/spindle/internal/rules"
	"gorm.io/gorm"
)

// ErrInvalidRule marks a rule that failed validation on write. Callers
// match it with errors.Is to distinguish bad input from storage errors.
var ErrInvalidRule = errors.New("store: invalid rule")

// OwnRules returns a container's own ordered rule list, without
// inherited circle rules.
func (s *Store) OwnRules(ctx context.Context, id string) ([]rules.Rule, error) {
	_, raw, err := s.findContainerRow(ctx, id)
	if err != nil {
		return nil, err
	}
	return decodeRules(raw), nil
}

// SaveRules replaces a container's rule list. Order is significant: it is
// the tie-break when several rules write the same field in one pass.
func (s *Store) SaveRules(ctx context.Context, id string, rs []rules.Rule) error {
	for i, r := range rs {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("%w: rules[%d]: %v", ErrInvalidRule, i, err)
		}
	}
	model, _, err := s.findContainerRow(ctx, id)
	if err != nil {
		return err
	}
	encoded := encodeJSON(rs)
	if rs == nil {
		encoded = "[]"
	}
	if err := s.db.WithContext(ctx).Model(model).Where("id = ?", id).Update("rules", encoded).Error; err != nil {
		return fmt.Errorf("store: save rules for %s: %w", id, err)
	}
	return nil
}

// findContainerRow locates the table a container id lives in and returns
// the model for updates plus the raw rules column.
func (s *Store) findContainerRow(ctx context.Context, id string) (any, string, error) {
	var proj models.Project
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&proj).Error
	if err == nil {
		return &models.Project{}, proj.Rules, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", fmt.Errorf("store: find project %s: %w", id, err)
	}

	var coll models.Collection
	err = s.db.WithContext(ctx).Where("id = ?", id).First(&coll).Error
	if err == nil {
		return &models.Collection{}, coll.Rules, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", fmt.Errorf("store: find collection %s: %w", id, err)
	}

	var circle models.Circle
	err = s.db.WithContext(ctx).Where("id = ?", id).First(&circle).Error
	if err == nil {
		return &models.Circle{}, circle.Rules, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", fmt.Errorf("%w: container %s", ErrNotFound, id)
	}
	return nil, "", fmt.Errorf("store: find circle %s: %w", id, err)
}
