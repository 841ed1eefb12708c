package store

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spindlehq/spindle/internal/automation"
	"github.com/spindlehq/spindle/internal/field"
	"github.com/spindlehq/spindle/internal/models"
)

// CommitFailure records one entity whose write failed. The rest of the
// batch still commits.
type CommitFailure struct {
	EntityID string
	Err      error
}

// Commit persists a resolution result, one write per entity in
// first-touched order. Creates insert new rows; everything else updates
// only the columns the patch names. Failures are collected per entity
// rather than aborting the batch, since the surviving writes are still
// the correct outcome for their entities.
func (s *Store) Commit(ctx context.Context, res *automation.Result) []CommitFailure {
	var failures []CommitFailure
	for _, id := range res.Order {
		patch := res.Patches[id]
		if len(patch) == 0 {
			continue
		}
		var err error
		if res.Creates[id] {
			err = s.insertCard(ctx, id, patch)
		} else {
			switch res.Kinds[id] {
			case models.KindCollectionRow:
				err = s.updateRow(ctx, id, patch)
			case models.KindProject:
				err = s.updateProject(ctx, id, patch)
			case models.KindCircle:
				err = s.updateCircle(ctx, id, patch)
			default:
				err = s.updateCard(ctx, id, patch)
			}
		}
		if err != nil {
			log.Printf("store: commit %s: %v", id, err)
			failures = append(failures, CommitFailure{EntityID: id, Err: err})
		}
	}
	return failures
}

func (s *Store) insertCard(ctx context.Context, id string, patch models.Patch) error {
	card := models.Card{
		ID:          id,
		ProjectID:   asString(patch["projectId"]),
		Title:       asString(patch["title"]),
		Description: asString(patch["description"]),
		Type:        asString(patch["type"]),
		ColumnID:    asString(patch["columnId"]),
		Priority:    int(asFloat(patch["priority"])),
		Creator:     asString(patch["creator"]),
		Assignee:    encodeJSON(patch["assignee"]),
		Reviewer:    encodeJSON(patch["reviewer"]),
		Labels:      encodeJSON(patch["labels"]),
		Status:      encodeJSON(patch["status"]),
		Reward:      encodeJSON(patch["reward"]),
		KudosMinted: encodeJSON(patch["kudosMinted"]),
		ChildIDs:    encodeJSON(patch["children"]),
	}
	if p := asString(patch["parentId"]); p != "" {
		card.ParentID = &p
	}
	if d := parseDeadline(patch["deadline"]); d != nil {
		card.Deadline = d
	}
	if card.ProjectID != "" {
		var proj models.Project
		if err := s.db.WithContext(ctx).Select("circle_id").Where("id = ?", card.ProjectID).First(&proj).Error; err == nil {
			card.CircleID = proj.CircleID
		}
	}
	if err := s.db.WithContext(ctx).Create(&card).Error; err != nil {
		return fmt.Errorf("insert card: %w", err)
	}
	return nil
}

func (s *Store) updateCard(ctx context.Context, id string, patch models.Patch) error {
	var card models.Card
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&card).Error; err != nil {
		return fmt.Errorf("load card: %w", err)
	}

	cols := map[string]any{}
	for key, val := range patch {
		switch key {
		case "title":
			cols["title"] = asString(val)
		case "description":
			cols["description"] = asString(val)
		case "type":
			cols["type"] = asString(val)
		case "columnId":
			cols["column_id"] = asString(val)
		case "priority":
			cols["priority"] = int(asFloat(val))
		case "deadline":
			cols["deadline"] = parseDeadline(val)
		case "assignee":
			cols["assignee"] = encodeJSON(val)
		case "reviewer":
			cols["reviewer"] = encodeJSON(val)
		case "labels":
			cols["labels"] = encodeJSON(val)
		case "status":
			// Flag maps merge key-wise against the stored row so a patch
			// naming one flag never erases the others.
			cols["status"] = encodeJSON(mergeInto(decodeAnyMap(card.Status), val))
		case "kudosMinted":
			cols["kudos_minted"] = encodeJSON(mergeInto(decodeAnyMap(card.KudosMinted), val))
		case "reward":
			cols["reward"] = encodeJSON(val)
		case "children":
			cols["child_ids"] = encodeJSON(val)
		}
	}
	if len(cols) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Model(&models.Card{}).Where("id = ?", id).Updates(cols).Error; err != nil {
		return fmt.Errorf("update card: %w", err)
	}
	return nil
}

func (s *Store) updateRow(ctx context.Context, id string, patch models.Patch) error {
	var row models.CollectionRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return fmt.Errorf("load row: %w", err)
	}
	merged := field.Merge(decodeAnyMap(row.Data), patch)
	err := s.db.WithContext(ctx).Model(&models.CollectionRow{}).
		Where("id = ?", id).Update("data", encodeJSON(merged)).Error
	if err != nil {
		return fmt.Errorf("update row: %w", err)
	}
	return nil
}

func (s *Store) updateProject(ctx context.Context, id string, patch models.Patch) error {
	var proj models.Project
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&proj).Error; err != nil {
		return fmt.Errorf("load project: %w", err)
	}

	cols := map[string]any{}
	for key, val := range patch {
		switch key {
		case "name":
			cols["name"] = asString(val)
		case "description":
			cols["description"] = asString(val)
		case "columnOrder":
			cols["column_order"] = encodeJSON(val)
		case "columnDetails":
			cols["column_details"] = encodeJSON(mergeInto(decodeAnyMap(proj.ColumnDetails), val))
		}
	}
	if len(cols) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Model(&models.Project{}).Where("id = ?", id).Updates(cols).Error; err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	return nil
}

func (s *Store) updateCircle(ctx context.Context, id string, patch models.Patch) error {
	var circle models.Circle
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&circle).Error; err != nil {
		return fmt.Errorf("load circle: %w", err)
	}

	cols := map[string]any{}
	for key, val := range patch {
		switch key {
		case "name":
			cols["name"] = asString(val)
		case "description":
			cols["description"] = asString(val)
		case "members":
			cols["members"] = encodeJSON(val)
		case "rules":
			cols["rules"] = encodeJSON(val)
		}
	}
	if len(cols) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Model(&models.Circle{}).Where("id = ?", id).Updates(cols).Error; err != nil {
		return fmt.Errorf("update circle: %w", err)
	}
	return nil
}

// mergeInto folds a patch value into a stored map column. Column entries
// named by the patch are replaced whole; unnamed entries survive.
func mergeInto(existing map[string]any, val any) map[string]any {
	pm := field.AsMap(val)
	if pm == nil {
		return existing
	}
	if existing == nil {
		existing = map[string]any{}
	}
	out := make(map[string]any, len(existing)+len(pm))
	for k, v := range existing {
		out[k] = v
	}
	for k, v := range pm {
		out[k] = v
	}
	return out
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int:
		return float64(x)
	default:
		return 0
	}
}

func parseDeadline(v any) *time.Time {
	s := asString(v)
	if s == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
