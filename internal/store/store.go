// Package store adapts the GORM document tables to the snapshot/commit
// contracts the automation engine consumes. Reads hand out value copies,
// never live rows; writes are batched to exactly one update per entity.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spindlehq/spindle/internal/field"
	"github.com/spindlehq/spindle/internal/models"
	"github.com/spindlehq/spindle/internal/rules"
	"gorm.io/gorm"
)

// ErrNotFound reports a missing entity or container. It is the only
// store error treated as fatal by the resolver.
var ErrNotFound = errors.New("store: not found")

// Store wraps the database handle with snapshot and commit operations.
type Store struct {
	db *gorm.DB
}

// New creates a Store over an open GORM connection.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for callers that need raw queries.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Get resolves an entity snapshot by id. Ids are unique across tables;
// cards are by far the most common lookup, so the cascade tries them
// first.
func (s *Store) Get(ctx context.Context, id string) (*models.Snapshot, error) {
	var card models.Card
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&card).Error
	if err == nil {
		return cardSnapshot(&card), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("store: get card %s: %w", id, err)
	}

	var row models.CollectionRow
	err = s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err == nil {
		return s.rowSnapshot(ctx, &row)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("store: get row %s: %w", id, err)
	}

	var proj models.Project
	err = s.db.WithContext(ctx).Where("id = ?", id).First(&proj).Error
	if err == nil {
		return projectSnapshot(&proj), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("store: get project %s: %w", id, err)
	}

	var circle models.Circle
	err = s.db.WithContext(ctx).Where("id = ?", id).First(&circle).Error
	if err == nil {
		return circleSnapshot(&circle), nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: entity %s", ErrNotFound, id)
	}
	return nil, fmt.Errorf("store: get circle %s: %w", id, err)
}

// ProjectCards returns snapshots for every card on a project's board.
func (s *Store) ProjectCards(ctx context.Context, projectID string) ([]*models.Snapshot, error) {
	var cards []models.Card
	if err := s.db.WithContext(ctx).Where("project_id = ?", projectID).Order("created_at").Find(&cards).Error; err != nil {
		return nil, fmt.Errorf("store: cards for project %s: %w", projectID, err)
	}
	out := make([]*models.Snapshot, 0, len(cards))
	for i := range cards {
		out = append(out, cardSnapshot(&cards[i]))
	}
	return out, nil
}

// Container resolves a project, collection, or circle into the in-memory
// rule container. Projects and collections inherit their circle's rules,
// appended after their own so container-local rules keep first position
// in the merge order.
func (s *Store) Container(ctx context.Context, id string) (*rules.Container, error) {
	var proj models.Project
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&proj).Error
	if err == nil {
		return s.projectContainer(ctx, &proj)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("store: container project %s: %w", id, err)
	}

	var coll models.Collection
	err = s.db.WithContext(ctx).Where("id = ?", id).First(&coll).Error
	if err == nil {
		return s.collectionContainer(ctx, &coll)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("store: container collection %s: %w", id, err)
	}

	var circle models.Circle
	err = s.db.WithContext(ctx).Where("id = ?", id).First(&circle).Error
	if err == nil {
		return circleContainer(&circle), nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: container %s", ErrNotFound, id)
	}
	return nil, fmt.Errorf("store: container circle %s: %w", id, err)
}

func (s *Store) projectContainer(ctx context.Context, proj *models.Project) (*rules.Container, error) {
	cont := &rules.Container{
		ID:             proj.ID,
		Type:           rules.ContainerProject,
		Rules:          decodeRules(proj.Rules),
		ColumnOrder:    decodeStringList(proj.ColumnOrder),
		ColumnDetails:  decodeColumns(proj.ColumnDetails),
		ParentCircleID: proj.CircleID,
	}
	if proj.CircleID != "" {
		var circle models.Circle
		if err := s.db.WithContext(ctx).Where("id = ?", proj.CircleID).First(&circle).Error; err == nil {
			cont.Rules = append(cont.Rules, decodeRules(circle.Rules)...)
			cont.DefaultReward = decodeReward(circle.DefaultReward)
		}
	}
	return cont, nil
}

func (s *Store) collectionContainer(ctx context.Context, coll *models.Collection) (*rules.Container, error) {
	cont := &rules.Container{
		ID:             coll.ID,
		Type:           rules.ContainerCollection,
		Rules:          decodeRules(coll.Rules),
		ParentCircleID: coll.CircleID,
	}
	if coll.CircleID != "" {
		var circle models.Circle
		if err := s.db.WithContext(ctx).Where("id = ?", coll.CircleID).First(&circle).Error; err == nil {
			cont.Rules = append(cont.Rules, decodeRules(circle.Rules)...)
		}
	}
	return cont, nil
}

func circleContainer(circle *models.Circle) *rules.Container {
	return &rules.Container{
		ID:            circle.ID,
		Type:          rules.ContainerCircle,
		Rules:         decodeRules(circle.Rules),
		DefaultReward: decodeReward(circle.DefaultReward),
	}
}

// --- snapshots ---

func cardSnapshot(c *models.Card) *models.Snapshot {
	fields := map[string]any{
		"title":       c.Title,
		"description": c.Description,
		"type":        c.Type,
		"columnId":    c.ColumnID,
		"priority":    float64(c.Priority),
		"assignee":    decodeStringList(c.Assignee),
		"reviewer":    decodeStringList(c.Reviewer),
		"labels":      decodeAnyList(c.Labels),
		"status":      decodeAnyMap(c.Status),
		"reward":      decodeAnyMap(c.Reward),
		"kudosMinted": decodeAnyMap(c.KudosMinted),
		"children":    decodeStringList(c.ChildIDs),
	}
	if c.Deadline != nil {
		fields["deadline"] = c.Deadline.UTC().Format("2006-01-02")
	}
	parentID := ""
	if c.ParentID != nil {
		parentID = *c.ParentID
	}
	return &models.Snapshot{
		ID:          c.ID,
		Kind:        models.KindCard,
		ContainerID: c.ProjectID,
		ParentID:    parentID,
		ChildIDs:    decodeStringList(c.ChildIDs),
		Fields:      fields,
		Schema:      field.CardSchema(),
	}
}

func (s *Store) rowSnapshot(ctx context.Context, row *models.CollectionRow) (*models.Snapshot, error) {
	var coll models.Collection
	if err := s.db.WithContext(ctx).Where("id = ?", row.CollectionID).First(&coll).Error; err != nil {
		return nil, fmt.Errorf("store: collection %s for row %s: %w", row.CollectionID, row.ID, err)
	}
	schema := field.Schema{}
	for name, t := range decodeStringMap(coll.Properties) {
		schema[name] = field.Type(t)
	}
	return &models.Snapshot{
		ID:          row.ID,
		Kind:        models.KindCollectionRow,
		ContainerID: row.CollectionID,
		Fields:      decodeAnyMap(row.Data),
		Schema:      schema,
	}, nil
}

func projectSnapshot(p *models.Project) *models.Snapshot {
	// A project is its own rule scope; Container appends inherited
	// circle rules behind the project's own.
	return &models.Snapshot{
		ID:          p.ID,
		Kind:        models.KindProject,
		ContainerID: p.ID,
		Fields: map[string]any{
			"name":          p.Name,
			"description":   p.Description,
			"columnOrder":   decodeAnyList(p.ColumnOrder),
			"columnDetails": decodeAnyMap(p.ColumnDetails),
		},
		Schema: field.Schema{"name": field.ShortText, "description": field.LongText},
	}
}

func circleSnapshot(c *models.Circle) *models.Snapshot {
	// Root circles are their own container.
	return &models.Snapshot{
		ID:          c.ID,
		Kind:        models.KindCircle,
		ContainerID: c.ID,
		Fields: map[string]any{
			"name":        c.Name,
			"description": c.Description,
			"members":     decodeStringList(c.Members),
		},
		Schema: field.Schema{
			"name":        field.ShortText,
			"description": field.LongText,
			"members":     field.UserList,
		},
	}
}

// --- JSON column codecs ---

func decodeStringList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}

func decodeAnyList(s string) []any {
	if s == "" {
		return nil
	}
	var out []any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}

func decodeAnyMap(s string) map[string]any {
	if s == "" {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}

func decodeStringMap(s string) map[string]string {
	if s == "" {
		return nil
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}

func decodeRules(s string) []rules.Rule {
	if s == "" {
		return nil
	}
	var out []rules.Rule
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}

func decodeColumns(s string) map[string]rules.Column {
	if s == "" {
		return nil
	}
	var out map[string]rules.Column
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}

func decodeReward(s string) *field.RewardValue {
	if s == "" {
		return nil
	}
	var out field.RewardValue
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	if field.IsEmpty(out) {
		return nil
	}
	return &out
}

func encodeJSON(v any) string {
	if v == nil {
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
