package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/spindlehq/spindle/internal/automation"
	"github.com/spindlehq/spindle/internal/engine"
	"github.com/spindlehq/spindle/internal/models"
	"github.com/spindlehq/spindle/internal/rules"
	"github.com/spindlehq/spindle/internal/store"
)

// applyResponse reports what an automation pass did: the merged patch
// per entity, plus anything that went sideways.
type applyResponse struct {
	Patches  map[string]models.Patch `json:"patches"`
	Created  []string                `json:"created,omitempty"`
	Warnings []string                `json:"warnings,omitempty"`
	Failures []failureView           `json:"failures,omitempty"`
}

type failureView struct {
	EntityID string `json:"entityId"`
	Error    string `json:"error"`
}

func buildApplyResponse(res *automation.Result, failures []store.CommitFailure) applyResponse {
	out := applyResponse{
		Patches:  res.Patches,
		Warnings: res.Warnings,
	}
	for id := range res.Creates {
		out.Created = append(out.Created, id)
	}
	for _, f := range failures {
		out.Failures = append(out.Failures, failureView{EntityID: f.EntityID, Error: f.Err.Error()})
	}
	return out
}

func handleGetCard(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap, err := st.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, store.ErrNotFound) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"id":          snap.ID,
			"kind":        snap.Kind,
			"containerId": snap.ContainerID,
			"parentId":    snap.ParentID,
			"fields":      snap.Fields,
		})
	}
}

// handlePatchCard applies a field edit through the automation engine.
// The response lists every entity the pass touched, not just the card
// the caller edited.
func handlePatchCard(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Fields models.Patch `json:"fields"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if len(req.Fields) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "fields is required"})
			return
		}

		res, failures, err := eng.Apply(c.Request.Context(), []automation.Update{
			{EntityID: c.Param("id"), Patch: req.Fields},
		}, caller(c))
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, store.ErrNotFound) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, buildApplyResponse(res, failures))
	}
}

func handleCreateCard(st *store.Store, eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			ProjectID string       `json:"projectId"`
			Title     string       `json:"title"`
			Type      string       `json:"type"`
			ColumnID  string       `json:"columnId"`
			ParentID  string       `json:"parentId"`
			Fields    models.Patch `json:"fields"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.ProjectID == "" || req.Title == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "projectId and title are required"})
			return
		}

		cont, err := st.Container(c.Request.Context(), req.ProjectID)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, store.ErrNotFound) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		columnID := req.ColumnID
		if columnID == "" && len(cont.ColumnOrder) > 0 {
			columnID = cont.ColumnOrder[0]
		}

		id, err := automation.GenerateID()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		patch := models.Patch{}
		for k, v := range req.Fields {
			patch[k] = v
		}
		patch["title"] = req.Title
		patch["projectId"] = req.ProjectID
		patch["columnId"] = columnID
		patch["creator"] = caller(c)
		if req.Type != "" {
			patch["type"] = req.Type
		}
		if req.ParentID != "" {
			patch["parentId"] = req.ParentID
		}
		if _, ok := patch["status"]; !ok {
			patch["status"] = map[string]any{"active": true}
		}

		updates := []automation.Update{
			{EntityID: id, Patch: patch, Kind: models.KindCard, Create: true, Event: rules.EventCardCreated},
		}
		if col, ok := cont.ColumnDetails[columnID]; ok {
			col.Cards = append(append([]string(nil), col.Cards...), id)
			updates = append(updates, automation.Update{
				EntityID: req.ProjectID,
				Kind:     models.KindProject,
				Patch: models.Patch{"columnDetails": map[string]any{
					columnID: map[string]any{"id": col.ID, "name": col.Name, "cards": col.Cards},
				}},
			})
		}

		res, failures, err := eng.Apply(c.Request.Context(), updates, caller(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		resp := buildApplyResponse(res, failures)
		c.JSON(http.StatusCreated, gin.H{
			"id":       id,
			"patches":  resp.Patches,
			"created":  resp.Created,
			"warnings": resp.Warnings,
			"failures": resp.Failures,
		})
	}
}

func handleGetProject(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		cont, err := st.Container(c.Request.Context(), id)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, store.ErrNotFound) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		cards, err := st.ProjectCards(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		views := make([]gin.H, 0, len(cards))
		for _, snap := range cards {
			views = append(views, gin.H{"id": snap.ID, "parentId": snap.ParentID, "fields": snap.Fields})
		}

		c.JSON(http.StatusOK, gin.H{
			"id":          cont.ID,
			"type":        cont.Type,
			"columnOrder": cont.ColumnOrder,
			"columns":     cont.ColumnDetails,
			"rules":       cont.Rules,
			"cards":       views,
		})
	}
}

func handleListNotifications(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		recipient := c.Query("recipient")
		if recipient == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "recipient is required"})
			return
		}
		var rows []models.Notification
		err := st.DB().WithContext(c.Request.Context()).
			Where("recipient = ?", recipient).
			Order("created_at DESC").
			Limit(100).
			Find(&rows).Error
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"notifications": rows})
	}
}

func handleMarkRead(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		result := st.DB().WithContext(c.Request.Context()).
			Model(&models.Notification{}).
			Where("id = ?", c.Param("id")).
			Update("read", true)
		if result.Error != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": result.Error.Error()})
			return
		}
		if result.RowsAffected == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
