package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/spindlehq/spindle/internal/rules"
	"github.com/spindlehq/spindle/internal/store"
)

func handleGetRules(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		rs, err := st.OwnRules(c.Request.Context(), c.Param("id"))
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, store.ErrNotFound) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		if rs == nil {
			rs = []rules.Rule{}
		}
		c.JSON(http.StatusOK, gin.H{"rules": rs})
	}
}

// handlePutRules replaces the container's whole rule list. Order in the
// request body becomes the rule evaluation order.
func handlePutRules(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Rules []rules.Rule `json:"rules"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := st.SaveRules(c.Request.Context(), c.Param("id"), req.Rules); err != nil {
			c.JSON(ruleSaveStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"rules": req.Rules})
	}
}

func handlePostRule(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var rule rules.Rule
		if err := c.ShouldBindJSON(&rule); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		id := c.Param("id")

		existing, err := st.OwnRules(c.Request.Context(), id)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, store.ErrNotFound) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		for _, r := range existing {
			if r.ID == rule.ID {
				c.JSON(http.StatusConflict, gin.H{"error": "rule id already exists"})
				return
			}
		}

		if err := st.SaveRules(c.Request.Context(), id, append(existing, rule)); err != nil {
			c.JSON(ruleSaveStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"rule": rule})
	}
}

func handleDeleteRule(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		ruleID := c.Param("ruleID")

		existing, err := st.OwnRules(c.Request.Context(), id)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, store.ErrNotFound) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		kept := make([]rules.Rule, 0, len(existing))
		for _, r := range existing {
			if r.ID != ruleID {
				kept = append(kept, r)
			}
		}
		if len(kept) == len(existing) {
			c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
			return
		}

		if err := st.SaveRules(c.Request.Context(), id, kept); err != nil {
			c.JSON(ruleSaveStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"rules": kept})
	}
}

// ruleSaveStatus maps SaveRules failures to HTTP codes: validation
// problems are the caller's fault, everything else is ours.
func ruleSaveStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInvalidRule):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
