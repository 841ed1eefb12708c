// Package server exposes the JSON API: card edits that run through the
// automation engine, board reads, rule management, and the notification
// feed.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/spindlehq/spindle/internal/engine"
	"github.com/spindlehq/spindle/internal/store"
)

// StartOpts holds configuration for the API server.
type StartOpts struct {
	Store  *store.Store
	Engine *engine.Engine
	Port   int
	Out    io.Writer
}

// Start launches the HTTP server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Store == nil {
		return fmt.Errorf("server: store is required")
	}
	if opts.Engine == nil {
		return fmt.Errorf("server: engine is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	registerRoutes(router, opts.Store, opts.Engine)

	addr := fmt.Sprintf(":%d", opts.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Spindle API listening on http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// registerRoutes sets up all API routes on the Gin router.
func registerRoutes(router *gin.Engine, st *store.Store, eng *engine.Engine) {
	router.GET("/healthz", handleHealth())

	api := router.Group("/api")
	api.GET("/cards/:id", handleGetCard(st))
	api.POST("/cards", handleCreateCard(st, eng))
	api.PATCH("/cards/:id", handlePatchCard(eng))

	api.GET("/projects/:id", handleGetProject(st))

	api.GET("/containers/:id/rules", handleGetRules(st))
	api.PUT("/containers/:id/rules", handlePutRules(st))
	api.POST("/containers/:id/rules", handlePostRule(st))
	api.DELETE("/containers/:id/rules/:ruleID", handleDeleteRule(st))

	api.GET("/notifications", handleListNotifications(st))
	api.POST("/notifications/:id/read", handleMarkRead(st))
}

func handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// caller resolves the acting member from the request. Placeholder
// recipients like "assignee" are resolved later against the card, not
// against this identity.
func caller(c *gin.Context) string {
	if u := c.GetHeader("X-Spindle-User"); u != "" {
		return u
	}
	return "anonymous"
}
