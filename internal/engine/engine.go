// Package engine runs the full automation pipeline for one edit:
// resolve cascades, commit the merged writes, deliver side effects.
package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/spindlehq/spindle/internal/automation"
	"github.com/spindlehq/spindle/internal/notify"
	"github.com/spindlehq/spindle/internal/store"
)

// Engine owns the resolve/commit/deliver sequence. It is safe for
// concurrent use; each Apply call runs an independent pass.
type Engine struct {
	store     *store.Store
	resolver  *automation.Resolver
	publisher *notify.Publisher
}

// Opts holds parameters for creating an Engine.
type Opts struct {
	Store     *store.Store
	Publisher *notify.Publisher
	// MaxDepth bounds automation cascades; zero means the stock limit.
	MaxDepth int
}

// New creates an Engine.
func New(opts Opts) *Engine {
	depth := opts.MaxDepth
	if depth <= 0 {
		depth = automation.DefaultMaxDepth
	}
	return &Engine{
		store:     opts.Store,
		publisher: opts.Publisher,
		resolver: &automation.Resolver{
			Source:   opts.Store,
			MaxDepth: depth,
		},
	}
}

// Apply runs one pass for the proposed updates on behalf of caller.
// The returned failures list the entities whose committed write failed;
// every other entity's write stands.
func (e *Engine) Apply(ctx context.Context, updates []automation.Update, caller string) (*automation.Result, []store.CommitFailure, error) {
	res, err := e.resolver.Resolve(ctx, updates, caller)
	if err != nil {
		return nil, nil, fmt.Errorf("engine: resolve: %w", err)
	}
	for _, w := range res.Warnings {
		log.Printf("engine: %s", w)
	}

	failures := e.store.Commit(ctx, res)

	// Side effects go out even on partial commit failure; they describe
	// the writes that did land.
	if e.publisher != nil && len(res.Effects) > 0 {
		e.publisher.Deliver(ctx, res.Effects)
	}
	return res, failures, nil
}
