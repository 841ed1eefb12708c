// Package scheduler fires cron-scheduled rules. Containers are rescanned
// periodically so rule edits take effect without a restart.
package scheduler

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spindlehq/spindle/internal/automation"
	"github.com/spindlehq/spindle/internal/models"
	"github.com/spindlehq/spindle/internal/rules"
	"github.com/spindlehq/spindle/internal/store"
)

// defaultRescan is how often the rule tables are rescanned for new or
// changed schedules.
const defaultRescan = 5 * time.Minute

// cronParser accepts standard 5-field cron expressions (minute, hour,
// dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Runner runs one automation pass. Satisfied by engine.Engine.
type Runner interface {
	Apply(ctx context.Context, updates []automation.Update, caller string) (*automation.Result, []store.CommitFailure, error)
}

// Scheduler drives scheduled rules against their containers.
type Scheduler struct {
	store  *store.Store
	runner Runner
	rescan time.Duration
}

// Opts holds parameters for creating a Scheduler.
type Opts struct {
	Store  *store.Store
	Runner Runner
	// Rescan overrides the container rescan interval; zero keeps the default.
	Rescan time.Duration
}

// New creates a Scheduler.
func New(opts Opts) *Scheduler {
	rescan := opts.Rescan
	if rescan <= 0 {
		rescan = defaultRescan
	}
	return &Scheduler{store: opts.Store, runner: opts.Runner, rescan: rescan}
}

// entry is one registered schedule: which container to tick and when.
type entry struct {
	ContainerID string
	RuleID      string
	Schedule    string
}

// Run blocks until ctx is cancelled, rebuilding the cron table every
// rescan interval.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		c := cron.New(cron.WithParser(cronParser))
		entries, err := s.collect(ctx)
		if err != nil {
			log.Printf("scheduler: scan containers: %v", err)
		}
		for _, e := range entries {
			e := e
			if _, err := c.AddFunc(e.Schedule, func() { s.fire(ctx, e) }); err != nil {
				log.Printf("scheduler: rule %s: bad schedule %q: %v", e.RuleID, e.Schedule, err)
			}
		}
		c.Start()

		select {
		case <-ctx.Done():
			c.Stop()
			return ctx.Err()
		case <-time.After(s.rescan):
			c.Stop()
		}
	}
}

// collect scans every container for active root rules with a schedule.
func (s *Scheduler) collect(ctx context.Context) ([]entry, error) {
	var out []entry
	add := func(containerID string, rs []rules.Rule) {
		for _, r := range rs {
			if !r.Active || r.Schedule == "" {
				continue
			}
			if r.Trigger.Category != rules.CategoryRoot || r.Trigger.Event != rules.EventScheduled {
				continue
			}
			out = append(out, entry{ContainerID: containerID, RuleID: r.ID, Schedule: r.Schedule})
		}
	}

	// Each container contributes only its own rules: an inherited circle
	// schedule already fires on the circle itself.
	var circles []models.Circle
	if err := s.store.DB().WithContext(ctx).Find(&circles).Error; err != nil {
		return nil, err
	}
	for _, c := range circles {
		add(c.ID, decodeRules(c.Rules))
	}

	var projects []models.Project
	if err := s.store.DB().WithContext(ctx).Where("archived = ?", false).Find(&projects).Error; err != nil {
		return nil, err
	}
	for _, p := range projects {
		add(p.ID, decodeRules(p.Rules))
	}

	var collections []models.Collection
	if err := s.store.DB().WithContext(ctx).Where("archived = ?", false).Find(&collections).Error; err != nil {
		return nil, err
	}
	for _, c := range collections {
		add(c.ID, decodeRules(c.Rules))
	}
	return out, nil
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

// fire runs one scheduled tick against the rule's container entity. The
// update names the rule so containers inheriting other scheduled rules
// run only the one whose cron time this is.
func (s *Scheduler) fire(ctx context.Context, e entry) {
	_, failures, err := s.runner.Apply(ctx, []automation.Update{
		{EntityID: e.ContainerID, Event: rules.EventScheduled, RuleID: e.RuleID},
	}, "scheduler")
	if err != nil {
		log.Printf("scheduler: rule %s on %s: %v", e.RuleID, e.ContainerID, err)
		return
	}
	for _, f := range failures {
		log.Printf("scheduler: rule %s: commit %s: %v", e.RuleID, f.EntityID, f.Err)
	}
}
