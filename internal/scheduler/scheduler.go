package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/helixops/ruleflow/internal/engine"
	"github.com/helixops/ruleflow/internal/store"
	"github.com/helixops/ruleflow/pkg/schema"
)

// RuleRunner is the interface the scheduler uses to fire rules.
// Satisfied by the engine runner.
type RuleRunner interface {
	Invoke(ctx context.Context, req engine.InvokeRequest) (*engine.InvokeResponse, error)
}

// RuleLister is the slice of the store the scheduler needs.
type RuleLister interface {
	ListRules(ctx context.Context, filter store.RuleFilter) ([]*schema.Rule, error)
}

// scheduleConfig is the trigger_config shape for schedule-triggered rules.
type scheduleConfig struct {
	Cron string `json:"cron"`
}

// Scheduler polls the store for active schedule-triggered rules and fires
// the ones that are due. Next-run times are tracked in memory and recomputed
// from the cron expression after each run; a rule seen for the first time is
// armed for its next occurrence rather than fired immediately.
type Scheduler struct {
	store  RuleLister
	runner RuleRunner
	parser cron.Parser
	logger *slog.Logger
	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex

	nextMu   sync.Mutex
	nextRuns map[string]time.Time // rule ID -> next due time

	inflightMu sync.Mutex
	inflight   map[string]struct{} // rule IDs currently executing (dedup)
}

// NewScheduler creates a new Scheduler.
func NewScheduler(s RuleLister, runner RuleRunner, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:    s,
		runner:   runner,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		logger:   logger,
		nextRuns: make(map[string]time.Time),
		inflight: make(map[string]struct{}),
	}
}

// Start launches the background scheduling loop with a 60s ticker.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("scheduler started")
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	// Run an initial tick immediately so new rules get armed at startup.
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick lists schedule-triggered rules and fires the ones that are due.
func (s *Scheduler) tick(ctx context.Context) {
	active := true
	rules, err := s.store.ListRules(ctx, store.RuleFilter{
		IsActive:    &active,
		TriggerType: schema.TriggerSchedule,
	})
	if err != nil {
		s.logger.Error("failed to list scheduled rules", slog.String("error", err.Error()))
		return
	}

	now := time.Now().UTC()
	seen := make(map[string]struct{}, len(rules))
	for _, rule := range rules {
		seen[rule.ID] = struct{}{}

		schedule, err := s.scheduleFor(rule)
		if err != nil {
			s.logger.Warn("invalid schedule config",
				slog.String("rule_id", rule.ID),
				slog.String("error", err.Error()))
			continue
		}

		due, fire := s.arm(rule.ID, schedule, now)
		if !fire {
			continue
		}
		if !s.tryAcquire(rule.ID) {
			continue // previous run still in flight (dedup)
		}
		go func(rule *schema.Rule, due time.Time) {
			defer s.releaseRule(rule.ID)
			s.runRule(ctx, rule, due)
		}(rule, due)
	}
	s.prune(seen)
}

// scheduleFor parses the rule's cron expression from trigger_config.
func (s *Scheduler) scheduleFor(rule *schema.Rule) (cron.Schedule, error) {
	var cfg scheduleConfig
	if len(rule.TriggerConfig) > 0 {
		if err := json.Unmarshal(rule.TriggerConfig, &cfg); err != nil {
			return nil, fmt.Errorf("decode trigger_config: %w", err)
		}
	}
	if cfg.Cron == "" {
		return nil, fmt.Errorf("trigger_config is missing 'cron'")
	}
	schedule, err := s.parser.Parse(cfg.Cron)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", cfg.Cron, err)
	}
	return schedule, nil
}

// arm returns whether the rule is due now, advancing its next-run time.
// A rule without a tracked next-run is armed for its next occurrence.
func (s *Scheduler) arm(ruleID string, schedule cron.Schedule, now time.Time) (time.Time, bool) {
	s.nextMu.Lock()
	defer s.nextMu.Unlock()

	next, ok := s.nextRuns[ruleID]
	if !ok {
		s.nextRuns[ruleID] = schedule.Next(now)
		return time.Time{}, false
	}
	if next.After(now) {
		return time.Time{}, false
	}
	s.nextRuns[ruleID] = schedule.Next(now)
	return next, true
}

// prune drops next-run state for rules that no longer exist or were disabled.
func (s *Scheduler) prune(seen map[string]struct{}) {
	s.nextMu.Lock()
	defer s.nextMu.Unlock()
	for id := range s.nextRuns {
		if _, ok := seen[id]; !ok {
			delete(s.nextRuns, id)
		}
	}
}

// runRule fires one due rule through the engine.
func (s *Scheduler) runRule(ctx context.Context, rule *schema.Rule, due time.Time) {
	s.logger.Info("firing scheduled rule",
		slog.String("rule_id", rule.ID),
		slog.String("rule_name", rule.Name),
	)

	resp, err := s.runner.Invoke(ctx, engine.InvokeRequest{
		RuleID: rule.ID,
		TriggerData: map[string]any{
			"scheduled_at": due.Format(time.RFC3339),
			"fired_at":     time.Now().UTC().Format(time.RFC3339),
		},
		TriggeredBy: "scheduler",
	})
	if err != nil {
		s.logger.Error("scheduled rule invocation failed",
			slog.String("rule_id", rule.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if !resp.Success {
		s.logger.Error("scheduled rule execution failed",
			slog.String("rule_id", rule.ID),
			slog.String("execution_id", resp.ExecutionID),
			slog.String("error", resp.Error),
		)
	}
}

// tryAcquire returns true and marks the rule as in-flight if it is not already running.
func (s *Scheduler) tryAcquire(ruleID string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[ruleID]; ok {
		return false
	}
	s.inflight[ruleID] = struct{}{}
	return true
}

// releaseRule removes the rule from the in-flight set.
func (s *Scheduler) releaseRule(ruleID string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, ruleID)
}

// CalculateNextRun computes the next run time for a cron expression.
func (s *Scheduler) CalculateNextRun(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return schedule.Next(from), nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("scheduler stopped")
	return nil
}
