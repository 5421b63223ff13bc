// Package schedule fires schedule-triggered rules on minute-granularity
// cron matches.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/quillon/ruleflow/internal/engine"
	"github.com/quillon/ruleflow/internal/logger"
	"github.com/quillon/ruleflow/internal/metrics"
	"github.com/quillon/ruleflow/internal/models"
	"github.com/quillon/ruleflow/internal/store"
)

// Queue is the engine surface the scheduler enqueues into.
type Queue interface {
	Submit(job *engine.Job) bool
}

// Scheduler matches active schedule rules against the clock. Tick is safe
// to call concurrently and repeatedly for the same minute: each enqueue is
// keyed per rule per minute through the log store's unique dedupe index.
type Scheduler struct {
	rules  store.RuleStore
	logs   store.LogStore
	queue  Queue
	parser cron.Parser
}

func NewScheduler(rules store.RuleStore, logs store.LogStore, queue Queue) *Scheduler {
	return &Scheduler{
		rules: rules,
		logs:  logs,
		queue: queue,
		parser: cron.NewParser(
			cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
		),
	}
}

// Run drives Tick at the given cadence until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			s.Tick(ctx, now)
		case <-ctx.Done():
			return
		}
	}
}

// Tick evaluates every active schedule rule against now's minute and
// enqueues one job per match.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	minute := now.Truncate(time.Minute)
	rules, err := s.rules.ActiveSchedules(ctx)
	if err != nil {
		logger.Error("schedule rule lookup failed", zap.Error(err))
		return
	}

	for i := range rules {
		rule := &rules[i]
		dedupeKey := fmt.Sprintf("sched:%d:%s", rule.ID, minute.UTC().Format("200601021504"))

		sched, err := s.parser.Parse(rule.Schedule)
		if err != nil {
			// Malformed expression is a configuration error: recorded in
			// the log, never silently skipped. The dedupe key keeps it to
			// one row per minute.
			s.recordBadSchedule(ctx, rule, dedupeKey, err)
			continue
		}
		if !sched.Next(minute.Add(-time.Second)).Equal(minute) {
			continue
		}

		job := &engine.Job{
			RuleID:      rule.ID,
			TriggerKind: models.TriggerSchedule,
			Attempt:     1,
		}
		row := job.NewLogRow(rule, dedupeKey)
		if err := s.logs.Create(ctx, row); err != nil {
			if errors.Is(err, store.ErrDuplicateJob) {
				metrics.JobsDeduped.Inc()
			} else {
				logger.Error("schedule job row not persisted", zap.Uint("rule_id", rule.ID), zap.Error(err))
			}
			continue
		}
		if !s.queue.Submit(job) {
			logger.Warn("queue full, schedule job deferred to recovery",
				zap.Uint("rule_id", rule.ID),
				zap.String("log_id", job.LogID),
			)
		}
	}
}

func (s *Scheduler) recordBadSchedule(ctx context.Context, rule *models.Rule, dedupeKey string, parseErr error) {
	job := &engine.Job{RuleID: rule.ID, TriggerKind: models.TriggerSchedule, Attempt: 1}
	row := job.NewLogRow(rule, dedupeKey)
	if err := s.logs.Create(ctx, row); err != nil {
		if !errors.Is(err, store.ErrDuplicateJob) {
			logger.Error("bad-schedule row not persisted", zap.Uint("rule_id", rule.ID), zap.Error(err))
		}
		return
	}
	msg := fmt.Sprintf("malformed schedule expression %q: %s", rule.Schedule, parseErr)
	if err := s.logs.Fail(ctx, job.LogID, msg); err != nil {
		logger.Error("bad-schedule failure not recorded", zap.String("log_id", job.LogID), zap.Error(err))
	}
	logger.Warn("malformed schedule expression",
		zap.Uint("rule_id", rule.ID),
		zap.String("schedule", rule.Schedule),
		zap.Error(parseErr),
	)
}
