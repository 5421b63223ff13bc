package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/quillon/ruleflow/internal/engine"
	"github.com/quillon/ruleflow/internal/models"
	"github.com/quillon/ruleflow/internal/store"
)

type captureQueue struct {
	jobs []*engine.Job
}

func (q *captureQueue) Submit(job *engine.Job) bool {
	q.jobs = append(q.jobs, job)
	return true
}

func scheduleRule(t *testing.T, s *store.MemRuleStore, name, expr string) *models.Rule {
	t.Helper()
	r := &models.Rule{
		TenantID: "acme", Name: name,
		TriggerKind: models.TriggerSchedule, Schedule: expr,
		Logic: models.LogicAll, Active: true,
	}
	if err := s.Upsert(context.Background(), r); err != nil {
		t.Fatalf("upsert %s: %v", name, err)
	}
	return r
}

func TestTickFiresOnMatchingMinute(t *testing.T) {
	rules := store.NewMemRuleStore()
	logs := store.NewMemLogStore()
	q := &captureQueue{}
	s := NewScheduler(rules, logs, q)

	rule := scheduleRule(t, rules, "nightly", "0 2 * * *")

	at := time.Date(2024, 3, 15, 2, 0, 30, 0, time.UTC)
	s.Tick(context.Background(), at)

	if len(q.jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(q.jobs))
	}
	job := q.jobs[0]
	if job.RuleID != rule.ID || job.TriggerKind != models.TriggerSchedule {
		t.Fatalf("job = %+v", job)
	}
	row, err := logs.Get(context.Background(), job.LogID)
	if err != nil {
		t.Fatalf("row missing: %v", err)
	}
	if row.Status != models.StatusPending {
		t.Fatalf("row status = %s", row.Status)
	}
}

func TestTickSameMinuteDeduped(t *testing.T) {
	rules := store.NewMemRuleStore()
	logs := store.NewMemLogStore()
	q := &captureQueue{}
	s := NewScheduler(rules, logs, q)

	scheduleRule(t, rules, "nightly", "0 2 * * *")

	ctx := context.Background()
	s.Tick(ctx, time.Date(2024, 3, 15, 2, 0, 5, 0, time.UTC))
	s.Tick(ctx, time.Date(2024, 3, 15, 2, 0, 45, 0, time.UTC))

	if len(q.jobs) != 1 {
		t.Fatalf("duplicate minute enqueued %d jobs, want 1", len(q.jobs))
	}

	// The next matching day is a fresh dedupe key.
	s.Tick(ctx, time.Date(2024, 3, 16, 2, 0, 5, 0, time.UTC))
	if len(q.jobs) != 2 {
		t.Fatalf("jobs = %d, want 2", len(q.jobs))
	}
}

func TestTickNonMatchingMinute(t *testing.T) {
	rules := store.NewMemRuleStore()
	logs := store.NewMemLogStore()
	q := &captureQueue{}
	s := NewScheduler(rules, logs, q)

	scheduleRule(t, rules, "nightly", "0 2 * * *")

	s.Tick(context.Background(), time.Date(2024, 3, 15, 2, 1, 0, 0, time.UTC))
	if len(q.jobs) != 0 {
		t.Fatalf("jobs = %d, want 0", len(q.jobs))
	}
}

func TestTickEveryFiveMinutes(t *testing.T) {
	rules := store.NewMemRuleStore()
	logs := store.NewMemLogStore()
	q := &captureQueue{}
	s := NewScheduler(rules, logs, q)

	scheduleRule(t, rules, "sweep", "*/5 * * * *")

	ctx := context.Background()
	s.Tick(ctx, time.Date(2024, 3, 15, 9, 10, 0, 0, time.UTC))
	s.Tick(ctx, time.Date(2024, 3, 15, 9, 12, 0, 0, time.UTC))
	s.Tick(ctx, time.Date(2024, 3, 15, 9, 15, 0, 0, time.UTC))

	if len(q.jobs) != 2 {
		t.Fatalf("jobs = %d, want 2", len(q.jobs))
	}
}

func TestTickMalformedExpression(t *testing.T) {
	rules := store.NewMemRuleStore()
	logs := store.NewMemLogStore()
	q := &captureQueue{}
	s := NewScheduler(rules, logs, q)

	rule := scheduleRule(t, rules, "broken", "not a cron line")

	ctx := context.Background()
	s.Tick(ctx, time.Date(2024, 3, 15, 2, 0, 0, 0, time.UTC))

	if len(q.jobs) != 0 {
		t.Fatalf("malformed expression must not enqueue, got %d", len(q.jobs))
	}
	failed, err := logs.Query(ctx, store.LogQuery{Status: models.StatusFailed})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(failed) != 1 {
		t.Fatalf("failed rows = %d, want 1", len(failed))
	}
	if failed[0].RuleID == nil || *failed[0].RuleID != rule.ID {
		t.Fatalf("failed row = %+v", failed[0])
	}

	// Same minute: the configuration error is recorded once, not per tick.
	s.Tick(ctx, time.Date(2024, 3, 15, 2, 0, 30, 0, time.UTC))
	failed, _ = logs.Query(ctx, store.LogQuery{Status: models.StatusFailed})
	if len(failed) != 1 {
		t.Fatalf("failed rows after second tick = %d, want 1", len(failed))
	}
}
