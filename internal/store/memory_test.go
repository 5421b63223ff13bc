package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quillon/ruleflow/internal/models"
)

func newLog(id, dedupe string) *models.ExecutionLog {
	return &models.ExecutionLog{
		ID:        id,
		DedupeKey: dedupe,
		RuleName:  "test-rule",
		Status:    models.StatusPending,
	}
}

func TestLogCreateDedupe(t *testing.T) {
	s := NewMemLogStore()
	ctx := context.Background()

	if err := s.Create(ctx, newLog("a", "key-1")); err != nil {
		t.Fatalf("first create: %v", err)
	}
	err := s.Create(ctx, newLog("b", "key-1"))
	if !errors.Is(err, ErrDuplicateJob) {
		t.Fatalf("want ErrDuplicateJob, got %v", err)
	}
	if err := s.Create(ctx, newLog("c", "key-2")); err != nil {
		t.Fatalf("distinct key: %v", err)
	}
}

func TestLogTransitionsForwardOnly(t *testing.T) {
	s := NewMemLogStore()
	ctx := context.Background()
	if err := s.Create(ctx, newLog("a", "k")); err != nil {
		t.Fatalf("create: %v", err)
	}

	for _, to := range []models.LogStatus{
		models.StatusEvaluating,
		models.StatusConditionsMet,
		models.StatusActionsRunning,
		models.StatusCompleted,
	} {
		if err := s.Transition(ctx, "a", to); err != nil {
			t.Fatalf("transition to %s: %v", to, err)
		}
	}

	got, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.StatusCompleted {
		t.Fatalf("status = %s", got.Status)
	}
	if got.StartedAt == nil || got.FinishedAt == nil {
		t.Fatal("timestamps not stamped")
	}
}

func TestLogTransitionBackwardsRejected(t *testing.T) {
	s := NewMemLogStore()
	ctx := context.Background()
	if err := s.Create(ctx, newLog("a", "k")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Transition(ctx, "a", models.StatusConditionsMet); err != nil {
		t.Fatalf("forward: %v", err)
	}
	if err := s.Transition(ctx, "a", models.StatusEvaluating); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("want ErrInvalidTransition, got %v", err)
	}
}

func TestLogTerminalIsFinal(t *testing.T) {
	s := NewMemLogStore()
	ctx := context.Background()
	if err := s.Create(ctx, newLog("a", "k")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Fail(ctx, "a", "boom"); err != nil {
		t.Fatalf("fail: %v", err)
	}

	if err := s.Transition(ctx, "a", models.StatusCompleted); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("transition after terminal: %v", err)
	}
	if err := s.AppendStep(ctx, "a", models.ActionStepResult{Order: 0}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("append after terminal: %v", err)
	}
	if err := s.Fail(ctx, "a", "again"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("double fail: %v", err)
	}

	got, _ := s.Get(ctx, "a")
	if got.ErrorMessage != "boom" {
		t.Fatalf("error message = %q", got.ErrorMessage)
	}
}

func TestLogAppendSteps(t *testing.T) {
	s := NewMemLogStore()
	ctx := context.Background()
	if err := s.Create(ctx, newLog("a", "k")); err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := s.AppendStep(ctx, "a", models.ActionStepResult{Order: i, Status: models.StepSuccess}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	got, _ := s.Get(ctx, "a")
	if len(got.StepResults) != 3 {
		t.Fatalf("steps = %d", len(got.StepResults))
	}
}

func TestLogPending(t *testing.T) {
	s := NewMemLogStore()
	ctx := context.Background()
	if err := s.Create(ctx, newLog("a", "ka")); err != nil {
		t.Fatalf("create a: %v", err)
	}
	if err := s.Create(ctx, newLog("b", "kb")); err != nil {
		t.Fatalf("create b: %v", err)
	}
	if err := s.Transition(ctx, "b", models.StatusEvaluating); err != nil {
		t.Fatalf("transition b: %v", err)
	}

	pending, err := s.Pending(ctx)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "a" {
		t.Fatalf("pending = %+v", pending)
	}
}

func TestLogQueryFilters(t *testing.T) {
	s := NewMemLogStore()
	ctx := context.Background()
	ruleA, ruleB := uint(1), uint(2)

	rows := []*models.ExecutionLog{
		{ID: "1", DedupeKey: "k1", RuleID: &ruleA, TenantID: "acme", EntityType: "invoice", EntityID: "i-1", Status: models.StatusPending},
		{ID: "2", DedupeKey: "k2", RuleID: &ruleA, TenantID: "acme", EntityType: "invoice", EntityID: "i-2", Status: models.StatusPending},
		{ID: "3", DedupeKey: "k3", RuleID: &ruleB, TenantID: "globex", EntityType: "order", EntityID: "o-1", Status: models.StatusPending},
	}
	for _, r := range rows {
		if err := s.Create(ctx, r); err != nil {
			t.Fatalf("create %s: %v", r.ID, err)
		}
	}
	if err := s.Fail(ctx, "2", "boom"); err != nil {
		t.Fatalf("fail: %v", err)
	}

	cases := []struct {
		name string
		q    LogQuery
		want int
	}{
		{"by rule", LogQuery{RuleID: &ruleA}, 2},
		{"by tenant", LogQuery{TenantID: "globex"}, 1},
		{"by status", LogQuery{Status: models.StatusFailed}, 1},
		{"by entity", LogQuery{EntityType: "invoice", EntityID: "i-1"}, 1},
		{"limit", LogQuery{Limit: 2}, 2},
		{"no match", LogQuery{TenantID: "nobody"}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := s.Query(ctx, tc.q)
			if err != nil {
				t.Fatalf("query: %v", err)
			}
			if len(got) != tc.want {
				t.Fatalf("got %d rows, want %d", len(got), tc.want)
			}
		})
	}

	from := time.Now().Add(time.Hour)
	got, err := s.Query(ctx, LogQuery{From: &from})
	if err != nil {
		t.Fatalf("query from: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("future from should match nothing, got %d", len(got))
	}
}

func TestRuleStoreUpsertByTenantName(t *testing.T) {
	s := NewMemRuleStore()
	ctx := context.Background()

	r := &models.Rule{TenantID: "acme", Name: "escalate", EntityType: "ticket",
		TriggerKind: models.TriggerEvent, EventKind: models.EventUpdated, Active: true}
	if err := s.Upsert(ctx, r); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	id := r.ID

	r2 := &models.Rule{TenantID: "acme", Name: "escalate", EntityType: "ticket",
		TriggerKind: models.TriggerEvent, EventKind: models.EventUpdated, Active: false}
	if err := s.Upsert(ctx, r2); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if r2.ID != id {
		t.Fatalf("upsert allocated new id %d, want %d", r2.ID, id)
	}

	rules, err := s.List(ctx, "acme")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rules) != 1 || rules[0].Active {
		t.Fatalf("rules = %+v", rules)
	}
}

func TestRuleStoreActiveByEvent(t *testing.T) {
	s := NewMemRuleStore()
	ctx := context.Background()

	seed := []*models.Rule{
		{TenantID: "t", Name: "a", TriggerKind: models.TriggerEvent, EntityType: "invoice", EventKind: models.EventUpdated, Active: true},
		{TenantID: "t", Name: "b", TriggerKind: models.TriggerEvent, EntityType: "invoice", EventKind: models.EventCreated, Active: true},
		{TenantID: "t", Name: "c", TriggerKind: models.TriggerEvent, EntityType: "invoice", EventKind: models.EventUpdated, Active: false},
		{TenantID: "t", Name: "d", TriggerKind: models.TriggerSchedule, Schedule: "0 2 * * *", Active: true},
	}
	for _, r := range seed {
		if err := s.Upsert(ctx, r); err != nil {
			t.Fatalf("upsert %s: %v", r.Name, err)
		}
	}

	got, err := s.ActiveByEvent(ctx, "invoice", models.EventUpdated)
	if err != nil {
		t.Fatalf("active by event: %v", err)
	}
	if len(got) != 1 || got[0].Name != "a" {
		t.Fatalf("got %+v", got)
	}

	scheds, err := s.ActiveSchedules(ctx)
	if err != nil {
		t.Fatalf("active schedules: %v", err)
	}
	if len(scheds) != 1 || scheds[0].Name != "d" {
		t.Fatalf("schedules = %+v", scheds)
	}
}
