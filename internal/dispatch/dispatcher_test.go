package dispatch

import (
	"context"
	"testing"

	"github.com/quillon/ruleflow/internal/engine"
	"github.com/quillon/ruleflow/internal/models"
	"github.com/quillon/ruleflow/internal/record"
	"github.com/quillon/ruleflow/internal/store"
)

type captureQueue struct {
	jobs   []*engine.Job
	reject bool
}

func (q *captureQueue) Submit(job *engine.Job) bool {
	if q.reject {
		return false
	}
	q.jobs = append(q.jobs, job)
	return true
}

func seedRules(t *testing.T, rules ...*models.Rule) *store.MemRuleStore {
	t.Helper()
	s := store.NewMemRuleStore()
	for _, r := range rules {
		if err := s.Upsert(context.Background(), r); err != nil {
			t.Fatalf("upsert %s: %v", r.Name, err)
		}
	}
	return s
}

func eventRule(name, entityType string, kind models.EventKind, active bool) *models.Rule {
	return &models.Rule{
		TenantID: "acme", Name: name,
		TriggerKind: models.TriggerEvent, EntityType: entityType, EventKind: kind,
		Logic: models.LogicAll, Active: active,
	}
}

func TestOnMutationEnqueuesPerMatchingRule(t *testing.T) {
	rules := seedRules(t,
		eventRule("a", "invoice", models.EventUpdated, true),
		eventRule("b", "invoice", models.EventUpdated, true),
		eventRule("c", "invoice", models.EventCreated, true),
		eventRule("d", "order", models.EventUpdated, true),
		eventRule("e", "invoice", models.EventUpdated, false),
	)
	logs := store.NewMemLogStore()
	q := &captureQueue{}
	d := New(rules, logs, q)

	d.OnMutation(context.Background(), record.Mutation{
		EntityType: "invoice",
		Kind:       "updated",
		RecordID:   "inv-1",
		Changes: map[string]record.FieldDelta{
			"status": {Old: "draft", New: "approved", HasOld: true},
		},
	})

	if len(q.jobs) != 2 {
		t.Fatalf("enqueued %d jobs, want 2", len(q.jobs))
	}
	for _, job := range q.jobs {
		if job.EntityID != "inv-1" || job.EventKind != models.EventUpdated {
			t.Fatalf("job = %+v", job)
		}
		fc, ok := job.Changes["status"]
		if !ok || fc.New != "approved" || !fc.HasOld {
			t.Fatalf("changes = %+v", job.Changes)
		}
		row, err := logs.Get(context.Background(), job.LogID)
		if err != nil {
			t.Fatalf("pending row missing for %s: %v", job.LogID, err)
		}
		if row.Status != models.StatusPending {
			t.Fatalf("row status = %s", row.Status)
		}
	}
}

func TestOnMutationNoMatches(t *testing.T) {
	rules := seedRules(t, eventRule("a", "invoice", models.EventUpdated, true))
	logs := store.NewMemLogStore()
	q := &captureQueue{}
	d := New(rules, logs, q)

	d.OnMutation(context.Background(), record.Mutation{
		EntityType: "payment", Kind: "updated", RecordID: "p-1",
	})
	if len(q.jobs) != 0 {
		t.Fatalf("jobs = %d", len(q.jobs))
	}
	pending, _ := logs.Pending(context.Background())
	if len(pending) != 0 {
		t.Fatalf("pending rows = %d", len(pending))
	}
}

func TestOnMutationDeleteBuildsSnapshot(t *testing.T) {
	rules := seedRules(t, eventRule("a", "invoice", models.EventDeleted, true))
	logs := store.NewMemLogStore()
	q := &captureQueue{}
	d := New(rules, logs, q)

	d.OnMutation(context.Background(), record.Mutation{
		EntityType: "invoice", Kind: "deleted", RecordID: "inv-9",
		Changes: map[string]record.FieldDelta{
			"status": {Old: "paid", HasOld: true},
			"amount": {Old: 50.0, HasOld: true},
		},
	})

	if len(q.jobs) != 1 {
		t.Fatalf("jobs = %d", len(q.jobs))
	}
	snap := q.jobs[0].Snapshot
	if snap["status"] != "paid" || snap["amount"] != 50.0 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestOnMutationQueueFullLeavesRowPending(t *testing.T) {
	rules := seedRules(t, eventRule("a", "invoice", models.EventUpdated, true))
	logs := store.NewMemLogStore()
	q := &captureQueue{reject: true}
	d := New(rules, logs, q)

	d.OnMutation(context.Background(), record.Mutation{
		EntityType: "invoice", Kind: "updated", RecordID: "inv-1",
	})

	pending, err := logs.Pending(context.Background())
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending rows = %d, want 1 for recovery", len(pending))
	}
}
