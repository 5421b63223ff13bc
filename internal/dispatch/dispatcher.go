// Package dispatch turns data-mutation events into evaluation jobs.
package dispatch

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/quillon/ruleflow/internal/engine"
	"github.com/quillon/ruleflow/internal/logger"
	"github.com/quillon/ruleflow/internal/metrics"
	"github.com/quillon/ruleflow/internal/models"
	"github.com/quillon/ruleflow/internal/record"
	"github.com/quillon/ruleflow/internal/store"
)

// Queue is the engine surface the dispatcher enqueues into.
type Queue interface {
	Submit(job *engine.Job) bool
}

// Dispatcher matches mutation events against active event-triggered rules
// and enqueues one job per (rule, event) pair. It never propagates errors
// back to the mutation source: queuing failures are logged and the persisted
// pending row is recovered later.
type Dispatcher struct {
	rules store.RuleStore
	logs  store.LogStore
	queue Queue
}

func New(rules store.RuleStore, logs store.LogStore, queue Queue) *Dispatcher {
	return &Dispatcher{rules: rules, logs: logs, queue: queue}
}

// OnMutation handles one mutation event. For delete events the mutation's
// snapshot preserves the record's field values so conditions can still be
// evaluated after the row is gone.
func (d *Dispatcher) OnMutation(ctx context.Context, mut record.Mutation) {
	kind := models.EventKind(mut.Kind)
	metrics.EventsDispatched.WithLabelValues(mut.Kind).Inc()

	rules, err := d.rules.ActiveByEvent(ctx, mut.EntityType, kind)
	if err != nil {
		logger.Error("rule lookup failed",
			zap.String("entity_type", mut.EntityType),
			zap.String("event", mut.Kind),
			zap.Error(err),
		)
		return
	}
	if len(rules) == 0 {
		return
	}

	changes := make(models.ChangeSet, len(mut.Changes))
	for field, delta := range mut.Changes {
		changes[field] = models.FieldChange{Old: delta.Old, New: delta.New, HasOld: delta.HasOld}
	}
	snapshot := mut.Snapshot
	if kind == models.EventDeleted && snapshot == nil {
		// Fall back to the old side of the change map.
		snapshot = make(map[string]interface{}, len(mut.Changes))
		for field, delta := range mut.Changes {
			snapshot[field] = delta.Old
		}
	}

	for i := range rules {
		rule := &rules[i]
		job := &engine.Job{
			RuleID:      rule.ID,
			TriggerKind: models.TriggerEvent,
			EntityType:  mut.EntityType,
			EntityID:    mut.RecordID,
			EventKind:   kind,
			Changes:     changes,
			Attempt:     1,
		}
		if kind == models.EventDeleted {
			job.Snapshot = snapshot
		}
		row := job.NewLogRow(rule, "")
		if err := d.logs.Create(ctx, row); err != nil {
			if !errors.Is(err, store.ErrDuplicateJob) {
				logger.Error("job row not persisted",
					zap.Uint("rule_id", rule.ID),
					zap.String("entity_id", mut.RecordID),
					zap.Error(err),
				)
			}
			continue
		}
		if !d.queue.Submit(job) {
			logger.Warn("queue full, job deferred to recovery",
				zap.Uint("rule_id", rule.ID),
				zap.String("log_id", job.LogID),
			)
		}
	}
}
