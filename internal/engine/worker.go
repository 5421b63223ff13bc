package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quillon/ruleflow/internal/action"
	"github.com/quillon/ruleflow/internal/condition"
	"github.com/quillon/ruleflow/internal/config"
	"github.com/quillon/ruleflow/internal/logger"
	"github.com/quillon/ruleflow/internal/metrics"
	"github.com/quillon/ruleflow/internal/models"
	"github.com/quillon/ruleflow/internal/record"
	"github.com/quillon/ruleflow/internal/store"
)

// worker drives one job through its states: pending → evaluating →
// conditions_met|conditions_not_met → actions_running → completed|failed.
// Terminal states are final; retries are fresh jobs with fresh log rows.
type worker struct {
	rules    store.RuleStore
	logs     store.LogStore
	registry *action.Registry
	records  record.Store
	schema   *record.Schema
	conf     config.EngineConf

	// retry re-enqueues a fresh job after a backoff delay; wired by Engine.
	retry func(job *Job, delay time.Duration)
}

func (w *worker) process(ctx context.Context, job *Job) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, time.Duration(w.conf.JobTimeoutMs)*time.Millisecond)
	defer cancel()

	status := w.run(ctx, job)

	metrics.JobsProcessed.WithLabelValues(string(status)).Inc()
	metrics.JobDuration.Observe(float64(time.Since(start).Milliseconds()))
}

func (w *worker) run(ctx context.Context, job *Job) models.LogStatus {
	rule, err := w.rules.Get(ctx, job.RuleID)
	if err != nil {
		// Rule deleted between enqueue and execution; the log row keeps
		// its denormalized name, the job just cannot proceed.
		w.fail(job, fmt.Sprintf("rule %d no longer loadable: %s", job.RuleID, err))
		return models.StatusFailed
	}

	if !rule.Active {
		// Deactivation stops queued work; in-flight jobs already past this
		// point run to completion.
		w.fail(job, "rule deactivated before execution")
		return models.StatusFailed
	}

	if rule.DelaySecs > 0 {
		select {
		case <-time.After(time.Duration(rule.DelaySecs) * time.Second):
		case <-ctx.Done():
			w.fail(job, w.timeoutMsg(ctx))
			return models.StatusFailed
		}
	}

	if err := w.logs.Transition(ctx, job.LogID, models.StatusEvaluating); err != nil {
		// Already claimed or terminal; nothing to do. Makes duplicate
		// delivery after recovery harmless.
		logger.Warn("job not claimable", zap.String("log_id", job.LogID), zap.Error(err))
		return models.StatusFailed
	}

	met, results, evalErr := w.evaluate(ctx, job, rule)
	if err := w.logs.SetConditionResults(ctx, job.LogID, results); err != nil {
		logger.Error("condition results not recorded", zap.String("log_id", job.LogID), zap.Error(err))
	}
	if evalErr != nil {
		if ctx.Err() != nil {
			w.fail(job, w.timeoutMsg(ctx))
			return models.StatusFailed
		}
		if errors.Is(evalErr, condition.ErrUnknownOperator) {
			w.fail(job, evalErr.Error())
			return models.StatusFailed
		}
		// Store failure during relationship lookups: transient.
		w.fail(job, evalErr.Error())
		w.maybeRetry(job, rule)
		return models.StatusFailed
	}

	if !met {
		if err := w.logs.Transition(ctx, job.LogID, models.StatusConditionsNotMet); err != nil {
			logger.Error("status not recorded", zap.String("log_id", job.LogID), zap.Error(err))
		}
		return models.StatusConditionsNotMet
	}

	if err := w.logs.Transition(ctx, job.LogID, models.StatusConditionsMet); err != nil {
		logger.Error("status not recorded", zap.String("log_id", job.LogID), zap.Error(err))
	}
	if err := w.logs.Transition(ctx, job.LogID, models.StatusActionsRunning); err != nil {
		logger.Error("status not recorded", zap.String("log_id", job.LogID), zap.Error(err))
	}

	return w.runActions(ctx, job, rule)
}

func (w *worker) evaluate(ctx context.Context, job *Job, rule *models.Rule) (bool, []models.ConditionResult, error) {
	root, err := w.loadRoot(ctx, job)
	if err != nil {
		return false, nil, err
	}

	conds := make([]condition.Condition, 0, len(rule.Conditions))
	ordered := append([]models.RuleCondition(nil), rule.Conditions...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })
	for _, c := range ordered {
		conds = append(conds, condition.Condition{
			FieldPath: c.FieldPath,
			Operator:  condition.Operator(c.Operator),
			Value:     c.Value.V,
		})
	}

	changes := make(map[string]record.FieldDelta, len(job.Changes))
	for k, v := range job.Changes {
		changes[k] = record.FieldDelta{Old: v.Old, New: v.New, HasOld: v.HasOld}
	}

	return condition.Evaluate(ctx, conds, rule.Logic, &condition.EvalContext{
		Store:   w.records,
		Schema:  w.schema,
		Root:    root,
		Changes: changes,
	})
}

// loadRoot loads the triggering record, falling back to the trigger-time
// snapshot when the record is already gone (delete events).
func (w *worker) loadRoot(ctx context.Context, job *Job) (*record.Record, error) {
	if job.EntityID == "" {
		return nil, nil
	}
	rec, err := w.records.Get(ctx, job.EntityType, job.EntityID)
	if err == nil {
		return rec, nil
	}
	if errors.Is(err, record.ErrNotFound) || errors.Is(err, record.ErrUnknownEntity) {
		if job.Snapshot != nil {
			return &record.Record{Type: job.EntityType, ID: job.EntityID, Fields: job.Snapshot}, nil
		}
		return nil, nil
	}
	return nil, err
}

func (w *worker) runActions(ctx context.Context, job *Job, rule *models.Rule) models.LogStatus {
	root, err := w.loadRoot(ctx, job)
	if err != nil {
		// Store failure between evaluation and execution: transient.
		w.fail(job, err.Error())
		w.maybeRetry(job, rule)
		return models.StatusFailed
	}
	ec := &action.ExecContext{
		Store:      w.records,
		Schema:     w.schema,
		Record:     root,
		EntityType: job.EntityType,
		EntityID:   job.EntityID,
		EventKind:  string(job.EventKind),
		TenantID:   rule.TenantID,
	}

	sink := func(step models.ActionStepResult) error {
		metrics.ActionsExecuted.WithLabelValues(step.ActionType, step.Status).Inc()
		return w.logs.AppendStep(ctx, job.LogID, step)
	}

	err = action.Run(ctx, w.registry, ec, rule.Actions, sink)
	if err == nil {
		if terr := w.logs.Transition(ctx, job.LogID, models.StatusCompleted); terr != nil {
			logger.Error("status not recorded", zap.String("log_id", job.LogID), zap.Error(terr))
		}
		return models.StatusCompleted
	}

	if ctx.Err() != nil {
		w.fail(job, w.timeoutMsg(ctx))
		return models.StatusFailed
	}

	var fe *action.FailedError
	if errors.As(err, &fe) {
		w.fail(job, fe.Error())
		if fe.Transient {
			w.maybeRetry(job, rule)
		}
		return models.StatusFailed
	}

	// Log store write failure mid-sequence: infrastructure fault.
	w.fail(job, err.Error())
	w.maybeRetry(job, rule)
	return models.StatusFailed
}

func (w *worker) fail(job *Job, msg string) {
	// Terminal writes use a fresh context so a timed-out job still records
	// its failure.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.logs.Fail(ctx, job.LogID, msg); err != nil {
		logger.Error("failure not recorded",
			zap.String("log_id", job.LogID),
			zap.String("msg", msg),
			zap.Error(err),
		)
	}
}

func (w *worker) timeoutMsg(ctx context.Context) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Sprintf("job exceeded execution timeout of %dms", w.conf.JobTimeoutMs)
	}
	return "job cancelled"
}

// maybeRetry spawns a fresh job with its own log row after a backoff delay.
// Only transient execution faults land here; business failures and
// configuration errors are final.
func (w *worker) maybeRetry(job *Job, rule *models.Rule) {
	if job.Attempt > w.conf.MaxRetries {
		return
	}
	next := &Job{
		LogID:       uuid.New().String(),
		RuleID:      job.RuleID,
		TriggerKind: job.TriggerKind,
		EntityType:  job.EntityType,
		EntityID:    job.EntityID,
		EventKind:   job.EventKind,
		Changes:     job.Changes,
		Snapshot:    job.Snapshot,
		Attempt:     job.Attempt + 1,
	}
	row := next.NewLogRow(rule, "")
	row.RetryOf = job.LogID

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.logs.Create(ctx, row); err != nil {
		logger.Error("retry job not persisted", zap.String("retry_of", job.LogID), zap.Error(err))
		return
	}

	backoff := time.Duration(w.conf.RetryBackoffMs) * time.Millisecond << (job.Attempt - 1)
	metrics.JobRetries.Inc()
	logger.Info("retry scheduled",
		zap.String("log_id", next.LogID),
		zap.String("retry_of", job.LogID),
		zap.Int("attempt", next.Attempt),
		zap.Duration("backoff", backoff),
	)
	w.retry(next, backoff)
}
