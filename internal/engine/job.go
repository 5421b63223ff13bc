package engine

import (
	"github.com/google/uuid"

	"github.com/quillon/ruleflow/internal/models"
)

// Job is one instance of evaluating a rule against a specific trigger
// occurrence. The corresponding execution-log row (LogID) is created by the
// producer at enqueue time, making the queue durable and giving schedule
// triggers their dedupe surface.
type Job struct {
	LogID       string
	RuleID      uint
	TriggerKind models.TriggerKind
	EntityType  string
	EntityID    string
	EventKind   models.EventKind
	Changes     models.ChangeSet
	Snapshot    map[string]interface{}
	Attempt     int
}

// NewLogRow builds the pending execution-log row for j. Producers persist it
// before submitting the job.
func (j *Job) NewLogRow(rule *models.Rule, dedupeKey string) *models.ExecutionLog {
	if j.LogID == "" {
		j.LogID = uuid.New().String()
	}
	if dedupeKey == "" {
		dedupeKey = j.LogID
	}
	ruleID := rule.ID
	return &models.ExecutionLog{
		ID:          j.LogID,
		RuleID:      &ruleID,
		RuleName:    rule.Name,
		TenantID:    rule.TenantID,
		TriggerKind: j.TriggerKind,
		EntityType:  j.EntityType,
		EntityID:    j.EntityID,
		EventKind:   j.EventKind,
		DedupeKey:   dedupeKey,
		Status:      models.StatusPending,
		Changes:     j.Changes,
		Snapshot:    j.Snapshot,
		Attempt:     j.Attempt,
	}
}

// jobFromLog rebuilds a Job from a persisted pending row (startup recovery).
func jobFromLog(log *models.ExecutionLog) *Job {
	j := &Job{
		LogID:       log.ID,
		TriggerKind: log.TriggerKind,
		EntityType:  log.EntityType,
		EntityID:    log.EntityID,
		EventKind:   log.EventKind,
		Changes:     log.Changes,
		Snapshot:    log.Snapshot,
		Attempt:     log.Attempt,
	}
	if log.RuleID != nil {
		j.RuleID = *log.RuleID
	}
	return j
}
