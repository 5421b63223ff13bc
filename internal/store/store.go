// Package store persists rules and execution logs. The log store is the
// engine's only durable mutable state: rows are created at enqueue time
// (doubling as the job queue's dedupe surface) and appended to as the worker
// progresses, never rewritten after a terminal status.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/quillon/ruleflow/internal/models"
)

// ErrDuplicateJob is returned when a log row with the same dedupe key
// already exists. Scheduler ticks rely on it to absorb duplicate minutes.
var ErrDuplicateJob = errors.New("duplicate job for dedupe key")

// ErrNotFound is returned for missing rules or logs.
var ErrNotFound = errors.New("not found")

// ErrInvalidTransition is returned when a status update would move
// backwards or leave a terminal state.
var ErrInvalidTransition = errors.New("invalid status transition")

// RuleStore is the read/write surface for rule definitions.
type RuleStore interface {
	// Get loads one rule with conditions and actions in declared order.
	Get(ctx context.Context, id uint) (*models.Rule, error)
	// ActiveByEvent returns active event-triggered rules matching the
	// entity type and event kind.
	ActiveByEvent(ctx context.Context, entityType string, kind models.EventKind) ([]models.Rule, error)
	// ActiveSchedules returns all active schedule-triggered rules.
	ActiveSchedules(ctx context.Context) ([]models.Rule, error)
	// List returns rules, optionally filtered by tenant.
	List(ctx context.Context, tenantID string) ([]models.Rule, error)
	// Upsert creates or replaces a rule by (tenant, name), used by the
	// declarative rules-file sync.
	Upsert(ctx context.Context, rule *models.Rule) error
	// SetActive flips the active flag; deactivation stops future
	// triggering without touching history.
	SetActive(ctx context.Context, id uint, active bool) error
}

// LogQuery filters the execution-log query surface.
type LogQuery struct {
	RuleID     *uint
	TenantID   string
	Status     models.LogStatus
	EntityType string
	EntityID   string
	From       *time.Time
	To         *time.Time
	Limit      int
}

// LogStore is the append/update surface for execution logs. Each job owns
// its own row; concurrent appends to different rows are safe.
type LogStore interface {
	// Create inserts a new log row, returning ErrDuplicateJob when the
	// dedupe key is taken.
	Create(ctx context.Context, log *models.ExecutionLog) error
	// Transition moves the row's status forward. Backwards moves and
	// updates to terminal rows return ErrInvalidTransition. StartedAt is
	// stamped on the first non-pending status, FinishedAt on terminal ones.
	Transition(ctx context.Context, id string, to models.LogStatus) error
	// SetConditionResults records the evaluation audit trail.
	SetConditionResults(ctx context.Context, id string, results []models.ConditionResult) error
	// AppendStep appends one action step result. Appending to a terminal
	// row returns ErrInvalidTransition.
	AppendStep(ctx context.Context, id string, step models.ActionStepResult) error
	// Fail transitions to failed and records the top-level error message.
	Fail(ctx context.Context, id string, msg string) error
	// Get loads one row.
	Get(ctx context.Context, id string) (*models.ExecutionLog, error)
	// Pending returns non-started rows for startup recovery.
	Pending(ctx context.Context) ([]models.ExecutionLog, error)
	// Query serves the read-only observability surface.
	Query(ctx context.Context, q LogQuery) ([]models.ExecutionLog, error)
}
