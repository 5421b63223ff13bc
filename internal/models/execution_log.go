package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// LogStatus is the lifecycle state of one evaluation job. Transitions are
// monotonic: pending → evaluating → conditions_met|conditions_not_met →
// actions_running → completed|failed.
type LogStatus string

const (
	StatusPending          LogStatus = "pending"
	StatusEvaluating       LogStatus = "evaluating"
	StatusConditionsMet    LogStatus = "conditions_met"
	StatusConditionsNotMet LogStatus = "conditions_not_met"
	StatusActionsRunning   LogStatus = "actions_running"
	StatusCompleted        LogStatus = "completed"
	StatusFailed           LogStatus = "failed"
)

var statusRank = map[LogStatus]int{
	StatusPending:          0,
	StatusEvaluating:       1,
	StatusConditionsMet:    2,
	StatusConditionsNotMet: 2,
	StatusActionsRunning:   3,
	StatusCompleted:        4,
	StatusFailed:           4,
}

// Rank returns the position of s in the transition order, or -1 if unknown.
func (s LogStatus) Rank() int {
	r, ok := statusRank[s]
	if !ok {
		return -1
	}
	return r
}

// Terminal reports whether no further transitions or step appends are allowed.
func (s LogStatus) Terminal() bool {
	return s == StatusConditionsNotMet || s == StatusCompleted || s == StatusFailed
}

// Step statuses within ActionStepResult.
const (
	StepSuccess = "success"
	StepFailed  = "failed"
	StepSkipped = "skipped"
)

// ConditionResult is the audit record of one condition evaluation.
type ConditionResult struct {
	FieldPath string      `json:"field_path"`
	Operator  string      `json:"operator"`
	Expected  interface{} `json:"expected,omitempty"`
	Resolved  interface{} `json:"resolved,omitempty"`
	Absent    bool        `json:"absent,omitempty"`
	Met       bool        `json:"met"`
	Skipped   bool        `json:"skipped,omitempty"`
	Message   string      `json:"message,omitempty"`
}

// ActionStepResult is the audit record of one action step.
type ActionStepResult struct {
	Order      int                    `json:"order"`
	ActionType string                 `json:"action_type"`
	Params     map[string]interface{} `json:"params,omitempty"`
	Status     string                 `json:"status"`
	Message    string                 `json:"message,omitempty"`
	Before     map[string]interface{} `json:"before,omitempty"`
	After      map[string]interface{} `json:"after,omitempty"`
	At         time.Time              `json:"at"`
}

// ConditionResults is a JSON text column of ConditionResult.
type ConditionResults []ConditionResult

func (r ConditionResults) Value() (driver.Value, error) { return marshalColumn(r) }
func (r *ConditionResults) Scan(src interface{}) error  { return scanColumn(src, r) }

// StepResults is a JSON text column of ActionStepResult.
type StepResults []ActionStepResult

func (r StepResults) Value() (driver.Value, error) { return marshalColumn(r) }
func (r *StepResults) Scan(src interface{}) error  { return scanColumn(src, r) }

// ChangeSet is the changed-fields map captured at trigger time, keyed by
// field name. Stored so a job survives process restarts with its trigger
// context intact.
type ChangeSet map[string]FieldChange

// FieldChange carries the prior and new value of one field. HasOld is false
// on create events, where no prior state exists.
type FieldChange struct {
	Old    interface{} `json:"old,omitempty"`
	New    interface{} `json:"new,omitempty"`
	HasOld bool        `json:"has_old"`
}

func (c ChangeSet) Value() (driver.Value, error) { return marshalColumn(c) }
func (c *ChangeSet) Scan(src interface{}) error  { return scanColumn(src, c) }

func marshalColumn(v interface{}) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func scanColumn(src, dst interface{}) error {
	if src == nil {
		return nil
	}
	var b []byte
	switch s := src.(type) {
	case []byte:
		b = s
	case string:
		b = []byte(s)
	default:
		return fmt.Errorf("log column: cannot scan %T", src)
	}
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, dst)
}

// ExecutionLog is the durable audit trail of one (rule, trigger) job. The
// rule reference is nullable so logs survive rule deletion; RuleName is
// denormalized at creation for that case.
type ExecutionLog struct {
	ID          string      `gorm:"primaryKey;size:36" json:"id"`
	RuleID      *uint       `gorm:"index" json:"rule_id,omitempty"`
	RuleName    string      `gorm:"size:255" json:"rule_name"`
	TenantID    string      `gorm:"size:64;index" json:"tenant_id"`
	TriggerKind TriggerKind `gorm:"size:16;not null" json:"trigger_kind"`
	EntityType  string      `gorm:"size:128;index:idx_logs_trigger_ref" json:"entity_type,omitempty"`
	EntityID    string      `gorm:"size:64;index:idx_logs_trigger_ref" json:"entity_id,omitempty"`
	EventKind   EventKind   `gorm:"size:16" json:"event_kind,omitempty"`

	// DedupeKey is unique per job. Schedule jobs use rule+minute so a
	// duplicate tick for the same minute cannot double-enqueue.
	DedupeKey string `gorm:"size:128;not null;uniqueIndex" json:"dedupe_key"`

	Status LogStatus `gorm:"size:24;not null;index" json:"status"`

	Changes  ChangeSet `gorm:"type:text" json:"changes,omitempty"`
	Snapshot JSONMap   `gorm:"type:text" json:"snapshot,omitempty"`

	ConditionResults ConditionResults `gorm:"type:text" json:"condition_results,omitempty"`
	StepResults      StepResults      `gorm:"type:text" json:"step_results,omitempty"`
	ErrorMessage     string           `gorm:"type:text" json:"error_message,omitempty"`

	// Attempt starts at 1; retries create fresh rows pointing back via RetryOf.
	Attempt int    `gorm:"default:1" json:"attempt"`
	RetryOf string `gorm:"size:36" json:"retry_of,omitempty"`

	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}

func (ExecutionLog) TableName() string {
	return "execution_logs"
}
