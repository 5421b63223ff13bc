// Package action holds the registry of side-effecting action handlers and
// the sequential runner that executes a rule's ordered action list.
package action

import (
	"context"
	"errors"
	"fmt"

	"github.com/quillon/ruleflow/internal/record"
)

// ErrUnknownType marks a configuration error: the rule references an action
// type nobody registered. Jobs failing on it are never retried.
var ErrUnknownType = errors.New("no handler registered for action type")

// Result is the outcome of one handler invocation. Before/After are only
// populated by handlers that mutate records.
type Result struct {
	Success bool
	Message string
	Before  map[string]interface{}
	After   map[string]interface{}
}

// ExecContext is the trigger context an action executes against. Record is
// the triggering record and may be nil (schedule triggers, deleted records).
type ExecContext struct {
	Store      record.Store
	Schema     *record.Schema
	Record     *record.Record
	EntityType string
	EntityID   string
	EventKind  string
	TenantID   string
}

// Handler is the interface every action implements. Registration happens at
// process start; Validate is called when rule definitions are loaded.
type Handler interface {
	Type() string
	Validate(params map[string]interface{}) error
	Execute(ctx context.Context, ec *ExecContext, params map[string]interface{}) (*Result, error)
}

// FailedError reports the step that stopped an action sequence. Transient
// distinguishes execution faults (handler returned an error, worth a retry)
// from business failures and configuration errors (final).
type FailedError struct {
	Order      int
	ActionType string
	Transient  bool
	Msg        string
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("action %d (%s) failed: %s", e.Order, e.ActionType, e.Msg)
}
