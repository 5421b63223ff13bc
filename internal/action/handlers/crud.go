// Package handlers ships the built-in action types: record CRUD plus
// notification and outbound-webhook examples of non-CRUD actions.
package handlers

import (
	"context"
	"fmt"

	"github.com/quillon/ruleflow/internal/action"
	"github.com/quillon/ruleflow/internal/record"
)

// RegisterBuiltins installs every built-in handler into reg. Called once at
// process start.
func RegisterBuiltins(reg *action.Registry) {
	reg.Register(&CreateRecord{})
	reg.Register(&UpdateRecord{})
	reg.Register(&DeleteRecord{})
	reg.Register(&SendNotification{})
	reg.Register(NewCallWebhook())
}

// CreateRecord handles "create_record": inserts a record of params.entity_type
// with params.fields.
type CreateRecord struct{}

func (CreateRecord) Type() string { return "create_record" }

func (CreateRecord) Validate(params map[string]interface{}) error {
	if s, _ := params["entity_type"].(string); s == "" {
		return fmt.Errorf("create_record: entity_type is required")
	}
	return nil
}

func (CreateRecord) Execute(ctx context.Context, ec *action.ExecContext, params map[string]interface{}) (*action.Result, error) {
	entityType, _ := params["entity_type"].(string)
	fields, _ := params["fields"].(map[string]interface{})
	rec, err := ec.Store.Create(ctx, entityType, fields)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", entityType, err)
	}
	return &action.Result{
		Success: true,
		Message: fmt.Sprintf("created %s/%s", rec.Type, rec.ID),
		After:   rec.Fields,
	}, nil
}

// UpdateRecord handles "update_record": applies params.fields to a target
// record. The target is the triggering record unless params name an explicit
// record_id or a record_path (relation hops from the triggering record).
type UpdateRecord struct{}

func (UpdateRecord) Type() string { return "update_record" }

func (UpdateRecord) Validate(params map[string]interface{}) error {
	if _, ok := params["fields"].(map[string]interface{}); !ok {
		return fmt.Errorf("update_record: fields map is required")
	}
	return nil
}

func (UpdateRecord) Execute(ctx context.Context, ec *action.ExecContext, params map[string]interface{}) (*action.Result, error) {
	target, failMsg, err := resolveTarget(ctx, ec, params)
	if err != nil {
		return nil, err
	}
	if failMsg != "" {
		return &action.Result{Success: false, Message: failMsg}, nil
	}
	fields, _ := params["fields"].(map[string]interface{})
	updated, err := ec.Store.Update(ctx, target.Type, target.ID, fields)
	if err != nil {
		return nil, fmt.Errorf("update %s/%s: %w", target.Type, target.ID, err)
	}
	return &action.Result{
		Success: true,
		Message: fmt.Sprintf("updated %s/%s", target.Type, target.ID),
		Before:  target.Fields,
		After:   updated.Fields,
	}, nil
}

// DeleteRecord handles "delete_record" with the same target resolution as
// update_record.
type DeleteRecord struct{}

func (DeleteRecord) Type() string { return "delete_record" }

func (DeleteRecord) Validate(params map[string]interface{}) error { return nil }

func (DeleteRecord) Execute(ctx context.Context, ec *action.ExecContext, params map[string]interface{}) (*action.Result, error) {
	target, failMsg, err := resolveTarget(ctx, ec, params)
	if err != nil {
		return nil, err
	}
	if failMsg != "" {
		return &action.Result{Success: false, Message: failMsg}, nil
	}
	if err := ec.Store.Delete(ctx, target.Type, target.ID); err != nil {
		return nil, fmt.Errorf("delete %s/%s: %w", target.Type, target.ID, err)
	}
	return &action.Result{
		Success: true,
		Message: fmt.Sprintf("deleted %s/%s", target.Type, target.ID),
		Before:  target.Fields,
	}, nil
}

// resolveTarget finds the record a CRUD action operates on. Precedence:
// explicit record_id (with entity_type), then record_path relative to the
// triggering record, then the triggering record itself. A non-empty failMsg
// is a business failure; err is an execution fault.
func resolveTarget(ctx context.Context, ec *action.ExecContext, params map[string]interface{}) (target *record.Record, failMsg string, err error) {
	if id, ok := params["record_id"].(string); ok && id != "" {
		entityType, _ := params["entity_type"].(string)
		if entityType == "" {
			return nil, "entity_type is required with record_id", nil
		}
		rec, err := ec.Store.Get(ctx, entityType, id)
		if err != nil {
			return nil, fmt.Sprintf("target %s/%s not found: %s", entityType, id, err), nil
		}
		return rec, "", nil
	}
	if path, ok := params["record_path"].(string); ok && path != "" {
		rec, found, err := record.ResolveRecord(ctx, ec.Store, ec.Schema, ec.Record, record.SplitPath(path))
		if err != nil {
			return nil, "", err
		}
		if !found {
			return nil, fmt.Sprintf("record_path %q resolved to no record", path), nil
		}
		return rec, "", nil
	}
	if ec.Record == nil {
		return nil, "no triggering record and no explicit target", nil
	}
	return ec.Record, "", nil
}
