package action

import (
	"context"
	"testing"

	"github.com/quillon/ruleflow/internal/record"
)

func paramsContext(t *testing.T) *ExecContext {
	t.Helper()
	store := record.NewMemStore()
	schema := record.NewSchema()
	inv, err := store.Create(context.Background(), "invoice", map[string]interface{}{
		"id":     "inv-7",
		"status": "approved",
		"amount": 1250.5,
	})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	return &ExecContext{
		Store:      store,
		Schema:     schema,
		Record:     inv,
		EntityType: "invoice",
		EntityID:   "inv-7",
		EventKind:  "updated",
		TenantID:   "acme",
	}
}

func TestSubstituteParams(t *testing.T) {
	ec := paramsContext(t)
	params := map[string]interface{}{
		"subject": "invoice {{trigger.entity_id}} is now {{record.status}}",
		"amount":  "{{record.amount}}",
		"event":   "{{trigger.event}}",
		"static":  42,
		"nested": map[string]interface{}{
			"tenant": "{{trigger.tenant}}",
		},
		"list": []interface{}{"{{record.status}}", "plain"},
	}

	got := SubstituteParams(context.Background(), ec, params)

	if got["subject"] != "invoice inv-7 is now approved" {
		t.Fatalf("subject = %v", got["subject"])
	}
	// Whole-string placeholder keeps the resolved type.
	if v, ok := got["amount"].(float64); !ok || v != 1250.5 {
		t.Fatalf("amount = %v (%T)", got["amount"], got["amount"])
	}
	if got["event"] != "updated" {
		t.Fatalf("event = %v", got["event"])
	}
	if got["static"] != 42 {
		t.Fatalf("static = %v", got["static"])
	}
	nested := got["nested"].(map[string]interface{})
	if nested["tenant"] != "acme" {
		t.Fatalf("nested tenant = %v", nested["tenant"])
	}
	list := got["list"].([]interface{})
	if list[0] != "approved" || list[1] != "plain" {
		t.Fatalf("list = %v", list)
	}
}

func TestSubstituteUnresolvable(t *testing.T) {
	ec := paramsContext(t)
	got := SubstituteParams(context.Background(), ec, map[string]interface{}{
		"whole":    "{{record.missing}}",
		"embedded": "value: {{record.missing}}!",
		"badroot":  "{{other.thing}}",
	})
	if got["whole"] != nil {
		t.Fatalf("whole = %v", got["whole"])
	}
	if got["embedded"] != "value: !" {
		t.Fatalf("embedded = %v", got["embedded"])
	}
	if got["badroot"] != nil {
		t.Fatalf("badroot = %v", got["badroot"])
	}
}

func TestSubstituteNilRecord(t *testing.T) {
	ec := paramsContext(t)
	ec.Record = nil
	got := SubstituteParams(context.Background(), ec, map[string]interface{}{
		"v": "{{record.status}}",
	})
	if got["v"] != nil {
		t.Fatalf("v = %v", got["v"])
	}
}
