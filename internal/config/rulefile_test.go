package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/quillon/ruleflow/internal/models"
	"github.com/quillon/ruleflow/internal/store"
)

func validEventDef() RuleDef {
	return RuleDef{
		Name:       "escalate",
		Tenant:     "acme",
		Trigger:    "event",
		EntityType: "ticket",
		Event:      "updated",
		Conditions: []ConditionDef{
			{Field: "priority", Operator: "equals", Value: "high"},
		},
		Actions: []ActionDef{
			{Type: "send_notification", Params: map[string]interface{}{"to": "oncall"}},
		},
	}
}

func TestToModelEvent(t *testing.T) {
	rule, err := validEventDef().ToModel()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rule.TriggerKind != models.TriggerEvent || rule.EventKind != models.EventUpdated {
		t.Fatalf("trigger = %s/%s", rule.TriggerKind, rule.EventKind)
	}
	if rule.Logic != models.LogicAll {
		t.Fatalf("default logic = %q", rule.Logic)
	}
	if !rule.Active {
		t.Fatal("active should default to true")
	}
	if len(rule.Conditions) != 1 || rule.Conditions[0].FieldPath != "priority" {
		t.Fatalf("conditions = %+v", rule.Conditions)
	}
	if len(rule.Actions) != 1 || rule.Actions[0].Order != 0 {
		t.Fatalf("actions = %+v", rule.Actions)
	}
}

func TestToModelSchedule(t *testing.T) {
	rule, err := RuleDef{
		Name:     "nightly-sweep",
		Trigger:  "schedule",
		Schedule: "0 2 * * *",
		Actions:  []ActionDef{{Type: "send_notification"}},
	}.ToModel()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rule.TriggerKind != models.TriggerSchedule || rule.Schedule != "0 2 * * *" {
		t.Fatalf("rule = %+v", rule)
	}
	if rule.TenantID != "default" {
		t.Fatalf("tenant = %q", rule.TenantID)
	}
}

func TestToModelInvalid(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*RuleDef)
	}{
		{"missing name", func(d *RuleDef) { d.Name = "" }},
		{"unknown trigger", func(d *RuleDef) { d.Trigger = "webhook" }},
		{"event without entity", func(d *RuleDef) { d.EntityType = "" }},
		{"event with schedule", func(d *RuleDef) { d.Schedule = "0 2 * * *" }},
		{"unknown event kind", func(d *RuleDef) { d.Event = "upserted" }},
		{"bad logic", func(d *RuleDef) { d.Logic = "some" }},
		{"unknown operator", func(d *RuleDef) { d.Conditions[0].Operator = "resembles" }},
		{"condition without field", func(d *RuleDef) { d.Conditions[0].Field = "" }},
		{"action without type", func(d *RuleDef) { d.Actions[0].Type = "" }},
		{"changed_to on created", func(d *RuleDef) {
			d.Event = "created"
			d.Conditions[0].Operator = "changed_to"
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			def := validEventDef()
			tc.mutate(&def)
			if _, err := def.ToModel(); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestToModelScheduleRejectsEventFields(t *testing.T) {
	_, err := RuleDef{
		Name:       "mixed",
		Trigger:    "schedule",
		Schedule:   "0 2 * * *",
		EntityType: "ticket",
	}.ToModel()
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestLoadAndSyncRuleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := `rules:
  - name: escalate
    tenant: acme
    trigger: event
    entity_type: ticket
    event: updated
    logic: any
    conditions:
      - field: priority
        operator: equals
        value: high
      - field: status
        operator: changed_to
        value: reopened
    actions:
      - type: send_notification
        params:
          to: oncall
  - name: broken
    trigger: webhook
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	rf, err := LoadRuleFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(rf.Rules) != 2 {
		t.Fatalf("rules = %d", len(rf.Rules))
	}

	rules := store.NewMemRuleStore()
	err = SyncRules(context.Background(), rf, rules)
	if err == nil || !strings.Contains(err.Error(), "broken") {
		t.Fatalf("sync error = %v", err)
	}

	// The valid rule still synced.
	synced, lerr := rules.List(context.Background(), "acme")
	if lerr != nil {
		t.Fatalf("list: %v", lerr)
	}
	if len(synced) != 1 || synced[0].Name != "escalate" {
		t.Fatalf("synced = %+v", synced)
	}
	if synced[0].Logic != models.LogicAny || len(synced[0].Conditions) != 2 {
		t.Fatalf("rule = %+v", synced[0])
	}
}

func TestConfigLoadOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf.yaml")
	content := `engine:
  workers: 4
  queue_depth: 32
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Engine.Workers != 4 || c.Engine.QueueDepth != 32 {
		t.Fatalf("engine = %+v", c.Engine)
	}
	// Untouched fields keep their defaults.
	if c.Engine.JobTimeoutMs != Default().Engine.JobTimeoutMs {
		t.Fatalf("timeout = %d", c.Engine.JobTimeoutMs)
	}
	if c.Log.Level != "debug" {
		t.Fatalf("log level = %q", c.Log.Level)
	}
}

func TestConfigValidate(t *testing.T) {
	c := Default()
	c.Engine.Workers = 0
	if err := c.Validate(); err == nil {
		t.Fatal("expected an error for zero workers")
	}
}
