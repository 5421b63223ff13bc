package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/quillon/ruleflow/internal/condition"
	"github.com/quillon/ruleflow/internal/models"
	"github.com/quillon/ruleflow/internal/store"
)

// RuleFile is a declarative rule set synced into the rule store, keyed by
// (tenant, name). It is an operational convenience: the management surface
// owns rules in production, the file covers boot seeding and dev.
type RuleFile struct {
	Rules []RuleDef `yaml:"rules"`
}

type RuleDef struct {
	Name       string         `yaml:"name"`
	Tenant     string         `yaml:"tenant"`
	Trigger    string         `yaml:"trigger"` // event | schedule
	EntityType string         `yaml:"entity_type"`
	Event      string         `yaml:"event"` // created | updated | deleted
	Schedule   string         `yaml:"schedule"`
	Logic      string         `yaml:"logic"` // all | any
	Active     *bool          `yaml:"active"`
	DelaySecs  int            `yaml:"delay_seconds"`
	Conditions []ConditionDef `yaml:"conditions"`
	Actions    []ActionDef    `yaml:"actions"`
}

type ConditionDef struct {
	Field    string      `yaml:"field"`
	Operator string      `yaml:"operator"`
	Value    interface{} `yaml:"value"`
}

type ActionDef struct {
	Type   string                 `yaml:"type"`
	Params map[string]interface{} `yaml:"params"`
}

// LoadRuleFile reads and parses a rules YAML.
func LoadRuleFile(path string) (*RuleFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rules file: read %s: %w", path, err)
	}
	var rf RuleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("rules file: parse %s: %w", path, err)
	}
	return &rf, nil
}

// ToModel converts a definition into a Rule, enforcing the trigger
// invariants: exactly one of the event fields or schedule populated, and
// changed_to/changed_from only on update-event rules.
func (d RuleDef) ToModel() (*models.Rule, error) {
	if d.Name == "" {
		return nil, fmt.Errorf("rule: name is required")
	}
	rule := &models.Rule{
		TenantID:  d.Tenant,
		Name:      d.Name,
		Logic:     d.Logic,
		Active:    true,
		DelaySecs: d.DelaySecs,
	}
	if rule.TenantID == "" {
		rule.TenantID = "default"
	}
	if rule.Logic == "" {
		rule.Logic = models.LogicAll
	}
	if rule.Logic != models.LogicAll && rule.Logic != models.LogicAny {
		return nil, fmt.Errorf("rule %s: logic must be all or any, got %q", d.Name, d.Logic)
	}
	if d.Active != nil {
		rule.Active = *d.Active
	}

	switch d.Trigger {
	case "event":
		if d.EntityType == "" || d.Event == "" {
			return nil, fmt.Errorf("rule %s: event trigger requires entity_type and event", d.Name)
		}
		if d.Schedule != "" {
			return nil, fmt.Errorf("rule %s: event trigger must not set schedule", d.Name)
		}
		kind := models.EventKind(d.Event)
		if kind != models.EventCreated && kind != models.EventUpdated && kind != models.EventDeleted {
			return nil, fmt.Errorf("rule %s: unknown event kind %q", d.Name, d.Event)
		}
		rule.TriggerKind = models.TriggerEvent
		rule.EntityType = d.EntityType
		rule.EventKind = kind
	case "schedule":
		if d.Schedule == "" {
			return nil, fmt.Errorf("rule %s: schedule trigger requires a cron expression", d.Name)
		}
		if d.EntityType != "" || d.Event != "" {
			return nil, fmt.Errorf("rule %s: schedule trigger must not set entity_type/event", d.Name)
		}
		rule.TriggerKind = models.TriggerSchedule
		rule.Schedule = d.Schedule
	default:
		return nil, fmt.Errorf("rule %s: trigger must be event or schedule, got %q", d.Name, d.Trigger)
	}

	for i, c := range d.Conditions {
		op := condition.Operator(c.Operator)
		if !op.Valid() {
			return nil, fmt.Errorf("rule %s: conditions[%d]: unknown operator %q", d.Name, i, c.Operator)
		}
		if op.NeedsChangeData() && (rule.TriggerKind != models.TriggerEvent || rule.EventKind != models.EventUpdated) {
			return nil, fmt.Errorf("rule %s: conditions[%d]: %s requires an updated-event trigger", d.Name, i, op)
		}
		if c.Field == "" {
			return nil, fmt.Errorf("rule %s: conditions[%d]: field is required", d.Name, i)
		}
		rule.Conditions = append(rule.Conditions, models.RuleCondition{
			FieldPath: c.Field,
			Operator:  c.Operator,
			Value:     models.JSONValue{V: c.Value},
			Order:     i,
		})
	}

	for i, a := range d.Actions {
		if a.Type == "" {
			return nil, fmt.Errorf("rule %s: actions[%d]: type is required", d.Name, i)
		}
		rule.Actions = append(rule.Actions, models.RuleAction{
			Order:      i,
			ActionType: a.Type,
			Params:     a.Params,
		})
	}
	return rule, nil
}

// SyncRules upserts every definition into the rule store. Invalid
// definitions are collected into the returned error; valid ones still sync.
func SyncRules(ctx context.Context, rf *RuleFile, rules store.RuleStore) error {
	var errs []string
	for _, def := range rf.Rules {
		rule, err := def.ToModel()
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		if err := rules.Upsert(ctx, rule); err != nil {
			errs = append(errs, fmt.Sprintf("rule %s: upsert: %s", def.Name, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("rules file sync:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
