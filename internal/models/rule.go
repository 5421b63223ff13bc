package models

import "time"

// TriggerKind says what fires a rule: a data mutation or a schedule match.
type TriggerKind string

const (
	TriggerEvent    TriggerKind = "event"
	TriggerSchedule TriggerKind = "schedule"
)

// EventKind is the mutation type an event-triggered rule listens for.
type EventKind string

const (
	EventCreated EventKind = "created"
	EventUpdated EventKind = "updated"
	EventDeleted EventKind = "deleted"
)

// Condition logic modes.
const (
	LogicAll = "all"
	LogicAny = "any"
)

// Rule is a named automation unit scoped to a tenant. Exactly one of the
// event fields (EntityType+EventKind) or Schedule is populated, matching
// TriggerKind.
type Rule struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	TenantID    string      `gorm:"size:64;not null;index;uniqueIndex:idx_rules_tenant_name" json:"tenant_id"`
	Name        string      `gorm:"size:255;not null;uniqueIndex:idx_rules_tenant_name" json:"name"`
	TriggerKind TriggerKind `gorm:"size:16;not null;index" json:"trigger_kind"`
	EntityType  string      `gorm:"size:128;index" json:"entity_type,omitempty"`
	EventKind   EventKind   `gorm:"size:16" json:"event_kind,omitempty"`
	Schedule    string      `gorm:"size:128" json:"schedule,omitempty"`
	Logic       string      `gorm:"size:8;not null;default:all" json:"logic"`
	Active      bool        `gorm:"not null;default:true;index" json:"active"`
	DelaySecs   int         `gorm:"default:0" json:"delay_seconds"`

	Conditions []RuleCondition `gorm:"constraint:OnDelete:CASCADE" json:"conditions"`
	Actions    []RuleAction    `gorm:"constraint:OnDelete:CASCADE" json:"actions"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Rule) TableName() string {
	return "rules"
}

// RuleCondition is one predicate belonging to a rule. FieldPath is a dotted
// relationship path resolvable from the triggering record.
type RuleCondition struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RuleID    uint      `gorm:"not null;index" json:"rule_id"`
	FieldPath string    `gorm:"size:255;not null" json:"field_path"`
	Operator  string    `gorm:"size:32;not null" json:"operator"`
	Value     JSONValue `gorm:"type:text" json:"value"`
	Order     int       `gorm:"column:position;default:0" json:"order"`
	CreatedAt time.Time `json:"created_at"`
}

func (RuleCondition) TableName() string {
	return "rule_conditions"
}

// RuleAction is one ordered step belonging to a rule. Order is unique per
// rule and defines execution sequence.
type RuleAction struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	RuleID     uint      `gorm:"not null;index;uniqueIndex:idx_actions_rule_order" json:"rule_id"`
	Order      int       `gorm:"column:step_order;not null;uniqueIndex:idx_actions_rule_order" json:"order"`
	ActionType string    `gorm:"size:64;not null" json:"action_type"`
	Params     JSONMap   `gorm:"type:text" json:"params"`
	CreatedAt  time.Time `json:"created_at"`
}

func (RuleAction) TableName() string {
	return "rule_actions"
}
