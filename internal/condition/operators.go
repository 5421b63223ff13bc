package condition

import (
	"fmt"
	"math"
	"strings"
)

// Operator is a structured condition operator.
type Operator string

const (
	OpEquals         Operator = "equals"
	OpNotEquals      Operator = "not_equals"
	OpGreaterThan    Operator = "gt"
	OpGreaterOrEqual Operator = "gte"
	OpLessThan       Operator = "lt"
	OpLessOrEqual    Operator = "lte"
	OpContains       Operator = "contains"
	OpIContains      Operator = "icontains"
	OpIn             Operator = "in"
	OpNotIn          Operator = "not_in"
	OpIsNull         Operator = "is_null"
	OpIsNotNull      Operator = "is_not_null"
	OpChangedTo      Operator = "changed_to"
	OpChangedFrom    Operator = "changed_from"
)

// ErrUnknownOperator marks a configuration error: the rule references an
// operator the evaluator does not implement.
var ErrUnknownOperator = fmt.Errorf("unknown condition operator")

var validOps = map[Operator]bool{
	OpEquals: true, OpNotEquals: true,
	OpGreaterThan: true, OpGreaterOrEqual: true, OpLessThan: true, OpLessOrEqual: true,
	OpContains: true, OpIContains: true,
	OpIn: true, OpNotIn: true,
	OpIsNull: true, OpIsNotNull: true,
	OpChangedTo: true, OpChangedFrom: true,
}

// Valid reports whether o is a known operator.
func (o Operator) Valid() bool { return validOps[o] }

// NeedsChangeData reports whether o reads the prior/new value map and is
// therefore only legal on update-event rules.
func (o Operator) NeedsChangeData() bool {
	return o == OpChangedTo || o == OpChangedFrom
}

// toFloat64 coerces a numeric value to float64.
func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// equal compares same-kind values: numbers by value, bools and strings
// directly. Mixed kinds are never equal.
func equal(left, right interface{}) bool {
	lf, lok := toFloat64(left)
	rf, rok := toFloat64(right)
	if lok && rok {
		return math.Abs(lf-rf) < 1e-9
	}
	if lok != rok {
		return false
	}
	if lb, ok := left.(bool); ok {
		rb, ok := right.(bool)
		return ok && lb == rb
	}
	ls, lok := left.(string)
	rs, rok := right.(string)
	return lok && rok && ls == rs
}

// sameKind reports whether two values compare without a type-mismatch
// diagnostic: both numeric, both bool, or both string.
func sameKind(left, right interface{}) bool {
	_, lnum := toFloat64(left)
	_, rnum := toFloat64(right)
	if lnum || rnum {
		return lnum && rnum
	}
	_, lb := left.(bool)
	_, rb := right.(bool)
	if lb || rb {
		return lb && rb
	}
	_, ls := left.(string)
	_, rs := right.(string)
	return ls && rs
}

func numericCompare(op Operator, left, right interface{}) (bool, string) {
	lf, lok := toFloat64(left)
	rf, rok := toFloat64(right)
	if !lok || !rok {
		return false, fmt.Sprintf("operator %s requires numeric operands, got %T and %T", op, left, right)
	}
	switch op {
	case OpGreaterThan:
		return lf > rf, ""
	case OpGreaterOrEqual:
		return lf >= rf, ""
	case OpLessThan:
		return lf < rf, ""
	case OpLessOrEqual:
		return lf <= rf, ""
	}
	return false, ""
}

func containsCompare(op Operator, left, right interface{}) (bool, string) {
	ls, lok := left.(string)
	rs, rok := right.(string)
	if !lok || !rok {
		return false, fmt.Sprintf("operator %s requires string operands, got %T and %T", op, left, right)
	}
	if op == OpIContains {
		return strings.Contains(strings.ToLower(ls), strings.ToLower(rs)), ""
	}
	return strings.Contains(ls, rs), ""
}

// member reports whether v equals any element of set. A non-list set is a
// type mismatch.
func member(v, set interface{}) (bool, string) {
	list, ok := set.([]interface{})
	if !ok {
		return false, fmt.Sprintf("operator in/not_in requires a list value, got %T", set)
	}
	for _, item := range list {
		if equal(v, item) {
			return true, ""
		}
	}
	return false, ""
}
