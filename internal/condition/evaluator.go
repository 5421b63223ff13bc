// Package condition evaluates a rule's ordered predicate list against a
// triggering record. Evaluation is side-effect free: the same job context
// always yields the same results.
package condition

import (
	"context"
	"fmt"

	"github.com/quillon/ruleflow/internal/models"
	"github.com/quillon/ruleflow/internal/record"
)

// Condition is one predicate: a dotted field path, an operator, and a typed
// comparison value.
type Condition struct {
	FieldPath string
	Operator  Operator
	Value     interface{}
}

// EvalContext carries the triggering record (nil for schedule triggers), the
// data-store collaborator for relationship hops, and the changed-fields map
// captured at trigger time.
type EvalContext struct {
	Store   record.Store
	Schema  *record.Schema
	Root    *record.Record
	Changes map[string]record.FieldDelta
}

// Evaluate applies every condition and combines the outcomes per mode
// (models.LogicAll / models.LogicAny). For "all", every condition is
// evaluated and recorded even after the combined result is known false; for
// "any", conditions after the first true one are recorded as skipped.
// An empty condition list is vacuously true. The returned error is reserved
// for configuration mistakes (unknown operator) and store failures — data
// problems (absent values, type mismatches) are condition-level false.
func Evaluate(ctx context.Context, conds []Condition, mode string, ec *EvalContext) (bool, []models.ConditionResult, error) {
	results := make([]models.ConditionResult, 0, len(conds))
	if len(conds) == 0 {
		return true, results, nil
	}

	anyMode := mode == models.LogicAny
	combined := !anyMode // all: starts true, any: starts false

	for i, c := range conds {
		if anyMode && combined {
			results = append(results, models.ConditionResult{
				FieldPath: c.FieldPath,
				Operator:  string(c.Operator),
				Expected:  c.Value,
				Skipped:   true,
			})
			continue
		}
		res, err := evalOne(ctx, c, ec)
		if err != nil {
			return false, results, fmt.Errorf("condition %d (%s %s): %w", i, c.FieldPath, c.Operator, err)
		}
		results = append(results, res)
		if anyMode {
			combined = combined || res.Met
		} else {
			combined = combined && res.Met
		}
	}
	return combined, results, nil
}

func evalOne(ctx context.Context, c Condition, ec *EvalContext) (models.ConditionResult, error) {
	res := models.ConditionResult{
		FieldPath: c.FieldPath,
		Operator:  string(c.Operator),
		Expected:  c.Value,
	}
	if !c.Operator.Valid() {
		return res, fmt.Errorf("%w: %q", ErrUnknownOperator, c.Operator)
	}

	if c.Operator.NeedsChangeData() {
		evalChanged(c, ec, &res)
		return res, nil
	}

	val, present, err := record.ResolvePath(ctx, ec.Store, ec.Schema, ec.Root, record.SplitPath(c.FieldPath))
	if err != nil {
		return res, err
	}
	res.Resolved = val
	res.Absent = !present

	switch c.Operator {
	case OpIsNull:
		res.Met = !present
	case OpIsNotNull:
		res.Met = present
	case OpNotEquals:
		if !present {
			// An absent value is not equal to anything.
			res.Met = true
			break
		}
		if !sameKind(val, c.Value) {
			res.Message = fmt.Sprintf("type mismatch: cannot compare %T with %T", val, c.Value)
			break
		}
		res.Met = !equal(val, c.Value)
	case OpNotIn:
		if !present {
			res.Met = true
			break
		}
		in, msg := member(val, c.Value)
		res.Met = !in && msg == ""
		res.Message = msg
	case OpEquals:
		if !present {
			break
		}
		if !sameKind(val, c.Value) {
			res.Message = fmt.Sprintf("type mismatch: cannot compare %T with %T", val, c.Value)
			break
		}
		res.Met = equal(val, c.Value)
	case OpGreaterThan, OpGreaterOrEqual, OpLessThan, OpLessOrEqual:
		if !present {
			break
		}
		res.Met, res.Message = numericCompare(c.Operator, val, c.Value)
	case OpContains, OpIContains:
		if !present {
			break
		}
		res.Met, res.Message = containsCompare(c.Operator, val, c.Value)
	case OpIn:
		if !present {
			break
		}
		res.Met, res.Message = member(val, c.Value)
	}
	return res, nil
}

// evalChanged handles changed_to / changed_from against the trigger's
// prior/new value map. Without prior-value data (create events, untouched
// fields) both evaluate false.
func evalChanged(c Condition, ec *EvalContext, res *models.ConditionResult) {
	delta, ok := ec.Changes[c.FieldPath]
	if !ok || !delta.HasOld {
		res.Absent = true
		res.Message = "no prior value recorded for field"
		return
	}
	res.Resolved = delta.New
	switch c.Operator {
	case OpChangedTo:
		res.Met = equal(delta.New, c.Value) && !equal(delta.Old, c.Value)
	case OpChangedFrom:
		res.Met = equal(delta.Old, c.Value) && !equal(delta.New, c.Value)
	}
}
