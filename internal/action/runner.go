package action

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/quillon/ruleflow/internal/models"
)

// StepSink receives each action step result as it is produced. The runner
// writes through the sink before moving to the next step, so the execution
// log reflects true progress even if the process dies mid-sequence.
type StepSink func(models.ActionStepResult) error

// Run executes actions strictly in ascending order, stopping at the first
// failure. Steps after a failure are recorded as skipped, not attempted.
// A nil return means every step succeeded; a *FailedError identifies the
// stopping step; any other error is a sink (log store) failure.
func Run(ctx context.Context, reg *Registry, ec *ExecContext, actions []models.RuleAction, sink StepSink) error {
	ordered := make([]models.RuleAction, len(actions))
	copy(ordered, actions)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

	var failed *FailedError
	for _, a := range ordered {
		if failed != nil {
			if err := sink(models.ActionStepResult{
				Order:      a.Order,
				ActionType: a.ActionType,
				Status:     models.StepSkipped,
				At:         time.Now().UTC(),
			}); err != nil {
				return fmt.Errorf("record skipped step %d: %w", a.Order, err)
			}
			continue
		}

		step := runStep(ctx, reg, ec, a, &failed)
		if err := sink(step); err != nil {
			return fmt.Errorf("record step %d: %w", a.Order, err)
		}
	}
	if failed != nil {
		return failed
	}
	return nil
}

func runStep(ctx context.Context, reg *Registry, ec *ExecContext, a models.RuleAction, failed **FailedError) models.ActionStepResult {
	params := SubstituteParams(ctx, ec, a.Params)
	step := models.ActionStepResult{
		Order:      a.Order,
		ActionType: a.ActionType,
		Params:     params,
		At:         time.Now().UTC(),
	}

	h, ok := reg.Resolve(a.ActionType)
	if !ok {
		step.Status = models.StepFailed
		step.Message = fmt.Sprintf("%s: %q", ErrUnknownType, a.ActionType)
		*failed = &FailedError{Order: a.Order, ActionType: a.ActionType, Msg: step.Message}
		return step
	}

	res, err := h.Execute(ctx, ec, params)
	switch {
	case err != nil:
		// Execution fault: eligible for retry.
		step.Status = models.StepFailed
		step.Message = err.Error()
		if res != nil && res.Message != "" {
			step.Message = res.Message
		}
		*failed = &FailedError{Order: a.Order, ActionType: a.ActionType, Transient: true, Msg: step.Message}
	case !res.Success:
		// Business failure: final, not retried.
		step.Status = models.StepFailed
		step.Message = res.Message
		*failed = &FailedError{Order: a.Order, ActionType: a.ActionType, Msg: res.Message}
	default:
		step.Status = models.StepSuccess
		step.Message = res.Message
	}
	if res != nil {
		step.Before = res.Before
		step.After = res.After
	}
	return step
}
