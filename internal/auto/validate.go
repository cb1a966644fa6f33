package auto

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/felixgeelhaar/stepwise/internal/errors"
	"github.com/felixgeelhaar/stepwise/internal/patch"
	"github.com/felixgeelhaar/stepwise/internal/task"
)

// ValidationResult is the oracle's verdict on a whole plan.
type ValidationResult struct {
	Valid        bool
	Reason       string
	Improvements string
}

// ExecutionResult is the outcome of processing one task.
type ExecutionResult struct {
	Success bool
	Message string
}

// Reevaluate asks the oracle whether plan is still valid. When last is
// non-nil the prompt includes that execution outcome. Oracle errors yield an
// invalid result carrying the error.
func (e *Engine) Reevaluate(ctx context.Context, plan *task.Plan, last *ExecutionResult) ValidationResult {
	role := &e.prompts.PlanReevaluation
	e.journal.Infof("Evaluating plan validity")

	var user string
	if last == nil {
		user = "Evaluate the validity of the following plan in JSON format:\n" + plan.JSON()
	} else {
		outcome := "failed"
		if last.Success {
			outcome = "succeeded"
		}
		user = fmt.Sprintf("Evaluate the validity of the following plan in JSON format, considering that the last task execution %s with the message: %q.\n%s",
			outcome, last.Message, plan.JSON())
	}

	doc, err := e.config.Oracle.QueryStructured(ctx, role.System, user, role.Schema())
	if err != nil {
		e.logger.WithError(err).Warn("plan reevaluation failed")
		return ValidationResult{Reason: fmt.Sprintf("error during plan reevaluation: %v", err)}
	}

	v := ValidationResult{
		Valid:        truthy(doc["overallValidity"]),
		Reason:       text(doc["explanation"]),
		Improvements: text(doc["improvements"]),
	}
	if last != nil && !last.Success && v.Valid {
		v.Reason += " Although the previous task failed, the plan structure remains valid."
	}
	if v.Valid {
		e.journal.Successf("Plan is valid")
	}
	return v
}

// Repair asks the oracle for edit statements that address v and applies
// them to plan in place.
func (e *Engine) Repair(ctx context.Context, plan *task.Plan, v ValidationResult) (*patch.Report, error) {
	role := &e.prompts.PlanEditor
	e.journal.Infof("Requesting edits to fix the plan")

	var b strings.Builder
	b.WriteString("The following plan has been deemed invalid for the following reason: ")
	b.WriteString(v.Reason)
	if v.Improvements != "" {
		b.WriteString("\nSuggested improvements: ")
		b.WriteString(v.Improvements)
	}
	b.WriteString("\nPlease provide a corrected plan in JSON format:\n")
	b.WriteString(plan.JSON())

	doc, err := e.config.Oracle.QueryStructured(ctx, role.System, b.String(), role.Schema())
	if err != nil {
		e.journal.Errorf("Failed to obtain plan fixes: %v", err)
		return nil, err
	}

	report := e.editor.ApplyDocument(plan, doc)
	if err := report.Err(); err != nil {
		e.logger.Debug("some plan edits failed", "failed", len(report.Failed), "error", err)
	}
	return report, nil
}

func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(x))
		return b
	case float64:
		return x != 0
	}
	return false
}

func text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// decodeSubtasks reads the "subtasks" array of a decomposition response.
func decodeSubtasks(doc map[string]any) ([]*task.Task, error) {
	raw, ok := doc["subtasks"]
	if !ok {
		raw = doc["subTasks"]
	}
	if raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, errors.Newf(errors.ErrCodeOracleMalformed, "subtasks is %T, not an array", raw)
	}
	return task.DecodeTasks(items)
}
