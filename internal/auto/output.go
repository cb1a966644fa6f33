package auto

import (
	"encoding/json"
	"time"

	"github.com/felixgeelhaar/stepwise/internal/errors"
	"github.com/felixgeelhaar/stepwise/internal/task"
)

// Run statuses.
const (
	StatusCompleted = "completed"
	StatusPartial   = "partial"
	StatusFailed    = "failed"
)

// Result summarizes one run.
type Result struct {
	Goal     string
	PlanID   string
	Plan     *task.Plan
	Steps    int
	Repairs  int
	Failures int
	Commands int
	Duration time.Duration

	TotalTasks     int
	CompletedTasks int
}

func (r *Result) finish() {
	if r.Plan != nil {
		r.TotalTasks, r.CompletedTasks = r.Plan.Counts()
	}
}

// Completed reports whether every task in the plan is completed.
func (r *Result) Completed() bool {
	return r.Plan != nil && r.Plan.NextOpen() == nil
}

// RunOutput is the machine-readable form of a run, designed for CI/CD
// integration.
type RunOutput struct {
	// Schema version for output format compatibility
	Schema string `json:"schema"`

	Goal   string `json:"goal"`
	PlanID string `json:"planId,omitempty"`

	// Status is completed, partial, or failed
	Status string `json:"status"`

	Metrics RunMetrics `json:"metrics"`

	// Error carries the stopping error, if any
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"errorCode,omitempty"`

	Plan *task.Plan `json:"plan,omitempty"`
}

// RunMetrics captures statistical information about a run.
type RunMetrics struct {
	Duration       time.Duration `json:"duration"`
	Steps          int           `json:"steps"`
	Repairs        int           `json:"repairs"`
	Failures       int           `json:"failures"`
	Commands       int           `json:"commands"`
	TotalTasks     int           `json:"totalTasks"`
	CompletedTasks int           `json:"completedTasks"`
}

// NewRunOutput builds the output for a run that returned res and err.
func NewRunOutput(res *Result, err error) *RunOutput {
	out := &RunOutput{Schema: "stepwise.run.output/v1"}
	if res != nil {
		out.Goal = res.Goal
		out.PlanID = res.PlanID
		out.Plan = res.Plan
		out.Metrics = RunMetrics{
			Duration:       res.Duration,
			Steps:          res.Steps,
			Repairs:        res.Repairs,
			Failures:       res.Failures,
			Commands:       res.Commands,
			TotalTasks:     res.TotalTasks,
			CompletedTasks: res.CompletedTasks,
		}
	}

	switch {
	case err == nil && res != nil && res.Completed():
		out.Status = StatusCompleted
	case res != nil && res.CompletedTasks > 0:
		out.Status = StatusPartial
	default:
		out.Status = StatusFailed
	}
	if err != nil {
		out.Error = err.Error()
		if se, ok := errors.As(err); ok {
			out.ErrorCode = string(se.Code)
		}
	}
	return out
}

// ToJSON serializes RunOutput to JSON bytes.
func (o *RunOutput) ToJSON() ([]byte, error) {
	return json.MarshalIndent(o, "", "  ")
}
