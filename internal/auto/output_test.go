package auto

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/stepwise/internal/errors"
	"github.com/felixgeelhaar/stepwise/internal/journal"
	"github.com/felixgeelhaar/stepwise/internal/task"
)

func TestNewRunOutput(t *testing.T) {
	done := task.NewPlan(&task.Task{ID: 1, IsAtomic: true, Completed: true})
	half := task.NewPlan(&task.Task{ID: 1, IsAtomic: true, Completed: true}, &task.Task{ID: 2, IsAtomic: true})

	result := func(p *task.Plan) *Result {
		r := &Result{Goal: "g", PlanID: "20250101_000000_abcdef12", Plan: p, Steps: 3, Duration: time.Second}
		r.finish()
		return r
	}

	tests := []struct {
		name   string
		res    *Result
		err    error
		status string
		code   string
	}{
		{name: "completed", res: result(done), status: StatusCompleted},
		{name: "partial", res: result(half), err: errors.New(errors.ErrCodePlanStepsExhausted, "out of steps"), status: StatusPartial, code: "PLAN-003"},
		{name: "failed", res: &Result{Goal: "g"}, err: context.Canceled, status: StatusFailed},
		{name: "nil result", err: context.Canceled, status: StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := NewRunOutput(tt.res, tt.err)
			assert.Equal(t, tt.status, out.Status)
			assert.Equal(t, tt.code, out.ErrorCode)
			if tt.err != nil {
				assert.NotEmpty(t, out.Error)
			}
		})
	}
}

func TestRunOutputJSON(t *testing.T) {
	r := &Result{Goal: "g", Plan: task.FallbackPlan("g"), Repairs: 2}
	r.finish()

	data, err := NewRunOutput(r, nil).ToJSON()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "stepwise.run.output/v1", decoded["schema"])
	assert.Equal(t, StatusFailed, decoded["status"])
	metrics := decoded["metrics"].(map[string]any)
	assert.Equal(t, 2.0, metrics["repairs"])
	assert.Equal(t, 1.0, metrics["totalTasks"])
	assert.Contains(t, decoded, "plan")
}

func TestBudget(t *testing.T) {
	t.Run("unlimited", func(t *testing.T) {
		b := newBudget("steps", 0)
		for range 1000 {
			require.True(t, b.take())
		}
		assert.Equal(t, "steps: 1000 used, unlimited", b.String())
	})

	t.Run("limited", func(t *testing.T) {
		b := newBudget("steps", 2)
		assert.True(t, b.take())
		assert.True(t, b.take())
		assert.False(t, b.take())
		assert.Equal(t, "steps: 2/2 used", b.String())
	})

	t.Run("warns once per threshold", func(t *testing.T) {
		j := journal.Discard()
		b := newBudget("steps", 10)
		for range 10 {
			b.take()
			b.warn(j)
		}

		var warnings []string
		for _, e := range j.All() {
			warnings = append(warnings, e.Message)
		}
		assert.Equal(t, []string{
			"Step budget warning: 75% of steps used (8/10)",
			"Step budget warning: 90% of steps used, approaching limit (9/10)",
		}, warnings)
	})
}
