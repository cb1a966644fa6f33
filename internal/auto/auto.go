// Package auto drives a plan from a goal to completion: it asks the oracle
// for a plan, executes tasks in order, decomposes compound tasks, and repairs
// the plan whenever the oracle judges it invalid.
package auto

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/felixgeelhaar/stepwise/internal/errors"
	"github.com/felixgeelhaar/stepwise/internal/journal"
	"github.com/felixgeelhaar/stepwise/internal/log"
	"github.com/felixgeelhaar/stepwise/internal/patch"
	"github.com/felixgeelhaar/stepwise/internal/task"
	"github.com/felixgeelhaar/stepwise/internal/telemetry"
)

// Engine runs plans. An Engine may run several plans one after another but
// drives only one at a time per call; callers must not share a Plan between
// concurrent Execute calls.
type Engine struct {
	config  Config
	prompts *Prompts
	journal *journal.Journal
	logger  *log.Logger
	editor  *patch.Interpreter
}

// New creates an Engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Oracle == nil {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "engine requires an oracle")
	}
	if cfg.Runner == nil {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "engine requires a command runner")
	}
	if cfg.Prompts == nil {
		cfg.Prompts = DefaultPrompts()
	}
	if cfg.MaxRepairRounds <= 0 {
		cfg.MaxRepairRounds = DefaultRepairRounds
	}
	if cfg.Journal == nil {
		cfg.Journal = journal.Discard()
	}
	logger := log.OrDefault(cfg.Logger).WithGroup("engine")

	return &Engine{
		config:  cfg,
		prompts: cfg.Prompts,
		journal: cfg.Journal,
		logger:  logger,
		editor:  patch.NewInterpreter(cfg.Journal, cfg.Logger),
	}, nil
}

// Journal returns the engine's journal.
func (e *Engine) Journal() *journal.Journal {
	return e.journal
}

// Run plans goal and executes the plan to completion.
func (e *Engine) Run(ctx context.Context, goal string) (res *Result, err error) {
	ctx, span := telemetry.StartRunSpan(ctx, goal)
	defer func() {
		telemetry.End(span, err,
			attribute.String("plan.id", res.PlanID),
			attribute.Int("steps", res.Steps),
			attribute.Int("repairs", res.Repairs),
		)
	}()

	start := time.Now()
	e.journal.Infof("Starting run for goal: %s", goal)
	e.logger.InfoContext(ctx, "run started", "goal", goal)

	plan, err := e.CreatePlan(ctx, goal)
	if err != nil {
		return &Result{Goal: goal, Duration: time.Since(start)}, err
	}

	r := e.newRun(plan)
	r.result.Goal = goal
	r.save()

	err = r.execute(ctx)
	r.result.Duration = time.Since(start)
	r.result.finish()
	if err != nil {
		e.logger.WithError(err).ErrorContext(ctx, "run stopped", "steps", r.result.Steps)
		return r.result, err
	}
	e.logger.InfoContext(ctx, "run finished", "steps", r.result.Steps, "repairs", r.result.Repairs)
	return r.result, nil
}

// Execute drives an existing plan to completion. planID names the stored
// snapshot to update; an empty id stores a new one.
func (e *Engine) Execute(ctx context.Context, plan *task.Plan, planID string) (*Result, error) {
	start := time.Now()
	r := e.newRun(plan)
	r.result.PlanID = planID
	if planID == "" {
		r.save()
	}

	err := r.execute(ctx)
	r.result.Duration = time.Since(start)
	r.result.finish()
	return r.result, err
}

// CreatePlan asks the oracle for an initial plan. Any failure short of
// cancellation falls back to a single compound task for the goal.
func (e *Engine) CreatePlan(ctx context.Context, goal string) (*task.Plan, error) {
	role := &e.prompts.TaskPlanning
	doc, err := e.config.Oracle.QueryStructured(ctx, role.System, goal, role.Schema())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return e.fallback(goal, err), nil
	}

	items, _ := doc["subtasks"].([]any)
	tasks, err := task.DecodeTasks(items)
	if err != nil {
		return e.fallback(goal, err), nil
	}
	if len(tasks) == 0 {
		return e.fallback(goal, fmt.Errorf("oracle returned no tasks")), nil
	}

	plan := task.NewPlan(tasks...)
	total, _ := plan.Counts()
	e.journal.Successf("Created initial plan with %d tasks", total)
	return plan, nil
}

func (e *Engine) fallback(goal string, cause error) *task.Plan {
	err := errors.Wrap(errors.ErrCodePlanFallback, "initial planning failed, using fallback plan", cause)
	e.journal.Warnf("Failed to create initial plan, using fallback plan: %v", cause)
	e.logger.WithError(err).Warn("using fallback plan")
	return task.FallbackPlan(goal)
}

// run is the state of one Execute call.
type run struct {
	*Engine
	plan       *task.Plan
	lifecycles map[*task.Task]*task.Lifecycle
	steps      *budget
	result     *Result
}

func (e *Engine) newRun(plan *task.Plan) *run {
	return &run{
		Engine:     e,
		plan:       plan,
		lifecycles: make(map[*task.Task]*task.Lifecycle),
		steps:      newBudget("steps", e.config.MaxSteps),
		result:     &Result{Plan: plan},
	}
}

// execute is the control loop: validate and repair, select, process,
// absorb failures, repeat.
func (r *run) execute(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			r.journal.Warnf("Run cancelled: %v", err)
			return err
		}
		if !r.steps.take() {
			err := errors.Newf(errors.ErrCodePlanStepsExhausted, "budget exhausted (%s)", r.steps).
				WithSuggestion("Raise engine.max_steps or pass --max-steps 0 for no limit")
			r.journal.Errorf("Stopping: %v", err)
			return err
		}
		r.steps.warn(r.journal)
		r.result.Steps++

		if err := r.ensureValid(ctx, r.Reevaluate(ctx, r.plan, nil)); err != nil {
			return err
		}

		next := r.plan.NextOpen()
		if next == nil {
			r.journal.Successf("Plan execution completed successfully.")
			r.update()
			return nil
		}

		r.journal.Infof("Executing task: %s", next.Description)
		res := r.process(ctx, next)
		if err := ctx.Err(); err != nil {
			r.release(next)
			r.update()
			r.journal.Warnf("Run cancelled: %v", err)
			return err
		}

		if res.Success {
			r.complete(next)
		} else {
			r.result.Failures++
			r.journal.Errorf("Execution failed for [%s], reason: %s", next.Description, res.Message)
			v := r.Reevaluate(ctx, r.plan, &res)
			if v.Valid {
				r.complete(next)
			} else {
				r.journal.Warnf("Plan is invalid after failure. Reason: %s", v.Reason)
				r.repair(ctx, v)
			}
		}
		r.update()
	}
}

// ensureValid repairs the plan until the oracle accepts it, or until the
// repair budget runs out.
func (r *run) ensureValid(ctx context.Context, v ValidationResult) error {
	for round := 1; !v.Valid; round++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if round > r.config.MaxRepairRounds {
			err := errors.NewRepairExhaustedError(r.config.MaxRepairRounds, v.Reason)
			r.journal.Errorf("Stopping: %v", err)
			return err
		}
		r.journal.Warnf("Plan is invalid. Reason: %s", v.Reason)
		r.repair(ctx, v)
		v = r.Reevaluate(ctx, r.plan, nil)
	}
	return nil
}

func (r *run) repair(ctx context.Context, v ValidationResult) {
	r.result.Repairs++
	if _, err := r.Repair(ctx, r.plan, v); err != nil {
		r.logger.WithError(err).Warn("repair request failed")
	}
	r.update()
}

func (r *run) save() {
	if r.config.Store == nil {
		return
	}
	id, err := r.config.Store.Save(r.plan)
	if err != nil {
		r.journal.Warnf("Failed to save plan: %v", err)
		return
	}
	r.result.PlanID = id
	r.journal.Infof("Saved plan %s", id)
	if r.config.OnPlanSaved != nil {
		r.config.OnPlanSaved(id, r.plan)
	}
}

func (r *run) update() {
	if r.config.Store == nil || r.result.PlanID == "" {
		return
	}
	if err := r.config.Store.Update(r.result.PlanID, r.plan); err != nil {
		r.journal.Warnf("Failed to update plan %s: %v", r.result.PlanID, err)
	}
}
