package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/stepwise/internal/auto"
	"github.com/felixgeelhaar/stepwise/internal/errors"
	"github.com/felixgeelhaar/stepwise/internal/exec"
	"github.com/felixgeelhaar/stepwise/internal/telemetry"
	"github.com/felixgeelhaar/stepwise/internal/tui"
)

type runOptions struct {
	*globalOptions

	dryRun         bool
	provider       string
	model          string
	maxRepairs     int
	maxSchemaFixes int
	maxSteps       int
	review         bool
	verbose        bool
	jsonOutput     bool
}

func newRunCmd(global *globalOptions) *cobra.Command {
	opts := &runOptions{globalOptions: global}

	cmd := &cobra.Command{
		Use:   "run [goal...]",
		Short: "Plan and execute a goal",
		Long: `Ask the model for a plan for the goal, then execute it task by task.
Compound tasks are broken down as they are reached, and the plan is
revalidated and repaired after every step.

Without a goal, stepwise prompts for one on a terminal and otherwise uses
engine.default_goal from the config.

Examples:
  stepwise run "create a static site in ./site"
  stepwise run --dry-run --max-steps 10 "set up a go module"
  stepwise run --json "add a Makefile" > result.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, args)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&opts.dryRun, "dry-run", false, "print commands instead of running them")
	flags.StringVar(&opts.provider, "provider", "", "oracle provider: ollama, openai, scripted")
	flags.StringVar(&opts.model, "model", "", "model name")
	flags.IntVar(&opts.maxRepairs, "max-repairs", 0, "repair rounds per validity check (0 keeps the config value)")
	flags.IntVar(&opts.maxSchemaFixes, "max-schema-fixes", 0, "corrective follow-ups per structured query (0 keeps the config value)")
	flags.IntVar(&opts.maxSteps, "max-steps", -1, "outer loop iterations, 0 for unlimited (default keeps the config value)")
	flags.BoolVar(&opts.review, "review", false, "show the initial plan and ask before executing it")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "list task commands in the plan tree")
	flags.BoolVar(&opts.jsonOutput, "json", false, "print the run result as JSON")
	return cmd
}

// applyFlags overrides config values with the flags that were set.
func (o *runOptions) applyFlags() {
	cfg := o.cfg
	if o.dryRun {
		cfg.Exec.DryRun = true
	}
	if o.provider != "" {
		cfg.Provider.Name = o.provider
	}
	if o.model != "" {
		cfg.Provider.Model = o.model
	}
	if o.maxRepairs > 0 {
		cfg.Engine.MaxRepairRounds = o.maxRepairs
	}
	if o.maxSchemaFixes > 0 {
		cfg.Engine.MaxSchemaFixes = o.maxSchemaFixes
	}
	if o.maxSteps >= 0 {
		cfg.Engine.MaxSteps = o.maxSteps
	}
}

// goal joins the positional arguments, prompting when there are none.
func (o *runOptions) goal(args []string) (string, error) {
	if goal := strings.TrimSpace(strings.Join(args, " ")); goal != "" {
		return goal, nil
	}
	if !o.jsonOutput && tui.ShouldPrompt() {
		return tui.PromptForGoal(o.cfg.Engine.DefaultGoal)
	}
	return o.cfg.Engine.DefaultGoal, nil
}

func (o *runOptions) run(cmd *cobra.Command, args []string) (err error) {
	ctx, span := telemetry.StartCommandSpan(cmd.Context(), "run")
	defer func() { telemetry.End(span, err) }()

	o.applyFlags()
	if err := o.cfg.Validate(); err != nil {
		return errors.NewConfigInvalidError("command line", err)
	}

	goal, err := o.goal(args)
	if err != nil {
		return err
	}

	if strings.EqualFold(o.cfg.Exec.Runner, exec.KindDocker) && !o.cfg.Exec.DryRun {
		if err := exec.DockerAvailable(ctx); err != nil {
			return fmt.Errorf("exec.runner is docker: %w", err)
		}
	}

	a, err := newApp(o.cfg, o.logger)
	if err != nil {
		return err
	}
	defer a.Close()

	engine, err := a.engine(nil)
	if err != nil {
		return err
	}

	res, runErr := o.execute(ctx, cmd.OutOrStdout(), engine, goal)
	out := auto.NewRunOutput(res, runErr)
	if o.jsonOutput {
		data, err := out.ToJSON()
		if err != nil {
			return fmt.Errorf("failed to marshal run output: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return runErr
	}

	styles := tui.DefaultStyles()
	if out.Plan != nil {
		fmt.Fprintln(cmd.OutOrStdout(), tui.RenderPlan(out.Plan, styles, o.verbose))
		fmt.Fprintln(cmd.OutOrStdout())
	}
	fmt.Fprintln(cmd.OutOrStdout(), tui.RenderSummary(out, styles))
	return runErr
}

// errRunDeclined is returned when the user rejects the reviewed plan.
var errRunDeclined = stderrors.New("run declined at plan review")

// execute runs goal, pausing for review after planning when requested.
func (o *runOptions) execute(ctx context.Context, w io.Writer, engine *auto.Engine, goal string) (*auto.Result, error) {
	if !o.review || !tui.ShouldPrompt() {
		return engine.Run(ctx, goal)
	}

	plan, err := engine.CreatePlan(ctx, goal)
	if err != nil {
		return &auto.Result{Goal: goal}, err
	}
	fmt.Fprintln(w, tui.RenderPlan(plan, tui.DefaultStyles(), true))
	ok, err := tui.PromptForConfirmation("Execute this plan?", true)
	if err != nil {
		return &auto.Result{Goal: goal, Plan: plan}, err
	}
	if !ok {
		return &auto.Result{Goal: goal, Plan: plan}, errRunDeclined
	}

	res, err := engine.Execute(ctx, plan, "")
	if res != nil {
		res.Goal = goal
	}
	return res, err
}
