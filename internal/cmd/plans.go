package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/stepwise/internal/journal"
	"github.com/felixgeelhaar/stepwise/internal/patch"
	"github.com/felixgeelhaar/stepwise/internal/store"
	"github.com/felixgeelhaar/stepwise/internal/tui"
)

func newPlansCmd(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plans",
		Short: "Inspect and edit stored plans",
	}
	cmd.AddCommand(
		newPlansListCmd(global),
		newPlansShowCmd(global),
		newPlansPatchCmd(global),
	)
	return cmd
}

func openStore(o *globalOptions) (store.PlanStore, error) {
	return store.Open(store.Config{Backend: o.cfg.Store.Backend, Path: o.cfg.Store.Path})
}

func newPlansListCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored plan ids, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			plans, err := openStore(global)
			if err != nil {
				return err
			}
			defer plans.Close()

			ids, err := plans.List()
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "No stored plans")
				return nil
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}

func newPlansShowCmd(global *globalOptions) *cobra.Command {
	var (
		asJSON  bool
		verbose bool
	)
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a stored plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plans, err := openStore(global)
			if err != nil {
				return err
			}
			defer plans.Close()

			plan, err := plans.Get(args[0])
			if err != nil {
				return err
			}
			if asJSON {
				data, err := json.MarshalIndent(plan, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal plan: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), tui.RenderPlan(plan, tui.DefaultStyles(), verbose))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the plan as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "list task commands")
	return cmd
}

func newPlansPatchCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "patch <id> <statement>...",
		Short: "Apply plan edit statements to a stored plan",
		Long: `Apply plan edit statements to a stored plan and save the result.
Statements use the same language the model uses to repair plans:

  getTask(3).change("description", "Install dependencies")
  getTask(3).appendCommand("npm install")
  removeTask(4)
  addTask({"id": 7, "description": "Run tests", "isAtomic": true, "commands": ["npm test"]})
  updateTask(3, {"successCriteria": "node_modules exists"})

Statements are applied in order. A failing statement is reported and the
rest still apply.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			plans, err := openStore(global)
			if err != nil {
				return err
			}
			defer plans.Close()

			id := args[0]
			plan, err := plans.Get(id)
			if err != nil {
				return err
			}

			report := patch.NewInterpreter(journal.Discard(), global.logger).Apply(plan, args[1:])
			for _, f := range report.Failed {
				fmt.Fprintf(cmd.ErrOrStderr(), "failed: %v\n", f)
			}
			if report.Changed() {
				if err := plans.Update(id, plan); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d applied, %d failed, %d skipped\n",
				len(report.Applied), len(report.Failed), report.Skipped)
			return report.Err()
		},
	}
}
