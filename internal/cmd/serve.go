package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/stepwise/internal/exec"
	"github.com/felixgeelhaar/stepwise/internal/health"
	"github.com/felixgeelhaar/stepwise/internal/metrics"
	"github.com/felixgeelhaar/stepwise/internal/server"
	"github.com/felixgeelhaar/stepwise/internal/task"
	"github.com/felixgeelhaar/stepwise/internal/version"
)

type serveOptions struct {
	*globalOptions

	addr            string
	shutdownTimeout time.Duration
}

func newServeCmd(global *globalOptions) *cobra.Command {
	opts := &serveOptions{globalOptions: global}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start an HTTP server that runs goals in the background and exposes
stored plans and the run journal.

Endpoints:
  GET  /health/live                  liveness probe
  GET  /health/ready                 readiness probe (oracle, store, docker)
  GET  /metrics                      Prometheus metrics
  POST /api/execute                  run engine.default_goal
  POST /api/execute/custom?prompt=   run a custom goal
  GET  /api/plan/current             id of the plan being worked on
  GET  /api/plan/list                stored plan ids, newest first
  GET  /api/plan/{id}                one stored plan
  GET  /api/plan-fixes/{planId}      repair history for a plan
  GET  /api/logs[/system|/conversation|/fixes]?since=

Only one run is active at a time. SIGINT or SIGTERM cancels it and drains
open connections.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "listen address (default from server.addr)")
	cmd.Flags().DurationVar(&opts.shutdownTimeout, "shutdown-timeout", 30*time.Second, "maximum time to drain connections on shutdown")
	return cmd
}

func (o *serveOptions) run(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if o.addr != "" {
		o.cfg.Server.Addr = o.addr
	}

	a, err := newApp(o.cfg, o.logger)
	if err != nil {
		return err
	}
	defer a.Close()

	var runs *server.RunManager
	engine, err := a.engine(func(id string, plan *task.Plan) {
		runs.PlanSaved(id, plan)
	})
	if err != nil {
		return err
	}
	runs = server.NewRunManager(engine, o.logger)
	runs.OnFinish(a.metrics.RecordRun)

	info := version.GetInfo()
	probes := health.NewProbeManager(info.Version)
	probes.AddChecker(health.NewProviderChecker(a.provider))
	probes.AddChecker(health.NewStoreChecker(a.plans))
	if strings.EqualFold(o.cfg.Exec.Runner, exec.KindDocker) && !o.cfg.Exec.DryRun {
		probes.AddChecker(health.NewDockerChecker())
	}

	srv := server.NewServer(server.Config{
		Address:         o.cfg.Server.Addr,
		ShutdownTimeout: o.shutdownTimeout,
		ReadTimeout:     o.cfg.Server.ReadTimeout,
		WriteTimeout:    o.cfg.Server.WriteTimeout,
		DefaultGoal:     o.cfg.Engine.DefaultGoal,
		Probes:          probes,
		Runs:            runs,
		Plans:           a.plans,
		Journal:         a.journal,
		Logger:          o.logger,
		Metrics:         metrics.HandlerFor(a.registry),
	})

	fmt.Fprintf(cmd.OutOrStdout(), "stepwise %s listening on %s (provider %s, model %s)\n",
		info.Short(), o.cfg.Server.Addr, o.cfg.Provider.Name, o.cfg.Provider.Model)
	return srv.Start(ctx)
}
