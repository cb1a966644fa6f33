package cmd

import (
	stderrors "errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/felixgeelhaar/stepwise/internal/auto"
	"github.com/felixgeelhaar/stepwise/internal/config"
	"github.com/felixgeelhaar/stepwise/internal/exec"
	"github.com/felixgeelhaar/stepwise/internal/journal"
	"github.com/felixgeelhaar/stepwise/internal/log"
	"github.com/felixgeelhaar/stepwise/internal/metrics"
	"github.com/felixgeelhaar/stepwise/internal/oracle"
	"github.com/felixgeelhaar/stepwise/internal/store"
	"github.com/felixgeelhaar/stepwise/internal/task"
)

// app holds the collaborators built from the config for one command.
type app struct {
	cfg      *config.Config
	logger   *log.Logger
	journal  *journal.Journal
	provider oracle.Provider
	client   *oracle.Client
	runner   exec.Runner
	plans    store.PlanStore
	prompts  *auto.Prompts
	registry *prometheus.Registry
	metrics  *metrics.Metrics
}

func newApp(cfg *config.Config, logger *log.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	a.registry, a.metrics = metrics.NewRegistry()
	fail := func(err error) (*app, error) {
		_ = a.Close()
		return nil, err
	}

	var err error
	a.journal, err = journal.New(journal.Config{
		Path:       cfg.Journal.Path,
		MaxEntries: cfg.Journal.MaxEntries,
		Logger:     logger,
	})
	if err != nil {
		return fail(err)
	}

	a.provider, err = oracle.NewProvider(oracle.ProviderConfig{
		Name:       cfg.Provider.Name,
		Model:      cfg.Provider.Model,
		BaseURL:    cfg.Provider.BaseURL,
		APIKey:     cfg.Provider.APIKey(),
		ScriptFile: cfg.Provider.ScriptFile,
		Resilience: oracle.ResilienceConfig{
			Timeout:           cfg.Provider.Timeout,
			MaxAttempts:       cfg.Provider.MaxAttempts,
			RequestsPerSecond: cfg.Provider.RequestsPerSecond,
		},
	})
	if err != nil {
		return fail(err)
	}
	a.provider = a.metrics.InstrumentProvider(a.provider)
	a.client = oracle.NewClient(a.provider, oracle.ClientConfig{
		MaxSchemaFixes: cfg.Engine.MaxSchemaFixes,
		Journal:        a.journal,
		Logger:         logger,
	})

	a.runner, err = exec.New(exec.Config{
		Kind:        cfg.Exec.Runner,
		Shell:       cfg.Exec.Shell,
		Workdir:     cfg.Exec.Workdir,
		Timeout:     cfg.Exec.CommandTimeout,
		DryRun:      cfg.Exec.DryRun,
		ManifestDir: cfg.Exec.ManifestDir,
		Deny:        cfg.Exec.Deny,
		Docker: exec.DockerConfig{
			Image:   cfg.Exec.Docker.Image,
			Network: cfg.Exec.Docker.Network,
			CPU:     cfg.Exec.Docker.CPUs,
			Mem:     cfg.Exec.Docker.Memory,
		},
		Logger: logger,
	})
	if err != nil {
		return fail(err)
	}
	a.runner = a.metrics.InstrumentRunner(a.runner)

	a.plans, err = store.Open(store.Config{Backend: cfg.Store.Backend, Path: cfg.Store.Path})
	if err != nil {
		return fail(err)
	}

	a.prompts, err = auto.LoadPrompts(cfg.Engine.PromptsFile)
	if err != nil {
		return fail(err)
	}
	return a, nil
}

// engine builds an engine over the app's collaborators. onSaved may be nil.
func (a *app) engine(onSaved func(id string, plan *task.Plan)) (*auto.Engine, error) {
	return auto.New(auto.Config{
		Prompts:         a.prompts,
		MaxRepairRounds: a.cfg.Engine.MaxRepairRounds,
		MaxSteps:        a.cfg.Engine.MaxSteps,
		Oracle:          a.client,
		Runner:          a.runner,
		Store:           a.plans,
		Journal:         a.journal,
		Logger:          a.logger,
		OnPlanSaved:     onSaved,
	})
}

// Close releases the store and the journal file.
func (a *app) Close() error {
	var errs []error
	if a.plans != nil {
		errs = append(errs, a.plans.Close())
	}
	if a.journal != nil {
		errs = append(errs, a.journal.Close())
	}
	return stderrors.Join(errs...)
}
