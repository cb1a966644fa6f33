// Package cmd implements the stepwise command line.
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/stepwise/internal/config"
	"github.com/felixgeelhaar/stepwise/internal/log"
	"github.com/felixgeelhaar/stepwise/internal/telemetry"
	"github.com/felixgeelhaar/stepwise/internal/version"
)

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	logLevel   string
	logFormat  string
	debug      bool

	cfg    *config.Config
	logger *log.Logger

	shutdownTracing func(context.Context) error
}

// NewRootCommand builds the stepwise command tree.
func NewRootCommand() *cobra.Command {
	root, _ := newRootCommand()
	return root
}

func newRootCommand() (*cobra.Command, *globalOptions) {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "stepwise",
		Short: "Plan, execute, and repair goals with a language model",
		Long: `stepwise turns a natural-language goal into a tree of tasks, runs the
shell commands of each task, and asks the model to repair the plan whenever
it stops making sense.

Configuration is read from stepwise.yaml in the working directory, or from
the file given with --config.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default is ./stepwise.yaml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format: text or json")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "log at debug level with source locations")

	root.AddCommand(
		newRunCmd(opts),
		newServeCmd(opts),
		newPlansCmd(opts),
		newVersionCmd(),
	)
	return root, opts
}

// Execute runs the root command
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with ctx, which commands use to stop
// runs and servers on interrupt. Pending spans are flushed before it returns.
func ExecuteContext(ctx context.Context) error {
	root, opts := newRootCommand()
	defer opts.flushTracing()
	return root.ExecuteContext(ctx)
}

// setup loads the config and installs the default logger. Flags override
// the config file, and --debug overrides the log level.
func (o *globalOptions) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}

	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("invalid argument %q for --log-level: %w", cfg.Log.Level, err)
	}
	format, err := log.ParseFormat(cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("invalid argument %q for --log-format: %w", cfg.Log.Format, err)
	}

	lc := log.DefaultConfig()
	lc.Level = level
	if o.debug {
		lc = log.DevelopmentConfig()
	}
	lc.Format = format
	lc.Output = cmd.ErrOrStderr()
	lc.ServiceVersion = version.GetInfo().Version

	o.logger = log.New(lc)
	log.SetDefaultLogger(o.logger)
	o.cfg = cfg

	o.setupTracing(cmd.Context())
	return nil
}

// setupTracing installs the tracer provider. Failing to reach a collector
// is logged and never stops the command.
func (o *globalOptions) setupTracing(ctx context.Context) {
	tc := o.cfg.Telemetry
	if !tc.Enabled {
		return
	}
	shutdown, err := telemetry.InitProvider(ctx, telemetry.Config{
		ServiceName:    "stepwise",
		ServiceVersion: version.GetInfo().Version,
		Environment:    tc.Environment,
		Enabled:        true,
		Endpoint:       tc.Endpoint,
		Insecure:       tc.Insecure,
		SampleRate:     tc.SampleRate,
	})
	if err != nil {
		o.logger.WithError(err).Warn("failed to initialize telemetry")
		return
	}
	o.shutdownTracing = shutdown
	o.logger.Debug("telemetry enabled", "endpoint", tc.Endpoint, "sample_rate", tc.SampleRate)
}

func (o *globalOptions) flushTracing() {
	if o.shutdownTracing == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.shutdownTracing(ctx); err != nil {
		o.logger.WithError(err).Warn("failed to flush telemetry")
	}
}
