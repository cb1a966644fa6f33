// Package metrics provides Prometheus metrics for runs, oracle calls, and
// command execution.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for stepwise.
type Metrics struct {
	// Run metrics
	Runs         *prometheus.CounterVec
	RunDuration  prometheus.Histogram
	RunSteps     prometheus.Histogram
	Repairs      prometheus.Counter
	TaskFailures prometheus.Counter

	// Oracle metrics
	OracleCalls   *prometheus.CounterVec
	OracleLatency *prometheus.HistogramVec

	// Command metrics
	Commands        *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec

	// Errors by structured error code
	Errors *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		Runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stepwise_runs_total",
				Help: "Total number of runs by final status",
			},
			[]string{"status"},
		),
		RunDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "stepwise_run_duration_seconds",
				Help:    "Run duration in seconds",
				Buckets: []float64{1.0, 5.0, 10.0, 30.0, 60.0, 120.0, 300.0, 600.0},
			},
		),
		RunSteps: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "stepwise_run_steps",
				Help:    "Number of engine steps taken per run",
				Buckets: []float64{1, 5, 10, 20, 50, 100, 200},
			},
		),
		Repairs: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "stepwise_repairs_total",
				Help: "Total number of plan repairs",
			},
		),
		TaskFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "stepwise_task_failures_total",
				Help: "Total number of failed task attempts",
			},
		),

		OracleCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stepwise_oracle_calls_total",
				Help: "Total number of oracle provider calls",
			},
			[]string{"provider", "success"},
		),
		OracleLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stepwise_oracle_latency_seconds",
				Help:    "Oracle provider call latency in seconds",
				Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"provider"},
		),

		Commands: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stepwise_commands_total",
				Help: "Total number of shell commands executed",
			},
			[]string{"success"},
		),
		CommandDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stepwise_command_duration_seconds",
				Help:    "Shell command duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"success"},
		),

		Errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stepwise_errors_total",
				Help: "Total number of errors by error code",
			},
			[]string{"error_code", "component"},
		),
	}
}
