package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/felixgeelhaar/stepwise/internal/auto"
	"github.com/felixgeelhaar/stepwise/internal/errors"
	"github.com/felixgeelhaar/stepwise/internal/exec"
	"github.com/felixgeelhaar/stepwise/internal/oracle"
)

// Provider wraps an oracle provider and records every Generate call.
type Provider struct {
	oracle.Provider
	m *Metrics
}

// InstrumentProvider returns p wrapped with call counters and latency.
func (m *Metrics) InstrumentProvider(p oracle.Provider) *Provider {
	return &Provider{Provider: p, m: m}
}

// Generate implements oracle.Provider.
func (p *Provider) Generate(ctx context.Context, req *oracle.Request) (*oracle.Response, error) {
	start := time.Now()
	resp, err := p.Provider.Generate(ctx, req)

	name := p.Name()
	p.m.OracleLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
	p.m.OracleCalls.WithLabelValues(name, strconv.FormatBool(err == nil)).Inc()
	if err != nil {
		p.m.RecordError(err, "oracle")
	}
	return resp, err
}

// Runner wraps an exec.Runner and records every command.
type Runner struct {
	next exec.Runner
	m    *Metrics
}

// InstrumentRunner returns r wrapped with command counters and duration.
func (m *Metrics) InstrumentRunner(r exec.Runner) *Runner {
	return &Runner{next: r, m: m}
}

// Run implements exec.Runner.
func (r *Runner) Run(ctx context.Context, command string) (*exec.Result, error) {
	start := time.Now()
	res, err := r.next.Run(ctx, command)

	ok := err == nil && res != nil && res.Succeeded()
	label := strconv.FormatBool(ok)
	r.m.Commands.WithLabelValues(label).Inc()
	r.m.CommandDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	if err != nil {
		r.m.RecordError(err, "exec")
	}
	return res, err
}

// RecordRun records the outcome of a finished run.
func (m *Metrics) RecordRun(out *auto.RunOutput) {
	m.Runs.WithLabelValues(out.Status).Inc()
	m.RunDuration.Observe(out.Metrics.Duration.Seconds())
	m.RunSteps.Observe(float64(out.Metrics.Steps))
	m.Repairs.Add(float64(out.Metrics.Repairs))
	m.TaskFailures.Add(float64(out.Metrics.Failures))
	if out.ErrorCode != "" {
		m.Errors.WithLabelValues(out.ErrorCode, "engine").Inc()
	}
}

// RecordError counts err under its structured code, or "unknown".
func (m *Metrics) RecordError(err error, component string) {
	code := "unknown"
	if se, ok := errors.As(err); ok {
		code = string(se.Code)
	}
	m.Errors.WithLabelValues(code, component).Inc()
}
