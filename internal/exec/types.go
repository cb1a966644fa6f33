package exec

import (
	"context"
	"time"
)

// Runner executes one shell command and reports its exit code and merged
// output. A nonzero exit is a Result, not an error; errors mean the command
// could not be launched or did not finish.
type Runner interface {
	Run(ctx context.Context, command string) (*Result, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, command string) (*Result, error)

// Run implements Runner.
func (f RunnerFunc) Run(ctx context.Context, command string) (*Result, error) {
	return f(ctx, command)
}

// Result represents the outcome of one command
type Result struct {
	Command  string
	ExitCode int

	// Output is stdout and stderr interleaved as written
	Output   string
	Duration time.Duration
	TimedOut bool
}

// Succeeded reports whether the command exited with status 0.
func (r *Result) Succeeded() bool {
	return r.ExitCode == 0 && !r.TimedOut
}

// RunManifest is the audit record written for each command
type RunManifest struct {
	Timestamp    time.Time `json:"timestamp"`
	Sequence     int64     `json:"sequence"`
	Runner       string    `json:"runner"`
	Command      string    `json:"command"`
	Workdir      string    `json:"workdir,omitempty"`
	ExitCode     int       `json:"exit_code"`
	TimedOut     bool      `json:"timed_out,omitempty"`
	Duration     string    `json:"duration"`
	OutputBytes  int       `json:"output_bytes"`
	OutputDigest string    `json:"output_digest"`
}
