// Package exec runs the shell commands of atomic tasks.
package exec

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/felixgeelhaar/stepwise/internal/errors"
)

// waitDelay bounds how long Run waits for output pipes held open by
// background children after the command itself has exited or been killed.
const waitDelay = 2 * time.Second

// ShellRunner runs commands through the host shell
type ShellRunner struct {
	// Shell overrides the interpreter; empty selects sh, or cmd.exe on Windows
	Shell string

	// Dir is the working directory; empty uses the current one
	Dir string

	// Env is appended to the inherited environment
	Env []string

	// Timeout bounds each command; 0 disables it
	Timeout time.Duration
}

// Run implements Runner.
func (r *ShellRunner) Run(ctx context.Context, command string) (*Result, error) {
	shell, args := shellArgs(r.Shell, command)
	return runProcess(ctx, process{
		name:    shell,
		args:    args,
		dir:     r.Dir,
		env:     r.Env,
		timeout: r.Timeout,
		command: command,
	})
}

// shellArgs builds the argv that hands command to shell.
func shellArgs(shell, command string) (string, []string) {
	if shell == "" {
		shell = "sh"
		if runtime.GOOS == "windows" {
			shell = "cmd.exe"
		}
	}

	switch strings.ToLower(strings.TrimSuffix(filepath.Base(shell), ".exe")) {
	case "cmd":
		return shell, []string{"/c", command}
	case "powershell", "pwsh":
		return shell, []string{"-NoProfile", "-Command", command}
	}
	return shell, []string{"-c", command}
}

type process struct {
	name    string
	args    []string
	dir     string
	env     []string
	timeout time.Duration
	command string
}

func runProcess(ctx context.Context, p process) (*Result, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, p.name, p.args...)
	cmd.Dir = p.dir
	if len(p.env) > 0 {
		cmd.Env = append(os.Environ(), p.env...)
	}
	cmd.WaitDelay = waitDelay
	killGroup(cmd)

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	start := time.Now()
	err := cmd.Run()
	result := &Result{
		Command:  p.command,
		Output:   output.String(),
		Duration: time.Since(start),
	}
	if err == nil {
		return result, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		result.ExitCode = -1
		if stderrors.Is(ctxErr, context.DeadlineExceeded) {
			result.TimedOut = true
			return result, errors.Wrap(errors.ErrCodeExecTimeout,
				fmt.Sprintf("command did not finish within %s", p.timeout), ctxErr)
		}
		return result, ctxErr
	}

	var exitErr *exec.ExitError
	if stderrors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}

	return nil, errors.Wrap(errors.ErrCodeExecLaunch, fmt.Sprintf("failed to launch %s", p.name), err).
		WithSuggestion("Check exec.shell in stepwise.yaml and that the interpreter is on PATH")
}

// DryRunRunner reports every command as successful without running it.
type DryRunRunner struct{}

// Run implements Runner.
func (DryRunRunner) Run(ctx context.Context, command string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Result{Command: command, Output: "dry run: " + command + "\n"}, nil
}
