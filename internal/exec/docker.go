package exec

import (
	"context"
	"fmt"
	"maps"
	"os/exec"
	"slices"
	"time"
)

// DefaultDockerImage is used when DockerRunner.Image is empty.
const DefaultDockerImage = "python:3.12-slim"

// DockerRunner runs each command in a throwaway container with the working
// directory mounted at /workspace.
type DockerRunner struct {
	Image   string
	Workdir string
	Network string // Network mode
	CPU     string // CPU limit
	Mem     string // Memory limit
	Env     map[string]string
	Timeout time.Duration
}

// Run implements Runner.
func (r *DockerRunner) Run(ctx context.Context, command string) (*Result, error) {
	return runProcess(ctx, process{
		name:    "docker",
		args:    r.args(command),
		timeout: r.Timeout,
		command: command,
	})
}

// args constructs the docker run arguments with security constraints
func (r *DockerRunner) args(command string) []string {
	args := []string{
		"run",
		"--rm", // Remove container after exit
	}

	if r.Network != "" {
		args = append(args, "--network", r.Network)
	}
	if r.CPU != "" {
		args = append(args, "--cpus", r.CPU)
	}
	if r.Mem != "" {
		args = append(args, "--memory", r.Mem)
	}

	args = append(args,
		"--pids-limit", "256",
		"--cap-drop", "ALL",
	)

	if r.Workdir != "" {
		args = append(args,
			"-v", fmt.Sprintf("%s:/workspace", r.Workdir),
			"-w", "/workspace",
		)
	}

	for _, key := range slices.Sorted(maps.Keys(r.Env)) {
		args = append(args, "-e", fmt.Sprintf("%s=%s", key, r.Env[key]))
	}

	image := r.Image
	if image == "" {
		image = DefaultDockerImage
	}
	return append(args, image, "sh", "-c", command)
}

// DockerAvailable checks that the docker CLI can reach a daemon.
func DockerAvailable(ctx context.Context) error {
	if err := exec.CommandContext(ctx, "docker", "version").Run(); err != nil {
		return fmt.Errorf("docker is not available: %w", err)
	}
	return nil
}
