package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/stepwise/internal/config"
	"github.com/felixgeelhaar/stepwise/internal/errors"
	"github.com/felixgeelhaar/stepwise/internal/exitcode"
	"github.com/felixgeelhaar/stepwise/internal/log"
)

const scriptedConfig = `provider:
  name: scripted
  script_file: script.yaml
exec:
  dry_run: true
store:
  backend: file
  path: plans
log:
  level: warn
`

// scriptedResponses plan one atomic task and then accept the plan twice:
// once before executing it and once after.
const scriptedResponses = `- '{"subtasks": [{"id": 1, "description": "Say hello", "isAtomic": true, "commands": ["echo hello"], "successCriteria": "hello printed"}]}'
- '{"overallValidity": true, "explanation": "ok"}'
- '{"overallValidity": true, "explanation": "ok"}'
`

// workspace runs the test from a directory holding a scripted config.
func workspace(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv(config.EnvProvider, "")
	t.Setenv(config.EnvModel, "")
	t.Setenv(config.EnvBaseURL, "")
	require.NoError(t, os.WriteFile(config.DefaultPath, []byte(scriptedConfig), 0600))
	require.NoError(t, os.WriteFile("script.yaml", []byte(scriptedResponses), 0600))
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := NewRootCommand()
	root.SetArgs(args)
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestRunJSON(t *testing.T) {
	workspace(t)

	stdout, _, err := execute(t, "run", "--json", "say", "hello")
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, "stepwise.run.output/v1", out["schema"])
	assert.Equal(t, "say hello", out["goal"])
	assert.Equal(t, "completed", out["status"])
	assert.NotEmpty(t, out["planId"])

	metrics := out["metrics"].(map[string]any)
	assert.Equal(t, 1.0, metrics["commands"])
	assert.Equal(t, 1.0, metrics["completedTasks"])

	entries, err := os.ReadDir("plans")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRunSummary(t *testing.T) {
	workspace(t)

	stdout, _, err := execute(t, "run", "--verbose", "say hello")
	require.NoError(t, err)
	assert.Contains(t, stdout, "1. Say hello")
	assert.Contains(t, stdout, "echo hello")
	assert.Contains(t, stdout, "Completed")
	assert.Contains(t, stdout, "1/1 completed")
}

func TestPlansCommands(t *testing.T) {
	workspace(t)

	_, _, err := execute(t, "run", "--json", "say hello")
	require.NoError(t, err)

	stdout, _, err := execute(t, "plans", "list")
	require.NoError(t, err)
	ids := strings.Fields(stdout)
	require.Len(t, ids, 1)
	id := ids[0]

	stdout, _, err = execute(t, "plans", "patch", id,
		`getTask(1).change("description", "Greet the world")`,
		`removeTask(9)`,
	)
	assert.True(t, errors.HasCode(err, errors.ErrCodePatchTaskNotFound))
	assert.Contains(t, stdout, "1 applied, 1 failed, 0 skipped")

	stdout, _, err = execute(t, "plans", "show", "--json", id)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Greet the world")

	stdout, _, err = execute(t, "plans", "show", id)
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓")
	assert.Contains(t, stdout, "1. Greet the world")

	_, _, err = execute(t, "plans", "show", "20200101_000000_deadbeef")
	assert.True(t, errors.HasCode(err, errors.ErrCodePlanNotFound))
}

func TestCommandErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code int
	}{
		{name: "unknown provider", args: []string{"run", "--provider", "bard", "goal"}, code: exitcode.UsageError},
		{name: "missing config file", args: []string{"--config", "absent.yaml", "plans", "list"}, code: exitcode.UsageError},
		{name: "bad log level", args: []string{"--log-level", "loud", "plans", "list"}, code: exitcode.UsageError},
		{name: "missing show argument", args: []string{"plans", "show"}, code: exitcode.UsageError},
		{name: "unknown flag", args: []string{"run", "--frobnicate"}, code: exitcode.UsageError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			workspace(t)
			_, _, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.code, exitcode.DetermineExitCode(err))
		})
	}
}

func TestVersion(t *testing.T) {
	stdout, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, "stepwise "))

	stdout, _, err = execute(t, "version", "--json")
	require.NoError(t, err)
	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	assert.Contains(t, info, "goVersion")
}

func TestDebugFlag(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		wantDebug  bool
		wantSource bool
	}{
		{name: "config level", args: []string{"plans", "list"}},
		{name: "debug overrides config", args: []string{"--debug", "plans", "list"}, wantDebug: true, wantSource: true},
		{name: "debug overrides flag", args: []string{"--debug", "--log-level", "error", "plans", "list"}, wantDebug: true, wantSource: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			workspace(t)
			var stderr bytes.Buffer
			root, opts := newRootCommand()
			root.SetArgs(tt.args)
			root.SetOut(&bytes.Buffer{})
			root.SetErr(&stderr)
			require.NoError(t, root.ExecuteContext(context.Background()))

			assert.Equal(t, tt.wantDebug, opts.logger.Enabled(context.Background(), log.LevelDebug))
			assert.Equal(t, tt.wantSource, opts.logger.Config().AddSource)
			assert.Same(t, &stderr, opts.logger.Config().Output)
		})
	}
}
