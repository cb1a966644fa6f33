package exec

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/stepwise/internal/errors"
	"github.com/felixgeelhaar/stepwise/internal/log"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("uses POSIX shell syntax")
	}
}

func TestShellRunner(t *testing.T) {
	skipOnWindows(t)

	tests := []struct {
		name     string
		command  string
		exitCode int
		output   string
	}{
		{name: "success", command: "echo hello", exitCode: 0, output: "hello\n"},
		{name: "nonzero exit", command: "echo oops 1>&2; exit 3", exitCode: 3, output: "oops\n"},
		{name: "merged in order", command: "echo a; echo b 1>&2; echo c", exitCode: 0, output: "a\nb\nc\n"},
		{name: "missing binary", command: "definitely-not-a-command-xyz", exitCode: 127},
	}

	r := &ShellRunner{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.Run(context.Background(), tt.command)
			require.NoError(t, err)
			assert.Equal(t, tt.command, res.Command)
			assert.Equal(t, tt.exitCode, res.ExitCode)
			assert.Equal(t, tt.exitCode == 0, res.Succeeded())
			if tt.output != "" {
				assert.Equal(t, tt.output, res.Output)
			}
		})
	}
}

func TestShellRunnerDirAndEnv(t *testing.T) {
	skipOnWindows(t)

	dir := t.TempDir()
	r := &ShellRunner{Dir: dir, Env: []string{"STEPWISE_TEST_VALUE=42"}}

	res, err := r.Run(context.Background(), "touch marker && echo $STEPWISE_TEST_VALUE")
	require.NoError(t, err)
	assert.Equal(t, "42\n", res.Output)
	assert.FileExists(t, filepath.Join(dir, "marker"))
}

func TestShellRunnerTimeout(t *testing.T) {
	skipOnWindows(t)

	r := &ShellRunner{Timeout: 50 * time.Millisecond}
	start := time.Now()
	res, err := r.Run(context.Background(), "sleep 5")

	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeExecTimeout))
	require.NotNil(t, res)
	assert.True(t, res.TimedOut)
	assert.False(t, res.Succeeded())
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestShellRunnerLaunchFailure(t *testing.T) {
	r := &ShellRunner{Shell: filepath.Join(t.TempDir(), "no-such-shell")}
	res, err := r.Run(context.Background(), "echo hi")

	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.HasCode(err, errors.ErrCodeExecLaunch))
}

func TestShellArgs(t *testing.T) {
	tests := []struct {
		shell string
		want  []string
	}{
		{shell: "bash", want: []string{"-c", "ls"}},
		{shell: "/bin/zsh", want: []string{"-c", "ls"}},
		{shell: "cmd.exe", want: []string{"/c", "ls"}},
		{shell: `C:\Windows\System32\cmd.exe`, want: []string{"/c", "ls"}},
		{shell: "pwsh", want: []string{"-NoProfile", "-Command", "ls"}},
	}

	for _, tt := range tests {
		t.Run(tt.shell, func(t *testing.T) {
			shell, args := shellArgs(tt.shell, "ls")
			assert.Equal(t, tt.shell, shell)
			assert.Equal(t, tt.want, args)
		})
	}
}

func TestDryRunRunner(t *testing.T) {
	res, err := DryRunRunner{}.Run(context.Background(), "rm -rf build")
	require.NoError(t, err)
	assert.True(t, res.Succeeded())
	assert.Contains(t, res.Output, "rm -rf build")
}

func TestDockerArgs(t *testing.T) {
	r := &DockerRunner{
		Image:   "alpine:3.20",
		Workdir: "/tmp/work",
		Network: "none",
		CPU:     "1",
		Mem:     "512m",
		Env:     map[string]string{"B": "2", "A": "1"},
	}

	assert.Equal(t, []string{
		"run", "--rm",
		"--network", "none",
		"--cpus", "1",
		"--memory", "512m",
		"--pids-limit", "256",
		"--cap-drop", "ALL",
		"-v", "/tmp/work:/workspace", "-w", "/workspace",
		"-e", "A=1", "-e", "B=2",
		"alpine:3.20", "sh", "-c", "echo hi",
	}, r.args("echo hi"))

	minimal := (&DockerRunner{}).args("ls")
	assert.Equal(t, []string{"run", "--rm", "--pids-limit", "256", "--cap-drop", "ALL", DefaultDockerImage, "sh", "-c", "ls"}, minimal)
}

func TestPolicy(t *testing.T) {
	p := &Policy{Deny: []string{"rm -rf /*", "shutdown*", "reboot"}}

	tests := []struct {
		command string
		denied  bool
	}{
		{command: "rm -rf /", denied: true},
		{command: "rm   -rf   /etc", denied: true},
		{command: "shutdown -h now", denied: true},
		{command: "reboot", denied: true},
		{command: "reboot-helper", denied: false},
		{command: "rm -rf ./build", denied: false},
		{command: "echo shutdown", denied: false},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			assert.Equal(t, tt.denied, p.Check(tt.command) != nil)
		})
	}

	var none *Policy
	assert.NoError(t, none.Check("anything"))
}

func TestGuardedRefusesWithoutLaunching(t *testing.T) {
	var launched []string
	inner := RunnerFunc(func(ctx context.Context, command string) (*Result, error) {
		launched = append(launched, command)
		return &Result{Command: command}, nil
	})
	g := &Guarded{Runner: inner, Policy: &Policy{Deny: []string{"shutdown*"}}}

	res, err := g.Run(context.Background(), "shutdown now")
	require.NoError(t, err)
	assert.Equal(t, PolicyExitCode, res.ExitCode)
	assert.Contains(t, res.Output, "policy violation")

	_, err = g.Run(context.Background(), "ls")
	require.NoError(t, err)
	assert.Equal(t, []string{"ls"}, launched)
}

func TestRecorderWritesManifests(t *testing.T) {
	dir := t.TempDir()
	fixed := time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)
	inner := RunnerFunc(func(ctx context.Context, command string) (*Result, error) {
		return &Result{Command: command, ExitCode: 2, Output: "boom\n", Duration: time.Second}, nil
	})
	r := &Recorder{Runner: inner, Name: "local", Dir: dir, Workdir: "/srv", Logger: log.Discard(), Now: func() time.Time { return fixed }}

	_, err := r.Run(context.Background(), "make build")
	require.NoError(t, err)
	_, err = r.Run(context.Background(), "make test")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "20250301_123000_0002.json"))
	require.NoError(t, err)

	var m RunManifest
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "make test", m.Command)
	assert.Equal(t, 2, m.ExitCode)
	assert.Equal(t, "local", m.Runner)
	assert.Equal(t, "/srv", m.Workdir)
	assert.Equal(t, 5, m.OutputBytes)
	assert.Equal(t, Digest([]byte("boom\n")), m.OutputDigest)
	assert.Len(t, m.OutputDigest, 64)
}

func TestRecorderPassesLaunchErrors(t *testing.T) {
	dir := t.TempDir()
	inner := RunnerFunc(func(ctx context.Context, command string) (*Result, error) {
		return nil, errors.New(errors.ErrCodeExecLaunch, "no shell")
	})
	r := &Recorder{Runner: inner, Dir: dir}

	_, err := r.Run(context.Background(), "ls")
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestNew(t *testing.T) {
	t.Run("dry run wins", func(t *testing.T) {
		r, err := New(Config{Kind: KindDocker, DryRun: true})
		require.NoError(t, err)
		assert.IsType(t, DryRunRunner{}, r)
	})

	t.Run("local with guard and recorder", func(t *testing.T) {
		r, err := New(Config{Deny: []string{"reboot"}, ManifestDir: t.TempDir()})
		require.NoError(t, err)
		rec, ok := r.(*Recorder)
		require.True(t, ok)
		g, ok := rec.Runner.(*Guarded)
		require.True(t, ok)
		assert.IsType(t, &ShellRunner{}, g.Runner)
	})

	t.Run("docker", func(t *testing.T) {
		r, err := New(Config{Kind: "Docker", Docker: DockerConfig{Image: "alpine"}})
		require.NoError(t, err)
		assert.Equal(t, "alpine", r.(*DockerRunner).Image)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := New(Config{Kind: "kubernetes"})
		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "kubernetes"))
	})
}
