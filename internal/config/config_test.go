package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/stepwise/internal/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stepwise.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

// inTempDir runs the test from an empty working directory so that no .env or
// stepwise.yaml from the repository leaks in.
func inTempDir(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "ollama", cfg.Provider.Name)
	assert.Equal(t, "phi4:latest", cfg.Provider.Model)
	assert.Equal(t, "http://localhost:11434", cfg.Provider.BaseURL)
	assert.Equal(t, 1, cfg.Provider.MaxAttempts)
	assert.Equal(t, 5, cfg.Engine.MaxSchemaFixes)
	assert.Equal(t, 5, cfg.Engine.MaxRepairRounds)
	assert.Zero(t, cfg.Engine.MaxSteps)
	assert.Equal(t, DefaultGoal, cfg.Engine.DefaultGoal)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 10000, cfg.Journal.MaxEntries)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingDefaultFile(t *testing.T) {
	inTempDir(t)
	t.Setenv(EnvProvider, "")
	t.Setenv(EnvModel, "")
	t.Setenv(EnvBaseURL, "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	inTempDir(t)

	_, err := Load("nope.yaml")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeConfigNotFound))
}

func TestLoadFile(t *testing.T) {
	inTempDir(t)
	t.Setenv("STEPWISE_TEST_KEY_NAME", "MY_KEY")
	t.Setenv("MY_KEY", "sk-test")

	path := writeConfig(t, `
provider:
  name: openai
  model: gpt-4o-mini
  base_url: https://api.example.com
  api_key_env: ${STEPWISE_TEST_KEY_NAME}
  timeout: 45s
  max_attempts: 3
engine:
  max_repair_rounds: 2
  max_steps: 40
exec:
  runner: docker
  command_timeout: 2m
  deny: ["rm -rf /*"]
  docker:
    image: alpine:3.20
    network: none
store:
  backend: sqlite
server:
  addr: 127.0.0.1:9000
log:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Provider.Name)
	assert.Equal(t, "sk-test", cfg.Provider.APIKey())
	assert.Equal(t, 45*time.Second, cfg.Provider.Timeout)
	assert.Equal(t, 3, cfg.Provider.MaxAttempts)
	assert.Equal(t, 2, cfg.Engine.MaxRepairRounds)
	assert.Equal(t, 5, cfg.Engine.MaxSchemaFixes, "unset keys keep defaults")
	assert.Equal(t, 40, cfg.Engine.MaxSteps)
	assert.Equal(t, "docker", cfg.Exec.Runner)
	assert.Equal(t, 2*time.Minute, cfg.Exec.CommandTimeout)
	assert.Equal(t, []string{"rm -rf /*"}, cfg.Exec.Deny)
	assert.Equal(t, "alpine:3.20", cfg.Exec.Docker.Image)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, "plans.db", cfg.Store.Path)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadEnvOverrides(t *testing.T) {
	inTempDir(t)
	path := writeConfig(t, "provider:\n  name: ollama\n  model: llama3\n")

	t.Setenv(EnvProvider, "scripted")
	t.Setenv(EnvModel, "canned")
	t.Setenv(EnvBaseURL, "http://10.0.0.2:11434")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "scripted", cfg.Provider.Name)
	assert.Equal(t, "canned", cfg.Provider.Model)
	assert.Equal(t, "http://10.0.0.2:11434", cfg.Provider.BaseURL)
}

func TestLoadTelemetryEnv(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		env      string
		endpoint string
		want     bool
	}{
		{name: "off by default", body: "log:\n  level: info\n", want: false},
		{name: "from file", body: "telemetry:\n  enabled: true\n", want: true},
		{name: "env enables", body: "log:\n  level: info\n", env: "on", endpoint: "otel:4318", want: true},
		{name: "env disables", body: "telemetry:\n  enabled: true\n", env: "off", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inTempDir(t)
			t.Setenv(EnvTelemetry, tt.env)
			t.Setenv(EnvTelemetryEndpoint, tt.endpoint)

			cfg, err := Load(writeConfig(t, tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Telemetry.Enabled)
			assert.Equal(t, tt.endpoint, cfg.Telemetry.Endpoint)
			assert.Equal(t, 1.0, cfg.Telemetry.SampleRate)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	inTempDir(t)
	t.Setenv(EnvModel, "")
	os.Unsetenv(EnvModel)
	require.NoError(t, os.WriteFile(".env", []byte(EnvModel+"=from-dotenv\n"), 0600))
	t.Cleanup(func() { os.Unsetenv(EnvModel) })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Provider.Model)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "malformed yaml", body: "provider: [unclosed"},
		{name: "unknown provider", body: "provider:\n  name: claude-local\n"},
		{name: "zero repair rounds", body: "engine:\n  max_repair_rounds: 0\n"},
		{name: "negative steps", body: "engine:\n  max_steps: -1\n"},
		{name: "unknown runner", body: "exec:\n  runner: kubernetes\n"},
		{name: "unknown store", body: "store:\n  backend: redis\n"},
		{name: "sample rate above one", body: "telemetry:\n  sample_rate: 1.5\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inTempDir(t)
			t.Setenv(EnvProvider, "")

			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.ErrCodeConfigInvalid))
		})
	}
}
