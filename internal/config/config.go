// Package config loads stepwise.yaml and applies defaults and environment
// overrides.
package config

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/stepwise/internal/errors"
)

// DefaultPath is the config file looked up when none is given.
const DefaultPath = "stepwise.yaml"

// DefaultGoal is run when no goal is supplied.
const DefaultGoal = "create an python server that will run on port 8081 with ui login. use admin admin as default."

// Environment overrides.
const (
	EnvProvider = "STEPWISE_PROVIDER"
	EnvModel    = "STEPWISE_MODEL"
	EnvBaseURL  = "STEPWISE_BASE_URL"

	EnvTelemetry         = "STEPWISE_TELEMETRY"
	EnvTelemetryEndpoint = "STEPWISE_TELEMETRY_ENDPOINT"
)

// Config is the complete stepwise configuration.
type Config struct {
	Provider  ProviderConfig  `yaml:"provider"`
	Engine    EngineConfig    `yaml:"engine"`
	Exec      ExecConfig      `yaml:"exec"`
	Store     StoreConfig     `yaml:"store"`
	Journal   JournalConfig   `yaml:"journal"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ProviderConfig selects the oracle backend.
type ProviderConfig struct {
	Name              string        `yaml:"name"`
	Model             string        `yaml:"model"`
	BaseURL           string        `yaml:"base_url"`
	APIKeyEnv         string        `yaml:"api_key_env,omitempty"`
	ScriptFile        string        `yaml:"script_file,omitempty"`
	Timeout           time.Duration `yaml:"timeout,omitempty"`
	MaxAttempts       int           `yaml:"max_attempts"`
	RequestsPerSecond float64       `yaml:"requests_per_second,omitempty"`
}

// APIKey resolves the key from the configured environment variable.
func (p ProviderConfig) APIKey() string {
	if p.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(p.APIKeyEnv)
}

// EngineConfig bounds the control loop.
type EngineConfig struct {
	DefaultGoal     string `yaml:"default_goal"`
	MaxSchemaFixes  int    `yaml:"max_schema_fixes"`
	MaxRepairRounds int    `yaml:"max_repair_rounds"`
	MaxSteps        int    `yaml:"max_steps,omitempty"`
	PromptsFile     string `yaml:"prompts_file,omitempty"`
}

// ExecConfig configures command execution.
type ExecConfig struct {
	Runner         string        `yaml:"runner"`
	Shell          string        `yaml:"shell,omitempty"`
	Workdir        string        `yaml:"workdir,omitempty"`
	CommandTimeout time.Duration `yaml:"command_timeout,omitempty"`
	DryRun         bool          `yaml:"dry_run,omitempty"`
	ManifestDir    string        `yaml:"manifest_dir,omitempty"`
	Deny           []string      `yaml:"deny,omitempty"`
	Docker         DockerConfig  `yaml:"docker,omitempty"`
}

// DockerConfig configures the container runner.
type DockerConfig struct {
	Image   string `yaml:"image,omitempty"`
	Network string `yaml:"network,omitempty"`
	CPUs    string `yaml:"cpus,omitempty"`
	Memory  string `yaml:"memory,omitempty"`
}

// StoreConfig selects the plan store backend.
type StoreConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// JournalConfig configures the run journal.
type JournalConfig struct {
	Path       string `yaml:"path,omitempty"`
	MaxEntries int    `yaml:"max_entries"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint,omitempty"`
	Insecure    bool    `yaml:"insecure,omitempty"`
	SampleRate  float64 `yaml:"sample_rate"`
	Environment string  `yaml:"environment,omitempty"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	return &Config{
		Provider: ProviderConfig{
			Name:        "ollama",
			Model:       "phi4:latest",
			BaseURL:     "http://localhost:11434",
			MaxAttempts: 1,
		},
		Engine: EngineConfig{
			DefaultGoal:     DefaultGoal,
			MaxSchemaFixes:  5,
			MaxRepairRounds: 5,
		},
		Exec: ExecConfig{
			Runner: "local",
		},
		Store: StoreConfig{
			Backend: "file",
			Path:    "plans",
		},
		Journal: JournalConfig{
			MaxEntries: 10000,
		},
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Telemetry: TelemetryConfig{
			SampleRate:  1.0,
			Environment: "development",
		},
	}
}

// Load reads the config file at path over the defaults. A missing file at
// the default path is not an error; a missing explicit path is. A .env file
// in the working directory is loaded first so provider keys and overrides
// can live there.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		// Expand environment variables in the config
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
			return nil, errors.NewConfigInvalidError(path, err)
		}
		if cfg.Store.Backend == "sqlite" && !storePathSet(data) {
			cfg.Store.Path = "plans.db"
		}
	case stderrors.Is(err, fs.ErrNotExist) && !explicit:
	case stderrors.Is(err, fs.ErrNotExist):
		return nil, errors.Wrap(errors.ErrCodeConfigNotFound, fmt.Sprintf("config file not found: %s", path), err).
			WithSuggestion("Create the file or omit --config to use defaults")
	default:
		return nil, errors.Wrap(errors.ErrCodeConfigNotFound, fmt.Sprintf("failed to read config: %s", path), err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, errors.NewConfigInvalidError(path, err)
	}
	return cfg, nil
}

func storePathSet(data []byte) bool {
	var raw struct {
		Store map[string]any `yaml:"store"`
	}
	if yaml.Unmarshal(data, &raw) != nil {
		return false
	}
	_, ok := raw.Store["path"]
	return ok
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvProvider); v != "" {
		c.Provider.Name = v
	}
	if v := os.Getenv(EnvModel); v != "" {
		c.Provider.Model = v
	}
	if v := os.Getenv(EnvBaseURL); v != "" {
		c.Provider.BaseURL = v
	}
	if v := strings.ToLower(os.Getenv(EnvTelemetry)); v != "" {
		c.Telemetry.Enabled = v == "on" || v == "true" || v == "1" || v == "enabled"
	}
	if v := os.Getenv(EnvTelemetryEndpoint); v != "" {
		c.Telemetry.Endpoint = v
	}
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.Provider.Name) {
	case "ollama", "openai", "scripted":
	default:
		errs = append(errs, fmt.Errorf("provider.name must be ollama, openai, or scripted, got %q", c.Provider.Name))
	}
	if c.Provider.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("provider.max_attempts must be non-negative"))
	}
	if c.Provider.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("provider.requests_per_second must be non-negative"))
	}
	if c.Provider.Timeout < 0 {
		errs = append(errs, fmt.Errorf("provider.timeout must be non-negative"))
	}

	if c.Engine.MaxSchemaFixes < 1 {
		errs = append(errs, fmt.Errorf("engine.max_schema_fixes must be at least 1"))
	}
	if c.Engine.MaxRepairRounds < 1 {
		errs = append(errs, fmt.Errorf("engine.max_repair_rounds must be at least 1"))
	}
	if c.Engine.MaxSteps < 0 {
		errs = append(errs, fmt.Errorf("engine.max_steps must be non-negative"))
	}

	switch strings.ToLower(c.Exec.Runner) {
	case "", "local", "docker":
	default:
		errs = append(errs, fmt.Errorf("exec.runner must be local or docker, got %q", c.Exec.Runner))
	}
	if c.Exec.CommandTimeout < 0 {
		errs = append(errs, fmt.Errorf("exec.command_timeout must be non-negative"))
	}

	switch strings.ToLower(c.Store.Backend) {
	case "", "file", "sqlite", "memory":
	default:
		errs = append(errs, fmt.Errorf("store.backend must be file, sqlite, or memory, got %q", c.Store.Backend))
	}

	if c.Journal.MaxEntries < 0 {
		errs = append(errs, fmt.Errorf("journal.max_entries must be non-negative"))
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("telemetry.sample_rate must be between 0 and 1, got %g", c.Telemetry.SampleRate))
	}

	return stderrors.Join(errs...)
}
