package exec

import (
	"strings"
	"time"

	"github.com/felixgeelhaar/stepwise/internal/errors"
	"github.com/felixgeelhaar/stepwise/internal/log"
)

// Runner kinds.
const (
	KindLocal  = "local"
	KindDocker = "docker"
)

// Config selects and configures the runner stack.
type Config struct {
	Kind        string
	Shell       string
	Workdir     string
	Timeout     time.Duration
	DryRun      bool
	ManifestDir string
	Deny        []string
	Docker      DockerConfig
	Logger      *log.Logger
}

// DockerConfig configures DockerRunner.
type DockerConfig struct {
	Image   string
	Network string
	CPU     string
	Mem     string
}

// New builds a Runner from cfg: the base runner, wrapped by the deny-list
// guard, wrapped by the manifest recorder when a manifest directory is set.
func New(cfg Config) (Runner, error) {
	var (
		base Runner
		name string
	)
	switch {
	case cfg.DryRun:
		base, name = DryRunRunner{}, "dry-run"
	case cfg.Kind == "" || strings.EqualFold(cfg.Kind, KindLocal):
		base, name = &ShellRunner{Shell: cfg.Shell, Dir: cfg.Workdir, Timeout: cfg.Timeout}, KindLocal
	case strings.EqualFold(cfg.Kind, KindDocker):
		base = &DockerRunner{
			Image:   cfg.Docker.Image,
			Workdir: cfg.Workdir,
			Network: cfg.Docker.Network,
			CPU:     cfg.Docker.CPU,
			Mem:     cfg.Docker.Mem,
			Timeout: cfg.Timeout,
		}
		name = KindDocker
	default:
		return nil, errors.Newf(errors.ErrCodeConfigInvalid, "unknown exec runner: %s", cfg.Kind).
			WithSuggestion("Set exec.runner to local or docker")
	}

	var r Runner = base
	if len(cfg.Deny) > 0 {
		r = &Guarded{Runner: r, Policy: &Policy{Deny: cfg.Deny}}
	}
	if cfg.ManifestDir != "" {
		r = &Recorder{Runner: r, Name: name, Dir: cfg.ManifestDir, Workdir: cfg.Workdir, Logger: cfg.Logger}
	}
	return r, nil
}
