package exec

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/zeebo/blake3"

	"github.com/felixgeelhaar/stepwise/internal/log"
)

// Digest returns the hex blake3 hash of data.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// CreateManifest creates a run manifest for audit purposes
func CreateManifest(runner string, seq int64, workdir string, result *Result, now time.Time) *RunManifest {
	return &RunManifest{
		Timestamp:    now,
		Sequence:     seq,
		Runner:       runner,
		Command:      result.Command,
		Workdir:      workdir,
		ExitCode:     result.ExitCode,
		TimedOut:     result.TimedOut,
		Duration:     result.Duration.String(),
		OutputBytes:  len(result.Output),
		OutputDigest: Digest([]byte(result.Output)),
	}
}

// SaveManifest writes a run manifest to dir and returns its path.
func SaveManifest(manifest *RunManifest, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("create manifest directory: %w", err)
	}

	filename := fmt.Sprintf("%s_%04d.json",
		manifest.Timestamp.Format("20060102_150405"),
		manifest.Sequence)
	path := filepath.Join(dir, filename)

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	return path, nil
}

// Recorder wraps a Runner and writes a manifest for every finished command.
// Manifest failures are logged and never fail the command.
type Recorder struct {
	Runner  Runner
	Name    string
	Dir     string
	Workdir string
	Logger  *log.Logger
	Now     func() time.Time

	seq atomic.Int64
}

// Run implements Runner.
func (r *Recorder) Run(ctx context.Context, command string) (*Result, error) {
	result, err := r.Runner.Run(ctx, command)
	if result == nil {
		return result, err
	}

	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	manifest := CreateManifest(r.Name, r.seq.Add(1), r.Workdir, result, now())
	if _, saveErr := SaveManifest(manifest, r.Dir); saveErr != nil {
		log.OrDefault(r.Logger).Warn("failed to save run manifest", "error", saveErr, "command", command)
	}
	return result, err
}
