// Package store persists snapshots of plans as they evolve during a run.
package store

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/felixgeelhaar/stepwise/internal/errors"
	"github.com/felixgeelhaar/stepwise/internal/task"
)

// PlanStore keeps plan snapshots keyed by generated ids.
type PlanStore interface {
	// Save stores a new snapshot and returns its id.
	Save(plan *task.Plan) (string, error)

	// Update replaces the snapshot stored under id.
	Update(id string, plan *task.Plan) error

	// Get returns the snapshot stored under id.
	Get(id string) (*task.Plan, error)

	// List returns every id, newest first.
	List() ([]string, error)

	Close() error
}

// Backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config selects a backend.
type Config struct {
	Backend string
	Path    string
}

// Open opens the configured backend. Empty values select the file backend
// under "plans".
func Open(cfg Config) (PlanStore, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendFile:
		path := cfg.Path
		if path == "" {
			path = "plans"
		}
		return NewFileStore(path), nil
	case BackendSQLite:
		path := cfg.Path
		if path == "" {
			path = "plans.db"
		}
		return OpenSQLite(path)
	case BackendMemory:
		return NewMemoryStore(), nil
	}
	return nil, errors.Newf(errors.ErrCodeStoreUnknownBackend, "unknown store backend: %s", cfg.Backend).
		WithSuggestion("Set store.backend to file, sqlite, or memory")
}

// Record is the persisted form of a snapshot.
type Record struct {
	ID        string     `json:"id"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	Digest    string     `json:"digest"`
	Plan      *task.Plan `json:"plan"`
}

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// NewID returns a sortable id: the timestamp followed by a random suffix.
func NewID(now time.Time) string {
	return now.Format("20060102_150405") + "_" + uuid.NewString()[:8]
}

func validateID(id string) error {
	if !idPattern.MatchString(id) {
		return errors.NewPlanNotFoundError(id)
	}
	return nil
}

// encode renders plan and its blake3 digest.
func encode(plan *task.Plan) ([]byte, string, error) {
	if plan == nil {
		return nil, "", errors.New(errors.ErrCodeStoreWrite, "plan is nil")
	}
	data, err := json.Marshal(plan)
	if err != nil {
		return nil, "", errors.Wrap(errors.ErrCodeStoreWrite, "failed to encode plan", err)
	}
	sum := blake3.Sum256(data)
	return data, hex.EncodeToString(sum[:]), nil
}

func decode(id string, data []byte) (*task.Plan, error) {
	var plan task.Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreRead, fmt.Sprintf("failed to decode plan %s", id), err)
	}
	return &plan, nil
}
