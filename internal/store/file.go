package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/stepwise/internal/errors"
	"github.com/felixgeelhaar/stepwise/internal/task"
)

// FileStore keeps one JSON record per plan in a directory.
type FileStore struct {
	dir string
	now func() time.Time
	mu  sync.Mutex
}

// NewFileStore creates a store rooted at dir. The directory is created on
// first write.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir, now: time.Now}
}

// Save implements PlanStore.
func (s *FileStore) Save(plan *task.Plan) (string, error) {
	_, digest, err := encode(plan)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	rec := &Record{
		ID:        NewID(now),
		CreatedAt: now,
		UpdatedAt: now,
		Digest:    digest,
		Plan:      plan,
	}
	if err := s.write(rec); err != nil {
		return "", err
	}
	return rec.ID, nil
}

// Update implements PlanStore. Unchanged plans are not rewritten.
func (s *FileStore) Update(id string, plan *task.Plan) error {
	_, digest, err := encode(plan)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.read(id)
	if err != nil {
		return err
	}
	if rec.Digest == digest {
		return nil
	}

	rec.Plan = plan
	rec.Digest = digest
	rec.UpdatedAt = s.now()
	return s.write(rec)
}

// Get implements PlanStore.
func (s *FileStore) Get(id string) (*task.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.read(id)
	if err != nil {
		return nil, err
	}
	if rec.Plan == nil {
		return &task.Plan{}, nil
	}
	return rec.Plan, nil
}

// List implements PlanStore. Ids sort by their timestamp prefix.
func (s *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, errors.Wrap(errors.ErrCodeStoreRead, "failed to read plan directory", err)
	}

	ids := []string{}
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".json" {
			ids = append(ids, strings.TrimSuffix(entry.Name(), ".json"))
		}
	}
	slices.Sort(ids)
	slices.Reverse(ids)
	return ids, nil
}

// Close implements PlanStore.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *FileStore) read(id string) (*Record, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewPlanNotFoundError(id)
		}
		return nil, errors.Wrap(errors.ErrCodeStoreRead, fmt.Sprintf("failed to read plan %s", id), err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreRead, fmt.Sprintf("failed to decode plan %s", id), err)
	}
	return &rec, nil
}

// write replaces the record file through a temporary file and rename.
func (s *FileStore) write(rec *Record) error {
	if err := os.MkdirAll(s.dir, 0750); err != nil {
		return errors.Wrap(errors.ErrCodeStoreWrite, "failed to create plan directory", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreWrite, "failed to encode plan record", err)
	}

	tmp, err := os.CreateTemp(s.dir, rec.ID+".*.tmp")
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreWrite, "failed to create temporary file", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(errors.ErrCodeStoreWrite, "failed to write plan record", err)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(errors.ErrCodeStoreWrite, "failed to write plan record", err)
	}
	if err := os.Rename(tmpName, s.path(rec.ID)); err != nil {
		return errors.Wrap(errors.ErrCodeStoreWrite, "failed to replace plan record", err)
	}
	return nil
}
