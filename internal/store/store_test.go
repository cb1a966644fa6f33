package store

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/stepwise/internal/errors"
	"github.com/felixgeelhaar/stepwise/internal/task"
)

func samplePlan() *task.Plan {
	return task.NewPlan(
		&task.Task{ID: 1, Description: "prepare", SubTasks: []*task.Task{
			{ID: 2, Description: "mkdir", IsAtomic: true, Commands: []string{"mkdir -p out"}, Completed: true},
		}},
		&task.Task{ID: 3, Description: "build", IsAtomic: true, Commands: []string{"make"}, SuccessCriteria: "binary exists"},
	)
}

// clock returns a time source that advances one second per call, so ids and
// ordering are deterministic.
func clock() func() time.Time {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

func backends(t *testing.T) map[string]PlanStore {
	t.Helper()

	fs := NewFileStore(filepath.Join(t.TempDir(), "plans"))
	fs.now = clock()

	sq, err := OpenSQLite(filepath.Join(t.TempDir(), "db", "plans.db"))
	require.NoError(t, err)
	sq.now = clock()

	ms := NewMemoryStore()
	ms.now = clock()

	stores := map[string]PlanStore{"file": fs, "sqlite": sq, "memory": ms}
	t.Cleanup(func() {
		for _, s := range stores {
			s.Close()
		}
	})
	return stores
}

func TestPlanStoreContract(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			plan := samplePlan()

			id, err := s.Save(plan)
			require.NoError(t, err)
			assert.Regexp(t, regexp.MustCompile(`^\d{8}_\d{6}_[0-9a-f]{8}$`), id)

			got, err := s.Get(id)
			require.NoError(t, err)
			assert.Equal(t, plan.JSON(), got.JSON())

			plan.Tasks[1].Completed = true
			plan.Tasks[1].AppendCommand("make install")
			require.NoError(t, s.Update(id, plan))

			got, err = s.Get(id)
			require.NoError(t, err)
			assert.True(t, got.Find(3).Completed)
			assert.Equal(t, []string{"make", "make install"}, got.Find(3).Commands)

			second, err := s.Save(task.FallbackPlan("ship it"))
			require.NoError(t, err)

			ids, err := s.List()
			require.NoError(t, err)
			assert.Equal(t, []string{second, id}, ids)
		})
	}
}

func TestPlanStoreMissing(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get("20250101_000000_deadbeef")
			assert.True(t, errors.HasCode(err, errors.ErrCodePlanNotFound))

			err = s.Update("20250101_000000_deadbeef", samplePlan())
			assert.True(t, errors.HasCode(err, errors.ErrCodePlanNotFound))

			ids, err := s.List()
			require.NoError(t, err)
			assert.Empty(t, ids)
		})
	}
}

func TestPlanStoreNilPlan(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Save(nil)
			assert.True(t, errors.HasCode(err, errors.ErrCodeStoreWrite))
		})
	}
}

func TestFileStoreSkipsUnchangedUpdate(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir)
	s.now = clock()

	id, err := s.Save(samplePlan())
	require.NoError(t, err)

	path := filepath.Join(dir, id+".json")
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, s.Update(id, samplePlan()))
	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after, "unchanged plan must not bump updatedAt")

	changed := samplePlan()
	changed.Tasks[0].Description = "prepare workspace"
	require.NoError(t, s.Update(id, changed))
	after, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
	assert.Contains(t, string(after), `"digest"`)
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	s := NewFileStore(t.TempDir())
	_, err := s.Get("../etc/passwd")
	assert.True(t, errors.HasCode(err, errors.ErrCodePlanNotFound))
}

func TestFileStoreCorruptRecord(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0600))

	s := NewFileStore(dir)
	_, err := s.Get("broken")
	assert.True(t, errors.HasCode(err, errors.ErrCodeStoreRead))
}

func TestOpen(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		want    any
		wantErr bool
	}{
		{name: "default file", cfg: Config{Path: t.TempDir()}, want: &FileStore{}},
		{name: "sqlite", cfg: Config{Backend: "SQLite", Path: filepath.Join(t.TempDir(), "p.db")}, want: &SQLiteStore{}},
		{name: "memory", cfg: Config{Backend: "memory"}, want: &MemoryStore{}},
		{name: "unknown", cfg: Config{Backend: "redis"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Open(tt.cfg)
			if tt.wantErr {
				assert.True(t, errors.HasCode(err, errors.ErrCodeStoreUnknownBackend))
				return
			}
			require.NoError(t, err)
			defer s.Close()
			assert.IsType(t, tt.want, s)
		})
	}
}
