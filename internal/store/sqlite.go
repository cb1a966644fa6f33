package store

import (
	"database/sql"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/felixgeelhaar/stepwise/internal/errors"
	"github.com/felixgeelhaar/stepwise/internal/task"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS plans (
	id         TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	digest     TEXT NOT NULL,
	body       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS plans_created_at ON plans (created_at);
`

// SQLiteStore keeps plans in a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, errors.Wrap(errors.ErrCodeStoreWrite, "failed to create database directory", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreRead, "failed to open database", err)
	}

	// SQLite allows one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, stmt := range []string{"PRAGMA journal_mode=WAL", "PRAGMA synchronous=NORMAL", sqliteSchema} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, errors.Wrap(errors.ErrCodeStoreWrite, "failed to initialize database", err)
		}
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Save implements PlanStore.
func (s *SQLiteStore) Save(plan *task.Plan) (string, error) {
	body, digest, err := encode(plan)
	if err != nil {
		return "", err
	}

	now := s.now()
	id := NewID(now)
	stamp := now.UTC().Format(time.RFC3339Nano)
	_, err = s.db.Exec(
		`INSERT INTO plans (id, created_at, updated_at, digest, body) VALUES (?, ?, ?, ?, ?)`,
		id, stamp, stamp, digest, string(body),
	)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeStoreWrite, "failed to insert plan", err)
	}
	return id, nil
}

// Update implements PlanStore. Unchanged plans are not rewritten.
func (s *SQLiteStore) Update(id string, plan *task.Plan) error {
	body, digest, err := encode(plan)
	if err != nil {
		return err
	}

	res, err := s.db.Exec(
		`UPDATE plans SET updated_at = ?, digest = ?, body = ? WHERE id = ? AND digest != ?`,
		s.now().UTC().Format(time.RFC3339Nano), digest, string(body), id, digest,
	)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreWrite, fmt.Sprintf("failed to update plan %s", id), err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}

	var exists int
	err = s.db.QueryRow(`SELECT 1 FROM plans WHERE id = ?`, id).Scan(&exists)
	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.NewPlanNotFoundError(id)
	}
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreRead, fmt.Sprintf("failed to look up plan %s", id), err)
	}
	return nil
}

// Get implements PlanStore.
func (s *SQLiteStore) Get(id string) (*task.Plan, error) {
	var body string
	err := s.db.QueryRow(`SELECT body FROM plans WHERE id = ?`, id).Scan(&body)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewPlanNotFoundError(id)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreRead, fmt.Sprintf("failed to read plan %s", id), err)
	}
	return decode(id, []byte(body))
}

// List implements PlanStore.
func (s *SQLiteStore) List() ([]string, error) {
	rows, err := s.db.Query(`SELECT id FROM plans ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreRead, "failed to list plans", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(errors.ErrCodeStoreRead, "failed to list plans", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreRead, "failed to list plans", err)
	}
	return ids, nil
}

// Close implements PlanStore.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
