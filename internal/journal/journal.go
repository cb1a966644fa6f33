// Package journal records the leveled history of a run: progress, command
// invocations, and the oracle conversation. Entries are kept in memory for
// the HTTP API, mirrored to the structured logger, and optionally appended to
// a JSONL file.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/felixgeelhaar/stepwise/internal/log"
)

// DefaultMaxEntries bounds the in-memory history when Config.MaxEntries is 0.
const DefaultMaxEntries = 10000

// Config contains journal configuration
type Config struct {
	// Path of an optional JSONL mirror file
	Path string

	// MaxEntries bounds in-memory history; the oldest entries are dropped
	MaxEntries int

	// Logger receives every entry. Nil means the default logger.
	Logger *log.Logger

	// Now overrides the clock in tests
	Now func() time.Time
}

// Journal is a concurrency-safe, bounded, leveled entry sink.
type Journal struct {
	mu         sync.RWMutex
	entries    []Entry
	nextID     int64
	maxEntries int
	file       *os.File
	logger     *log.Logger
	now        func() time.Time
}

// New creates a journal.
func New(cfg Config) (*Journal, error) {
	j := &Journal{
		nextID:     1,
		maxEntries: cfg.MaxEntries,
		logger:     log.OrDefault(cfg.Logger).WithGroup("journal"),
		now:        cfg.Now,
	}
	if j.maxEntries <= 0 {
		j.maxEntries = DefaultMaxEntries
	}
	if j.now == nil {
		j.now = time.Now
	}

	if cfg.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0750); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
		f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, fmt.Errorf("failed to open journal file: %w", err)
		}
		j.file = f
	}
	return j, nil
}

// Discard returns an in-memory journal that logs nowhere.
func Discard() *Journal {
	j, _ := New(Config{Logger: log.Discard()})
	return j
}

// Add records a message at level and returns the stored entry.
func (j *Journal) Add(level Level, message string) Entry {
	j.mu.Lock()
	entry := Entry{
		ID:        j.nextID,
		Timestamp: j.now(),
		Level:     level,
		Message:   message,
	}
	j.nextID++
	j.entries = append(j.entries, entry)
	if over := len(j.entries) - j.maxEntries; over > 0 {
		j.entries = append(j.entries[:0:0], j.entries[over:]...)
	}
	if j.file != nil {
		if data, err := json.Marshal(entry); err == nil {
			_, _ = fmt.Fprintf(j.file, "%s\n", data)
		}
	}
	j.mu.Unlock()

	j.emit(entry)
	return entry
}

func (j *Journal) emit(e Entry) {
	args := []any{"id", e.ID, "level", string(e.Level)}
	switch e.Level {
	case LevelError:
		j.logger.Error(e.Message, args...)
	case LevelWarning:
		j.logger.Warn(e.Message, args...)
	case LevelOracleRequest, LevelOracleResponse:
		j.logger.Debug(e.Message, args...)
	default:
		j.logger.Info(e.Message, args...)
	}
}

// Infof records an info entry
func (j *Journal) Infof(format string, args ...any) {
	j.Add(LevelInfo, fmt.Sprintf(format, args...))
}

// Warnf records a warning entry
func (j *Journal) Warnf(format string, args ...any) {
	j.Add(LevelWarning, fmt.Sprintf(format, args...))
}

// Errorf records an error entry
func (j *Journal) Errorf(format string, args ...any) {
	j.Add(LevelError, fmt.Sprintf(format, args...))
}

// Successf records a success entry
func (j *Journal) Successf(format string, args ...any) {
	j.Add(LevelSuccess, fmt.Sprintf(format, args...))
}

// Command records a shell command about to run
func (j *Journal) Command(cmd string) { j.Add(LevelCommand, cmd) }

// OracleRequest records a prompt sent to the oracle
func (j *Journal) OracleRequest(text string) { j.Add(LevelOracleRequest, text) }

// OracleResponse records text returned by the oracle
func (j *Journal) OracleResponse(text string) { j.Add(LevelOracleResponse, text) }

// All returns a copy of every retained entry.
func (j *Journal) All() []Entry {
	return j.filter(0, func(Entry) bool { return true })
}

// Since returns entries with an id greater than since.
func (j *Journal) Since(since int64) []Entry {
	return j.filter(since, func(Entry) bool { return true })
}

// Conversation returns oracle request and response entries after since.
func (j *Journal) Conversation(since int64) []Entry {
	return j.filter(since, func(e Entry) bool { return e.Level.IsConversation() })
}

// System returns every non-conversation entry after since.
func (j *Journal) System(since int64) []Entry {
	return j.filter(since, func(e Entry) bool { return !e.Level.IsConversation() })
}

// Fixes returns entries describing plan validation and repair.
func (j *Journal) Fixes() []Entry {
	return j.filter(0, Entry.IsFix)
}

func (j *Journal) filter(since int64, keep func(Entry) bool) []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()

	out := make([]Entry, 0)
	for _, e := range j.entries {
		if e.ID > since && keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// Close flushes and closes the mirror file, if any.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}
