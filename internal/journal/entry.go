package journal

import (
	"strings"
	"time"
)

// Level classifies a journal entry.
type Level string

const (
	// LevelInfo is general progress
	LevelInfo Level = "info"

	// LevelWarning is a recoverable problem
	LevelWarning Level = "warning"

	// LevelError is a failed operation
	LevelError Level = "error"

	// LevelSuccess marks a completed task or run
	LevelSuccess Level = "success"

	// LevelCommand is a shell command about to run
	LevelCommand Level = "command"

	// LevelOracleRequest is a prompt sent to the oracle
	LevelOracleRequest Level = "oracle_request"

	// LevelOracleResponse is text returned by the oracle
	LevelOracleResponse Level = "oracle_response"
)

// IsConversation reports whether entries at this level are part of the
// oracle conversation.
func (l Level) IsConversation() bool {
	return l == LevelOracleRequest || l == LevelOracleResponse
}

// Entry is one journal record.
type Entry struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
}

var fixMarkers = []string{
	"Plan is invalid",
	"fixing",
	"fix the plan",
	"Applied plan fixes",
	"validation",
	"Evaluating plan",
	"commands",
}

// IsFix reports whether the entry belongs to the plan validation and repair
// story.
func (e Entry) IsFix() bool {
	for _, marker := range fixMarkers {
		if strings.Contains(e.Message, marker) {
			return true
		}
	}
	return strings.Contains(strings.ToLower(e.Message), "plan")
}
