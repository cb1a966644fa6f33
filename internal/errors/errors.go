package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error categories
const (
	// Oracle errors (ORACLE-001 to ORACLE-099)
	ErrCodeOracleTransport       ErrorCode = "ORACLE-001"
	ErrCodeOracleMalformed       ErrorCode = "ORACLE-002"
	ErrCodeOracleSchemaExhausted ErrorCode = "ORACLE-003"
	ErrCodeOracleUnknownProvider ErrorCode = "ORACLE-004"
	ErrCodeOracleTimeout         ErrorCode = "ORACLE-005"

	// Patch errors (PATCH-001 to PATCH-099)
	ErrCodePatchSyntax          ErrorCode = "PATCH-001"
	ErrCodePatchUnknownVerb     ErrorCode = "PATCH-002"
	ErrCodePatchArity           ErrorCode = "PATCH-003"
	ErrCodePatchInvalidLiteral  ErrorCode = "PATCH-004"
	ErrCodePatchTaskNotFound    ErrorCode = "PATCH-005"
	ErrCodePatchUnknownProperty ErrorCode = "PATCH-006"
	ErrCodePatchPayloadInvalid  ErrorCode = "PATCH-007"

	// Plan errors (PLAN-001 to PLAN-099)
	ErrCodePlanNotFound        ErrorCode = "PLAN-001"
	ErrCodePlanRepairExhausted ErrorCode = "PLAN-002"
	ErrCodePlanStepsExhausted  ErrorCode = "PLAN-003"
	ErrCodePlanFallback        ErrorCode = "PLAN-004"

	// Execution errors (EXEC-001 to EXEC-099)
	ErrCodeExecLaunch  ErrorCode = "EXEC-001"
	ErrCodeExecTimeout ErrorCode = "EXEC-002"

	// Store errors (STORE-001 to STORE-099)
	ErrCodeStoreRead           ErrorCode = "STORE-001"
	ErrCodeStoreWrite          ErrorCode = "STORE-002"
	ErrCodeStoreUnknownBackend ErrorCode = "STORE-003"

	// Config errors (CONFIG-001 to CONFIG-099)
	ErrCodeConfigInvalid  ErrorCode = "CONFIG-001"
	ErrCodeConfigNotFound ErrorCode = "CONFIG-002"
)

// StepwiseError represents an error with a code, suggestions, and documentation
type StepwiseError struct {
	Code        ErrorCode
	Message     string
	Suggestions []string
	DocsURL     string
	Cause       error
}

// Error implements the error interface
func (e *StepwiseError) Error() string {
	var b strings.Builder

	fmt.Fprintf(&b, "[%s] %s", e.Code, e.Message)

	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			fmt.Fprintf(&b, "\n  • %s", suggestion)
		}
	}

	if e.DocsURL != "" {
		fmt.Fprintf(&b, "\n\nDocumentation: %s", e.DocsURL)
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *StepwiseError) Unwrap() error {
	return e.Cause
}

// New creates a new StepwiseError
func New(code ErrorCode, message string) *StepwiseError {
	return &StepwiseError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new StepwiseError with a formatted message
func Newf(code ErrorCode, format string, args ...any) *StepwiseError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap creates a new StepwiseError wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *StepwiseError {
	return &StepwiseError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithSuggestion adds a suggestion to the error
func (e *StepwiseError) WithSuggestion(suggestion string) *StepwiseError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple suggestions to the error
func (e *StepwiseError) WithSuggestions(suggestions ...string) *StepwiseError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// WithDocs adds a documentation URL to the error
func (e *StepwiseError) WithDocs(url string) *StepwiseError {
	e.DocsURL = url
	return e
}

// As finds the first StepwiseError in err's chain.
func As(err error) (*StepwiseError, bool) {
	var se *StepwiseError
	if stderrors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// HasCode reports whether any StepwiseError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var se *StepwiseError
		if !stderrors.As(err, &se) {
			return false
		}
		if se.Code == code {
			return true
		}
		err = se.Cause
	}
	return false
}

// Common error constructors for frequently used errors

// NewOracleTransportError reports an unreachable or failing oracle endpoint
func NewOracleTransportError(provider string, cause error) *StepwiseError {
	return Wrap(ErrCodeOracleTransport, fmt.Sprintf("oracle request to %s failed", provider), cause).
		WithSuggestion("Check that the model server is running and reachable").
		WithSuggestion("Verify provider.base_url and provider.model in stepwise.yaml")
}

// NewSchemaExhaustedError reports a structured query that never matched its exemplar
func NewSchemaExhaustedError(attempts int) *StepwiseError {
	return New(ErrCodeOracleSchemaExhausted,
		fmt.Sprintf("oracle response did not match the expected schema after %d corrective attempts", attempts)).
		WithSuggestion("Raise engine.max_schema_fixes or use a more capable model").
		WithSuggestion("Review the exemplar in the prompts file")
}

// NewUnknownProviderError reports an unsupported provider name
func NewUnknownProviderError(name string) *StepwiseError {
	return New(ErrCodeOracleUnknownProvider, fmt.Sprintf("unknown oracle provider: %s", name)).
		WithSuggestion("Use one of: ollama, openai, scripted")
}

// NewTaskNotFoundError reports a patch statement that referenced a missing task
func NewTaskNotFoundError(id int) *StepwiseError {
	return New(ErrCodePatchTaskNotFound, fmt.Sprintf("task with ID %d not found", id))
}

// NewPlanNotFoundError reports a missing stored plan
func NewPlanNotFoundError(id string) *StepwiseError {
	return New(ErrCodePlanNotFound, fmt.Sprintf("plan not found: %s", id)).
		WithSuggestion("Run 'stepwise plans list' to see stored plans")
}

// NewRepairExhaustedError reports a validity-fix loop that ran out of rounds
func NewRepairExhaustedError(rounds int, reason string) *StepwiseError {
	return New(ErrCodePlanRepairExhausted,
		fmt.Sprintf("plan still invalid after %d repair rounds: %s", rounds, reason)).
		WithSuggestion("Raise engine.max_repair_rounds or refine the goal")
}

// NewConfigInvalidError reports a config file that failed to decode or validate
func NewConfigInvalidError(path string, cause error) *StepwiseError {
	return Wrap(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", path), cause).
		WithSuggestion("Check the file syntax and field names")
}
