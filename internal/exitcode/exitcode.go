// Package exitcode maps errors to process exit codes.
package exitcode

import (
	"context"
	stderrors "errors"
	"os"
	"strings"

	"github.com/felixgeelhaar/stepwise/internal/errors"
)

// Exit codes for consistent error handling across the CLI
const (
	// Success indicates successful execution
	Success = 0

	// GeneralError indicates a general error condition
	GeneralError = 1

	// UsageError indicates invalid command usage or configuration
	UsageError = 2

	// OracleUnavailable indicates the model server could not be reached or
	// never produced a usable answer
	OracleUnavailable = 3

	// BudgetExhausted indicates a run stopped on its repair or step budget
	BudgetExhausted = 4

	// Interrupted indicates the run was cancelled by a signal
	Interrupted = 130
)

// Exit terminates the program with the given exit code
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError exits with an appropriate code based on error type
func ExitWithError(err error) {
	Exit(DetermineExitCode(err))
}

// DetermineExitCode analyzes an error and returns the appropriate exit code
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}
	if stderrors.Is(err, context.Canceled) {
		return Interrupted
	}

	switch {
	case errors.HasCode(err, errors.ErrCodePlanRepairExhausted),
		errors.HasCode(err, errors.ErrCodePlanStepsExhausted):
		return BudgetExhausted
	case errors.HasCode(err, errors.ErrCodeOracleTransport),
		errors.HasCode(err, errors.ErrCodeOracleTimeout),
		errors.HasCode(err, errors.ErrCodeOracleSchemaExhausted):
		return OracleUnavailable
	case errors.HasCode(err, errors.ErrCodeConfigInvalid),
		errors.HasCode(err, errors.ErrCodeConfigNotFound),
		errors.HasCode(err, errors.ErrCodeOracleUnknownProvider),
		errors.HasCode(err, errors.ErrCodeStoreUnknownBackend):
		return UsageError
	}

	// cobra reports usage problems as plain errors
	errMsg := strings.ToLower(err.Error())
	for _, marker := range []string{"unknown flag", "invalid argument", "unknown command", "required flag", "accepts "} {
		if strings.Contains(errMsg, marker) {
			return UsageError
		}
	}
	return GeneralError
}

// GetExitCodeDescription returns a human-readable description of an exit code
func GetExitCodeDescription(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case UsageError:
		return "Usage error (invalid flags, arguments, or configuration)"
	case OracleUnavailable:
		return "Oracle unavailable"
	case BudgetExhausted:
		return "Repair or step budget exhausted"
	case Interrupted:
		return "Interrupted"
	default:
		return "Unknown error"
	}
}
