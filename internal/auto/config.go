package auto

import (
	"context"

	"github.com/felixgeelhaar/stepwise/internal/exec"
	"github.com/felixgeelhaar/stepwise/internal/journal"
	"github.com/felixgeelhaar/stepwise/internal/log"
	"github.com/felixgeelhaar/stepwise/internal/store"
	"github.com/felixgeelhaar/stepwise/internal/task"
)

// DefaultRepairRounds bounds each validity-fix loop when Config leaves it
// unset.
const DefaultRepairRounds = 5

// Oracle answers planning questions. *oracle.Client implements it.
type Oracle interface {
	Query(ctx context.Context, system, user string) (string, error)
	QueryStructured(ctx context.Context, system, user string, exemplar map[string]any) (map[string]any, error)
}

// Config defines engine settings and collaborators.
type Config struct {
	// Prompts sent to the oracle; nil selects the embedded defaults
	Prompts *Prompts

	// Repair rounds allowed before an invalid plan fails the run
	MaxRepairRounds int

	// Outer loop iterations allowed; 0 means unlimited
	MaxSteps int

	Oracle Oracle
	Runner exec.Runner

	// Store receives plan snapshots; nil disables persistence
	Store store.PlanStore

	Journal *journal.Journal
	Logger  *log.Logger

	// OnPlanSaved is called once the initial plan has been stored
	OnPlanSaved func(id string, plan *task.Plan)
}

// DefaultConfig returns a Config with sensible defaults. Oracle and Runner
// must still be set.
func DefaultConfig() Config {
	return Config{
		Prompts:         DefaultPrompts(),
		MaxRepairRounds: DefaultRepairRounds,
	}
}
