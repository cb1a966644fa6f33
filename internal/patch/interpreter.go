package patch

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/stepwise/internal/journal"
	"github.com/felixgeelhaar/stepwise/internal/log"
	"github.com/felixgeelhaar/stepwise/internal/task"
)

// Failure records a statement that could not be parsed or applied.
type Failure struct {
	Index     int
	Statement string
	Err       error
}

func (f Failure) Error() string {
	return fmt.Sprintf("statement %d (%s): %v", f.Index+1, f.Statement, f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

// Report summarizes one batch.
type Report struct {
	Applied []Command
	Failed  []Failure
	Skipped int
}

// Changed reports whether any statement took effect.
func (r *Report) Changed() bool {
	return len(r.Applied) > 0
}

// Err joins every failure, or returns nil.
func (r *Report) Err() error {
	errs := make([]error, len(r.Failed))
	for i, f := range r.Failed {
		errs[i] = f
	}
	return stderrors.Join(errs...)
}

// Interpreter applies batches of edit statements to plans.
type Interpreter struct {
	journal *journal.Journal
	logger  *log.Logger
}

// NewInterpreter creates an Interpreter. Nil arguments select a discarding
// journal and the default logger.
func NewInterpreter(j *journal.Journal, logger *log.Logger) *Interpreter {
	if j == nil {
		j = journal.Discard()
	}
	return &Interpreter{
		journal: j,
		logger:  log.OrDefault(logger).WithGroup("patch"),
	}
}

// Apply parses and applies each statement to plan, in order. Statements
// are independent: one that fails to parse or apply is recorded and the
// batch continues. Blank statements are skipped.
func (in *Interpreter) Apply(plan *task.Plan, statements []string) *Report {
	report := &Report{}
	if len(statements) == 0 {
		in.journal.Infof("Commands array is empty, no changes to apply")
		return report
	}

	in.journal.Infof("Executing %d plan edit commands", len(statements))
	for i, stmt := range statements {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			report.Skipped++
			in.logger.Debug("skipping empty statement", "index", i)
			continue
		}

		cmd, err := Parse(stmt)
		if err == nil {
			err = cmd.Apply(plan)
		}
		if err != nil {
			report.Failed = append(report.Failed, Failure{Index: i, Statement: stmt, Err: err})
			in.journal.Errorf("Plan edit [%d/%d] failed: %s: %v", i+1, len(statements), stmt, err)
			in.logger.Warn("plan edit failed", "index", i, "statement", stmt, "error", err)
			continue
		}

		report.Applied = append(report.Applied, cmd)
		in.journal.Infof("Plan edit [%d/%d] applied: %s", i+1, len(statements), cmd)
	}

	in.journal.Infof("Applied plan fixes: %d applied, %d failed, %d skipped",
		len(report.Applied), len(report.Failed), report.Skipped)
	return report
}

// ApplyDocument applies the "commands" list of an edit response. Items
// that are not strings are rendered as JSON and fail to parse.
func (in *Interpreter) ApplyDocument(plan *task.Plan, doc map[string]any) *Report {
	items, ok := doc["commands"].([]any)
	if !ok {
		in.journal.Warnf("Edit response does not have a 'commands' list")
		return &Report{}
	}

	statements := make([]string, len(items))
	for i, item := range items {
		if s, ok := item.(string); ok {
			statements[i] = s
			continue
		}
		statements[i] = jsonText(item)
		if statements[i] == "null" {
			statements[i] = ""
		}
	}
	return in.Apply(plan, statements)
}
