package auto

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/felixgeelhaar/stepwise/internal/errors"
	"github.com/felixgeelhaar/stepwise/internal/oracle"
	"github.com/felixgeelhaar/stepwise/internal/task"
	"github.com/felixgeelhaar/stepwise/internal/telemetry"
)

// outputTail bounds how much command output is quoted in a failure message.
const outputTail = 2000

// process runs an atomic task, or breaks down a compound task and processes
// its children in order, revalidating the plan after each one.
func (r *run) process(ctx context.Context, t *task.Task) ExecutionResult {
	if t.IsAtomic {
		return r.executeAtomic(ctx, t)
	}

	if t.NeedsDecomposition() {
		r.fire(t, task.EventDecompose)
		if err := r.decompose(ctx, t); err != nil {
			r.release(t)
			return ExecutionResult{Message: fmt.Sprintf("Failed to break down [%s]: %v", t.Description, err)}
		}
		r.update()

		v := r.Reevaluate(ctx, r.plan, nil)
		if !v.Valid {
			r.release(t)
			return ExecutionResult{Message: "Plan invalid after breakdown: " + v.Reason}
		}
	}

	for _, sub := range t.SubTasks {
		if sub.Completed {
			continue
		}
		res := r.process(ctx, sub)
		if !res.Success {
			r.release(t)
			return res
		}
		r.complete(sub)
		r.update()

		v := r.Reevaluate(ctx, r.plan, nil)
		if !v.Valid {
			r.release(t)
			return ExecutionResult{Message: "Plan invalid after subtask: " + v.Reason}
		}
	}

	r.complete(t)
	return ExecutionResult{
		Success: true,
		Message: fmt.Sprintf("All subtasks of [%s] completed successfully.", t.Description),
	}
}

// executeAtomic runs the task's commands in order and stops at the first
// failure.
func (r *run) executeAtomic(ctx context.Context, t *task.Task) (result ExecutionResult) {
	ctx, span := telemetry.StartTaskSpan(ctx, t.ID, t.Description)
	defer func() { telemetry.EndTask(span, result.Success, result.Message, len(t.Commands)) }()

	r.journal.Infof("Executing atomic task: %s", t.Description)
	if len(t.Commands) == 0 {
		return ExecutionResult{Success: true, Message: "No commands to execute, task considered complete."}
	}

	r.fire(t, task.EventExecute)
	var transcript strings.Builder
	for _, command := range t.Commands {
		r.journal.Command(command)
		res, err := r.config.Runner.Run(ctx, command)
		r.result.Commands++

		switch {
		case err != nil && res != nil && res.TimedOut:
			fmt.Fprintf(&transcript, "Command '%s' timed out after %s.\n", command, res.Duration)
		case err != nil:
			fmt.Fprintf(&transcript, "Error executing command '%s': %v.\n", command, err)
		case !res.Succeeded():
			r.journal.Errorf("Command failed with exit code: %d", res.ExitCode)
			fmt.Fprintf(&transcript, "Command '%s' failed with exit code: %d.\n", command, res.ExitCode)
			if out := tail(res.Output); out != "" {
				transcript.WriteString(out)
				if !strings.HasSuffix(out, "\n") {
					transcript.WriteString("\n")
				}
			}
		default:
			if res.Output != "" {
				r.journal.Infof("%s", strings.TrimRight(res.Output, "\n"))
			}
			fmt.Fprintf(&transcript, "Command '%s' executed successfully.\n", command)
			continue
		}

		if res != nil && res.Output != "" && !res.Succeeded() {
			r.journal.Infof("%s", strings.TrimRight(res.Output, "\n"))
		}
		r.release(t)
		return ExecutionResult{Message: "Failed to execute atomic task. " + transcript.String()}
	}

	if t.SuccessCriteria != "" {
		r.journal.Infof("Success criteria met: %s", t.SuccessCriteria)
	}
	return ExecutionResult{Success: true, Message: "Completed atomic task. " + transcript.String()}
}

// decompose asks the oracle to break t into subtasks and appends them. The
// task is marked atomic afterwards so it is not broken down again, even when
// the oracle returned no subtasks.
func (r *run) decompose(ctx context.Context, t *task.Task) error {
	role := &r.prompts.Decomposition
	user := "Break down the following non-atomic task into atomic subtasks in JSON format:\n" + t.Description

	text, err := r.config.Oracle.Query(ctx, role.System, user)
	if err != nil {
		return err
	}
	doc, err := oracle.ParseDocument(text)
	if err != nil {
		return err
	}
	subs, err := decodeSubtasks(doc)
	if err != nil {
		return errors.Wrap(errors.ErrCodeOracleMalformed, "decomposition is not a task list", err)
	}

	next := r.plan.MaxID()
	for _, sub := range subs {
		next = max(next, sub.ID)
	}
	for _, sub := range subs {
		if sub.ID == 0 {
			next++
			sub.ID = next
		}
		t.AddSubTask(sub)
	}
	t.IsAtomic = true
	r.journal.Infof("Broke down [%s] into %d subtasks", t.Description, len(subs))
	return nil
}

func (r *run) lifecycle(t *task.Task) *task.Lifecycle {
	if l, ok := r.lifecycles[t]; ok {
		return l
	}
	l, err := task.NewLifecycle(t)
	if err != nil {
		r.logger.WithError(err).Error("failed to start task lifecycle", "task", t.ID)
		return nil
	}
	r.lifecycles[t] = l
	return l
}

func (r *run) fire(t *task.Task, event string) {
	l := r.lifecycle(t)
	if l == nil {
		return
	}
	if err := l.Fire(event); err != nil {
		r.logger.Debug("ignored lifecycle event", "task", t.ID, "error", err)
	}
}

// complete marks t completed.
func (r *run) complete(t *task.Task) {
	if l := r.lifecycle(t); l != nil && l.State() != task.StateCompleted {
		r.fire(t, task.EventComplete)
		r.journal.Infof("Marked task as completed: %s", t.Description)
	}
	if !t.Completed {
		t.Completed = true
		t.InProgress = false
	}
}

// release returns an in-flight task to unscheduled.
func (r *run) release(t *task.Task) {
	if l := r.lifecycle(t); l != nil {
		switch l.State() {
		case task.StateExecuting, task.StateDecomposing:
			r.fire(t, task.EventRelease)
		}
	}
}

// tail keeps at most the last outputTail bytes of s, cut on a rune boundary.
func tail(s string) string {
	if len(s) <= outputTail {
		return s
	}
	cut := len(s) - outputTail
	for cut < len(s) && !utf8.RuneStart(s[cut]) {
		cut++
	}
	return "..." + s[cut:]
}
