package task

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"
)

// Lifecycle states of a task during a run.
const (
	StateUnscheduled = "unscheduled"
	StateExecuting   = "executing"
	StateDecomposing = "decomposing"
	StateCompleted   = "completed"
)

// Lifecycle events.
const (
	EventExecute   = "execute"
	EventDecompose = "decompose"
	EventComplete  = "complete"
	EventRelease   = "release"
)

type lifecycleContext struct {
	TaskID int
}

// Lifecycle drives one task through Unscheduled → Executing | Decomposing →
// Completed and mirrors the state onto the task's InProgress and Completed
// flags.
type Lifecycle struct {
	task        *Task
	interpreter *statekit.Interpreter[lifecycleContext]
}

// NewLifecycle starts a lifecycle for t in the state implied by its flags.
func NewLifecycle(t *Task) (*Lifecycle, error) {
	initial := StateUnscheduled
	switch {
	case t.Completed:
		initial = StateCompleted
	case t.InProgress:
		initial = StateExecuting
	}

	builder := statekit.NewMachine[lifecycleContext]("task-lifecycle").
		WithInitial(statekit.StateID(initial)).
		WithContext(lifecycleContext{TaskID: t.ID})

	builder.State(StateUnscheduled).
		On(EventExecute).Target(StateExecuting).
		On(EventDecompose).Target(StateDecomposing).
		On(EventComplete).Target(StateCompleted).
		Done()

	builder.State(StateDecomposing).
		On(EventExecute).Target(StateExecuting).
		On(EventComplete).Target(StateCompleted).
		On(EventRelease).Target(StateUnscheduled).
		Done()

	builder.State(StateExecuting).
		On(EventComplete).Target(StateCompleted).
		On(EventRelease).Target(StateUnscheduled).
		Done()

	builder.State(StateCompleted).
		Done()

	machine, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("build task lifecycle: %w", err)
	}

	interpreter := statekit.NewInterpreter(machine)
	interpreter.Start()

	l := &Lifecycle{task: t, interpreter: interpreter}
	l.sync()
	return l, nil
}

// State returns the current lifecycle state.
func (l *Lifecycle) State() string {
	return string(l.interpreter.State().Value)
}

// Fire sends event and syncs the task flags. Events that are not valid in
// the current state leave it unchanged and return an error.
func (l *Lifecycle) Fire(event string) error {
	before := l.State()
	l.interpreter.Send(statekit.Event{Type: statekit.EventType(event)})
	after := l.State()
	l.sync()
	if before == after {
		return fmt.Errorf("task %d: event %q not allowed in state %q", l.task.ID, event, before)
	}
	return nil
}

func (l *Lifecycle) sync() {
	switch l.State() {
	case StateExecuting, StateDecomposing:
		l.task.InProgress = true
		l.task.Completed = false
	case StateCompleted:
		l.task.InProgress = false
		l.task.Completed = true
	default:
		l.task.InProgress = false
		l.task.Completed = false
	}
}
