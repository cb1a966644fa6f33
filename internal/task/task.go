// Package task defines the task forest that the engine plans, executes, and
// repairs.
package task

// Task is one node of a plan. Atomic tasks run their commands directly;
// compound tasks progress through their subtasks. Once a task is atomic its
// subtasks are no longer consulted for scheduling.
type Task struct {
	ID              int
	Description     string
	IsAtomic        bool
	Commands        []string
	SuccessCriteria string
	Completed       bool
	InProgress      bool
	SubTasks        []*Task
}

// AppendCommand adds a command to the end of the command list.
func (t *Task) AppendCommand(cmd string) {
	t.Commands = append(t.Commands, cmd)
}

// AddSubTask appends a child task.
func (t *Task) AddSubTask(sub *Task) {
	t.SubTasks = append(t.SubTasks, sub)
}

// AllSubTasksAtomic reports whether every direct child is atomic. A task
// without children trivially satisfies this.
func (t *Task) AllSubTasksAtomic() bool {
	for _, sub := range t.SubTasks {
		if !sub.IsAtomic {
			return false
		}
	}
	return true
}

// NeedsDecomposition reports whether a compound task must be broken down
// before it can progress: it has no children yet, or one of its children is
// itself compound.
func (t *Task) NeedsDecomposition() bool {
	if t.IsAtomic {
		return false
	}
	return len(t.SubTasks) == 0 || !t.AllSubTasksAtomic()
}

// Clone returns a deep copy of the task and its subtree.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	if t.Commands != nil {
		c.Commands = append([]string(nil), t.Commands...)
	}
	if t.SubTasks != nil {
		c.SubTasks = make([]*Task, len(t.SubTasks))
		for i, sub := range t.SubTasks {
			c.SubTasks[i] = sub.Clone()
		}
	}
	return &c
}
