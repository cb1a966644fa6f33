package task

import "slices"

// Plan is the root owner of a task forest. One plan drives one run.
type Plan struct {
	Tasks []*Task
}

// NewPlan creates a plan from top-level tasks.
func NewPlan(tasks ...*Task) *Plan {
	return &Plan{Tasks: tasks}
}

// FallbackPlan is used when no usable plan can be obtained for goal: a single
// compound task the engine will decompose on its first step.
func FallbackPlan(goal string) *Plan {
	return NewPlan(&Task{
		ID:              1,
		Description:     goal,
		SuccessCriteria: "The goal is achieved.",
	})
}

// Add appends a task to the top level.
func (p *Plan) Add(t *Task) {
	p.Tasks = append(p.Tasks, t)
}

// Find returns the first task with id in pre-order, or nil. Ids are not
// guaranteed unique; the earliest pre-order match wins.
func (p *Plan) Find(id int) *Task {
	var found *Task
	p.Walk(func(t *Task, _ int) bool {
		if t.ID == id {
			found = t
			return false
		}
		return true
	})
	return found
}

// Remove detaches the first pre-order match for id, together with its
// subtree. It reports whether a task was removed.
func (p *Plan) Remove(id int) bool {
	tasks, ok := removeFrom(p.Tasks, id)
	if ok {
		p.Tasks = tasks
	}
	return ok
}

func removeFrom(tasks []*Task, id int) ([]*Task, bool) {
	for i := 0; i < len(tasks); i++ {
		if tasks[i].ID == id {
			return slices.Delete(tasks, i, i+1), true
		}
		if rest, ok := removeFrom(tasks[i].SubTasks, id); ok {
			tasks[i].SubTasks = rest
			return tasks, true
		}
	}
	return tasks, false
}

// Walk visits every task in pre-order with its depth (top level is 0).
// Returning false from fn stops the walk.
func (p *Plan) Walk(fn func(t *Task, depth int) bool) {
	var visit func(tasks []*Task, depth int) bool
	visit = func(tasks []*Task, depth int) bool {
		for _, t := range tasks {
			if !fn(t, depth) {
				return false
			}
			if !visit(t.SubTasks, depth+1) {
				return false
			}
		}
		return true
	}
	visit(p.Tasks, 0)
}

// NextOpen selects the next task to work on, or nil when the plan is
// complete. Each top-level tree is searched breadth-first, in order. A
// selectable task is open and either atomic, or compound without subtasks.
// Completed compound tasks are not selectable but their children still are;
// atomic tasks never expose their children.
func (p *Plan) NextOpen() *Task {
	for _, root := range p.Tasks {
		if t := nextOpenIn(root); t != nil {
			return t
		}
	}
	return nil
}

func nextOpenIn(root *Task) *Task {
	queue := []*Task{root}
	for len(queue) > 0 {
		t := queue[0]
		queue = queue[1:]

		if t.IsAtomic {
			if !t.Completed {
				return t
			}
			continue
		}
		if !t.Completed && len(t.SubTasks) == 0 {
			return t
		}
		queue = append(queue, t.SubTasks...)
	}
	return nil
}

// Counts returns the total number of tasks and how many are completed.
func (p *Plan) Counts() (total, completed int) {
	p.Walk(func(t *Task, _ int) bool {
		total++
		if t.Completed {
			completed++
		}
		return true
	})
	return total, completed
}

// MaxID returns the largest task id in the plan, or 0 for an empty plan.
func (p *Plan) MaxID() int {
	maxID := 0
	p.Walk(func(t *Task, _ int) bool {
		maxID = max(maxID, t.ID)
		return true
	})
	return maxID
}

// Clone returns a deep copy of the plan.
func (p *Plan) Clone() *Plan {
	c := &Plan{Tasks: make([]*Task, len(p.Tasks))}
	for i, t := range p.Tasks {
		c.Tasks[i] = t.Clone()
	}
	return c
}
