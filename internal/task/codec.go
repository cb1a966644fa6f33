package task

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// taskJSON is the wire form of a Task. Children travel under "subtasks";
// "subTasks" is accepted on input as well.
type taskJSON struct {
	ID              flexInt     `json:"id"`
	Description     string      `json:"description"`
	IsAtomic        flexBool    `json:"isAtomic"`
	Commands        flexStrings `json:"commands"`
	SuccessCriteria string      `json:"successCriteria"`
	Completed       flexBool    `json:"completed"`
	InProgress      flexBool    `json:"inProgress"`
	SubTasks        []*Task     `json:"subtasks,omitempty"`
	LegacySubTasks  []*Task     `json:"subTasks,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (t *Task) MarshalJSON() ([]byte, error) {
	return json.Marshal(taskJSON{
		ID:              flexInt(t.ID),
		Description:     t.Description,
		IsAtomic:        flexBool(t.IsAtomic),
		Commands:        flexStrings(t.Commands),
		SuccessCriteria: t.SuccessCriteria,
		Completed:       flexBool(t.Completed),
		InProgress:      flexBool(t.InProgress),
		SubTasks:        t.SubTasks,
	})
}

// UnmarshalJSON implements json.Unmarshaler. Numeric ids may arrive as
// strings and booleans as "true"/"false".
func (t *Task) UnmarshalJSON(data []byte) error {
	var w taskJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	subs := w.SubTasks
	if subs == nil {
		subs = w.LegacySubTasks
	}
	*t = Task{
		ID:              int(w.ID),
		Description:     w.Description,
		IsAtomic:        bool(w.IsAtomic),
		Commands:        []string(w.Commands),
		SuccessCriteria: w.SuccessCriteria,
		Completed:       bool(w.Completed),
		InProgress:      bool(w.InProgress),
		SubTasks:        subs,
	}
	return nil
}

type planJSON struct {
	Tasks    []*Task `json:"tasks"`
	TopLevel []*Task `json:"topLevelTasks,omitempty"`
}

// MarshalJSON renders the plan as {"tasks": [...]}, the form shown to the
// oracle and persisted by the store.
func (p *Plan) MarshalJSON() ([]byte, error) {
	tasks := p.Tasks
	if tasks == nil {
		tasks = []*Task{}
	}
	return json.Marshal(planJSON{Tasks: tasks})
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Plan) UnmarshalJSON(data []byte) error {
	var w planJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	p.Tasks = w.Tasks
	if p.Tasks == nil {
		p.Tasks = w.TopLevel
	}
	return nil
}

// JSON renders the plan as indented JSON.
func (p *Plan) JSON() string {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// DecodeTasks converts a decoded document array (as produced by
// encoding/json into []any) into tasks.
func DecodeTasks(items []any) ([]*Task, error) {
	tasks := make([]*Task, 0, len(items))
	for i, item := range items {
		t, err := DecodeTask(item)
		if err != nil {
			return nil, fmt.Errorf("task %d: %w", i, err)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// DecodeTask converts one decoded document object into a Task.
func DecodeTask(v any) (*Task, error) {
	if _, ok := v.(map[string]any); !ok {
		return nil, fmt.Errorf("expected an object, got %T", v)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if string(data) == "null" {
		*f = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("invalid id %q", s)
		}
		*f = flexInt(n)
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid id %s", data)
	}
	if n != math.Trunc(n) {
		return fmt.Errorf("invalid id %s: not an integer", data)
	}
	*f = flexInt(n)
	return nil
}

type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "true", `"true"`, `"TRUE"`, `"True"`:
		*f = true
	case "false", `"false"`, `"FALSE"`, `"False"`, "null", `""`:
		*f = false
	default:
		return fmt.Errorf("invalid boolean %s", data)
	}
	return nil
}

// flexStrings accepts a list of strings or a lone string.
type flexStrings []string

func (f *flexStrings) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case string(data) == "null":
		*f = nil
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexStrings{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("commands must be a list of strings: %w", err)
	}
	*f = list
	return nil
}
