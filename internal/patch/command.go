// Package patch parses and applies the plan edit statements proposed by the
// oracle, such as getTask(2).change("description", "...") or removeTask(4).
package patch

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/felixgeelhaar/stepwise/internal/errors"
	"github.com/felixgeelhaar/stepwise/internal/task"
)

// Command is one parsed edit statement.
type Command interface {
	// Apply mutates plan in place. A failed Apply leaves plan unchanged,
	// except that UpdateTask keeps the fields it could apply.
	Apply(plan *task.Plan) error

	// String renders the command back as a statement.
	String() string
}

// Change sets one property of the task with ID.
type Change struct {
	ID       int
	Property string
	Value    any
}

// Apply implements Command.
func (c *Change) Apply(plan *task.Plan) error {
	t := plan.Find(c.ID)
	if t == nil {
		return errors.NewTaskNotFoundError(c.ID)
	}
	return setProperty(t, c.Property, c.Value)
}

func (c *Change) String() string {
	return fmt.Sprintf("%s(%d).%s(%q, %s)", verbGetTask, c.ID, verbChange, c.Property, jsonText(c.Value))
}

// AppendCommand adds a shell command to the task with ID.
type AppendCommand struct {
	ID      int
	Command string
}

// Apply implements Command.
func (c *AppendCommand) Apply(plan *task.Plan) error {
	t := plan.Find(c.ID)
	if t == nil {
		return errors.NewTaskNotFoundError(c.ID)
	}
	t.AppendCommand(c.Command)
	return nil
}

func (c *AppendCommand) String() string {
	return fmt.Sprintf("%s(%d).%s(%s)", verbGetTask, c.ID, verbAppendCommand, jsonText(c.Command))
}

// RemoveTask detaches the first task with ID in pre-order, with its subtree.
type RemoveTask struct {
	ID int
}

// Apply implements Command.
func (c *RemoveTask) Apply(plan *task.Plan) error {
	if !plan.Remove(c.ID) {
		return errors.NewTaskNotFoundError(c.ID)
	}
	return nil
}

func (c *RemoveTask) String() string {
	return fmt.Sprintf("%s(%d)", verbRemoveTask, c.ID)
}

// AddTask appends a task to the top level of the plan.
type AddTask struct {
	Task *task.Task

	// AssignID gives the task the next free id when applied
	AssignID bool
}

// Apply implements Command. Each application adds its own copy of Task.
func (c *AddTask) Apply(plan *task.Plan) error {
	t := c.Task.Clone()
	if c.AssignID {
		t.ID = plan.MaxID() + 1
	}
	plan.Add(t)
	return nil
}

func (c *AddTask) String() string {
	return fmt.Sprintf("%s(%s)", verbAddTask, jsonText(c.Task))
}

// Field is one property assignment of an UpdateTask.
type Field struct {
	Name  string
	Value any
}

// UpdateTask applies several property assignments, in order, to the task
// with ID.
type UpdateTask struct {
	ID     int
	Fields []Field
}

// Apply implements Command. Every field is attempted; failures are joined.
func (c *UpdateTask) Apply(plan *task.Plan) error {
	t := plan.Find(c.ID)
	if t == nil {
		return errors.NewTaskNotFoundError(c.ID)
	}

	var errs []error
	for _, f := range c.Fields {
		if err := setProperty(t, f.Name, f.Value); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

func (c *UpdateTask) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, f := range c.Fields {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(jsonText(f.Name))
		b.WriteString(": ")
		b.WriteString(jsonText(f.Value))
	}
	b.WriteByte('}')
	return fmt.Sprintf("%s(%d, %s)", verbUpdateTask, c.ID, b.String())
}

// setProperty assigns value to one editable property of t. The task is only
// modified when the value is acceptable.
func setProperty(t *task.Task, property string, value any) error {
	switch strings.TrimSpace(property) {
	case "description":
		s, err := scalarText(property, value)
		if err != nil {
			return err
		}
		t.Description = s

	case "successCriteria":
		s, err := scalarText(property, value)
		if err != nil {
			return err
		}
		t.SuccessCriteria = s

	case "commands":
		switch v := value.(type) {
		case nil:
			t.Commands = nil
		case string:
			t.AppendCommand(v)
		case []any:
			cmds := make([]string, 0, len(v))
			for _, item := range v {
				s, err := scalarText(property, item)
				if err != nil {
					return err
				}
				cmds = append(cmds, s)
			}
			t.Commands = cmds
		default:
			return invalidValue(property, value)
		}

	case "isAtomic":
		switch v := value.(type) {
		case bool:
			t.IsAtomic = v
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return invalidValue(property, value)
			}
			t.IsAtomic = b
		default:
			return invalidValue(property, value)
		}

	case "id":
		switch v := value.(type) {
		case float64:
			if v != math.Trunc(v) || math.Abs(v) > math.MaxInt32 {
				return invalidValue(property, value)
			}
			t.ID = int(v)
		case string:
			id, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return invalidValue(property, value)
			}
			t.ID = id
		default:
			return invalidValue(property, value)
		}

	default:
		return errors.Newf(errors.ErrCodePatchUnknownProperty, "unknown property: %s", property).
			WithSuggestion("Editable properties are description, successCriteria, commands, isAtomic, and id")
	}
	return nil
}

func scalarText(property string, value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	}
	return "", invalidValue(property, value)
}

func invalidValue(property string, value any) error {
	return errors.Newf(errors.ErrCodePatchInvalidLiteral, "invalid value for %s: %s", property, jsonText(value))
}

// jsonText renders v as compact JSON without HTML escaping, so shell
// redirections stay readable.
func jsonText(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Sprint(v)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
