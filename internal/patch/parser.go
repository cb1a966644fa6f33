package patch

import (
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/felixgeelhaar/stepwise/internal/errors"
)

// Verbs understood by the parser.
const (
	verbGetTask       = "getTask"
	verbChange        = "change"
	verbAppendCommand = "appendCommand"
	verbRemoveTask    = "removeTask"
	verbAddTask       = "addTask"
	verbUpdateTask    = "updateTask"
)

// call is one name(args) segment of a statement.
type call struct {
	name string
	args []string
	pos  int
}

type parser struct {
	lex lexer
	tok token
}

// Parse turns one statement into a Command. Statements have the form
//
//	getTask(id).change(property, value)
//	getTask(id).appendCommand(command)
//	removeTask(id)
//	addTask({...})
//	updateTask(id, {...})
//
// with an optional trailing semicolon.
func Parse(statement string) (Command, error) {
	p := &parser{lex: lexer{src: statement}}
	p.advance()

	calls, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	return build(calls)
}

func (p *parser) advance() {
	p.tok = p.lex.next()
}

// statement := call { "." call } [ ";" ]
func (p *parser) parseStatement() ([]call, error) {
	var calls []call
	for {
		c, err := p.parseCall()
		if err != nil {
			return nil, err
		}
		calls = append(calls, c)

		if p.tok.kind != tokDot {
			break
		}
		p.advance()
	}

	if p.tok.kind == tokSemicolon {
		p.advance()
	}
	if p.tok.kind != tokEOF {
		return nil, p.unexpected("end of statement")
	}
	return calls, nil
}

// call := name "(" args ")"
func (p *parser) parseCall() (call, error) {
	if p.tok.kind != tokIdent {
		return call{}, p.unexpected("method name")
	}
	c := call{name: p.tok.text, pos: p.tok.pos}
	p.advance()

	if p.tok.kind != tokArgs {
		if p.tok.kind == tokIllegal && strings.HasPrefix(p.tok.text, "(") {
			return call{}, errors.Newf(errors.ErrCodePatchSyntax,
				"unterminated argument list for %s at offset %d", c.name, p.tok.pos)
		}
		return call{}, p.unexpected("argument list")
	}

	args, err := SplitArgs(p.tok.text)
	if err != nil {
		return call{}, err
	}
	c.args = args
	p.advance()
	return c, nil
}

func (p *parser) unexpected(want string) error {
	return errors.Newf(errors.ErrCodePatchSyntax, "expected %s at offset %d, found %s", want, p.tok.pos, p.tok)
}

func build(calls []call) (Command, error) {
	head := calls[0]

	if head.name != verbGetTask && len(calls) > 1 {
		return nil, errors.Newf(errors.ErrCodePatchSyntax, "%s cannot be chained", head.name)
	}

	switch head.name {
	case verbGetTask:
		if err := arity(head, 1); err != nil {
			return nil, err
		}
		id, err := parseID(head.args[0])
		if err != nil {
			return nil, err
		}
		if len(calls) != 2 {
			return nil, errors.Newf(errors.ErrCodePatchSyntax,
				"%s(%d) must be followed by exactly one of .%s or .%s", verbGetTask, id, verbChange, verbAppendCommand)
		}
		return buildTaskMethod(id, calls[1])

	case verbRemoveTask:
		if err := arity(head, 1); err != nil {
			return nil, err
		}
		id, err := parseID(head.args[0])
		if err != nil {
			return nil, err
		}
		return &RemoveTask{ID: id}, nil

	case verbAddTask:
		if err := arity(head, 1); err != nil {
			return nil, err
		}
		t, autoID, err := parseTaskPayload(head.args[0])
		if err != nil {
			return nil, err
		}
		return &AddTask{Task: t, AssignID: autoID}, nil

	case verbUpdateTask:
		if err := arity(head, 2); err != nil {
			return nil, err
		}
		id, err := parseID(head.args[0])
		if err != nil {
			return nil, err
		}
		fields, err := parseFields(head.args[1])
		if err != nil {
			return nil, err
		}
		return &UpdateTask{ID: id, Fields: fields}, nil
	}

	return nil, unknownVerb(head.name)
}

func buildTaskMethod(id int, m call) (Command, error) {
	switch m.name {
	case verbChange:
		if err := arity(m, 2); err != nil {
			return nil, err
		}
		return &Change{ID: id, Property: Unquote(m.args[0]), Value: parseValue(m.args[1])}, nil

	case verbAppendCommand:
		if err := arity(m, 1); err != nil {
			return nil, err
		}
		return &AppendCommand{ID: id, Command: parseString(m.args[0])}, nil
	}

	return nil, unknownVerb(verbGetTask + "(...)." + m.name)
}

func unknownVerb(name string) error {
	return errors.Newf(errors.ErrCodePatchUnknownVerb, "unknown command: %s", name).
		WithSuggestion("Use getTask(id).change, getTask(id).appendCommand, removeTask, addTask, or updateTask")
}

func arity(c call, want int) error {
	if len(c.args) != want {
		return errors.Newf(errors.ErrCodePatchArity, "%s expects %d argument(s), got %d", c.name, want, len(c.args))
	}
	return nil
}

// parseID accepts a bare or quoted integer.
func parseID(arg string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(Unquote(arg)))
	if err != nil {
		return 0, errors.Newf(errors.ErrCodePatchInvalidLiteral, "invalid task id %s", arg)
	}
	return id, nil
}

// parseValue decodes arg as JSON, falling back to the de-quoted text.
func parseValue(arg string) any {
	var v any
	if err := json.Unmarshal([]byte(arg), &v); err == nil {
		return v
	}
	return Unquote(arg)
}

// parseString decodes arg as a JSON string, falling back to the de-quoted
// text for anything else.
func parseString(arg string) string {
	var s string
	if err := json.Unmarshal([]byte(arg), &s); err == nil {
		return s
	}
	return Unquote(arg)
}

// parseFields decodes a JSON object into fields, keeping key order.
func parseFields(arg string) ([]Field, error) {
	invalid := func(err error) error {
		return errors.Wrap(errors.ErrCodePatchInvalidLiteral, "expected a JSON object of task properties", err)
	}

	dec := json.NewDecoder(strings.NewReader(arg))
	tok, err := dec.Token()
	if err != nil {
		return nil, invalid(err)
	}
	if tok != json.Delim('{') {
		return nil, errors.Newf(errors.ErrCodePatchInvalidLiteral, "expected a JSON object of task properties, got %s", arg)
	}

	var fields []Field
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, invalid(err)
		}
		name, _ := tok.(string)

		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, invalid(err)
		}
		fields = append(fields, Field{Name: name, Value: value})
	}

	if _, err := dec.Token(); err != nil {
		return nil, invalid(err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.Newf(errors.ErrCodePatchInvalidLiteral, "unexpected data after task properties in %s", arg)
	}
	return fields, nil
}
