package patch

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/felixgeelhaar/stepwise/internal/errors"
	"github.com/felixgeelhaar/stepwise/internal/task"
)

// taskSchemaJSON describes an addTask payload. It mirrors the lenient task
// decoder: ids may be numeric strings and flags may be "true"/"false".
const taskSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "task",
  "type": "object",
  "properties": {
    "id": {
      "anyOf": [
        {"type": "integer"},
        {"type": "null"},
        {"type": "string", "pattern": "^\\s*-?[0-9]+\\s*$"}
      ]
    },
    "description": {"type": ["string", "null"]},
    "isAtomic": {"$ref": "#/definitions/flag"},
    "completed": {"$ref": "#/definitions/flag"},
    "inProgress": {"$ref": "#/definitions/flag"},
    "commands": {
      "anyOf": [
        {"type": "array", "items": {"type": "string"}},
        {"type": "string"},
        {"type": "null"}
      ]
    },
    "successCriteria": {"type": ["string", "null"]},
    "subtasks": {"type": "array", "items": {"$ref": "#"}},
    "subTasks": {"type": "array", "items": {"$ref": "#"}}
  },
  "definitions": {
    "flag": {
      "anyOf": [
        {"type": "boolean"},
        {"type": "null"},
        {"enum": ["true", "false", "True", "False", "TRUE", "FALSE", ""]}
      ]
    }
  }
}`

var taskSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(taskSchemaJSON))
})

// parseTaskPayload validates and decodes an addTask argument. It reports
// whether the payload left the id unset or null.
func parseTaskPayload(arg string) (*task.Task, bool, error) {
	schema, err := taskSchema()
	if err != nil {
		return nil, false, err
	}

	result, err := schema.Validate(gojsonschema.NewStringLoader(arg))
	if err != nil {
		return nil, false, errors.Wrap(errors.ErrCodePatchInvalidLiteral, "addTask expects a JSON object", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, false, errors.New(errors.ErrCodePatchPayloadInvalid, "invalid task: "+strings.Join(msgs, "; "))
	}

	var t task.Task
	if err := json.Unmarshal([]byte(arg), &t); err != nil {
		return nil, false, errors.Wrap(errors.ErrCodePatchPayloadInvalid, "invalid task", err)
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal([]byte(arg), &keys); err != nil {
		return nil, false, errors.Wrap(errors.ErrCodePatchPayloadInvalid, "invalid task", err)
	}
	id, hasID := keys["id"]
	return &t, !hasID || string(id) == "null", nil
}
