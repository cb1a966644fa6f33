package oracle

import (
	"maps"
	"regexp"
	"strconv"
	"strings"

	"github.com/felixgeelhaar/stepwise/internal/schema"
)

var (
	labeledItem  = regexp.MustCompile(`(?i)^\s*(?:[-*]\s*)?(?:\*\*)?(?:task|step)\s+(\d+)\s*(?:\*\*)?\s*[:.)-]\s*(?:\*\*)?\s*(.+?)\s*$`)
	numberedItem = regexp.MustCompile(`^\s*(\d+)[.)]\s+(.+?)\s*$`)
)

// Repair applies field-specific fixes to a document that is missing a
// recognized required array. It returns the repaired copy and whether
// anything changed. raw is the response text the document was extracted
// from.
//
// A missing "subtasks" array is taken from a sibling array of task-like
// objects, mined from "Task N:", "Step N:" or "N." lines of raw, or left
// empty. A missing "commands" array is taken from a sibling array of call
// statements, or built from a lone statement string.
func Repair(doc, exemplar map[string]any, raw string) (map[string]any, bool) {
	out := maps.Clone(doc)
	changed := false

	if tmpl, ok := exemplar["subtasks"].([]any); ok {
		if _, present := doc["subtasks"]; !present {
			out["subtasks"] = repairSubtasks(doc, tmpl, raw)
			changed = true
		}
	}

	if _, ok := exemplar["commands"].([]any); ok {
		switch v := doc["commands"].(type) {
		case nil:
			if _, present := doc["commands"]; present {
				break
			}
			if cmds, ok := findStatements(doc); ok {
				out["commands"] = cmds
				changed = true
			}
		case string:
			out["commands"] = []any{v}
			changed = true
		}
	}

	return out, changed
}

func repairSubtasks(doc map[string]any, tmpl []any, raw string) []any {
	for _, key := range schema.Keys(doc) {
		if items, ok := doc[key].([]any); ok && looksLikeTasks(items) {
			return items
		}
	}

	var element map[string]any
	if len(tmpl) > 0 {
		element, _ = tmpl[0].(map[string]any)
	}
	if mined := mineTasks(raw, element); len(mined) > 0 {
		return mined
	}
	return []any{}
}

func looksLikeTasks(items []any) bool {
	if len(items) == 0 {
		return false
	}
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return false
		}
		_, hasDesc := obj["description"]
		_, hasID := obj["id"]
		if !hasDesc && !hasID {
			return false
		}
	}
	return true
}

func mineTasks(raw string, element map[string]any) []any {
	var tasks []any
	for _, line := range strings.Split(raw, "\n") {
		m := labeledItem.FindStringSubmatch(line)
		if m == nil {
			m = numberedItem.FindStringSubmatch(line)
		}
		if m == nil {
			continue
		}
		id, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		item := map[string]any{
			"id":          float64(id),
			"description": m[2],
		}
		for key, v := range element {
			if _, ok := item[key]; !ok {
				item[key] = zeroLike(v)
			}
		}
		tasks = append(tasks, item)
	}
	return tasks
}

// zeroLike returns an empty value with the same shape as v.
func zeroLike(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, sub := range t {
			out[k] = zeroLike(sub)
		}
		return out
	case []any:
		return []any{}
	case string:
		return ""
	case bool:
		return false
	case float64, int:
		return float64(0)
	default:
		return nil
	}
}

func findStatements(doc map[string]any) ([]any, bool) {
	keys := schema.Keys(doc)
	for _, key := range keys {
		items, ok := doc[key].([]any)
		if !ok || len(items) == 0 {
			continue
		}
		all := true
		for _, item := range items {
			s, ok := item.(string)
			if !ok || !strings.Contains(s, "(") {
				all = false
				break
			}
		}
		if all {
			return items, true
		}
	}
	for _, key := range keys {
		if s, ok := doc[key].(string); ok && strings.Contains(s, "(") {
			return []any{s}, true
		}
	}
	return nil, false
}
