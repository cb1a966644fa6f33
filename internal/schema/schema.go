// Package schema checks decoded documents against exemplar documents.
//
// An exemplar is a shape template, not a type system: it is an example
// document whose structure, not values, describes what a conforming document
// looks like. Documents are the generic values produced by encoding/json or
// gopkg.in/yaml.v3 (maps, slices, and scalars).
package schema

import (
	"fmt"
	"slices"
)

// Kind classifies a document value.
type Kind int

const (
	KindNull Kind = iota
	KindPrimitive
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindPrimitive:
		return "primitive"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "null"
	}
}

// KindOf reports the kind of a decoded document value.
func KindOf(v any) Kind {
	switch v.(type) {
	case nil:
		return KindNull
	case map[string]any:
		return KindObject
	case []any:
		return KindArray
	default:
		return KindPrimitive
	}
}

// Matches reports whether candidate has the shape of exemplar.
//
//   - An object exemplar requires an object holding every exemplar key; extra
//     keys are tolerated and shared keys are matched recursively.
//   - A non-empty array exemplar requires an array whose every element matches
//     the exemplar's first element. An empty array exemplar accepts any array.
//   - A primitive exemplar accepts any primitive.
//   - A null exemplar describes no shape, so nothing matches it.
func Matches(candidate, exemplar any) bool {
	return Mismatch(candidate, exemplar) == ""
}

// Mismatch returns a description of the first place candidate departs from
// exemplar, or "" when it matches.
func Mismatch(candidate, exemplar any) string {
	return mismatch(candidate, exemplar, "$")
}

func mismatch(candidate, exemplar any, path string) string {
	want := KindOf(exemplar)
	if want == KindNull {
		return path + ": exemplar is null"
	}
	got := KindOf(candidate)
	if got != want {
		return fmt.Sprintf("%s: expected %s, got %s", path, want, got)
	}

	switch want {
	case KindObject:
		cand := candidate.(map[string]any)
		tmpl := exemplar.(map[string]any)
		for _, key := range Keys(tmpl) {
			value, ok := cand[key]
			if !ok {
				return fmt.Sprintf("%s: missing key %q", path, key)
			}
			if m := mismatch(value, tmpl[key], path+"."+key); m != "" {
				return m
			}
		}
	case KindArray:
		tmpl := exemplar.([]any)
		if len(tmpl) == 0 {
			return ""
		}
		for i, elem := range candidate.([]any) {
			if m := mismatch(elem, tmpl[0], fmt.Sprintf("%s[%d]", path, i)); m != "" {
				return m
			}
		}
	}
	return ""
}

// Normalize converts documents decoded by YAML (which may contain
// map[any]any or typed slices) into the JSON-style shape Matches expects.
func Normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = Normalize(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = Normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Normalize(val)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = val
		}
		return out
	default:
		return v
	}
}

// Keys returns the top-level keys an object exemplar requires, sorted for
// stable prompts and logs.
func Keys(exemplar any) []string {
	obj, ok := exemplar.(map[string]any)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
