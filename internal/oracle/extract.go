package oracle

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/felixgeelhaar/stepwise/internal/errors"
)

var fencedJSON = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")

// ExtractJSON pulls the JSON object out of free text: a fenced block labeled
// json wins, then the widest {...} span, and "{}" when neither exists.
func ExtractJSON(text string) string {
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return "{}"
}

// ParseDocument extracts and decodes the JSON object in text.
func ParseDocument(text string) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(ExtractJSON(text)), &doc); err != nil {
		return nil, errors.Wrap(errors.ErrCodeOracleMalformed, "response is not a JSON object", err)
	}
	if doc == nil {
		return nil, errors.New(errors.ErrCodeOracleMalformed, "response is not a JSON object")
	}
	return doc, nil
}

func encodeSchema(exemplar map[string]any) string {
	data, err := json.Marshal(exemplar)
	if err != nil {
		return fmt.Sprint(exemplar)
	}
	return string(data)
}
