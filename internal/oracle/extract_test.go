package oracle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/stepwise/internal/errors"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "fenced block wins",
			text: "Sure {not this}\n```json\n{\"a\": 1}\n```\ntrailing }",
			want: `{"a": 1}`,
		},
		{
			name: "widest braces",
			text: `Here you go: {"a": {"b": 2}} hope that helps`,
			want: `{"a": {"b": 2}}`,
		},
		{
			name: "no object",
			text: "I cannot help with that.",
			want: "{}",
		},
		{
			name: "closing before opening",
			text: "} oops {",
			want: "{}",
		},
		{
			name: "unlabeled fence falls back to braces",
			text: "```\n{\"x\": true}\n```",
			want: `{"x": true}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.text))
		})
	}
}

func TestParseDocument(t *testing.T) {
	doc, err := ParseDocument("```json\n{\"overallValidity\": true, \"explanation\": \"ok\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, true, doc["overallValidity"])

	empty, err := ParseDocument("no json here")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = ParseDocument("{broken: json}")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeOracleMalformed))
}
