package oracle

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/stepwise/internal/errors"
	"github.com/felixgeelhaar/stepwise/internal/journal"
	"github.com/felixgeelhaar/stepwise/internal/log"
)

var validityExemplar = map[string]any{"overallValidity": true, "explanation": ""}

func newTestClient(p Provider, fixes int) (*Client, *journal.Journal) {
	j := journal.Discard()
	return NewClient(p, ClientConfig{MaxSchemaFixes: fixes, Journal: j, Logger: log.Discard()}), j
}

func TestQueryJournalsConversation(t *testing.T) {
	p := NewScripted("hello back")
	c, j := newTestClient(p, 0)

	out, err := c.Query(context.Background(), "sys", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello back", out)

	conv := j.Conversation(0)
	require.Len(t, conv, 2)
	assert.Equal(t, journal.LevelOracleRequest, conv[0].Level)
	assert.Equal(t, "hello", conv[0].Message)
	assert.Equal(t, "hello back", conv[1].Message)

	reqs := p.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "sys", reqs[0].System)
	assert.Equal(t, "hello", reqs[0].Prompt())
}

func TestQueryStructuredFirstTry(t *testing.T) {
	p := NewScripted("```json\n{\"overallValidity\": false, \"explanation\": \"x\"}\n```")
	c, _ := newTestClient(p, 3)

	doc, err := c.QueryStructured(context.Background(), "sys", "check", validityExemplar)
	require.NoError(t, err)
	assert.Equal(t, false, doc["overallValidity"])
	assert.Len(t, p.Requests(), 1)
}

func TestQueryStructuredParseFix(t *testing.T) {
	p := NewScripted(
		"{this is not json}",
		`{"overallValidity": true, "explanation": "fine"}`,
	)
	c, _ := newTestClient(p, 3)

	doc, err := c.QueryStructured(context.Background(), "sys", "check", validityExemplar)
	require.NoError(t, err)
	assert.Equal(t, "fine", doc["explanation"])

	reqs := p.Requests()
	require.Len(t, reqs, 2)
	assert.True(t, strings.HasPrefix(reqs[1].Prompt(), "The response was not valid JSON."))
	assert.Contains(t, reqs[1].Prompt(), `"overallValidity":true`)
	// The follow-up carries the earlier exchange.
	require.Len(t, reqs[1].Messages, 3)
	assert.Equal(t, RoleAssistant, reqs[1].Messages[1].Role)
}

func TestQueryStructuredSchemaFix(t *testing.T) {
	p := NewScripted(
		`{"valid": true}`,
		`still not json`,
		`{"overallValidity": true, "explanation": "ok"}`,
	)
	c, _ := newTestClient(p, 3)

	doc, err := c.QueryStructured(context.Background(), "sys", "check", validityExemplar)
	require.NoError(t, err)
	assert.Equal(t, "ok", doc["explanation"])

	reqs := p.Requests()
	require.Len(t, reqs, 3)
	assert.Contains(t, reqs[1].Prompt(), "does not match the expected JSON schema")
	assert.Contains(t, reqs[2].Prompt(), "does not match the expected JSON schema")
}

func TestQueryStructuredBudgetExhausted(t *testing.T) {
	p := NewResponder(func(*Request) (string, error) {
		return `{"unrelated": 1}`, nil
	})
	c, _ := newTestClient(p, 2)

	_, err := c.QueryStructured(context.Background(), "sys", "check", validityExemplar)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeOracleSchemaExhausted))
	// Initial query plus two corrective follow-ups.
	assert.Len(t, p.Requests(), 3)
}

func TestQueryStructuredRepairsLocally(t *testing.T) {
	p := NewScripted("1. Install deps\n2. Run server")
	c, _ := newTestClient(p, 3)

	exemplar := map[string]any{"subtasks": []any{map[string]any{"id": 1.0, "description": ""}}}
	doc, err := c.QueryStructured(context.Background(), "sys", "plan", exemplar)
	require.NoError(t, err)

	items := doc["subtasks"].([]any)
	require.Len(t, items, 2)
	assert.Equal(t, "Run server", items[1].(map[string]any)["description"])
	assert.Len(t, p.Requests(), 1)
}

func TestQueryStructuredTransportError(t *testing.T) {
	p := NewResponder(func(*Request) (string, error) {
		return "", errors.NewOracleTransportError("scripted", fmt.Errorf("refused"))
	})
	c, j := newTestClient(p, 3)

	_, err := c.QueryStructured(context.Background(), "sys", "check", validityExemplar)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeOracleTransport))

	var sawError bool
	for _, e := range j.All() {
		if e.Level == journal.LevelError {
			sawError = true
		}
	}
	assert.True(t, sawError)
}

func TestQueryStructuredCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c, _ := newTestClient(NewScripted("{}"), 1)
	_, err := c.QueryStructured(ctx, "sys", "check", validityExemplar)
	assert.ErrorIs(t, err, context.Canceled)
}
