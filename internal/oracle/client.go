package oracle

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/felixgeelhaar/stepwise/internal/errors"
	"github.com/felixgeelhaar/stepwise/internal/journal"
	"github.com/felixgeelhaar/stepwise/internal/log"
	"github.com/felixgeelhaar/stepwise/internal/schema"
	"github.com/felixgeelhaar/stepwise/internal/telemetry"
)

// DefaultSchemaFixes is the corrective follow-up budget used when
// ClientConfig.MaxSchemaFixes is not set.
const DefaultSchemaFixes = 5

const (
	parseFixPrompt  = "The response was not valid JSON. Please output a JSON following this schema: %s"
	schemaFixPrompt = "The response does not match the expected JSON schema: %s. Please reformat your response to exactly follow this schema."
)

// ClientConfig configures a Client.
type ClientConfig struct {
	// MaxSchemaFixes bounds corrective follow-ups per structured query
	MaxSchemaFixes int

	Journal *journal.Journal
	Logger  *log.Logger
}

// Client runs queries against a Provider and coaxes structured answers out
// of it.
type Client struct {
	provider       Provider
	maxSchemaFixes int
	journal        *journal.Journal
	logger         *log.Logger
}

// NewClient creates a Client.
func NewClient(p Provider, cfg ClientConfig) *Client {
	c := &Client{
		provider:       p,
		maxSchemaFixes: cfg.MaxSchemaFixes,
		journal:        cfg.Journal,
		logger:         log.OrDefault(cfg.Logger).WithGroup("oracle"),
	}
	if c.maxSchemaFixes <= 0 {
		c.maxSchemaFixes = DefaultSchemaFixes
	}
	if c.journal == nil {
		c.journal = journal.Discard()
	}
	return c
}

// Provider returns the underlying provider.
func (c *Client) Provider() Provider {
	return c.provider
}

// Query sends one prompt and returns the raw response text.
func (c *Client) Query(ctx context.Context, system, user string) (string, error) {
	conv := &conversation{system: system}
	return c.send(ctx, conv, user)
}

// QueryStructured sends a prompt and returns a JSON object shaped like
// exemplar. Unparseable output earns one corrective follow-up; output that
// does not match the exemplar is repaired locally when possible and
// otherwise corrected through follow-ups until the budget runs out.
func (c *Client) QueryStructured(ctx context.Context, system, user string, exemplar map[string]any) (map[string]any, error) {
	schemaText := encodeSchema(exemplar)
	conv := &conversation{system: system}

	text, err := c.send(ctx, conv, user)
	if err != nil {
		return nil, err
	}

	doc, parseErr := ParseDocument(text)
	if parseErr != nil {
		c.logger.Debug("response is not JSON, asking for a corrected response", "error", parseErr)
		text, err = c.send(ctx, conv, fmt.Sprintf(parseFixPrompt, schemaText))
		if err != nil {
			return nil, err
		}
		doc, parseErr = ParseDocument(text)
	}

	for attempt := 1; ; attempt++ {
		if parseErr == nil {
			mismatch := schema.Mismatch(doc, exemplar)
			if mismatch == "" {
				return doc, nil
			}
			if repaired, ok := Repair(doc, exemplar, text); ok && schema.Matches(repaired, exemplar) {
				c.logger.Debug("repaired response locally", "mismatch", mismatch)
				return repaired, nil
			}
			c.logger.Debug("response does not match schema", "mismatch", mismatch, "attempt", attempt)
		}

		if attempt > c.maxSchemaFixes {
			return nil, errors.NewSchemaExhaustedError(c.maxSchemaFixes)
		}

		text, err = c.send(ctx, conv, fmt.Sprintf(schemaFixPrompt, schemaText))
		if err != nil {
			return nil, err
		}
		doc, parseErr = ParseDocument(text)
	}
}

// conversation carries the turns of one structured query so corrective
// follow-ups are seen in context.
type conversation struct {
	system   string
	messages []Message
}

func (c *Client) send(ctx context.Context, conv *conversation, prompt string) (string, error) {
	conv.messages = append(conv.messages, Message{Role: RoleUser, Content: prompt})
	c.journal.OracleRequest(prompt)

	ctx, span := telemetry.StartOracleSpan(ctx, c.provider.Name())
	resp, err := c.provider.Generate(ctx, &Request{
		System:   conv.system,
		Messages: append([]Message(nil), conv.messages...),
	})
	if err != nil {
		telemetry.End(span, err)
		c.journal.Errorf("Oracle request failed: %v", err)
		return "", err
	}

	telemetry.End(span, nil, attribute.String("model", resp.Model))

	conv.messages = append(conv.messages, Message{Role: RoleAssistant, Content: resp.Content})
	c.journal.OracleResponse(resp.Content)
	c.logger.Debug("oracle responded", "model", resp.Model, "latency", resp.Latency)
	return resp.Content, nil
}
