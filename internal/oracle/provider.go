// Package oracle talks to the text-generation service that proposes plans,
// decompositions, validations, and repairs.
package oracle

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/stepwise/internal/errors"
)

// Role of a chat message.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a single generation request.
type Request struct {
	// System sets the system-level instructions
	System string

	// Messages is the conversation so far, ending with the user turn to answer
	Messages []Message
}

// Prompt returns the content of the final user message.
func (r *Request) Prompt() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleUser {
			return r.Messages[i].Content
		}
	}
	return ""
}

// chatMessages prepends the system prompt to the conversation. A request
// without a user turn is rejected before it reaches the network.
func chatMessages(req *Request) ([]Message, error) {
	if req.Prompt() == "" {
		return nil, errors.New(errors.ErrCodeOracleMalformed, "request has no user prompt")
	}
	messages := make([]Message, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: req.System})
	}
	return append(messages, req.Messages...), nil
}

// Response is the text returned for a Request.
type Response struct {
	Content string
	Model   string
	Latency time.Duration
}

// Provider is a transport to a text-generation service. Failures to reach
// the service or non-success statuses are returned as errors; the content is
// returned verbatim.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req *Request) (*Response, error)
	Health(ctx context.Context) error
}

// ProviderConfig selects and configures a provider.
type ProviderConfig struct {
	Name    string
	Model   string
	BaseURL string
	APIKey  string

	// ScriptFile lists canned responses for the scripted provider
	ScriptFile string

	Resilience ResilienceConfig
}

// NewProvider builds the configured provider wrapped with resilience
// policies.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	var p Provider
	switch strings.ToLower(cfg.Name) {
	case "", "ollama":
		ollama, err := NewOllama(cfg.BaseURL, cfg.Model)
		if err != nil {
			return nil, err
		}
		p = ollama
	case "openai":
		p = NewOpenAI(cfg.BaseURL, cfg.Model, cfg.APIKey)
	case "scripted":
		responses, err := loadScript(cfg.ScriptFile)
		if err != nil {
			return nil, err
		}
		p = NewScripted(responses...)
	default:
		return nil, errors.NewUnknownProviderError(cfg.Name)
	}
	return NewResilient(p, cfg.Resilience), nil
}

func loadScript(path string) ([]string, error) {
	if path == "" {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "scripted provider requires a script file").
			WithSuggestion("Set provider.script_file to a YAML list of responses")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigNotFound, fmt.Sprintf("read script %s", path), err)
	}
	var responses []string
	if err := yaml.Unmarshal(data, &responses); err != nil {
		return nil, errors.NewConfigInvalidError(path, err)
	}
	return responses, nil
}
