package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/felixgeelhaar/stepwise/internal/errors"
)

const (
	// DefaultOllamaURL is the local Ollama endpoint
	DefaultOllamaURL = "http://localhost:11434"

	// DefaultOllamaModel is used when no model is configured
	DefaultOllamaModel = "phi4:latest"
)

var safeModelName = regexp.MustCompile(`^[a-zA-Z0-9:._/-]+$`)

// Ollama is a Provider for the Ollama chat API.
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
}

type ollamaChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type ollamaChatResponse struct {
	Model   string  `json:"model"`
	Message Message `json:"message"`
	Done    bool    `json:"done"`
	Error   string  `json:"error,omitempty"`
}

// NewOllama creates an Ollama provider. Empty arguments select the defaults.
func NewOllama(baseURL, model string) (*Ollama, error) {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	if !safeModelName.MatchString(model) {
		return nil, errors.Newf(errors.ErrCodeConfigInvalid, "invalid model name: %s", model)
	}
	return &Ollama{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{},
	}, nil
}

// Name implements Provider.
func (p *Ollama) Name() string {
	return "ollama:" + p.model
}

// Generate implements Provider.
func (p *Ollama) Generate(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()

	messages, err := chatMessages(req)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(ollamaChatRequest{
		Model:    p.model,
		Messages: messages,
		Stream:   false,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, errors.NewOracleTransportError(p.Name(), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewOracleTransportError(p.Name(), fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewOracleTransportError(p.Name(),
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))))
	}

	var chat ollamaChatResponse
	if err := json.Unmarshal(respBody, &chat); err != nil {
		return nil, errors.Wrap(errors.ErrCodeOracleMalformed, "decode ollama response", err)
	}
	if chat.Error != "" {
		return nil, errors.NewOracleTransportError(p.Name(), fmt.Errorf("%s", chat.Error))
	}

	model := chat.Model
	if model == "" {
		model = p.model
	}
	return &Response{
		Content: chat.Message.Content,
		Model:   model,
		Latency: time.Since(start),
	}, nil
}

// Health checks that the Ollama server answers.
func (p *Ollama) Health(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return errors.NewOracleTransportError(p.Name(), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.NewOracleTransportError(p.Name(), fmt.Errorf("status %d", resp.StatusCode))
	}
	return nil
}
