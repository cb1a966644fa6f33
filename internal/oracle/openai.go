package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/felixgeelhaar/stepwise/internal/errors"
)

const (
	// DefaultOpenAIURL is the OpenAI API base
	DefaultOpenAIURL = "https://api.openai.com/v1"

	// DefaultOpenAIModel is used when no model is configured
	DefaultOpenAIModel = "gpt-4o-mini"
)

// OpenAI is a Provider for OpenAI-compatible chat completion APIs.
type OpenAI struct {
	baseURL string
	model   string
	apiKey  string
	client  *http.Client
}

type openAIRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type openAIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewOpenAI creates an OpenAI-compatible provider. Empty arguments select
// the defaults; an empty key sends no Authorization header, which suits
// local compatible servers.
func NewOpenAI(baseURL, model, apiKey string) *OpenAI {
	if baseURL == "" {
		baseURL = DefaultOpenAIURL
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAI{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		apiKey:  apiKey,
		client:  &http.Client{},
	}
}

// Name implements Provider.
func (p *OpenAI) Name() string {
	return "openai:" + p.model
}

// Generate implements Provider.
func (p *OpenAI) Generate(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()

	messages, err := chatMessages(req)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(openAIRequest{Model: p.model, Messages: messages})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, errors.NewOracleTransportError(p.Name(), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewOracleTransportError(p.Name(), fmt.Errorf("read response: %w", err))
	}

	var decoded openAIResponse
	decodeErr := json.Unmarshal(respBody, &decoded)

	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && decoded.Error != nil {
			return nil, errors.NewOracleTransportError(p.Name(), fmt.Errorf("status %d: %s", resp.StatusCode, decoded.Error.Message))
		}
		return nil, errors.NewOracleTransportError(p.Name(), fmt.Errorf("status %d", resp.StatusCode))
	}
	if decodeErr != nil {
		return nil, errors.Wrap(errors.ErrCodeOracleMalformed, "decode chat completion", decodeErr)
	}
	if len(decoded.Choices) == 0 {
		return nil, errors.New(errors.ErrCodeOracleMalformed, "chat completion had no choices")
	}

	return &Response{
		Content: decoded.Choices[0].Message.Content,
		Model:   decoded.Model,
		Latency: time.Since(start),
	}, nil
}

// Health checks that the models endpoint answers.
func (p *OpenAI) Health(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return err
	}
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
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
