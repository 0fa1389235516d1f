// Package llm provides the upstream completion client. The client is a
// plain HTTP wrapper: budget gating and caching are owned by callers.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/finlens-ai/finlens/pkg/models"
)

// Completer is the abstract interface for completion backends.
type Completer interface {
	Complete(ctx context.Context, req models.CompletionRequest) (*models.CompletionResponse, error)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithModel sets the default model.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// Client calls an OpenAI-compatible chat completions endpoint.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
}

// NewClient creates a completion client for the given endpoint.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   "llama-3.3-70b-versatile",
		http:    &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatRequest struct {
	Model       string               `json:"model"`
	Messages    []models.ChatMessage `json:"messages"`
	Temperature *float64             `json:"temperature,omitempty"`
	MaxTokens   *int                 `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends a chat completion request.
func (c *Client) Complete(ctx context.Context, req models.CompletionRequest) (*models.CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	cr := chatRequest{Model: model, Messages: req.Messages}
	if req.Temperature > 0 {
		t := req.Temperature
		cr.Temperature = &t
	}
	if req.MaxTokens > 0 {
		mt := req.MaxTokens
		cr.MaxTokens = &mt
	}

	body, err := json.Marshal(cr)
	if err != nil {
		return nil, fmt.Errorf("llm: marshal request: %w", err)
	}

	url := c.baseURL + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llm: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("llm: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("llm: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var er errorResponse
		if json.Unmarshal(respBody, &er) == nil && er.Error.Message != "" {
			return nil, fmt.Errorf("llm: API error %d: %s: %s", resp.StatusCode, er.Error.Type, er.Error.Message)
		}
		return nil, fmt.Errorf("llm: API error %d: %s", resp.StatusCode, string(respBody))
	}

	var cr2 chatResponse
	if err := json.Unmarshal(respBody, &cr2); err != nil {
		return nil, fmt.Errorf("llm: unmarshal response: %w", err)
	}
	if len(cr2.Choices) == 0 {
		return nil, fmt.Errorf("llm: empty response")
	}

	return &models.CompletionResponse{
		Content:          cr2.Choices[0].Message.Content,
		Model:            cr2.Model,
		PromptTokens:     cr2.Usage.PromptTokens,
		CompletionTokens: cr2.Usage.CompletionTokens,
		LatencyMs:        time.Since(start).Milliseconds(),
	}, nil
}
