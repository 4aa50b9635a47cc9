// Package openai implements llm.Provider for any OpenAI-compatible
// chat-completions endpoint. In production this is Ollama's /v1 surface.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"ticketflow/pkg/llm"
	"ticketflow/pkg/request"
)

// Client talks to one OpenAI-compatible server.
type Client struct {
	baseURL string
	apiKey  string
	rc      *request.Client
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []llm.Message `json:"messages"`
	// Temperature is serialized unconditionally: Ollama falls back to its
	// own default when the field is absent, and the analyzer depends on 0.
	Temperature float32        `json:"temperature"`
	MaxTokens   int            `json:"max_tokens,omitempty"`
	Options     *ollamaOptions `json:"options,omitempty"`
}

// ollamaOptions is the Ollama extension block ignored by other servers.
type ollamaOptions struct {
	NumCtx int `json:"num_ctx,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

type modelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// New creates a Client. baseURL is the API root (e.g.
// http://localhost:11434/v1); apiKey may be empty for servers that do
// not check it.
func New(baseURL, apiKey string, rc *request.Client) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("baseURL is required")
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		rc:      rc,
	}, nil
}

// Chat sends a chat completion request and returns the assistant text.
func (c *Client) Chat(ctx context.Context, req llm.ChatRequest) (string, error) {
	creq := chatRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.NumCtx > 0 {
		creq.Options = &ollamaOptions{NumCtx: req.NumCtx}
	}

	body, err := json.Marshal(creq)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	headers := map[string]string{}
	if c.apiKey != "" {
		headers["Authorization"] = "Bearer " + c.apiKey
	}

	status, respBody, err := c.rc.Post(ctx, c.baseURL+"/chat/completions", body, headers)
	if err != nil {
		return "", err
	}

	if status < 200 || status >= 300 {
		var cresp chatResponse
		if jerr := json.Unmarshal(respBody, &cresp); jerr == nil && cresp.Error != nil {
			return "", fmt.Errorf("chat api error (status %d): %s (%s)", status, cresp.Error.Message, cresp.Error.Type)
		}
		return "", fmt.Errorf("chat completion returned status %d", status)
	}

	var cresp chatResponse
	if err := json.Unmarshal(respBody, &cresp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	// Some proxies return 200 with an error body.
	if cresp.Error != nil {
		return "", fmt.Errorf("chat api error: %s (%s)", cresp.Error.Message, cresp.Error.Type)
	}

	if len(cresp.Choices) == 0 {
		return "", fmt.Errorf("api returned no choices")
	}

	return cresp.Choices[0].Message.Content, nil
}

// Models lists the model IDs the server exposes. Used at startup to warn
// when the configured model has not been pulled.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	headers := map[string]string{}
	if c.apiKey != "" {
		headers["Authorization"] = "Bearer " + c.apiKey
	}

	status, respBody, err := c.rc.Get(ctx, c.baseURL+"/models", headers)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("models listing returned status %d", status)
	}

	var mresp modelsResponse
	if err := json.Unmarshal(respBody, &mresp); err != nil {
		return nil, fmt.Errorf("failed to parse models response: %w", err)
	}

	ids := make([]string, 0, len(mresp.Data))
	for _, m := range mresp.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}
