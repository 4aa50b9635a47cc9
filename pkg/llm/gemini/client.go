// Package gemini implements llm.Provider on Google's genai SDK. The
// assistant uses it when agent.provider is set to "gemini".
package gemini

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"ticketflow/pkg/llm"
	"ticketflow/pkg/tracker"
)

// Client wraps a genai client for one API key.
type Client struct {
	genaiClient  *genai.Client
	defaultModel string
	tracker      *tracker.Tracker
}

// New creates a Client. The model falls back to gemini-2.0-flash when
// empty; tr may be nil.
func New(ctx context.Context, apiKey, model string, tr *tracker.Tracker) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is missing")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &Client{genaiClient: client, defaultModel: model, tracker: tr}, nil
}

// Chat sends the conversation and returns the model text. System turns
// become the system instruction; assistant turns map to the "model" role.
func (c *Client) Chat(ctx context.Context, req llm.ChatRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	contents, system := splitContents(req.Messages)
	if len(contents) == 0 {
		return "", fmt.Errorf("no user content to send")
	}

	temp := req.Temperature
	config := &genai.GenerateContentConfig{
		Temperature: &temp,
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}

	start := time.Now()
	resp, err := c.genaiClient.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		if c.tracker != nil {
			c.tracker.TrackAPIFailure(tracker.ProviderGemini)
		}
		return "", fmt.Errorf("generate content error: %w", err)
	}
	if c.tracker != nil {
		c.tracker.TrackLatency(tracker.ProviderGemini, time.Since(start).Milliseconds())
		c.tracker.TrackAPISuccess(tracker.ProviderGemini)
	}

	return responseText(resp)
}

func splitContents(messages []llm.Message) ([]*genai.Content, string) {
	var system []string
	var contents []*genai.Content
	for _, m := range messages {
		switch m.Role {
		case "system":
			system = append(system, m.Content)
		case "assistant":
			contents = append(contents, &genai.Content{
				Role:  "model",
				Parts: []*genai.Part{{Text: m.Content}},
			})
		default:
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []*genai.Part{{Text: m.Content}},
			})
		}
	}
	return contents, strings.Join(system, "\n\n")
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no candidates returned")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	return sb.String(), nil
}
