// Package llm defines the chat interface shared by the local Ollama
// backend and the hosted Gemini backend, plus helpers for digging JSON
// out of model output.
package llm

import (
	"context"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest describes a single chat completion call. Zero values mean
// "let the backend decide"; NumCtx is only honored by Ollama.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature float32
	MaxTokens   int
	NumCtx      int
}

// Provider is implemented by chat backends.
type Provider interface {
	// Chat sends the request and returns the assistant text.
	Chat(ctx context.Context, req ChatRequest) (string, error)
}
