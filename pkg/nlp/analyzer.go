// Package nlp analyzes ticket descriptions with a local Gemma model
// served by Ollama.
package nlp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"ticketflow/pkg/llm"
	"ticketflow/pkg/model"
	"ticketflow/pkg/scorer"
)

var (
	// AvailableModels lists the Ollama models the settings endpoint accepts.
	AvailableModels = []string{"gemma3:1b", "gemma3:4b"}

	// AvailableConcurrency lists the accepted fan-out widths.
	AvailableConcurrency = []int64{1, 2, 4, 6, 8}
)

const (
	// DefaultModel balances quality against local inference time.
	DefaultModel = "gemma3:4b"

	// DefaultConcurrency keeps Ollama's queue full (OLLAMA_NUM_PARALLEL
	// plus a small buffer).
	DefaultConcurrency int64 = 6

	maxTokens = 200

	// numCtx is the context window per request. System prompt, ticket and
	// reply fit in roughly 700 tokens.
	numCtx = 1024
)

const systemPrompt = `You are an AI assistant for a bank's customer support routing system.
Analyze the given customer request and return a JSON object with the following fields:

- request_type: One of ["Жалоба", "Смена данных", "Консультация", "Претензия", "Неработоспособность приложения", "Мошеннические действия", "Спам"]
- sentiment: One of ["Положительная", "Нейтральная", "Негативная"]
- language: One of ["KZ", "ENG", "RU"] — if unclear, default to "RU"
- summary: 1–2 concise sentences in RUSSIAN summarizing the request, shorter than the original.
- next_actions: A short string in RUSSIAN with recommended next actions for the manager (1–3 steps).

Return ONLY valid JSON. All text values must be written in Russian.`

const (
	fallbackSummary     = "Не удалось проанализировать — требуется ручная проверка."
	fallbackNextActions = "Передать на ручную обработку."
)

// Settings is the hot-swappable part of the analyzer configuration.
type Settings struct {
	Model       string `json:"model"`
	Concurrency int64  `json:"concurrency"`
}

// Result is the structured analysis for one ticket. Priority is computed
// deterministically from the raw labels instead of trusting the model.
type Result struct {
	RequestType   model.RequestType
	Sentiment     model.Sentiment
	PriorityScore int
	Language      model.Language
	Summary       string
	NextActions   string
	InferTimeMS   int64
}

// Analyzer fans ticket descriptions out to the model, bounding
// parallelism with a semaphore that can be swapped at runtime.
type Analyzer struct {
	provider llm.Provider

	mu       sync.RWMutex
	settings Settings
	sem      *semaphore.Weighted
}

// New creates an Analyzer. Zero-value settings fields fall back to the
// package defaults.
func New(provider llm.Provider, settings Settings) *Analyzer {
	if settings.Model == "" {
		settings.Model = DefaultModel
	}
	if settings.Concurrency <= 0 {
		settings.Concurrency = DefaultConcurrency
	}
	return &Analyzer{
		provider: provider,
		settings: settings,
		sem:      semaphore.NewWeighted(settings.Concurrency),
	}
}

// Settings returns the current model and concurrency.
func (a *Analyzer) Settings() Settings {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.settings
}

// UpdateSettings validates and applies new settings. The semaphore is
// replaced; requests already in flight finish against the old one.
func (a *Analyzer) UpdateSettings(s Settings) error {
	if !validModel(s.Model) {
		return fmt.Errorf("unknown model %q, available: %v", s.Model, AvailableModels)
	}
	if !validConcurrency(s.Concurrency) {
		return fmt.Errorf("unsupported concurrency %d, available: %v", s.Concurrency, AvailableConcurrency)
	}

	a.mu.Lock()
	a.settings = s
	a.sem = semaphore.NewWeighted(s.Concurrency)
	a.mu.Unlock()

	slog.Info("NLP settings updated", "model", s.Model, "concurrency", s.Concurrency)
	return nil
}

// Analyze sends one description to the model and returns the structured
// analysis. Any failure (transport, status, parse) yields the manual
// review fallback so a bad ticket never aborts its batch.
func (a *Analyzer) Analyze(ctx context.Context, description string, segment model.Segment, index, total int) Result {
	start := time.Now()
	slog.Info("Analyzing ticket", "index", index, "total", total, "chars", len(description))

	a.mu.RLock()
	sem := a.sem
	modelID := a.settings.Model
	a.mu.RUnlock()

	if err := sem.Acquire(ctx, 1); err != nil {
		slog.Error("Ticket analysis aborted", "index", index, "total", total, "error", err)
		return Fallback(segment)
	}

	inferStart := time.Now()
	text, err := a.provider.Chat(ctx, llm.ChatRequest{
		Model: modelID,
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: description},
		},
		Temperature: 0,
		MaxTokens:   maxTokens,
		NumCtx:      numCtx,
	})
	inferTime := time.Since(inferStart).Milliseconds()
	sem.Release(1)

	if err != nil {
		slog.Error("Ticket analysis failed", "index", index, "total", total,
			"elapsed", time.Since(start).Round(time.Millisecond), "error", err)
		return Fallback(segment)
	}

	slog.Info("Inference done", "index", index, "total", total,
		"elapsed", time.Since(start).Round(time.Millisecond), "raw_len", len(text))

	raw, err := llm.ExtractJSON(text)
	if err != nil {
		slog.Error("Ticket analysis produced no JSON", "index", index, "total", total, "error", err)
		return Fallback(segment)
	}

	var parsed struct {
		RequestType string `json:"request_type"`
		Sentiment   string `json:"sentiment"`
		Language    string `json:"language"`
		Summary     string `json:"summary"`
		NextActions string `json:"next_actions"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		slog.Error("Ticket analysis returned invalid JSON", "index", index, "total", total, "error", err)
		return Fallback(segment)
	}

	if parsed.RequestType == "" {
		parsed.RequestType = "Консультация"
	}
	if parsed.Sentiment == "" {
		parsed.Sentiment = "Нейтральная"
	}
	if parsed.Language == "" {
		parsed.Language = "RU"
	}

	// Score from the raw labels: the mapping handles Russian and English,
	// and the model never gets to pick the priority itself.
	priority := scorer.Score(parsed.RequestType, parsed.Sentiment, string(segment))

	slog.Info("Ticket analyzed", "index", index, "total", total,
		"type", parsed.RequestType, "sentiment", parsed.Sentiment, "priority", priority)

	return Result{
		RequestType:   model.ParseRequestType(parsed.RequestType),
		Sentiment:     model.ParseSentiment(parsed.Sentiment),
		PriorityScore: priority,
		Language:      model.ParseLanguage(parsed.Language),
		Summary:       parsed.Summary,
		NextActions:   parsed.NextActions,
		InferTimeMS:   inferTime,
	}
}

// Fallback is the manual-review result used when analysis fails.
func Fallback(segment model.Segment) Result {
	return Result{
		RequestType:   model.Consultation,
		Sentiment:     model.Neutral,
		PriorityScore: scorer.Score("Консультация", "Нейтральная", string(segment)),
		Language:      model.LangRU,
		Summary:       fallbackSummary,
		NextActions:   fallbackNextActions,
		InferTimeMS:   0,
	}
}

func validModel(id string) bool {
	for _, m := range AvailableModels {
		if m == id {
			return true
		}
	}
	return false
}

func validConcurrency(n int64) bool {
	for _, c := range AvailableConcurrency {
		if c == n {
			return true
		}
	}
	return false
}
