// Package agent answers natural-language questions about the enriched
// ticket dataset. A ReAct-style loop lets the model call read-only store
// tools through a strict JSON protocol, so any chat provider works
// without native tool-calling support.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strings"

	"ticketflow/pkg/llm"
	"ticketflow/pkg/model"
	"ticketflow/pkg/store"
)

// maxToolSteps bounds one question's tool calls. Questions over this
// dataset resolve in one or two calls; six means the model is looping.
const maxToolSteps = 6

const systemPrompt = `You are a data analyst AI assistant for a bank's customer support routing dashboard.
You answer questions using tools that query a database of enriched support tickets.

## Tool protocol
Every reply must be EXACTLY ONE JSON object, nothing before or after it:
- {"tool": "<name>", "args": {...}} to call a tool and see its result
- {"answer": "<final answer text>"} once you have the data you need

Available tools:
- get_stats, args {} — aggregated statistics over all tickets: total count, avg priority, breakdowns by segment, request_type, sentiment, language, city, country.
- get_tickets, args {"limit": 20} — list tickets. Returns segment, city, request_type, sentiment, priority, language, summary per ticket.
- filter_tickets, args {"field": "...", "value": "...", "limit": 30} — tickets where field equals value (case-insensitive). Valid fields: city, country, segment, request_type, sentiment, language, gender, region. Example: field "sentiment", value "Негативный".
- get_priority_breakdown, args {} — count of tickets at each priority level 1–10.

Always call tools to get real data before answering — never guess counts or values.

## Response format rules
- Format the final answer using Markdown: use ## headings, - bullet lists, and **bold** for key numbers.
- Structure responses with a brief intro sentence, then organized sections with ## headings.
- Use bullet lists for breakdowns and comparisons — never raw pipe tables.
- Keep bullet items concise: "**Mass**: 22 tickets (71%)" style.
- End with a 1–2 sentence insight under a ## Key Insight heading.

## HTML artifact rules
- When a chart would help understand the data, generate a self-contained HTML artifact
  and place it at the VERY END of your answer inside a ` + "```html ... ```" + ` code block.
- Must be a complete page: <!DOCTYPE html> ... </html>
- Load Chart.js from CDN: <script src="https://cdn.jsdelivr.net/npm/chart.js@4"></script>
- Page styles: body { margin:0; padding:24px; background:#0f172a; color:#f1f5f9; font-family:system-ui,sans-serif; }
- h2 style: color:#f1f5f9; font-size:1rem; font-weight:600; margin:0 0 6px;
- p.summary style: color:#94a3b8; font-size:0.8rem; margin:0 0 16px; line-height:1.5;
- Include a styled <h2> title and a <p class="summary"> paragraph ABOVE the chart
- Chart canvas max-height: 360px
- Dataset colors (use in order): #6366f1, #10b981, #f59e0b, #f43f5e, #3b82f6, #a855f7, #14b8a6
- For bar charts use borderRadius:4; for pie/doughnut charts use hoverOffset:8
- ALWAYS set these Chart.js global options for visibility on dark background:
    plugins: {
      legend: { labels: { color: '#cbd5e1', font: { size: 12 } } }
    },
    scales: {   // (only for bar/line charts, not pie/doughnut)
      x: {
        ticks: { color: '#94a3b8', font: { size: 11 } },
        grid:  { color: 'rgba(148,163,184,0.12)' },
        border:{ color: 'rgba(148,163,184,0.2)' }
      },
      y: {
        ticks: { color: '#94a3b8', font: { size: 11 } },
        grid:  { color: 'rgba(148,163,184,0.12)' },
        border:{ color: 'rgba(148,163,184,0.2)' }
      }
    }
- Do NOT use external images or fonts — only the Chart.js CDN script

Only generate an HTML artifact when a chart genuinely adds value (distributions, comparisons, trends).
For simple factual answers, skip the artifact.`

// Result is the parsed outcome of one question.
type Result struct {
	Answer       string
	HTMLArtifact string
}

// Event is one step of the agent's reasoning, shaped for SSE delivery.
type Event struct {
	Type         string         `json:"type"`
	Name         string         `json:"name,omitempty"`
	Args         map[string]any `json:"args,omitempty"`
	Preview      string         `json:"preview,omitempty"`
	Answer       string         `json:"answer,omitempty"`
	HTMLArtifact *string        `json:"html_artifact,omitempty"`
	Message      string         `json:"message,omitempty"`
}

// Agent runs questions against the store through a chat provider.
type Agent struct {
	provider llm.Provider
	model    string
	tickets  store.TicketStore
}

// New creates an Agent.
func New(provider llm.Provider, modelID string, tickets store.TicketStore) *Agent {
	return &Agent{provider: provider, model: modelID, tickets: tickets}
}

// Run answers one question. Failures come back as a polite fallback
// answer rather than an error; the HTTP layer never turns them into 5xx.
func (a *Agent) Run(ctx context.Context, question string) Result {
	res, err := a.loop(ctx, question, nil)
	if err != nil {
		slog.Error("Agent run failed", "error", err)
		return Result{Answer: fmt.Sprintf("Sorry, I could not process your question. (%v)", err)}
	}
	return res
}

// Stream answers one question, emitting events as the agent reasons. The
// last event is always done or error; the caller owns the channel.
func (a *Agent) Stream(ctx context.Context, question string, events chan<- Event) {
	res, err := a.loop(ctx, question, events)
	if err != nil {
		slog.Error("Agent stream failed", "error", err)
		events <- Event{Type: "error", Message: err.Error()}
		return
	}

	done := Event{Type: "done", Answer: res.Answer}
	if res.HTMLArtifact != "" {
		done.HTMLArtifact = &res.HTMLArtifact
	}
	events <- done
}

func (a *Agent) loop(ctx context.Context, question string, events chan<- Event) (Result, error) {
	messages := []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: question},
	}

	for step := 0; step <= maxToolSteps; step++ {
		text, err := a.provider.Chat(ctx, llm.ChatRequest{
			Model:       a.model,
			Messages:    messages,
			Temperature: 0,
		})
		if err != nil {
			return Result{}, err
		}

		call, answer := parseTurn(text)
		if call == nil {
			return parseAnswer(answer), nil
		}

		if events != nil {
			events <- Event{Type: "tool_start", Name: call.Tool, Args: call.Args}
		}
		raw := a.callTool(ctx, call)
		if events != nil {
			events <- Event{Type: "tool_result", Name: call.Tool, Preview: toolPreview(raw)}
		}
		slog.Info("Agent tool call", "step", step+1, "tool", call.Tool)

		messages = append(messages,
			llm.Message{Role: "assistant", Content: text},
			llm.Message{Role: "user", Content: "Tool " + call.Tool + " returned:\n" + raw + "\n\nContinue: call another tool or give the final answer."},
		)
	}

	return Result{}, errors.New("tool step limit reached without a final answer")
}

type toolCall struct {
	Tool string
	Args map[string]any
}

// parseTurn interprets one model reply. A reply that breaks the JSON
// protocol is taken as the final answer rather than failing the run.
func parseTurn(text string) (*toolCall, string) {
	raw, err := llm.ExtractJSON(text)
	if err != nil {
		return nil, text
	}

	var turn struct {
		Tool   string         `json:"tool"`
		Args   map[string]any `json:"args"`
		Answer string         `json:"answer"`
	}
	if err := json.Unmarshal([]byte(raw), &turn); err != nil {
		return nil, text
	}

	if turn.Tool != "" {
		return &toolCall{Tool: turn.Tool, Args: turn.Args}, ""
	}
	if turn.Answer != "" {
		return nil, turn.Answer
	}
	return nil, text
}

var (
	artifactDocRe = regexp.MustCompile("(?is)```html\\s*(<!DOCTYPE\\s+html.*?</html>)\\s*```")
	artifactAnyRe = regexp.MustCompile("(?s)```html\\s*(.*?)\\s*```")
)

// parseAnswer splits an optional trailing HTML artifact off the answer
// text. A complete document inside the fence wins; any html fence is the
// fallback.
func parseAnswer(content string) Result {
	m := artifactDocRe.FindStringSubmatchIndex(content)
	if m == nil {
		m = artifactAnyRe.FindStringSubmatchIndex(content)
	}
	if m == nil {
		return Result{Answer: strings.TrimSpace(content)}
	}
	return Result{
		Answer:       strings.TrimSpace(content[:m[0]]),
		HTMLArtifact: strings.TrimSpace(content[m[2]:m[3]]),
	}
}

func (a *Agent) callTool(ctx context.Context, call *toolCall) string {
	switch call.Tool {
	case "get_stats":
		return a.statsJSON(ctx)
	case "get_tickets":
		return a.ticketsJSON(ctx, intArg(call.Args, "limit", 20))
	case "filter_tickets":
		return a.filterJSON(ctx, strArg(call.Args, "field"), strArg(call.Args, "value"), intArg(call.Args, "limit", 30))
	case "get_priority_breakdown":
		return a.priorityJSON(ctx)
	default:
		return mustJSON(map[string]string{"error": "unknown tool: " + call.Tool})
	}
}

func (a *Agent) statsJSON(ctx context.Context) string {
	s, err := a.tickets.TicketStats(ctx)
	if err != nil {
		return mustJSON(map[string]string{"error": err.Error()})
	}
	return mustJSON(map[string]any{
		"total":           s.TotalTickets,
		"avg_priority":    math.Round(s.AvgPriority*10) / 10,
		"by_sentiment":    s.BySentiment,
		"by_segment":      s.BySegment,
		"by_request_type": s.ByRequestType,
		"by_language":     s.ByLanguage,
		"by_city":         s.ByCity,
		"by_country":      s.ByCountry,
	})
}

func (a *Agent) ticketsJSON(ctx context.Context, limit int) string {
	ts, err := a.tickets.ListTickets(ctx, limit)
	if err != nil {
		return mustJSON(map[string]string{"error": err.Error()})
	}
	rows := make([]map[string]any, 0, len(ts))
	for i := range ts {
		rows = append(rows, ticketRow(&ts[i], true))
	}
	return mustJSON(rows)
}

func (a *Agent) filterJSON(ctx context.Context, field, value string, limit int) string {
	ts, err := a.tickets.FilterTickets(ctx, field, value, limit)
	if err != nil {
		return mustJSON([]map[string]string{{"error": err.Error()}})
	}
	rows := make([]map[string]any, 0, len(ts))
	for i := range ts {
		rows = append(rows, ticketRow(&ts[i], false))
	}
	return mustJSON(rows)
}

func (a *Agent) priorityJSON(ctx context.Context) string {
	breakdown, err := a.tickets.PriorityBreakdown(ctx)
	if err != nil {
		return mustJSON(map[string]string{"error": err.Error()})
	}

	priorities := make([]int, 0, len(breakdown))
	for p := range breakdown {
		priorities = append(priorities, p)
	}
	sort.Ints(priorities)

	type row struct {
		Priority int `json:"priority"`
		Count    int `json:"count"`
	}
	rows := make([]row, 0, len(priorities))
	for _, p := range priorities {
		rows = append(rows, row{Priority: p, Count: breakdown[p]})
	}
	return mustJSON(rows)
}

// ticketRow is the compact projection fed back to the model: description
// stays out to keep the context small.
func ticketRow(t *model.Ticket, withGender bool) map[string]any {
	row := map[string]any{
		"ticket_id":    t.CustomerGUID,
		"segment":      string(t.Segment),
		"city":         t.City,
		"country":      t.Country,
		"request_type": string(t.RequestType),
		"sentiment":    string(t.Sentiment),
		"priority":     t.PriorityScore,
		"language":     string(t.Language),
		"summary":      t.Summary,
	}
	if withGender {
		row["gender"] = t.Gender
	}
	return row
}

// toolPreview compresses a raw tool result into one SSE-sized line.
func toolPreview(raw string) string {
	var data any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return truncate(raw, 120)
	}

	switch v := data.(type) {
	case []any:
		return fmt.Sprintf("%d records returned", len(v))
	case map[string]any:
		if total, ok := v["total"]; ok {
			parts := []string{fmt.Sprintf("%v tickets", total)}
			if avg, ok := v["avg_priority"]; ok {
				parts = append(parts, fmt.Sprintf("avg priority %v", avg))
			}
			if seg := topCountKey(v["by_segment"]); seg != "" {
				parts = append(parts, "top segment: "+seg)
			}
			return strings.Join(parts, " · ")
		}
		if e, ok := v["error"]; ok {
			return fmt.Sprintf("Error: %v", e)
		}
		return scalarPairs(v, 4)
	}
	return truncate(raw, 120)
}

// topCountKey returns the label with the highest count, ties broken
// alphabetically so previews are stable.
func topCountKey(v any) string {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return ""
	}
	best := ""
	bestN := math.Inf(-1)
	for k, raw := range m {
		n, _ := raw.(float64)
		if n > bestN || (n == bestN && (best == "" || k < best)) {
			best, bestN = k, n
		}
	}
	return best
}

func scalarPairs(m map[string]any, limit int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		if _, nested := m[k].(map[string]any); nested {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > limit {
		keys = keys[:limit]
	}

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, m[k]))
	}
	return strings.Join(parts, "  ·  ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `{"error": "failed to serialize tool result"}`
	}
	return string(b)
}

func intArg(args map[string]any, key string, fallback int) int {
	if v, ok := args[key]; ok {
		if f, ok := v.(float64); ok && f > 0 {
			return int(f)
		}
	}
	return fallback
}

func strArg(args map[string]any, key string) string {
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
