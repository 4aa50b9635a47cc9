package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"ticketflow/pkg/agent"
)

// AgentHandler serves natural language questions about the ticket data.
type AgentHandler struct {
	agent *agent.Agent
}

// NewAgentHandler creates an AgentHandler.
func NewAgentHandler(a *agent.Agent) *AgentHandler {
	if a == nil {
		return nil
	}
	return &AgentHandler{agent: a}
}

// AgentQueryRequest is the body of both agent endpoints. The session id
// is accepted for wire compatibility; the agent reads the store directly.
type AgentQueryRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id"`
}

// AgentQueryResponse is the POST /api/agent/query payload.
type AgentQueryResponse struct {
	Answer       string  `json:"answer"`
	ChartData    any     `json:"chart_data"`
	HTMLArtifact *string `json:"html_artifact"`
}

// HandleQuery answers one question synchronously.
func (h *AgentHandler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAgentRequest(w, r)
	if !ok {
		return
	}

	res := h.agent.Run(r.Context(), req.Question)

	resp := AgentQueryResponse{Answer: res.Answer}
	if res.HTMLArtifact != "" {
		resp.HTMLArtifact = &res.HTMLArtifact
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleStream answers one question as an SSE stream of reasoning events.
func (h *AgentHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAgentRequest(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming is not supported.")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	events := make(chan agent.Event, 8)
	go func() {
		h.agent.Stream(r.Context(), req.Question, events)
		close(events)
	}()

	for e := range events {
		b, err := json.Marshal(e)
		if err != nil {
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
			// client went away, drain the channel so Stream can finish
			for range events {
			}
			return
		}
		flusher.Flush()
	}
}

func decodeAgentRequest(w http.ResponseWriter, r *http.Request) (AgentQueryRequest, bool) {
	var req AgentQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body.")
		return req, false
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required.")
		return req, false
	}
	return req, true
}
