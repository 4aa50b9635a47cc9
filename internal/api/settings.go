package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"ticketflow/pkg/nlp"
)

// SettingsHandler exposes the NLP analyzer settings.
type SettingsHandler struct {
	analyzer *nlp.Analyzer
}

// NewSettingsHandler creates a SettingsHandler.
func NewSettingsHandler(a *nlp.Analyzer) *SettingsHandler {
	return &SettingsHandler{analyzer: a}
}

// SettingsResponse is the GET /api/settings payload.
type SettingsResponse struct {
	ModelID              string   `json:"model_id"`
	Concurrency          int64    `json:"concurrency"`
	AvailableModels      []string `json:"available_models"`
	AvailableConcurrency []int64  `json:"available_concurrency"`
}

// SettingsRequest is the POST /api/settings payload.
type SettingsRequest struct {
	ModelID     string `json:"model_id"`
	Concurrency int64  `json:"concurrency"`
}

// HandleGet serves the current settings plus the allowed sets.
func (h *SettingsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	s := h.analyzer.Settings()
	writeJSON(w, http.StatusOK, SettingsResponse{
		ModelID:              s.Model,
		Concurrency:          s.Concurrency,
		AvailableModels:      nlp.AvailableModels,
		AvailableConcurrency: nlp.AvailableConcurrency,
	})
}

// HandleUpdate validates and applies new settings.
func (h *SettingsHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req SettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body.")
		return
	}

	if !contains(nlp.AvailableModels, req.ModelID) {
		writeError(w, http.StatusBadRequest, "Invalid model. Choose from: "+strings.Join(nlp.AvailableModels, ", "))
		return
	}
	if !containsInt64(nlp.AvailableConcurrency, req.Concurrency) {
		writeError(w, http.StatusBadRequest, "Invalid concurrency. Choose from: "+joinInt64(nlp.AvailableConcurrency))
		return
	}

	if err := h.analyzer.UpdateSettings(nlp.Settings{Model: req.ModelID, Concurrency: req.Concurrency}); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"model_id":    req.ModelID,
		"concurrency": req.Concurrency,
	})
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func containsInt64(list []int64, v int64) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func joinInt64(list []int64) string {
	parts := make([]string, len(list))
	for i, v := range list {
		parts[i] = strconv.FormatInt(v, 10)
	}
	return strings.Join(parts, ", ")
}
