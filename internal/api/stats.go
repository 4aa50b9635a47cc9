package api

import (
	"net/http"

	"ticketflow/pkg/tracker"
)

// StatsHandler serves the outbound provider counters (2GIS, Ollama,
// Gemini): API outcomes, cache effectiveness, latency.
type StatsHandler struct {
	tracker *tracker.Tracker
}

// NewStatsHandler creates a StatsHandler.
func NewStatsHandler(t *tracker.Tracker) *StatsHandler {
	return &StatsHandler{tracker: t}
}

type ProviderStatsDTO struct {
	CacheHits    int64 `json:"cache_hits"`
	CacheMisses  int64 `json:"cache_misses"`
	APISuccess   int64 `json:"api_success"`
	APIEmpty     int64 `json:"api_empty"`
	APIFailures  int64 `json:"api_errors"`
	HitRate      int64 `json:"hit_rate"`
	AvgLatencyMS int64 `json:"avg_latency_ms"`
}

type StatsResponse struct {
	Providers map[string]ProviderStatsDTO `json:"providers"`
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snapshot := h.tracker.Snapshot()

	resp := StatsResponse{Providers: make(map[string]ProviderStatsDTO, len(snapshot))}
	for provider, stats := range snapshot {
		totalCache := stats.CacheHits + stats.CacheMisses
		hitRate := int64(0)
		if totalCache > 0 {
			hitRate = (stats.CacheHits * 100) / totalCache
		}
		resp.Providers[provider] = ProviderStatsDTO{
			CacheHits:    stats.CacheHits,
			CacheMisses:  stats.CacheMisses,
			APISuccess:   stats.APISuccess,
			APIEmpty:     stats.APIEmpty,
			APIFailures:  stats.APIFailures,
			HitRate:      hitRate,
			AvgLatencyMS: stats.AvgLatencyMS(),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
