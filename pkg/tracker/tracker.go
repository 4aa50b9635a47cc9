// Package tracker counts what the outbound providers (2GIS, Ollama,
// Gemini) are doing: API outcomes, cache effectiveness and latency. The
// stats endpoint serves a snapshot of it.
package tracker

import (
	"sync"
	"sync/atomic"
)

// Provider labels used across the service.
const (
	Provider2GIS   = "2gis"
	ProviderOllama = "ollama"
	ProviderGemini = "gemini"
)

// ProviderStats holds counters for one provider. Fields are updated
// atomically.
type ProviderStats struct {
	CacheHits      int64 `json:"cache_hits"`
	CacheMisses    int64 `json:"cache_misses"`
	APISuccess     int64 `json:"api_success"`
	APIFailures    int64 `json:"api_failures"`
	APIEmpty       int64 `json:"api_empty"` // successful calls that returned nothing usable
	LatencyTotalMS int64 `json:"latency_total_ms"`
	LatencyCount   int64 `json:"latency_count"`
}

// AvgLatencyMS is the mean latency of tracked calls, 0 when none.
func (s ProviderStats) AvgLatencyMS() int64 {
	if s.LatencyCount == 0 {
		return 0
	}
	return s.LatencyTotalMS / s.LatencyCount
}

// Tracker aggregates per-provider stats. Safe for concurrent use.
type Tracker struct {
	mu    sync.RWMutex
	stats map[string]*ProviderStats
}

// New creates an empty Tracker.
func New() *Tracker {
	return &Tracker{stats: make(map[string]*ProviderStats)}
}

func (t *Tracker) get(provider string) *ProviderStats {
	t.mu.RLock()
	s, ok := t.stats[provider]
	t.mu.RUnlock()
	if ok {
		return s
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok = t.stats[provider]; ok {
		return s
	}
	s = &ProviderStats{}
	t.stats[provider] = s
	return s
}

// TrackCacheHit increments the cache hit counter.
func (t *Tracker) TrackCacheHit(provider string) {
	atomic.AddInt64(&t.get(provider).CacheHits, 1)
}

// TrackCacheMiss increments the cache miss counter.
func (t *Tracker) TrackCacheMiss(provider string) {
	atomic.AddInt64(&t.get(provider).CacheMisses, 1)
}

// TrackAPISuccess increments the success counter.
func (t *Tracker) TrackAPISuccess(provider string) {
	atomic.AddInt64(&t.get(provider).APISuccess, 1)
}

// TrackAPIFailure increments the failure counter.
func (t *Tracker) TrackAPIFailure(provider string) {
	atomic.AddInt64(&t.get(provider).APIFailures, 1)
}

// TrackAPIEmpty records a call that succeeded but produced no result.
func (t *Tracker) TrackAPIEmpty(provider string) {
	atomic.AddInt64(&t.get(provider).APIEmpty, 1)
}

// TrackLatency records the duration of one call in milliseconds.
func (t *Tracker) TrackLatency(provider string, ms int64) {
	s := t.get(provider)
	atomic.AddInt64(&s.LatencyTotalMS, ms)
	atomic.AddInt64(&s.LatencyCount, 1)
}

// Snapshot returns a copy of the current stats.
func (t *Tracker) Snapshot() map[string]ProviderStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make(map[string]ProviderStats, len(t.stats))
	for k, v := range t.stats {
		result[k] = ProviderStats{
			CacheHits:      atomic.LoadInt64(&v.CacheHits),
			CacheMisses:    atomic.LoadInt64(&v.CacheMisses),
			APISuccess:     atomic.LoadInt64(&v.APISuccess),
			APIFailures:    atomic.LoadInt64(&v.APIFailures),
			APIEmpty:       atomic.LoadInt64(&v.APIEmpty),
			LatencyTotalMS: atomic.LoadInt64(&v.LatencyTotalMS),
			LatencyCount:   atomic.LoadInt64(&v.LatencyCount),
		}
	}
	return result
}
