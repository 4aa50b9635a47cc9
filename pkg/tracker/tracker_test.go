package tracker

import (
	"sync"
	"testing"
)

func TestTracker(t *testing.T) {
	tr := New()

	if stats := tr.Snapshot(); len(stats) != 0 {
		t.Errorf("expected empty stats, got %d entries", len(stats))
	}

	tr.TrackCacheHit(Provider2GIS)
	tr.TrackCacheMiss(Provider2GIS)
	tr.TrackAPISuccess(Provider2GIS)
	tr.TrackAPIFailure(Provider2GIS)
	tr.TrackAPIEmpty(Provider2GIS)
	tr.TrackLatency(Provider2GIS, 120)
	tr.TrackLatency(Provider2GIS, 80)

	s, ok := tr.Snapshot()[Provider2GIS]
	if !ok {
		t.Fatalf("no stats recorded for %s", Provider2GIS)
	}
	if s.CacheHits != 1 || s.CacheMisses != 1 {
		t.Errorf("cache counters = %d/%d, want 1/1", s.CacheHits, s.CacheMisses)
	}
	if s.APISuccess != 1 || s.APIFailures != 1 || s.APIEmpty != 1 {
		t.Errorf("api counters = %d/%d/%d, want 1/1/1", s.APISuccess, s.APIFailures, s.APIEmpty)
	}
	if s.AvgLatencyMS() != 100 {
		t.Errorf("avg latency = %d, want 100", s.AvgLatencyMS())
	}
}

func TestTrackerConcurrent(t *testing.T) {
	tr := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.TrackAPISuccess(ProviderOllama)
			tr.TrackLatency(ProviderOllama, 10)
		}()
	}
	wg.Wait()

	s := tr.Snapshot()[ProviderOllama]
	if s.APISuccess != 50 || s.LatencyCount != 50 {
		t.Errorf("counters = %d/%d, want 50/50", s.APISuccess, s.LatencyCount)
	}
}

func TestAvgLatencyEmpty(t *testing.T) {
	var s ProviderStats
	if s.AvgLatencyMS() != 0 {
		t.Error("avg latency of zero calls must be 0")
	}
}
