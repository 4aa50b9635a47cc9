package session

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

type snapshot struct {
	Tickets int
}

func TestPutLookup(t *testing.T) {
	s := New[snapshot](time.Minute)

	if _, ok := s.Lookup("missing"); ok {
		t.Error("Lookup of unknown id must miss")
	}

	want := &snapshot{Tickets: 7}
	s.Put("batch-1", want)

	got, ok := s.Lookup("batch-1")
	if !ok {
		t.Fatal("Lookup missed after Put")
	}
	if got != want {
		t.Error("expected the same pointer back")
	}

	s.Put("batch-1", &snapshot{Tickets: 9})
	got, _ = s.Lookup("batch-1")
	if got.Tickets != 9 {
		t.Errorf("Put must replace, got %d", got.Tickets)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestDelete(t *testing.T) {
	s := New[snapshot](time.Minute)
	s.Put("a", &snapshot{})
	s.Delete("a")
	if _, ok := s.Lookup("a"); ok {
		t.Error("entry survived Delete")
	}
	// Deleting a missing id is a no-op.
	s.Delete("b")
}

func TestTTLExpiry(t *testing.T) {
	s := New[snapshot](50 * time.Millisecond)

	s.Put("ephemeral", &snapshot{})
	time.Sleep(80 * time.Millisecond)
	s.Cleanup()

	if s.Len() != 0 {
		t.Errorf("expected 0 after TTL expiry, got %d", s.Len())
	}
}

func TestZeroTTLRetainsForever(t *testing.T) {
	s := New[snapshot](0)

	s.Put("keep", &snapshot{})
	time.Sleep(20 * time.Millisecond)
	s.Cleanup()

	if _, ok := s.Lookup("keep"); !ok {
		t.Error("zero TTL store must retain entries")
	}
}

func TestLookupRefreshesEntry(t *testing.T) {
	s := New[snapshot](50 * time.Millisecond)

	s.Put("keep", &snapshot{})
	time.Sleep(30 * time.Millisecond)
	s.Lookup("keep")
	time.Sleep(30 * time.Millisecond)

	s.Cleanup()
	if s.Len() != 1 {
		t.Errorf("refreshed entry should survive cleanup, got Len()=%d", s.Len())
	}
}

func TestLazyCleanup(t *testing.T) {
	s := New[snapshot](10 * time.Millisecond)

	s.Put("old", &snapshot{})
	time.Sleep(30 * time.Millisecond)
	s.Put("fresh", &snapshot{})

	// Enough lookups to cross the lazy-cleanup threshold.
	for i := 0; i < cleanupInterval; i++ {
		s.Lookup("fresh")
	}

	if s.Len() != 1 {
		t.Errorf("expected only the fresh entry, got %d", s.Len())
	}
}

func TestConcurrentAccess(t *testing.T) {
	s := New[snapshot](time.Minute)
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("batch-%d", i%10)
			s.Put(id, &snapshot{Tickets: i})
			s.Lookup(id)
		}(i)
	}
	wg.Wait()

	if s.Len() != 10 {
		t.Errorf("expected 10 sessions, got %d", s.Len())
	}
}
