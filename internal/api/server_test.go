package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ticketflow/pkg/nlp"
	"ticketflow/pkg/store"
	"ticketflow/pkg/tracker"
	"ticketflow/pkg/version"
)

func newTestServer() *http.Server {
	st := &memStore{offices: testOffices()}
	proc, sessions := newTestPipeline(st, 50)
	analyzer := nlp.New(noopProvider{}, nlp.Settings{})

	return NewServer("127.0.0.1:0", "http://localhost:3000",
		NewUploadHandler(proc),
		NewSessionHandler(sessions, st),
		NewSettingsHandler(analyzer),
		NewDBHandler(&fakeTicketStore{stats: &store.Stats{}, breakdown: map[int]int{}}),
		NewStatsHandler(tracker.New()),
		nil,
		func() {},
	)
}

func serve(srv *http.Server, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, req)
	return w
}

func TestServerHealth(t *testing.T) {
	srv := newTestServer()

	w := serve(srv, http.MethodGet, "/health")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got map[string]string
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["status"] != "ok" {
		t.Errorf("status field = %q", got["status"])
	}
	if origin := w.Header().Get("Access-Control-Allow-Origin"); origin != "http://localhost:3000" {
		t.Errorf("cors origin = %q", origin)
	}
}

func TestServerVersion(t *testing.T) {
	srv := newTestServer()

	w := serve(srv, http.MethodGet, "/api/version")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got map[string]string
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["version"] != version.Version {
		t.Errorf("version = %q, want %q", got["version"], version.Version)
	}
}

func TestServerPreflight(t *testing.T) {
	srv := newTestServer()

	w := serve(srv, http.MethodOptions, "/api/upload")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if methods := w.Header().Get("Access-Control-Allow-Methods"); methods == "" {
		t.Error("missing Access-Control-Allow-Methods")
	}
}

func TestServerUnknownRoute(t *testing.T) {
	srv := newTestServer()

	if w := serve(srv, http.MethodGet, "/api/nope"); w.Code != http.StatusNotFound {
		t.Errorf("status = %d", w.Code)
	}
}

func TestServerAgentRoutesAbsentWithoutAgent(t *testing.T) {
	srv := newTestServer()

	if w := serve(srv, http.MethodPost, "/api/agent/query"); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when no agent is configured", w.Code)
	}
}

func TestServerShutdownEndpoint(t *testing.T) {
	called := make(chan struct{}, 1)
	st := &memStore{offices: testOffices()}
	proc, sessions := newTestPipeline(st, 50)
	srv := NewServer("127.0.0.1:0", "*",
		NewUploadHandler(proc),
		NewSessionHandler(sessions, st),
		NewSettingsHandler(nlp.New(noopProvider{}, nlp.Settings{})),
		NewDBHandler(&fakeTicketStore{stats: &store.Stats{}, breakdown: map[int]int{}}),
		NewStatsHandler(tracker.New()),
		nil,
		func() { called <- struct{}{} },
	)

	w := serve(srv, http.MethodPost, "/api/shutdown")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown callback not invoked")
	}
}
