// Package api is the HTTP surface: batch upload, per-session reads,
// store-backed reads, NLP settings, provider stats and the Q&A agent.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"ticketflow/pkg/version"
)

// NewServer wires all endpoint handlers onto a mux and returns the
// configured server. shutdown is called from POST /api/shutdown.
func NewServer(addr, frontendOrigin string, upload *UploadHandler, sessions *SessionHandler, settings *SettingsHandler, db *DBHandler, stats *StatsHandler, agentH *AgentHandler, shutdown func()) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("GET /api/version", handleVersion)

	mux.HandleFunc("POST /api/upload", upload.Handle)

	mux.HandleFunc("GET /api/tickets", sessions.HandleTickets)
	mux.HandleFunc("GET /api/managers", sessions.HandleManagers)
	mux.HandleFunc("GET /api/analytics", sessions.HandleAnalytics)
	mux.HandleFunc("GET /api/map/features", sessions.HandleMapFeatures)

	mux.HandleFunc("GET /api/settings", settings.HandleGet)
	mux.HandleFunc("POST /api/settings", settings.HandleUpdate)

	mux.HandleFunc("GET /api/db/tickets", db.HandleTickets)
	mux.HandleFunc("GET /api/db/analytics", db.HandleAnalytics)

	mux.Handle("GET /api/stats", stats)

	// Agent endpoints are optional: no configured provider, no agent.
	if agentH != nil {
		mux.HandleFunc("POST /api/agent/query", agentH.HandleQuery)
		mux.HandleFunc("POST /api/agent/query/stream", agentH.HandleStream)
	}

	mux.HandleFunc("POST /api/shutdown", func(w http.ResponseWriter, r *http.Request) {
		slog.Info("Graceful shutdown initiated via API")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("Shutting down...")); err != nil {
			slog.Error("Failed to write shutdown response", "error", err)
		}
		// Call shutdown in a goroutine to allow response to flush
		go func() {
			time.Sleep(100 * time.Millisecond)
			shutdown()
		}()
	})

	return &http.Server{
		Addr:        addr,
		Handler:     withRequestLog(withCORS(frontendOrigin, mux)),
		ReadTimeout: 15 * time.Second,
		// NLP batches and agent streams can run for minutes on local models.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write([]byte(`{"status": "ok"}`)); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := fmt.Fprintf(w, `{"version": "%s"}`, version.Version); err != nil {
		slog.Error("Failed to write version response", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError mirrors the {"detail": ...} error body the dashboard
// frontend expects.
func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
