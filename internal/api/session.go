package api

import (
	"log/slog"
	"math"
	"net/http"
	"sort"
	"strconv"

	"ticketflow/pkg/geo"
	"ticketflow/pkg/model"
	"ticketflow/pkg/session"
	"ticketflow/pkg/store"
)

// SessionHandler serves the read endpoints backed by in-memory batch
// snapshots: tickets, managers, analytics and the map layer.
type SessionHandler struct {
	sessions *session.Store[model.SessionSnapshot]
	offices  store.OfficeStore
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(sessions *session.Store[model.SessionSnapshot], offices store.OfficeStore) *SessionHandler {
	return &SessionHandler{sessions: sessions, offices: offices}
}

// DistributionRow is one labelled slice of a breakdown.
type DistributionRow struct {
	Label      string  `json:"label"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// AnalyticsResponse aggregates one batch (or the whole store) for the
// dashboard charts.
type AnalyticsResponse struct {
	TotalTickets     int               `json:"total_tickets"`
	TotalManagers    int               `json:"total_managers"`
	AssignedCount    int               `json:"assigned_count"`
	UnassignedCount  int               `json:"unassigned_count"`
	BySegment        []DistributionRow `json:"by_segment"`
	ByRequestType    []DistributionRow `json:"by_request_type"`
	BySentiment      []DistributionRow `json:"by_sentiment"`
	ByLanguage       []DistributionRow `json:"by_language"`
	ByOffice         []DistributionRow `json:"by_office"`
	ByPriority       []DistributionRow `json:"by_priority"`
	AvgPriorityScore float64           `json:"avg_priority_score"`
}

// HandleTickets serves GET /api/tickets?session_id=.
func (h *SessionHandler) HandleTickets(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, snap.Tickets)
}

// HandleManagers serves GET /api/managers?session_id=.
func (h *SessionHandler) HandleManagers(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, snap.Managers)
}

// HandleAnalytics serves GET /api/analytics?session_id=.
func (h *SessionHandler) HandleAnalytics(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, snapshotAnalytics(snap))
}

// HandleMapFeatures serves GET /api/map/features?session_id= as a
// GeoJSON FeatureCollection of offices and geocoded tickets.
func (h *SessionHandler) HandleMapFeatures(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.lookup(w, r)
	if !ok {
		return
	}

	offices, err := h.offices.LoadOffices(r.Context())
	if err != nil {
		slog.Error("Failed to load offices for map layer", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load offices.")
		return
	}

	writeJSON(w, http.StatusOK, geo.MapFeatures(offices, snap.Tickets))
}

func (h *SessionHandler) lookup(w http.ResponseWriter, r *http.Request) (*model.SessionSnapshot, bool) {
	id := r.URL.Query().Get("session_id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "session_id query parameter is required.")
		return nil, false
	}

	snap, ok := h.sessions.Lookup(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Session not found.")
		return nil, false
	}
	return snap, true
}

func snapshotAnalytics(snap *model.SessionSnapshot) AnalyticsResponse {
	total := len(snap.Tickets)

	var assigned, prioritySum int
	segments := make(map[string]int)
	requestTypes := make(map[string]int)
	sentiments := make(map[string]int)
	languages := make(map[string]int)
	offices := make(map[string]int)
	priorities := make(map[string]int)

	for i := range snap.Tickets {
		t := &snap.Tickets[i]
		if t.AssignedManagerName != nil && *t.AssignedManagerName != "" {
			assigned++
		}
		prioritySum += t.PriorityScore
		segments[string(t.Segment)]++
		requestTypes[string(t.RequestType)]++
		sentiments[string(t.Sentiment)]++
		languages[string(t.Language)]++
		if t.AssignedOfficeName != nil && *t.AssignedOfficeName != "" {
			offices[*t.AssignedOfficeName]++
		}
		priorities[strconv.Itoa(t.PriorityScore)]++
	}

	avg := 0.0
	if total > 0 {
		avg = round1(float64(prioritySum) / float64(total))
	}

	return AnalyticsResponse{
		TotalTickets:     total,
		TotalManagers:    len(snap.Managers),
		AssignedCount:    assigned,
		UnassignedCount:  total - assigned,
		BySegment:        distribution(segments, total),
		ByRequestType:    distribution(requestTypes, total),
		BySentiment:      distribution(sentiments, total),
		ByLanguage:       distribution(languages, total),
		ByOffice:         distribution(offices, total),
		ByPriority:       distribution(priorities, total),
		AvgPriorityScore: avg,
	}
}

// distribution turns label counts into rows sorted by count descending,
// ties by label, with percentages against the given total.
func distribution(counts map[string]int, total int) []DistributionRow {
	rows := make([]DistributionRow, 0, len(counts))
	for label, count := range counts {
		pct := 0.0
		if total > 0 {
			pct = round1(float64(count) / float64(total) * 100)
		}
		rows = append(rows, DistributionRow{Label: label, Count: count, Percentage: pct})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		return rows[i].Label < rows[j].Label
	})
	return rows
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
