package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"ticketflow/pkg/model"
	"ticketflow/pkg/store"
)

// DBHandler serves reads straight from the persistent ticket table, so
// the dashboard works across restarts without a session.
type DBHandler struct {
	tickets store.TicketStore
}

// NewDBHandler creates a DBHandler.
func NewDBHandler(tickets store.TicketStore) *DBHandler {
	return &DBHandler{tickets: tickets}
}

// dbTicket is the flattened row shape for store-backed reads: assignment
// fields collapse to empty strings and the row carries the fixed "db"
// session marker.
type dbTicket struct {
	ID                    string   `json:"id"`
	CustomerGUID          string   `json:"customer_guid"`
	Gender                string   `json:"gender"`
	DateOfBirth           string   `json:"date_of_birth"`
	Description           string   `json:"description"`
	Attachments           string   `json:"attachments"`
	Segment               string   `json:"segment"`
	Country               string   `json:"country"`
	Region                string   `json:"region"`
	City                  string   `json:"city"`
	Street                string   `json:"street"`
	Building              string   `json:"building_number"`
	Latitude              *float64 `json:"latitude"`
	Longitude             *float64 `json:"longitude"`
	RequestType           string   `json:"request_type"`
	Sentiment             string   `json:"sentiment"`
	PriorityScore         int      `json:"priority_score"`
	Language              string   `json:"language"`
	Summary               string   `json:"summary"`
	NextActions           string   `json:"next_actions"`
	AssignedManagerName   string   `json:"assigned_manager_name"`
	AssignedManagerLevel  string   `json:"assigned_manager_level"`
	AssignedOfficeName    string   `json:"assigned_office_name"`
	AssignedOfficeAddress string   `json:"assigned_office_address"`
	SessionID             string   `json:"session_id"`
	CreatedAt             *string  `json:"created_at"`
}

// HandleTickets serves GET /api/db/tickets?limit= ordered by priority
// descending.
func (h *DBHandler) HandleTickets(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer.")
			return
		}
		limit = n
	}

	tickets, err := h.tickets.ListTickets(r.Context(), limit)
	if err != nil {
		slog.Error("Failed to list tickets", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to read tickets.")
		return
	}

	rows := make([]dbTicket, 0, len(tickets))
	for i := range tickets {
		rows = append(rows, toDBTicket(&tickets[i]))
	}
	writeJSON(w, http.StatusOK, rows)
}

// HandleAnalytics serves GET /api/db/analytics over the whole table.
func (h *DBHandler) HandleAnalytics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.tickets.TicketStats(r.Context())
	if err != nil {
		slog.Error("Failed to aggregate ticket stats", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to aggregate tickets.")
		return
	}
	breakdown, err := h.tickets.PriorityBreakdown(r.Context())
	if err != nil {
		slog.Error("Failed to read priority breakdown", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to aggregate tickets.")
		return
	}

	priorities := make(map[string]int, len(breakdown))
	for p, count := range breakdown {
		priorities[strconv.Itoa(p)] = count
	}

	total := stats.TotalTickets
	writeJSON(w, http.StatusOK, AnalyticsResponse{
		TotalTickets:     total,
		TotalManagers:    0,
		AssignedCount:    stats.Assigned,
		UnassignedCount:  stats.Unassigned,
		BySegment:        distribution(stats.BySegment, total),
		ByRequestType:    distribution(stats.ByRequestType, total),
		BySentiment:      distribution(stats.BySentiment, total),
		ByLanguage:       distribution(stats.ByLanguage, total),
		ByOffice:         distribution(stats.ByCity, total),
		ByPriority:       distribution(priorities, total),
		AvgPriorityScore: stats.AvgPriority,
	})
}

func toDBTicket(t *model.Ticket) dbTicket {
	return dbTicket{
		ID:                    t.CustomerGUID,
		CustomerGUID:          t.CustomerGUID,
		Gender:                t.Gender,
		DateOfBirth:           t.DateOfBirth,
		Description:           t.Description,
		Attachments:           t.Attachments,
		Segment:               string(t.Segment),
		Country:               t.Country,
		Region:                t.Region,
		City:                  t.City,
		Street:                t.Street,
		Building:              t.Building,
		Latitude:              t.Latitude,
		Longitude:             t.Longitude,
		RequestType:           string(t.RequestType),
		Sentiment:             string(t.Sentiment),
		PriorityScore:         t.PriorityScore,
		Language:              string(t.Language),
		Summary:               t.Summary,
		NextActions:           t.NextActions,
		AssignedManagerName:   strOrEmpty(t.AssignedManagerName),
		AssignedManagerLevel:  strOrEmpty(t.AssignedManagerLevel),
		AssignedOfficeName:    strOrEmpty(t.AssignedOfficeName),
		AssignedOfficeAddress: strOrEmpty(t.AssignedOfficeAddress),
		SessionID:             "db",
	}
}

func strOrEmpty(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
