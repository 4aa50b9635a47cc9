package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"ticketflow/pkg/model"
	"ticketflow/pkg/store"
)

func newDBHandler() *DBHandler {
	return NewDBHandler(&fakeTicketStore{
		tickets: []model.Ticket{
			{
				CustomerGUID: "c-1", Gender: "Женский", Segment: model.SegmentVIP,
				City: "Астана", Country: "Казахстан", RequestType: model.AppFailure,
				Sentiment: model.Negative, PriorityScore: 9, Language: model.LangRU,
				Latitude: fptr(51.17), Longitude: fptr(71.45),
				AssignedManagerName: sptr("Иванов Иван"), AssignedOfficeName: sptr("Астана"),
			},
			{
				CustomerGUID: "c-2", Segment: model.SegmentMass, City: "Алматы",
				RequestType: model.Consultation, Sentiment: model.Neutral,
				PriorityScore: 4, Language: model.LangRU,
			},
		},
		stats: &store.Stats{
			TotalTickets: 2,
			AvgPriority:  6.5,
			Assigned:     1,
			Unassigned:   1,
			BySegment:    map[string]int{"VIP": 1, "Mass": 1},
			BySentiment:  map[string]int{"Negative": 1, "Neutral": 1},
			ByLanguage:   map[string]int{"RU": 2},
			ByCity:       map[string]int{"Астана": 1, "Алматы": 1},
			ByCountry:    map[string]int{"Казахстан": 1},
			ByRequestType: map[string]int{
				"AppFailure":   1,
				"Consultation": 1,
			},
		},
		breakdown: map[int]int{4: 1, 9: 1},
	})
}

func TestDBTickets(t *testing.T) {
	h := newDBHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/db/tickets", nil)
	w := httptest.NewRecorder()
	h.HandleTickets(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var rows []map[string]any
	if err := json.NewDecoder(w.Body).Decode(&rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d", len(rows))
	}

	first := rows[0]
	if first["id"] != "c-1" || first["customer_guid"] != "c-1" {
		t.Errorf("id fields = %v / %v", first["id"], first["customer_guid"])
	}
	if first["session_id"] != "db" {
		t.Errorf("session_id = %v", first["session_id"])
	}
	if first["created_at"] != nil {
		t.Errorf("created_at = %v, want null", first["created_at"])
	}
	if first["assigned_manager_name"] != "Иванов Иван" {
		t.Errorf("assigned_manager_name = %v", first["assigned_manager_name"])
	}

	second := rows[1]
	if second["assigned_manager_name"] != "" {
		t.Errorf("unassigned manager must be empty string, got %v", second["assigned_manager_name"])
	}
	if second["latitude"] != nil {
		t.Errorf("missing coords must stay null, got %v", second["latitude"])
	}
}

func TestDBTicketsLimit(t *testing.T) {
	h := newDBHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/db/tickets?limit=1", nil)
	w := httptest.NewRecorder()
	h.HandleTickets(w, req)

	var rows []map[string]any
	if err := json.NewDecoder(w.Body).Decode(&rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("rows = %d, want 1", len(rows))
	}
}

func TestDBTicketsBadLimit(t *testing.T) {
	h := newDBHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/db/tickets?limit=abc", nil)
	w := httptest.NewRecorder()
	h.HandleTickets(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestDBAnalytics(t *testing.T) {
	h := newDBHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/db/analytics", nil)
	w := httptest.NewRecorder()
	h.HandleAnalytics(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got AnalyticsResponse
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if got.TotalTickets != 2 || got.TotalManagers != 0 {
		t.Errorf("totals = %d/%d", got.TotalTickets, got.TotalManagers)
	}
	if got.AssignedCount != 1 || got.UnassignedCount != 1 {
		t.Errorf("assigned = %d/%d", got.AssignedCount, got.UnassignedCount)
	}
	if got.AvgPriorityScore != 6.5 {
		t.Errorf("avg = %v", got.AvgPriorityScore)
	}

	// by_office comes from the city column for store-backed analytics
	if len(got.ByOffice) != 2 {
		t.Fatalf("by_office rows = %d", len(got.ByOffice))
	}
	for _, row := range got.ByOffice {
		if row.Percentage != 50.0 {
			t.Errorf("office pct = %v", row.Percentage)
		}
	}

	if len(got.ByPriority) != 2 {
		t.Fatalf("by_priority rows = %d", len(got.ByPriority))
	}
}
