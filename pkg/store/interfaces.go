package store

import (
	"context"
	"sort"
	"strings"

	"ticketflow/pkg/model"
)

// TicketStore handles enriched ticket persistence.
type TicketStore interface {
	UpsertTickets(ctx context.Context, tickets []model.Ticket) error
	ListTickets(ctx context.Context, limit int) ([]model.Ticket, error)
	FilterTickets(ctx context.Context, field, value string, limit int) ([]model.Ticket, error)
	TicketStats(ctx context.Context) (*Stats, error)
	PriorityBreakdown(ctx context.Context) (map[int]int, error)
}

// ManagerStore handles the manager roster.
type ManagerStore interface {
	UpsertManagers(ctx context.Context, managers []model.Manager) error
	LoadManagers(ctx context.Context) ([]model.Manager, error)
	UpdateWorkloads(ctx context.Context, workloads map[string]int) error
}

// OfficeStore handles branch offices.
type OfficeStore interface {
	UpsertOffices(ctx context.Context, offices []model.Office) error
	LoadOffices(ctx context.Context) ([]model.Office, error)
}

// StateStore handles persistent application state.
type StateStore interface {
	GetState(ctx context.Context, key string) (string, bool)
	SetState(ctx context.Context, key, val string) error
}

// Store defines the repository interface.
// It composes all sub-interfaces for full store access.
// Consumers should depend on specific sub-interfaces when possible.
type Store interface {
	TicketStore
	ManagerStore
	OfficeStore
	StateStore

	// EnsureSchema creates missing tables and columns.
	EnsureSchema(ctx context.Context) error
	// Wipe deletes all rows from every table.
	Wipe(ctx context.Context) error
	// Close closes the store connection.
	Close() error
}

// Stats aggregates the enriched ticket table. Breakdown maps count
// non-empty labels only.
type Stats struct {
	TotalTickets  int            `json:"total_tickets"`
	AvgPriority   float64        `json:"avg_priority_score"`
	Assigned      int            `json:"assigned_count"`
	Unassigned    int            `json:"unassigned_count"`
	BySegment     map[string]int `json:"by_segment"`
	ByRequestType map[string]int `json:"by_request_type"`
	BySentiment   map[string]int `json:"by_sentiment"`
	ByLanguage    map[string]int `json:"by_language"`
	ByCity        map[string]int `json:"by_city"`
	ByCountry     map[string]int `json:"by_country"`
}

// filterColumns maps the public filter field names onto ticket columns.
// The map doubles as the allow-list: field names not listed here never
// reach SQL text.
var filterColumns = map[string]string{
	"city":         "city",
	"country":      "country",
	"segment":      "client_segment",
	"request_type": "request_type",
	"sentiment":    "sentiment",
	"language":     "language",
	"gender":       "gender",
	"region":       "region",
}

// FilterField resolves a public filter field name to its column and
// reports whether filtering on it is allowed.
func FilterField(field string) (string, bool) {
	col, ok := filterColumns[strings.ToLower(strings.TrimSpace(field))]
	return col, ok
}

// FilterFields returns the allowed filter field names, sorted.
func FilterFields() []string {
	fields := make([]string, 0, len(filterColumns))
	for f := range filterColumns {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}
