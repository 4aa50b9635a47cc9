package mcp

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"ticketflow/pkg/model"
	"ticketflow/pkg/store"
)

func (s *Server) listTools() any {
	return map[string]any{
		"tools": []any{
			map[string]any{
				"name": "get_ticket_stats",
				"description": "Return aggregated statistics over all tickets in the database: " +
					"total count, breakdowns by segment, request_type, sentiment, language, " +
					"city and country, and the average priority score.",
				"inputSchema": map[string]any{
					"type":       "object",
					"properties": map[string]any{},
				},
			},
			map[string]any{
				"name": "get_tickets",
				"description": "Return up to limit tickets from the database (description omitted). " +
					"Fields: ticket_id, gender, segment, city, country, request_type, sentiment, " +
					"priority, language, summary.",
				"inputSchema": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"limit": map[string]any{
							"type":        "integer",
							"description": "Maximum rows to return (default 30).",
						},
					},
				},
			},
			map[string]any{
				"name": "filter_tickets",
				"description": "Return tickets where field equals value (case-insensitive). " +
					"Valid fields: " + strings.Join(store.FilterFields(), ", ") + ".",
				"inputSchema": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"field": map[string]any{
							"type": "string",
							"enum": store.FilterFields(),
						},
						"value": map[string]any{
							"type": "string",
						},
						"limit": map[string]any{
							"type":        "integer",
							"description": "Maximum rows to return (default 50).",
						},
					},
					"required": []string{"field", "value"},
				},
			},
			map[string]any{
				"name": "get_priority_breakdown",
				"description": "Return the count of tickets at each priority level (1-10), " +
					"useful for understanding urgency distribution.",
				"inputSchema": map[string]any{
					"type":       "object",
					"properties": map[string]any{},
				},
			},
		},
	}
}

func (s *Server) ticketStats(ctx context.Context) (any, error) {
	stats, err := s.tickets.TicketStats(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"total":           stats.TotalTickets,
		"avg_priority":    math.Round(stats.AvgPriority*10) / 10,
		"by_sentiment":    stats.BySentiment,
		"by_segment":      stats.BySegment,
		"by_request_type": stats.ByRequestType,
		"by_language":     stats.ByLanguage,
		"by_city":         stats.ByCity,
		"by_country":      stats.ByCountry,
	}, nil
}

func (s *Server) listTickets(ctx context.Context, limit int) (any, error) {
	tickets, err := s.tickets.ListTickets(ctx, limit)
	if err != nil {
		return nil, err
	}
	rows := make([]map[string]any, 0, len(tickets))
	for i := range tickets {
		rows = append(rows, ticketRow(&tickets[i], true))
	}
	return rows, nil
}

// filterTickets validates the field before touching the store so a bad
// field comes back as a data row the model can read, not a protocol
// error.
func (s *Server) filterTickets(ctx context.Context, field, value string, limit int) (any, error) {
	if _, ok := store.FilterField(field); !ok {
		msg := fmt.Sprintf("field %q must be one of %s", field, strings.Join(store.FilterFields(), ", "))
		return []map[string]string{{"error": msg}}, nil
	}

	tickets, err := s.tickets.FilterTickets(ctx, field, value, limit)
	if err != nil {
		return nil, err
	}
	rows := make([]map[string]any, 0, len(tickets))
	for i := range tickets {
		rows = append(rows, ticketRow(&tickets[i], false))
	}
	return rows, nil
}

type priorityRow struct {
	Priority int `json:"priority"`
	Count    int `json:"count"`
}

func (s *Server) priorityBreakdown(ctx context.Context) (any, error) {
	counts, err := s.tickets.PriorityBreakdown(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]priorityRow, 0, len(counts))
	for p, n := range counts {
		rows = append(rows, priorityRow{Priority: p, Count: n})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Priority < rows[j].Priority })
	return rows, nil
}

// ticketRow projects a ticket for tool output. The description stays
// out to keep responses small; gender is only included on the plain
// listing.
func ticketRow(t *model.Ticket, withGender bool) map[string]any {
	row := map[string]any{
		"ticket_id":    t.CustomerGUID,
		"segment":      string(t.Segment),
		"city":         t.City,
		"country":      t.Country,
		"request_type": string(t.RequestType),
		"sentiment":    string(t.Sentiment),
		"priority":     t.PriorityScore,
		"language":     string(t.Language),
		"summary":      t.Summary,
	}
	if withGender {
		row["gender"] = t.Gender
	}
	return row
}
