package store

import (
	"fmt"
	"math"
	"strings"

	"ticketflow/pkg/model"
)

// SQL fragments shared by the SQLite and Postgres backends. Only the
// placeholder style and NULL ordering differ between the two.

// tickets_final_enriched columns, in insert order.
const ticketColumns = `customer_guid, gender, date_of_birth, description, attachments,
	client_segment, country, region, city, street, building, lat, lon,
	request_type, sentiment, priority, language, summary, next_actions, infer_time_ms,
	assigned_manager_name, assigned_manager_level, assigned_office, assigned_office_address`

// The update set carries enrichment and assignment only; demographic
// columns keep their stored values on conflict.
const ticketConflictSQL = `
ON CONFLICT (customer_guid) DO UPDATE SET
	request_type = excluded.request_type,
	sentiment = excluded.sentiment,
	priority = excluded.priority,
	language = excluded.language,
	summary = excluded.summary,
	next_actions = excluded.next_actions,
	infer_time_ms = excluded.infer_time_ms,
	assigned_manager_name = excluded.assigned_manager_name,
	assigned_manager_level = excluded.assigned_manager_level,
	assigned_office = excluded.assigned_office,
	assigned_office_address = excluded.assigned_office_address`

const selectTicketSQL = `SELECT
	customer_guid,
	COALESCE(gender, ''),
	COALESCE(date_of_birth, ''),
	COALESCE(description, ''),
	COALESCE(attachments, ''),
	COALESCE(client_segment, ''),
	COALESCE(country, ''),
	COALESCE(region, ''),
	COALESCE(city, ''),
	COALESCE(street, ''),
	COALESCE(building, ''),
	lat,
	lon,
	COALESCE(request_type, ''),
	COALESCE(sentiment, ''),
	COALESCE(priority, 0),
	COALESCE(language, ''),
	COALESCE(summary, ''),
	COALESCE(next_actions, ''),
	COALESCE(infer_time_ms, 0),
	assigned_manager_name,
	assigned_manager_level,
	assigned_office,
	assigned_office_address
FROM tickets_final_enriched`

const statsSelectSQL = `SELECT
	COALESCE(client_segment, ''),
	COALESCE(request_type, ''),
	COALESCE(sentiment, ''),
	COALESCE(language, ''),
	COALESCE(city, ''),
	COALESCE(country, ''),
	priority,
	COALESCE(assigned_manager_name, '')
FROM tickets_final_enriched`

const priorityBreakdownSQL = `SELECT priority, COUNT(*)
FROM tickets_final_enriched
WHERE priority IS NOT NULL
GROUP BY priority
ORDER BY priority`

const managerColumns = `manager_id, full_name, position, office, skills, active_tickets_count, active`

const selectManagerSQL = `SELECT
	manager_id,
	COALESCE(full_name, ''),
	COALESCE(position, ''),
	COALESCE(office, ''),
	COALESCE(skills, ''),
	COALESCE(active_tickets_count, 0),
	COALESCE(active, TRUE)
FROM managers`

const managerConflictSQL = `
ON CONFLICT (manager_id) DO UPDATE SET
	full_name = excluded.full_name,
	position = excluded.position,
	office = excluded.office,
	skills = excluded.skills,
	active_tickets_count = excluded.active_tickets_count,
	active = excluded.active`

const selectOfficeSQL = `SELECT office, COALESCE(address, ''), latitude, longitude
FROM business_units`

const officeConflictSQL = `
ON CONFLICT (office) DO UPDATE SET
	address = excluded.address,
	latitude = excluded.latitude,
	longitude = excluded.longitude`

// wipeTables lists every table Wipe clears. app_state is included so a
// wiped database re-imports the seed CSVs on the next maintenance run.
var wipeTables = []string{"tickets_final_enriched", "managers", "business_units", "app_state"}

// rowScanner is satisfied by single rows and row iterators of both
// database/sql and pgx.
type rowScanner interface {
	Scan(dest ...any) error
}

// rowIter is the subset of sql.Rows and pgx.Rows the collectors need.
type rowIter interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func ticketArgs(t *model.Ticket) []any {
	return []any{
		t.CustomerGUID, t.Gender, t.DateOfBirth, t.Description, t.Attachments,
		string(t.Segment), t.Country, t.Region, t.City, t.Street, t.Building,
		t.Latitude, t.Longitude,
		string(t.RequestType), string(t.Sentiment), t.PriorityScore, string(t.Language),
		t.Summary, t.NextActions, t.InferTimeMS,
		t.AssignedManagerName, t.AssignedManagerLevel, t.AssignedOfficeName, t.AssignedOfficeAddress,
	}
}

func scanTicket(row rowScanner) (model.Ticket, error) {
	var (
		t           model.Ticket
		segment     string
		requestType string
		sentiment   string
		language    string
	)
	err := row.Scan(
		&t.CustomerGUID, &t.Gender, &t.DateOfBirth, &t.Description, &t.Attachments,
		&segment, &t.Country, &t.Region, &t.City, &t.Street, &t.Building,
		&t.Latitude, &t.Longitude,
		&requestType, &sentiment, &t.PriorityScore, &language,
		&t.Summary, &t.NextActions, &t.InferTimeMS,
		&t.AssignedManagerName, &t.AssignedManagerLevel,
		&t.AssignedOfficeName, &t.AssignedOfficeAddress,
	)
	if err != nil {
		return model.Ticket{}, err
	}
	// Stored values are already canonical; no re-parsing on the way out.
	t.Segment = model.Segment(segment)
	t.RequestType = model.RequestType(requestType)
	t.Sentiment = model.Sentiment(sentiment)
	t.Language = model.Language(language)
	return t, nil
}

func collectTickets(rows rowIter) ([]model.Ticket, error) {
	var out []model.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func managerArgs(m *model.Manager) []any {
	return []any{
		m.ID, m.FullName, string(m.Position), m.Office,
		strings.Join(m.Skills, ","), m.Workload, m.Active,
	}
}

func scanManager(row rowScanner) (model.Manager, error) {
	var (
		m        model.Manager
		position string
		skills   string
	)
	err := row.Scan(&m.ID, &m.FullName, &position, &m.Office, &skills, &m.Workload, &m.Active)
	if err != nil {
		return model.Manager{}, err
	}
	m.Position = model.Position(position)
	m.Skills = splitSkills(skills)
	return m, nil
}

func collectManagers(rows rowIter) ([]model.Manager, error) {
	var out []model.Manager
	for rows.Next() {
		m, err := scanManager(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanOffice(row rowScanner) (model.Office, error) {
	var o model.Office
	err := row.Scan(&o.Name, &o.Address, &o.Latitude, &o.Longitude)
	if err != nil {
		return model.Office{}, err
	}
	return o, nil
}

func collectOffices(rows rowIter) ([]model.Office, error) {
	var out []model.Office
	for rows.Next() {
		o, err := scanOffice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func collectStats(rows rowIter) (*Stats, error) {
	stats := &Stats{
		BySegment:     make(map[string]int),
		ByRequestType: make(map[string]int),
		BySentiment:   make(map[string]int),
		ByLanguage:    make(map[string]int),
		ByCity:        make(map[string]int),
		ByCountry:     make(map[string]int),
	}
	var prioritySum, priorityN int
	for rows.Next() {
		var (
			segment, requestType, sentiment, language string
			city, country, manager                    string
			priority                                  *int
		)
		err := rows.Scan(&segment, &requestType, &sentiment, &language,
			&city, &country, &priority, &manager)
		if err != nil {
			return nil, err
		}
		stats.TotalTickets++
		if priority != nil {
			prioritySum += *priority
			priorityN++
		}
		if strings.TrimSpace(manager) != "" {
			stats.Assigned++
		}
		bump(stats.BySegment, segment)
		bump(stats.ByRequestType, requestType)
		bump(stats.BySentiment, sentiment)
		bump(stats.ByLanguage, language)
		bump(stats.ByCity, city)
		bump(stats.ByCountry, country)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	stats.Unassigned = stats.TotalTickets - stats.Assigned
	if priorityN > 0 {
		stats.AvgPriority = math.Round(float64(prioritySum)/float64(priorityN)*100) / 100
	}
	return stats, nil
}

func collectBreakdown(rows rowIter) (map[int]int, error) {
	out := make(map[int]int)
	for rows.Next() {
		var priority, count int
		if err := rows.Scan(&priority, &count); err != nil {
			return nil, err
		}
		out[priority] = count
	}
	return out, rows.Err()
}

func bump(m map[string]int, label string) {
	if label == "" {
		return
	}
	m[label]++
}

func splitSkills(joined string) []string {
	var skills []string
	for _, s := range strings.Split(joined, ",") {
		if s = strings.TrimSpace(s); s != "" {
			skills = append(skills, s)
		}
	}
	return skills
}

// canonicalFilterValue maps known Russian or English label spellings onto
// the stored canonical value for the enum columns, so "Негативный" finds
// the rows stored as "Negative". Unknown values and free-text columns pass
// through unchanged.
func canonicalFilterValue(col, value string) string {
	switch col {
	case "sentiment":
		if s, ok := model.LookupSentiment(value); ok {
			return string(s)
		}
	case "request_type":
		if t, ok := model.LookupRequestType(value); ok {
			return string(t)
		}
	case "language":
		if l, ok := model.LookupLanguage(value); ok {
			return string(l)
		}
	case "client_segment":
		if s, ok := model.LookupSegment(value); ok {
			return string(s)
		}
	}
	return value
}

func errBadFilterField(field string) error {
	return fmt.Errorf("field %q must be one of %s", field, strings.Join(FilterFields(), ", "))
}
