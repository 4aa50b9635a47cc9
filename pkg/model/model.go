package model

import (
	"strings"
	"time"
)

// Ticket is a single customer request as it moves through the pipeline:
// raw CSV row -> NLP enrichment -> language detection -> geocoding ->
// office routing -> manager assignment -> persisted row.
type Ticket struct {
	CustomerGUID string  `json:"customer_guid"` // Primary Key
	Gender       string  `json:"gender"`
	DateOfBirth  string  `json:"date_of_birth"`
	Description  string  `json:"description"`
	Attachments  string  `json:"attachments"`
	Segment      Segment `json:"segment"`
	CreatedAt    string  `json:"created_at"`

	// Address as supplied by the customer
	Country  string `json:"country"`
	Region   string `json:"region"`
	City     string `json:"city"`
	Street   string `json:"street"`
	Building string `json:"building_number"`

	// Geocoding result (nil when the address could not be resolved)
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`

	// NLP enrichment
	RequestType   RequestType `json:"request_type"`
	Sentiment     Sentiment   `json:"sentiment"`
	PriorityScore int         `json:"priority_score"` // 1..10
	Language      Language    `json:"language"`
	Summary       string      `json:"summary"`
	NextActions   string      `json:"next_actions"`
	InferTimeMS   int64       `json:"infer_time_ms"`

	// Assignment (nil until assigned; manager fields stay nil for spam)
	AssignedManagerName   *string `json:"assigned_manager_name"`
	AssignedManagerLevel  *string `json:"assigned_manager_level"`
	AssignedOfficeName    *string `json:"assigned_office_name"`
	AssignedOfficeAddress *string `json:"assigned_office_address"`

	Outcome Outcome `json:"outcome"`
}

// HasCoords reports whether geocoding produced a usable point.
func (t *Ticket) HasCoords() bool {
	return t.Latitude != nil && t.Longitude != nil
}

// Manager is an assignable support employee.
type Manager struct {
	ID       string   `json:"manager_id"`
	FullName string   `json:"full_name"`
	Position Position `json:"position"`
	Office   string   `json:"office"`
	Skills   []string `json:"skills"`   // upper-case skill tags (VIP, KZ, ENG, ...)
	Workload int      `json:"workload"` // open tickets incl. assignments made this batch
	Active   bool     `json:"active"`
}

// HasSkill reports whether the manager carries the given skill tag
// (case-insensitive).
func (m *Manager) HasSkill(skill string) bool {
	for _, s := range m.Skills {
		if strings.EqualFold(s, skill) {
			return true
		}
	}
	return false
}

// Office is a physical branch managers belong to. Coordinates may be
// absent; such offices are skipped by distance routing but remain valid
// assignment targets.
type Office struct {
	Name      string   `json:"name"`
	Address   string   `json:"address"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// HasCoords reports whether the office can participate in distance routing.
func (o *Office) HasCoords() bool {
	return o.Latitude != nil && o.Longitude != nil
}

// Skill tags understood by the competency filter.
const (
	SkillVIP = "VIP"
	SkillKZ  = "KZ"
	SkillENG = "ENG"
)

// SessionSnapshot is the in-memory result of one processed batch, served
// by the per-session read endpoints until the process exits.
type SessionSnapshot struct {
	Tickets   []Ticket  `json:"tickets"`
	Managers  []Manager `json:"managers"`
	CreatedAt time.Time `json:"created_at"`
}

// BatchSummary is the upload response plus the per-outcome counters the
// pipeline logs at batch end.
type BatchSummary struct {
	SessionID    string  `json:"session_id"`
	TicketCount  int     `json:"ticket_count"`
	ManagerCount int     `json:"manager_count"`
	Status       string  `json:"status"`
	NLPTotalTime float64 `json:"nlp_total_time"` // wall-clock seconds for the NLP stage
	NLPAvgTime   float64 `json:"nlp_avg_time"`   // mean per-ticket inference seconds

	OK       int `json:"ok"`
	Failed   int `json:"failed"`
	Unmapped int `json:"unmapped"`
}
