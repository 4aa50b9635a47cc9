// Package ingest reads ticket and manager rows out of uploaded CSV files.
// Headers are matched against Russian and English alias sets, so exports
// from different CRM locales land in the same fields. No storage writes
// happen here.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"ticketflow/pkg/model"
)

// ticketColAliases maps normalized header cells to canonical ticket fields.
var ticketColAliases = map[string]string{
	"customer_guid":          "customer_guid",
	"guid":                   "customer_guid",
	"идентификатор_клиента":  "customer_guid",
	"gender":                 "gender",
	"пол":                    "gender",
	"date_of_birth":          "date_of_birth",
	"dob":                    "date_of_birth",
	"дата_рождения":          "date_of_birth",
	"segment":                "segment",
	"сегмент":                "segment",
	"сегмент_клиента":        "segment",
	"description":            "description",
	"описание":               "description",
	"описание_обращения":     "description",
	"request":                "description",
	"text":                   "description",
	"attachments":            "attachments",
	"вложения":               "attachments",
	"country":                "country",
	"страна":                 "country",
	"region":                 "region",
	"регион":                 "region",
	"область":                "region",
	"city":                   "city",
	"город":                  "city",
	"street":                 "street",
	"улица":                  "street",
	"building_number":        "building_number",
	"building":               "building_number",
	"дом":                    "building_number",
}

// managerColAliases maps normalized header cells to canonical manager fields.
var managerColAliases = map[string]string{
	"manager_id":           "manager_id",
	"табельный_номер":      "manager_id",
	"full_name":            "full_name",
	"fullname":             "full_name",
	"name":                 "full_name",
	"имя":                  "full_name",
	"фио":                  "full_name",
	"position":             "position",
	"должность":            "position",
	"skills":               "skills",
	"навыки":               "skills",
	"business_unit":        "business_unit",
	"businessunit":         "business_unit",
	"office":               "business_unit",
	"офис":                 "business_unit",
	"филиал":               "business_unit",
	"workload":             "workload",
	"нагрузка":             "workload",
	"current_workload":     "workload",
	"active_tickets_count": "workload",
	"активные_обращения":   "workload",
	"active":               "active",
	"активен":              "active",
}

// officeColAliases maps normalized header cells to canonical office fields.
var officeColAliases = map[string]string{
	"name":      "name",
	"office":    "name",
	"название":  "name",
	"офис":      "name",
	"address":   "address",
	"адрес":     "address",
	"latitude":  "latitude",
	"lat":       "latitude",
	"широта":    "latitude",
	"longitude": "longitude",
	"lon":       "longitude",
	"долгота":   "longitude",
}

// normHeader lowercases a header cell and collapses spaces to underscores,
// so "Building Number", "building_number" and "Дата рождения" key alike.
func normHeader(col string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(col)), " ", "_")
}

// stripBOM removes a UTF-8 byte order mark from the first header cell.
func stripBOM(headers []string) {
	if len(headers) > 0 && strings.HasPrefix(headers[0], "\xef\xbb\xbf") {
		headers[0] = headers[0][3:]
	}
}

// headerIndex resolves aliased headers to column indices. The first
// occurrence of a canonical field wins.
func headerIndex(headers []string, aliases map[string]string) map[string]int {
	idx := make(map[string]int)
	for i, h := range headers {
		canon, ok := aliases[normHeader(h)]
		if !ok {
			continue
		}
		if _, seen := idx[canon]; !seen {
			idx[canon] = i
		}
	}
	return idx
}

func fieldGetter(idx map[string]int) func(row []string, field string) string {
	return func(row []string, field string) string {
		if i, ok := idx[field]; ok && i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}
}

// ParseTickets reads ticket rows. A CSV without a description-like column
// yields no tickets; rows with an empty description are skipped; a blank
// customer_guid gets a fresh UUID so the row can still be upserted.
func ParseTickets(r io.Reader) ([]model.Ticket, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	stripBOM(headers)

	idx := headerIndex(headers, ticketColAliases)
	if _, ok := idx["description"]; !ok {
		return nil, nil
	}
	get := fieldGetter(idx)

	var tickets []model.Ticket
	row := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			return nil, fmt.Errorf("row %d: csv read error: %w", row, err)
		}

		if get(record, "description") == "" {
			continue
		}

		t := model.Ticket{
			CustomerGUID: get(record, "customer_guid"),
			Gender:       get(record, "gender"),
			DateOfBirth:  get(record, "date_of_birth"),
			Description:  get(record, "description"),
			Attachments:  get(record, "attachments"),
			Segment:      model.ParseSegment(get(record, "segment")),
			Country:      get(record, "country"),
			Region:       get(record, "region"),
			City:         get(record, "city"),
			Street:       get(record, "street"),
			Building:     get(record, "building_number"),
			CreatedAt:    time.Now().UTC().Format(time.RFC3339),
		}
		if t.CustomerGUID == "" {
			t.CustomerGUID = uuid.NewString()
		}
		tickets = append(tickets, t)
	}
	return tickets, nil
}

// ParseManagers reads manager rows. A CSV without a name-like column
// yields no managers. Skills are split on commas and upper-cased, the
// contract the competency filter relies on. Active defaults to true.
func ParseManagers(r io.Reader) ([]model.Manager, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	stripBOM(headers)

	idx := headerIndex(headers, managerColAliases)
	if _, ok := idx["full_name"]; !ok {
		return nil, nil
	}
	get := fieldGetter(idx)

	var managers []model.Manager
	row := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			return nil, fmt.Errorf("row %d: csv read error: %w", row, err)
		}

		name := get(record, "full_name")
		if name == "" {
			continue
		}

		m := model.Manager{
			ID:       get(record, "manager_id"),
			FullName: name,
			Position: model.ParsePosition(get(record, "position")),
			Office:   get(record, "business_unit"),
			Skills:   splitSkills(get(record, "skills")),
			Active:   true,
		}
		if m.ID == "" {
			m.ID = uuid.NewString()
		}

		if raw := get(record, "workload"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("row %d: bad workload %q: %w", row, raw, err)
			}
			m.Workload = n
		}

		if raw := get(record, "active"); raw != "" {
			m.Active = parseActive(raw)
		}

		managers = append(managers, m)
	}
	return managers, nil
}

// ParseOffices reads branch office rows. A CSV without a name-like
// column yields no offices. Coordinates are optional; rows with a bad
// number fail so a mistyped seed file does not silently lose offices
// from the map.
func ParseOffices(r io.Reader) ([]model.Office, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	stripBOM(headers)

	idx := headerIndex(headers, officeColAliases)
	if _, ok := idx["name"]; !ok {
		return nil, nil
	}
	get := fieldGetter(idx)

	var offices []model.Office
	row := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			return nil, fmt.Errorf("row %d: csv read error: %w", row, err)
		}

		name := get(record, "name")
		if name == "" {
			continue
		}

		o := model.Office{
			Name:    name,
			Address: get(record, "address"),
		}
		if raw := get(record, "latitude"); raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("row %d: bad latitude %q: %w", row, raw, err)
			}
			o.Latitude = &v
		}
		if raw := get(record, "longitude"); raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("row %d: bad longitude %q: %w", row, raw, err)
			}
			o.Longitude = &v
		}

		offices = append(offices, o)
	}
	return offices, nil
}

func splitSkills(raw string) []string {
	if raw == "" {
		return nil
	}
	var skills []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			skills = append(skills, strings.ToUpper(s))
		}
	}
	return skills
}

func parseActive(raw string) bool {
	switch strings.ToLower(raw) {
	case "да", "yes":
		return true
	case "нет", "no":
		return false
	}
	if v, err := strconv.ParseBool(strings.ToLower(raw)); err == nil {
		return v
	}
	return true
}
