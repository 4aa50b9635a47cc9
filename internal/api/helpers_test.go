package api

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"ticketflow/pkg/geocode"
	"ticketflow/pkg/llm"
	"ticketflow/pkg/model"
	"ticketflow/pkg/nlp"
	"ticketflow/pkg/pipeline"
	"ticketflow/pkg/session"
	"ticketflow/pkg/store"
)

type stubAnalyzer struct{}

func (stubAnalyzer) Analyze(_ context.Context, _ string, _ model.Segment, _, _ int) nlp.Result {
	return nlp.Result{
		RequestType:   model.Consultation,
		Sentiment:     model.Neutral,
		PriorityScore: 4,
		Language:      model.LangRU,
		Summary:       "Вопрос по продукту",
		NextActions:   "Ответить клиенту",
		InferTimeMS:   50,
	}
}

type stubGeocoder struct{}

func (stubGeocoder) Geocode(_ context.Context, addr geocode.Address) (*float64, *float64) {
	if addr.City == "Астана" {
		lat, lon := 51.17, 71.45
		return &lat, &lon
	}
	return nil, nil
}

func (stubGeocoder) Close() {}

type stubDetector struct{}

func (stubDetector) Detect(string) model.Language { return model.LangRU }

// memStore backs both the pipeline and the office reads in tests.
type memStore struct {
	mu       sync.Mutex
	offices  []model.Office
	managers []model.Manager
	tickets  []model.Ticket
}

func (m *memStore) UpsertTickets(_ context.Context, tickets []model.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickets = append(m.tickets, tickets...)
	return nil
}

func (m *memStore) UpsertManagers(_ context.Context, managers []model.Manager) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.managers = managers
	return nil
}

func (m *memStore) UpdateWorkloads(context.Context, map[string]int) error { return nil }

func (m *memStore) LoadManagers(context.Context) ([]model.Manager, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.managers, nil
}

func (m *memStore) LoadOffices(context.Context) ([]model.Office, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.offices, nil
}

func (m *memStore) UpsertOffices(_ context.Context, offices []model.Office) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offices = offices
	return nil
}

func fptr(v float64) *float64 { return &v }

func sptr(s string) *string { return &s }

func testOffices() []model.Office {
	return []model.Office{
		{Name: "Астана", Address: "пр. Достык 12", Latitude: fptr(51.1694), Longitude: fptr(71.4491)},
		{Name: "Алматы", Address: "ул. Абая 44", Latitude: fptr(43.2380), Longitude: fptr(76.9450)},
	}
}

func newTestPipeline(st *memStore, maxBatch int) (*pipeline.Processor, *session.Store[model.SessionSnapshot]) {
	sessions := session.New[model.SessionSnapshot](0)
	proc := pipeline.New(
		stubAnalyzer{},
		func() pipeline.Geocoder { return stubGeocoder{} },
		stubDetector{},
		st,
		sessions,
		pipeline.Options{MaxBatch: maxBatch},
	)
	return proc, sessions
}

// multipartCSV builds an upload body with the given file name and content.
func multipartCSV(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func postUpload(t *testing.T, h *UploadHandler, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartCSV(t, filename, content)
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	h.Handle(w, req)
	return w
}

// scriptedProvider replays canned chat replies for agent endpoint tests.
type scriptedProvider struct {
	mu      sync.Mutex
	replies []string
	calls   int
}

func (p *scriptedProvider) Chat(_ context.Context, _ llm.ChatRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.calls
	p.calls++
	if i >= len(p.replies) {
		i = len(p.replies) - 1
	}
	return p.replies[i], nil
}

// fakeTicketStore serves canned rows for the store-backed read endpoints.
type fakeTicketStore struct {
	tickets   []model.Ticket
	stats     *store.Stats
	breakdown map[int]int
}

func (f *fakeTicketStore) UpsertTickets(context.Context, []model.Ticket) error { return nil }

func (f *fakeTicketStore) ListTickets(_ context.Context, limit int) ([]model.Ticket, error) {
	if limit > 0 && limit < len(f.tickets) {
		return f.tickets[:limit], nil
	}
	return f.tickets, nil
}

func (f *fakeTicketStore) FilterTickets(_ context.Context, field, _ string, _ int) ([]model.Ticket, error) {
	if _, ok := store.FilterField(field); !ok {
		return nil, fmt.Errorf("field %q must be one of %s", field, strings.Join(store.FilterFields(), ", "))
	}
	return f.tickets, nil
}

func (f *fakeTicketStore) TicketStats(context.Context) (*store.Stats, error) { return f.stats, nil }

func (f *fakeTicketStore) PriorityBreakdown(context.Context) (map[int]int, error) {
	return f.breakdown, nil
}
