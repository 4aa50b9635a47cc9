package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"ticketflow/pkg/model"
	"ticketflow/pkg/store"
)

type fakeTicketStore struct {
	tickets   []model.Ticket
	stats     *store.Stats
	breakdown map[int]int
	failWith  error

	gotLimit int
	gotField string
	gotValue string
}

func (f *fakeTicketStore) UpsertTickets(ctx context.Context, tickets []model.Ticket) error {
	return nil
}

func (f *fakeTicketStore) ListTickets(ctx context.Context, limit int) ([]model.Ticket, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.gotLimit = limit
	if limit < len(f.tickets) {
		return f.tickets[:limit], nil
	}
	return f.tickets, nil
}

func (f *fakeTicketStore) FilterTickets(ctx context.Context, field, value string, limit int) ([]model.Ticket, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.gotField, f.gotValue, f.gotLimit = field, value, limit
	return f.tickets, nil
}

func (f *fakeTicketStore) TicketStats(ctx context.Context) (*store.Stats, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	return f.stats, nil
}

func (f *fakeTicketStore) PriorityBreakdown(ctx context.Context) (map[int]int, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	return f.breakdown, nil
}

func testStore() *fakeTicketStore {
	return &fakeTicketStore{
		tickets: []model.Ticket{
			{
				CustomerGUID:  "c-1",
				Gender:        "Женский",
				Segment:       model.SegmentVIP,
				City:          "Астана",
				Country:       "Казахстан",
				RequestType:   model.AppFailure,
				Sentiment:     model.Negative,
				PriorityScore: 9,
				Language:      model.LangRU,
				Summary:       "Приложение не открывается",
			},
			{
				CustomerGUID:  "c-2",
				Gender:        "Мужской",
				Segment:       model.SegmentMass,
				City:          "Алматы",
				RequestType:   model.Consultation,
				Sentiment:     model.Neutral,
				PriorityScore: 4,
				Language:      model.LangKZ,
				Summary:       "Вопрос по карте",
			},
		},
		stats: &store.Stats{
			TotalTickets: 42,
			AvgPriority:  6.25,
			BySegment:    map[string]int{"Mass": 30, "VIP": 12},
			BySentiment:  map[string]int{"Negative": 20, "Neutral": 22},
			ByLanguage:   map[string]int{"RU": 40, "KZ": 2},
			ByCity:       map[string]int{"Астана": 42},
		},
		breakdown: map[int]int{7: 10, 3: 5, 9: 2},
	}
}

// rpc runs a single request through the dispatcher.
func rpc(t *testing.T, s *Server, method string, params any) *Response {
	t.Helper()
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			t.Fatalf("marshal params: %v", err)
		}
		raw = b
	}
	return s.handleRequest(context.Background(), Request{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  raw,
	})
}

// callTool invokes tools/call and returns the text payload out of the
// content envelope, or the protocol error.
func callTool(t *testing.T, s *Server, name string, args map[string]any) (string, *RPCError) {
	t.Helper()
	resp := rpc(t, s, "tools/call", map[string]any{"name": name, "arguments": args})
	if resp.Error != nil {
		return "", resp.Error
	}
	env, ok := resp.Result.(map[string]any)
	if !ok {
		t.Fatalf("result type %T", resp.Result)
	}
	content := env["content"].([]any)
	if len(content) != 1 {
		t.Fatalf("content length = %d", len(content))
	}
	item := content[0].(map[string]any)
	if item["type"] != "text" {
		t.Fatalf("content type = %v", item["type"])
	}
	return item["text"].(string), nil
}

func TestServeInitialize(t *testing.T) {
	s := NewServer(testStore())
	in := strings.NewReader(`{"jsonrpc":"2.0","id":7,"method":"initialize"}` + "\n")
	var out bytes.Buffer

	if err := s.Serve(context.Background(), in, &out); err != nil {
		t.Fatalf("Serve: %v", err)
	}

	var resp struct {
		JSONRPC string `json:"jsonrpc"`
		ID      int    `json:"id"`
		Result  struct {
			ProtocolVersion string `json:"protocolVersion"`
			ServerInfo      struct {
				Name string `json:"name"`
			} `json:"serverInfo"`
		} `json:"result"`
	}
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if resp.JSONRPC != "2.0" {
		t.Errorf("jsonrpc = %q", resp.JSONRPC)
	}
	if resp.ID != 7 {
		t.Errorf("id = %d, want the request id echoed", resp.ID)
	}
	if resp.Result.ProtocolVersion != "2024-11-05" {
		t.Errorf("protocolVersion = %q", resp.Result.ProtocolVersion)
	}
	if resp.Result.ServerInfo.Name != "ticketmcp" {
		t.Errorf("serverInfo.name = %q", resp.Result.ServerInfo.Name)
	}
}

func TestServeNotificationProducesNoFrame(t *testing.T) {
	s := NewServer(testStore())
	in := strings.NewReader(`{"jsonrpc":"2.0","method":"notifications/initialized"}` + "\n")
	var out bytes.Buffer

	if err := s.Serve(context.Background(), in, &out); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("notification produced output: %s", out.String())
	}
}

func TestServeSkipsMalformedLine(t *testing.T) {
	s := NewServer(testStore())
	in := strings.NewReader("not json\n" + `{"jsonrpc":"2.0","id":1,"method":"initialize"}` + "\n")
	var out bytes.Buffer

	if err := s.Serve(context.Background(), in, &out); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	frames := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(frames) != 1 {
		t.Errorf("frames = %d, want the bad line dropped", len(frames))
	}
}

func TestUnknownMethod(t *testing.T) {
	s := NewServer(testStore())

	resp := rpc(t, s, "resources/list", nil)

	if resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("error = %+v, want %d", resp.Error, codeMethodNotFound)
	}
	if !strings.Contains(resp.Error.Message, "resources/list") {
		t.Errorf("message = %q", resp.Error.Message)
	}
}

func TestToolsList(t *testing.T) {
	s := NewServer(testStore())

	resp := rpc(t, s, "tools/list", nil)
	if resp.Error != nil {
		t.Fatalf("error: %+v", resp.Error)
	}

	tools := resp.Result.(map[string]any)["tools"].([]any)
	want := []string{"get_ticket_stats", "get_tickets", "filter_tickets", "get_priority_breakdown"}
	if len(tools) != len(want) {
		t.Fatalf("tool count = %d, want %d", len(tools), len(want))
	}
	for i, tool := range tools {
		name := tool.(map[string]any)["name"].(string)
		if name != want[i] {
			t.Errorf("tool[%d] = %q, want %q", i, name, want[i])
		}
	}

	filter := tools[2].(map[string]any)
	schema := filter["inputSchema"].(map[string]any)
	required := schema["required"].([]string)
	if len(required) != 2 || required[0] != "field" || required[1] != "value" {
		t.Errorf("filter_tickets required = %v", required)
	}
}

func TestCallGetTicketStats(t *testing.T) {
	s := NewServer(testStore())

	text, rpcErr := callTool(t, s, "get_ticket_stats", nil)
	if rpcErr != nil {
		t.Fatalf("rpc error: %+v", rpcErr)
	}

	var got struct {
		Total       int            `json:"total"`
		AvgPriority float64        `json:"avg_priority"`
		BySegment   map[string]int `json:"by_segment"`
		ByCity      map[string]int `json:"by_city"`
	}
	if err := json.Unmarshal([]byte(text), &got); err != nil {
		t.Fatalf("decode text payload: %v", err)
	}
	if got.Total != 42 {
		t.Errorf("total = %d", got.Total)
	}
	if got.AvgPriority != 6.3 {
		t.Errorf("avg_priority = %v, want 6.25 rounded to 6.3", got.AvgPriority)
	}
	if got.BySegment["Mass"] != 30 {
		t.Errorf("by_segment = %v", got.BySegment)
	}
	if got.ByCity["Астана"] != 42 {
		t.Errorf("by_city = %v", got.ByCity)
	}
}

func TestCallGetTickets(t *testing.T) {
	st := testStore()
	s := NewServer(st)

	text, rpcErr := callTool(t, s, "get_tickets", nil)
	if rpcErr != nil {
		t.Fatalf("rpc error: %+v", rpcErr)
	}
	if st.gotLimit != 30 {
		t.Errorf("limit = %d, want the default 30", st.gotLimit)
	}

	var rows []map[string]any
	if err := json.Unmarshal([]byte(text), &rows); err != nil {
		t.Fatalf("decode rows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d", len(rows))
	}
	if rows[0]["ticket_id"] != "c-1" {
		t.Errorf("ticket_id = %v", rows[0]["ticket_id"])
	}
	if rows[0]["gender"] != "Женский" {
		t.Errorf("gender = %v, want it included in the plain listing", rows[0]["gender"])
	}
	if _, ok := rows[0]["description"]; ok {
		t.Error("description must stay out of tool output")
	}
}

func TestCallGetTicketsCustomLimit(t *testing.T) {
	st := testStore()
	s := NewServer(st)

	text, rpcErr := callTool(t, s, "get_tickets", map[string]any{"limit": 1})
	if rpcErr != nil {
		t.Fatalf("rpc error: %+v", rpcErr)
	}

	var rows []map[string]any
	if err := json.Unmarshal([]byte(text), &rows); err != nil {
		t.Fatalf("decode rows: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("rows = %d, want 1", len(rows))
	}
}

func TestCallFilterTickets(t *testing.T) {
	st := testStore()
	s := NewServer(st)

	text, rpcErr := callTool(t, s, "filter_tickets", map[string]any{"field": "city", "value": "Астана"})
	if rpcErr != nil {
		t.Fatalf("rpc error: %+v", rpcErr)
	}
	if st.gotField != "city" || st.gotValue != "Астана" || st.gotLimit != 50 {
		t.Errorf("store got (%q, %q, %d)", st.gotField, st.gotValue, st.gotLimit)
	}

	var rows []map[string]any
	if err := json.Unmarshal([]byte(text), &rows); err != nil {
		t.Fatalf("decode rows: %v", err)
	}
	if _, ok := rows[0]["gender"]; ok {
		t.Error("gender must stay out of the filtered projection")
	}
	if rows[0]["summary"] != "Приложение не открывается" {
		t.Errorf("summary = %v", rows[0]["summary"])
	}
}

func TestCallFilterTicketsBadField(t *testing.T) {
	s := NewServer(testStore())

	text, rpcErr := callTool(t, s, "filter_tickets", map[string]any{"field": "priority", "value": "9"})
	if rpcErr != nil {
		t.Fatalf("rpc error: %+v", rpcErr)
	}

	var rows []map[string]string
	if err := json.Unmarshal([]byte(text), &rows); err != nil {
		t.Fatalf("decode rows: %v", err)
	}
	want := fmt.Sprintf("field %q must be one of %s", "priority", strings.Join(store.FilterFields(), ", "))
	if len(rows) != 1 || rows[0]["error"] != want {
		t.Errorf("rows = %v, want one error row %q", rows, want)
	}
}

func TestCallFilterTicketsMissingArgs(t *testing.T) {
	s := NewServer(testStore())

	_, rpcErr := callTool(t, s, "filter_tickets", map[string]any{"field": "city"})
	if rpcErr == nil || rpcErr.Code != codeInvalidParams {
		t.Fatalf("error = %+v, want %d", rpcErr, codeInvalidParams)
	}
}

func TestCallPriorityBreakdown(t *testing.T) {
	s := NewServer(testStore())

	text, rpcErr := callTool(t, s, "get_priority_breakdown", nil)
	if rpcErr != nil {
		t.Fatalf("rpc error: %+v", rpcErr)
	}

	var rows []priorityRow
	if err := json.Unmarshal([]byte(text), &rows); err != nil {
		t.Fatalf("decode rows: %v", err)
	}
	want := []priorityRow{{3, 5}, {7, 10}, {9, 2}}
	if len(rows) != len(want) {
		t.Fatalf("rows = %v", rows)
	}
	for i := range want {
		if rows[i] != want[i] {
			t.Errorf("row[%d] = %+v, want %+v", i, rows[i], want[i])
		}
	}
}

func TestCallUnknownTool(t *testing.T) {
	s := NewServer(testStore())

	_, rpcErr := callTool(t, s, "drop_tables", nil)
	if rpcErr == nil || rpcErr.Code != codeMethodNotFound {
		t.Fatalf("error = %+v, want %d", rpcErr, codeMethodNotFound)
	}
	if !strings.Contains(rpcErr.Message, "drop_tables") {
		t.Errorf("message = %q", rpcErr.Message)
	}
}

func TestCallStoreFailure(t *testing.T) {
	st := testStore()
	st.failWith = errors.New("database is locked")
	s := NewServer(st)

	_, rpcErr := callTool(t, s, "get_ticket_stats", nil)
	if rpcErr == nil || rpcErr.Code != codeInternalError {
		t.Fatalf("error = %+v, want %d", rpcErr, codeInternalError)
	}
	if !strings.Contains(rpcErr.Message, "database is locked") {
		t.Errorf("message = %q", rpcErr.Message)
	}
}
