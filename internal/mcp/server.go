// Package mcp exposes the enriched ticket store as MCP tools over a
// JSON-RPC 2.0 stdio loop, one message per line.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"ticketflow/pkg/store"
	"ticketflow/pkg/version"
)

// Request is a JSON-RPC request or notification.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC response. Exactly one of Result and Error is set.
type Response struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
}

// RPCError is the error member of a failed response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

const (
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

// Server answers MCP requests against the ticket store.
type Server struct {
	tickets store.TicketStore
}

// NewServer creates an MCP server reading tickets from the given store.
func NewServer(tickets store.TicketStore) *Server {
	return &Server{tickets: tickets}
}

// Serve runs the JSON-RPC loop until in is exhausted or ctx is
// cancelled. Protocol frames go to out; nothing else may write there.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, err := reader.ReadBytes('\n')
		if len(line) == 0 && err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			slog.Error("Failed to unmarshal request", "error", err)
			continue
		}

		resp := s.handleRequest(ctx, req)
		if resp == nil {
			continue
		}

		frame, err := json.Marshal(resp)
		if err != nil {
			slog.Error("Failed to marshal response", "error", err)
			continue
		}
		if _, err := fmt.Fprintf(out, "%s\n", frame); err != nil {
			return fmt.Errorf("failed to write response: %w", err)
		}
	}
}

// handleRequest dispatches a single request. Notifications return nil:
// they must not produce a response frame.
func (s *Server) handleRequest(ctx context.Context, req Request) *Response {
	if strings.HasPrefix(req.Method, "notifications/") {
		return nil
	}

	var result any
	var errRes *RPCError

	switch req.Method {
	case "initialize":
		result = map[string]any{
			"protocolVersion": "2024-11-05",
			"capabilities": map[string]any{
				"tools": map[string]any{},
			},
			"serverInfo": map[string]any{
				"name":    "ticketmcp",
				"version": version.Version,
			},
		}
	case "tools/list":
		result = s.listTools()
	case "tools/call":
		result, errRes = s.callTool(ctx, req.Params)
	default:
		errRes = &RPCError{
			Code:    codeMethodNotFound,
			Message: fmt.Sprintf("Method %s not found", req.Method),
		}
	}

	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  result,
		Error:   errRes,
	}
}

func (s *Server) callTool(ctx context.Context, params json.RawMessage) (any, *RPCError) {
	var call struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := json.Unmarshal(params, &call); err != nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: "Invalid params"}
	}

	var data any
	var err error

	switch call.Name {
	case "get_ticket_stats":
		data, err = s.ticketStats(ctx)
	case "get_tickets":
		data, err = s.listTickets(ctx, intArg(call.Arguments, "limit", 30))
	case "filter_tickets":
		field, _ := call.Arguments["field"].(string)
		value, _ := call.Arguments["value"].(string)
		if field == "" || value == "" {
			return nil, &RPCError{Code: codeInvalidParams, Message: "field and value are required"}
		}
		data, err = s.filterTickets(ctx, field, value, intArg(call.Arguments, "limit", 50))
	case "get_priority_breakdown":
		data, err = s.priorityBreakdown(ctx)
	default:
		return nil, &RPCError{
			Code:    codeMethodNotFound,
			Message: fmt.Sprintf("Tool %s not found", call.Name),
		}
	}

	if err != nil {
		return nil, &RPCError{Code: codeInternalError, Message: err.Error()}
	}

	return map[string]any{
		"content": []any{
			map[string]any{
				"type": "text",
				"text": formatResult(data),
			},
		},
	}, nil
}

func formatResult(data any) string {
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	return string(out)
}

// intArg reads an integer argument. JSON numbers decode as float64.
func intArg(args map[string]any, key string, def int) int {
	v, ok := args[key].(float64)
	if !ok || v <= 0 {
		return def
	}
	return int(v)
}
