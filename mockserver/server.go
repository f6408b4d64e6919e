// Package mockserver is a reference implementation of the single-tool
// JSON-RPC endpoint. It answers every conformance case correctly and is used
// for local smoke runs and as the fixture for the runner tests.
package mockserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/stringintech/mcp-conformance-tests/testdata"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603

	maxBodyBytes = 1 << 20
)

var nullID = json.RawMessage("null")

// Executor runs one tool command
type Executor interface {
	Execute(ctx context.Context, command string) (string, error)
}

// ExecutorFunc adapts a function to Executor
type ExecutorFunc func(ctx context.Context, command string) (string, error)

func (f ExecutorFunc) Execute(ctx context.Context, command string) (string, error) {
	return f(ctx, command)
}

// EchoExecutor answers every command with a fixed text
var EchoExecutor = ExecutorFunc(func(_ context.Context, command string) (string, error) {
	return "executed: " + command, nil
})

// Options configures a Server
type Options struct {
	Executor        Executor
	Logger          zerolog.Logger
	ServerName      string
	ServerVersion   string
	ProtocolVersion string
}

// Tool is a tool descriptor as advertised by tools/list
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// Server routes JSON-RPC requests posted over HTTP
type Server struct {
	opts  Options
	log   zerolog.Logger
	tools []Tool
}

// New creates a server advertising the embedded tool fixtures
func New(opts Options) (*Server, error) {
	tools, err := loadTools(testdata.FS, "tools.json")
	if err != nil {
		return nil, err
	}
	if opts.ServerName == "" {
		opts.ServerName = "dbgx-mcp"
	}
	if opts.ServerVersion == "" {
		opts.ServerVersion = "0.1.0"
	}
	if opts.ProtocolVersion == "" {
		opts.ProtocolVersion = "2025-11-25"
	}
	return &Server{opts: opts, log: opts.Logger, tools: tools}, nil
}

func loadTools(fsys fs.FS, name string) ([]Tool, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read tool fixtures: %w", err)
	}
	var tools []Tool
	if err := json.Unmarshal(data, &tools); err != nil {
		return nil, fmt.Errorf("failed to parse tool fixtures: %w", err)
	}
	return tools, nil
}

// ServeHTTP accepts POST requests carrying one JSON-RPC message
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	status, resp := s.Handle(r.Context(), body)
	s.log.Debug().
		Str("protocol_version", r.Header.Get("MCP-Protocol-Version")).
		Int("status", status).
		Int("request_bytes", len(body)).
		Msg("Handled request")

	if len(resp) == 0 {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(resp); err != nil {
		s.log.Warn().Err(err).Msg("Failed to write response")
	}
}

// outcome is the result of dispatching one method
type outcome struct {
	result  any
	code    int
	message string
}

func failure(code int, message string) outcome {
	return outcome{code: code, message: message}
}

// Handle processes one request body and returns the HTTP status and response
// body. Notifications produce an empty body.
func (s *Server) Handle(ctx context.Context, body []byte) (int, []byte) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		msg := "Parse error: body must be a JSON object"
		if err != nil {
			msg = "Parse error: " + err.Error()
		}
		return http.StatusBadRequest, errorBody(nullID, codeParseError, msg)
	}

	id, hasID := fields["id"]
	if !hasID {
		id = nullID
	}

	if version, ok := stringField(fields["jsonrpc"]); !ok || version != "2.0" {
		return http.StatusOK, errorBody(id, codeInvalidRequest, "Invalid Request: jsonrpc must be 2.0")
	}

	method, ok := stringField(fields["method"])
	if !ok {
		if !hasID {
			return http.StatusAccepted, nil
		}
		return http.StatusOK, errorBody(id, codeInvalidRequest, "Invalid Request: missing method")
	}

	out := s.dispatch(ctx, method, fields["params"])
	if out.code == 0 {
		if !hasID {
			return http.StatusAccepted, nil
		}
		return http.StatusOK, successBody(id, out.result)
	}
	return http.StatusOK, errorBody(id, out.code, out.message)
}

func (s *Server) dispatch(ctx context.Context, method string, params json.RawMessage) outcome {
	switch method {
	case "notifications/initialized", "initialized":
		return outcome{result: struct{}{}}
	case "initialize":
		return s.initialize()
	case "tools/list":
		return outcome{result: map[string]any{"tools": s.tools}}
	case "tools/call":
		return s.callTool(ctx, params)
	}
	return failure(codeMethodNotFound, "Method not found")
}

type initializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	Capabilities    capabilities `json:"capabilities"`
	ServerInfo      serverInfo   `json:"serverInfo"`
}

type capabilities struct {
	Tools toolsCapability `json:"tools"`
}

type toolsCapability struct {
	ListChanged    bool     `json:"listChanged"`
	AvailableTools []string `json:"availableTools"`
}

type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

func (s *Server) initialize() outcome {
	names := make([]string, 0, len(s.tools))
	for _, t := range s.tools {
		names = append(names, t.Name)
	}
	return outcome{result: initializeResult{
		ProtocolVersion: s.opts.ProtocolVersion,
		Capabilities:    capabilities{Tools: toolsCapability{AvailableTools: names}},
		ServerInfo:      serverInfo{Name: s.opts.ServerName, Version: s.opts.ServerVersion},
	}}
}

func (s *Server) hasTool(name string) bool {
	for _, t := range s.tools {
		if t.Name == name {
			return true
		}
	}
	return false
}

type textContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type callResult struct {
	Content []textContent `json:"content"`
	IsError bool          `json:"isError"`
}

func (s *Server) callTool(ctx context.Context, params json.RawMessage) outcome {
	if s.opts.Executor == nil {
		return failure(codeInternalError, "Command executor is not available")
	}

	var p map[string]json.RawMessage
	if json.Unmarshal(params, &p) != nil || p == nil {
		return failure(codeInvalidParams, "Invalid params: params must be an object")
	}
	name, ok := stringField(p["name"])
	if !ok {
		return failure(codeInvalidParams, "Invalid params: missing tool name")
	}
	if !s.hasTool(name) {
		return failure(codeInvalidParams, "Invalid params: unknown tool name")
	}
	var args map[string]json.RawMessage
	if json.Unmarshal(p["arguments"], &args) != nil || args == nil {
		return failure(codeInvalidParams, "Invalid params: arguments must be an object")
	}
	command, ok := stringField(args["command"])
	if !ok || command == "" {
		return failure(codeInvalidParams, "Invalid params: command must be a non-empty string")
	}

	text, err := s.opts.Executor.Execute(ctx, command)
	switch {
	case err != nil:
		text = err.Error()
		if text == "" {
			text = "Command execution failed"
		}
	case text == "":
		text = "(no output)"
	}
	return outcome{result: callResult{
		Content: []textContent{{Type: "text", Text: text}},
		IsError: err != nil,
	}}
}

// stringField decodes a raw field that must hold a JSON string
func stringField(raw json.RawMessage) (string, bool) {
	var s string
	if len(raw) == 0 || raw[0] != '"' || json.Unmarshal(raw, &s) != nil {
		return "", false
	}
	return s, true
}

type wireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *wireError      `json:"error,omitempty"`
}

func successBody(id json.RawMessage, result any) []byte {
	return mustMarshal(response{JSONRPC: "2.0", ID: id, Result: result})
}

func errorBody(id json.RawMessage, code int, message string) []byte {
	return mustMarshal(response{JSONRPC: "2.0", ID: id, Error: &wireError{Code: code, Message: message}})
}

func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("marshal response: %v", err))
	}
	return data
}
