package runner

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// JSON-RPC 2.0 error codes asserted by the catalog
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
)

// Request represents a JSON-RPC request sent to the endpoint
type Request struct {
	ID     any    // string or integer; ignored when Notify is set
	Method string
	Params any
	Notify bool // omit the id field entirely
}

// Encode serializes the request to compact JSON
func (r Request) Encode() ([]byte, error) {
	params, err := json.Marshal(r.Params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}
	msg := &jsonrpc.Request{Method: r.Method, Params: params}
	if !r.Notify {
		id, err := makeID(r.ID)
		if err != nil {
			return nil, err
		}
		msg.ID = id
	}
	return jsonrpc.EncodeMessage(msg)
}

// makeID converts a Go id value into a wire id. jsonrpc.MakeID only accepts
// the types produced by encoding/json, so integers go through float64.
func makeID(v any) (jsonrpc.ID, error) {
	switch v := v.(type) {
	case int:
		return jsonrpc.MakeID(float64(v))
	case int64:
		return jsonrpc.MakeID(float64(v))
	case string, float64:
		return jsonrpc.MakeID(v)
	}
	return jsonrpc.ID{}, fmt.Errorf("unsupported request id type %T", v)
}

// Object is a decoded JSON object. Numbers are kept as json.Number.
type Object map[string]any

// Env is what a case sees: read-only configuration and its own client
type Env struct {
	Config Config
	Client *Client
}

// Case is one independent conformance check
type Case struct {
	Name     string
	Extended bool // only run with --extended
	Run      func(ctx context.Context, env *Env) error
}

// Exchange records one HTTP round trip for verbose output
type Exchange struct {
	Method       string // JSON-RPC method, empty for raw bodies
	RequestBody  string
	StatusCode   int
	ResponseBody string
}

// CaseResult contains the result of a single case
type CaseResult struct {
	Name      string
	Passed    bool
	Ran       bool
	Message   string
	Err       error
	Exchanges []Exchange
}

// RunResult contains results from running a catalog
type RunResult struct {
	TotalCases int
	Passed     int
	Failed     int
	NotRun     int
	Results    []CaseResult
	// Aborted is set when a transport failure stopped the run
	Aborted error
}

// ExitCode is 0 only when every case ran and passed
func (r RunResult) ExitCode() int {
	if r.Failed > 0 || r.NotRun > 0 || r.Aborted != nil {
		return 1
	}
	return 0
}
