package runner

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stringintech/mcp-conformance-tests/mockserver"
)

// newReferenceServer serves the conformant reference implementation.
// wrap, when non-nil, can rewrite individual responses to simulate a broken endpoint.
func newReferenceServer(t *testing.T, wrap func(http.Handler) http.Handler) *httptest.Server {
	t.Helper()
	ref, err := mockserver.New(mockserver.Options{Executor: mockserver.EchoExecutor})
	require.NoError(t, err)

	var h http.Handler = ref
	if wrap != nil {
		h = wrap(ref)
	}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(url string) Config {
	cfg := DefaultConfig()
	cfg.BaseURL = url
	cfg.Timeout = 2 * time.Second
	return cfg
}

func runCase(t *testing.T, cfg Config, name string) error {
	t.Helper()
	for _, c := range Catalog(true) {
		if c.Name == name {
			client := NewClient(ClientConfig{URL: cfg.BaseURL, Timeout: cfg.Timeout, ProtocolVersion: cfg.ProtocolVersion})
			return c.Run(context.Background(), &Env{Config: cfg, Client: client})
		}
	}
	t.Fatalf("no case named %q", name)
	return nil
}

// overrideMethod answers requests for one JSON-RPC method with a canned
// response and forwards everything else.
func overrideMethod(method string, status int, body string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, _ := io.ReadAll(r.Body)
			var req struct {
				Method string `json:"method"`
			}
			if json.Unmarshal(raw, &req) == nil && req.Method == method {
				w.WriteHeader(status)
				_, _ = io.WriteString(w, body)
				return
			}
			r.Body = io.NopCloser(strings.NewReader(string(raw)))
			next.ServeHTTP(w, r)
		})
	}
}

func TestCatalog_Order(t *testing.T) {
	var names []string
	for _, c := range Catalog(false) {
		names = append(names, c.Name)
		assert.False(t, c.Extended)
	}
	assert.Equal(t, []string{
		"initialize response shape",
		"tools/list response shape",
		"tools/call result shape",
		"tools/call invalid params shape",
		"unknown method error shape",
		"invalid JSON parse error shape",
		"notification without id behavior",
	}, names)

	extended := Catalog(true)
	require.Len(t, extended, 13)
	for _, c := range extended[7:] {
		assert.True(t, c.Extended, c.Name)
	}
}

func TestCatalog_AllPassAgainstReferenceServer(t *testing.T) {
	srv := newReferenceServer(t, nil)
	cfg := testConfig(srv.URL)

	for _, c := range Catalog(true) {
		t.Run(c.Name, func(t *testing.T) {
			assert.NoError(t, runCase(t, cfg, c.Name))
		})
	}
}

func TestCaseInitialize(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantErrMsg string
	}{
		{
			name:       "wrong status",
			status:     http.StatusInternalServerError,
			body:       `{}`,
			wantErrMsg: "initialize should return HTTP 200, got 500",
		},
		{
			name:       "tool not advertised",
			status:     http.StatusOK,
			body:       `{"jsonrpc":"2.0","id":1,"result":{"protocolVersion":"2025-11-25","capabilities":{"tools":{"listChanged":false,"availableTools":["other"]}},"serverInfo":{"name":"s","version":"1"}}}`,
			wantErrMsg: `initialize must advertise windbg.eval in availableTools, got ["other"]`,
		},
		{
			name:       "listChanged not bool",
			status:     http.StatusOK,
			body:       `{"jsonrpc":"2.0","id":1,"result":{"protocolVersion":"2025-11-25","capabilities":{"tools":{"listChanged":"no","availableTools":["windbg.eval"]}},"serverInfo":{"name":"s","version":"1"}}}`,
			wantErrMsg: `initialize.result.capabilities.tools.listChanged must be a bool, got string "no"`,
		},
		{
			name:       "empty server version",
			status:     http.StatusOK,
			body:       `{"jsonrpc":"2.0","id":1,"result":{"protocolVersion":"2025-11-25","capabilities":{"tools":{"listChanged":false,"availableTools":["windbg.eval"]}},"serverInfo":{"name":"s","version":""}}}`,
			wantErrMsg: `initialize.result.serverInfo.version must be a non-empty string, got string ""`,
		},
		{
			name:       "id echoed as string",
			status:     http.StatusOK,
			body:       `{"jsonrpc":"2.0","id":"1","result":{}}`,
			wantErrMsg: `id must be number 1, got string "1"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newReferenceServer(t, overrideMethod("initialize", tt.status, tt.body))
			err := runCase(t, testConfig(srv.URL), "initialize response shape")
			require.Error(t, err)
			assert.True(t, IsAssertion(err))
			assert.Equal(t, tt.wantErrMsg, err.Error())
		})
	}
}

func TestCaseToolsList(t *testing.T) {
	tool := func(schema string) string {
		return `{"jsonrpc":"2.0","id":"tools-list","result":{"tools":[{"name":"windbg.eval","description":"d","inputSchema":` + schema + `}]}}`
	}

	tests := []struct {
		name       string
		body       string
		wantErrMsg string
	}{
		{
			name:       "empty tool list",
			body:       `{"jsonrpc":"2.0","id":"tools-list","result":{"tools":[]}}`,
			wantErrMsg: "tools/list.result.tools must not be empty",
		},
		{
			name:       "tool missing",
			body:       `{"jsonrpc":"2.0","id":"tools-list","result":{"tools":[{"name":"other"}]}}`,
			wantErrMsg: "tools/list must include tool named windbg.eval",
		},
		{
			name:       "additionalProperties missing",
			body:       tool(`{"type":"object","properties":{"command":{"type":"string"}},"required":["command"]}`),
			wantErrMsg: "windbg.eval.inputSchema.additionalProperties must be bool false, got missing",
		},
		{
			name:       "additionalProperties true",
			body:       tool(`{"type":"object","properties":{"command":{"type":"string"}},"required":["command"],"additionalProperties":true}`),
			wantErrMsg: "windbg.eval.inputSchema.additionalProperties must be bool false, got bool true",
		},
		{
			name:       "command not required",
			body:       tool(`{"type":"object","properties":{"command":{"type":"string"}},"required":[],"additionalProperties":false}`),
			wantErrMsg: "windbg.eval.inputSchema.required must include 'command', got []",
		},
		{
			name:       "command not a string",
			body:       tool(`{"type":"object","properties":{"command":{"type":"integer"}},"required":["command"],"additionalProperties":false}`),
			wantErrMsg: `windbg.eval.inputSchema.properties.command.type must be string "string", got string "integer"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newReferenceServer(t, overrideMethod("tools/list", http.StatusOK, tt.body))
			err := runCase(t, testConfig(srv.URL), "tools/list response shape")
			require.Error(t, err)
			assert.Equal(t, tt.wantErrMsg, err.Error())
		})
	}
}

func TestCaseToolsCallResult(t *testing.T) {
	var gotCommand string
	capture := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, _ := io.ReadAll(r.Body)
			var req struct {
				Params struct {
					Arguments map[string]string `json:"arguments"`
				} `json:"params"`
			}
			if json.Unmarshal(raw, &req) == nil {
				gotCommand = req.Params.Arguments["command"]
			}
			r.Body = io.NopCloser(strings.NewReader(string(raw)))
			next.ServeHTTP(w, r)
		})
	}
	srv := newReferenceServer(t, capture)
	cfg := testConfig(srv.URL)
	cfg.Command = "r eax"

	require.NoError(t, runCase(t, cfg, "tools/call result shape"))
	assert.Equal(t, "r eax", gotCommand)

	broken := newReferenceServer(t, overrideMethod("tools/call", http.StatusOK,
		`{"jsonrpc":"2.0","id":2,"result":{"content":[{"type":"image","text":"x"}],"isError":false}}`))
	err := runCase(t, testConfig(broken.URL), "tools/call result shape")
	require.Error(t, err)
	assert.Equal(t, `tools/call.result.content[0].type must be string "text", got string "image"`, err.Error())

	broken = newReferenceServer(t, overrideMethod("tools/call", http.StatusOK,
		`{"jsonrpc":"2.0","id":2,"result":{"content":[{"type":"text","text":"x"}]}}`))
	err = runCase(t, testConfig(broken.URL), "tools/call result shape")
	require.Error(t, err)
	assert.Equal(t, "tools/call.result.isError must be a bool, got missing", err.Error())
}

// Scenario B: tools/call with empty arguments yields -32602
func TestCaseToolsCallMissingCommand(t *testing.T) {
	srv := newReferenceServer(t, nil)
	require.NoError(t, runCase(t, testConfig(srv.URL), "tools/call invalid params shape"))

	broken := newReferenceServer(t, overrideMethod("tools/call", http.StatusOK,
		`{"jsonrpc":"2.0","id":3,"error":{"code":-32603,"message":"Internal error"}}`))
	err := runCase(t, testConfig(broken.URL), "tools/call invalid params shape")
	require.Error(t, err)
	assert.Equal(t, "error.code must be -32602, got number -32603", err.Error())

	broken = newReferenceServer(t, overrideMethod("tools/call", http.StatusBadRequest,
		`{"jsonrpc":"2.0","id":3,"error":{"code":-32602,"message":"Invalid params"}}`))
	err = runCase(t, testConfig(broken.URL), "tools/call invalid params shape")
	require.Error(t, err)
	assert.Equal(t, "tools/call missing command should return HTTP 200, got 400", err.Error())
}

func TestCaseUnknownMethod(t *testing.T) {
	broken := newReferenceServer(t, overrideMethod("unknown/method", http.StatusNotFound, "not found"))
	err := runCase(t, testConfig(broken.URL), "unknown method error shape")
	require.Error(t, err)
	assert.Equal(t, "unknown method should return HTTP 200, got 404", err.Error())
}

// Scenario C: a raw non-JSON body yields HTTP 400 with a null id
func TestCaseParseError(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantErrMsg string
	}{
		{
			name:   "conformant",
			status: http.StatusBadRequest,
			body:   `{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"Parse error"}}`,
		},
		{
			name:       "status 200",
			status:     http.StatusOK,
			body:       `{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"Parse error"}}`,
			wantErrMsg: "invalid JSON should return HTTP 400, got 200",
		},
		{
			name:       "body is not JSON",
			status:     http.StatusBadRequest,
			body:       "Bad Request",
			wantErrMsg: "response is not valid JSON",
		},
		{
			name:       "id not null",
			status:     http.StatusBadRequest,
			body:       `{"jsonrpc":"2.0","id":0,"error":{"code":-32700,"message":"Parse error"}}`,
			wantErrMsg: "id must be null, got number 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				raw, _ := io.ReadAll(r.Body)
				if string(raw) != ParseErrorBody {
					t.Errorf("expected raw body %q, got %q", ParseErrorBody, raw)
				}
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			err := runCase(t, testConfig(srv.URL), "invalid JSON parse error shape")
			if tt.wantErrMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErrMsg)
		})
	}
}

// Scenario D: a notification yields HTTP 202 and an exactly empty body
func TestCaseNotification(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantErrMsg string
	}{
		{name: "conformant", status: http.StatusAccepted, body: ""},
		{name: "empty object body", status: http.StatusAccepted, body: "{}", wantErrMsg: `notification response body must be empty, got "{}"`},
		{name: "null body", status: http.StatusAccepted, body: "null", wantErrMsg: `notification response body must be empty, got "null"`},
		{name: "status 200", status: http.StatusOK, body: "", wantErrMsg: "notification without id should return HTTP 202, got 200"},
		{name: "status 204", status: http.StatusNoContent, body: "", wantErrMsg: "notification without id should return HTTP 202, got 204"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newReferenceServer(t, overrideMethod("tools/list", tt.status, tt.body))
			err := runCase(t, testConfig(srv.URL), "notification without id behavior")
			if tt.wantErrMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantErrMsg, err.Error())
		})
	}
}

func TestCaseStringIDEcho(t *testing.T) {
	broken := newReferenceServer(t, overrideMethod("tools/list", http.StatusOK, `{"jsonrpc":"2.0","id":2,"result":{"tools":[]}}`))
	err := runCase(t, testConfig(broken.URL), "string id echo")
	require.Error(t, err)
	assert.Equal(t, `id must be string "2", got number 2`, err.Error())
}

func TestCaseInputSchemaValidates(t *testing.T) {
	// Shape checks pass, but the pattern rejects the configured command
	body := `{"jsonrpc":"2.0","id":"input-schema","result":{"tools":[{"name":"windbg.eval","description":"d","inputSchema":` +
		`{"type":"object","properties":{"command":{"type":"string","pattern":"^x$"}},"required":["command"],"additionalProperties":false}}]}}`
	broken := newReferenceServer(t, overrideMethod("tools/list", http.StatusOK, body))

	err := runCase(t, testConfig(broken.URL), "tools/list input schema validates")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `windbg.eval.inputSchema must accept {"command":"version"}`)
}

func TestCaseCustomToolName(t *testing.T) {
	srv := newReferenceServer(t, nil)
	cfg := testConfig(srv.URL)
	cfg.ToolName = "other.tool"

	err := runCase(t, cfg, "initialize response shape")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "initialize must advertise other.tool in availableTools")
}
