package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// ParseErrorBody is the deliberately malformed body sent by the parse error case
const ParseErrorBody = "this-is-not-json"

// Catalog returns the conformance cases in report order.
// Extended cases are appended when extended is set.
func Catalog(extended bool) []Case {
	cases := []Case{
		{Name: "initialize response shape", Run: caseInitialize},
		{Name: "tools/list response shape", Run: caseToolsList},
		{Name: "tools/call result shape", Run: caseToolsCallResult},
		{Name: "tools/call invalid params shape", Run: caseToolsCallMissingCommand},
		{Name: "unknown method error shape", Run: caseUnknownMethod},
		{Name: "invalid JSON parse error shape", Run: caseParseError},
		{Name: "notification without id behavior", Run: caseNotificationNoID},
	}
	if !extended {
		return cases
	}
	return append(cases,
		Case{Name: "invalid jsonrpc version shape", Extended: true, Run: caseInvalidVersion},
		Case{Name: "missing method shape", Extended: true, Run: caseMissingMethod},
		Case{Name: "tools/call unknown tool shape", Extended: true, Run: caseUnknownTool},
		Case{Name: "initialized notification behavior", Extended: true, Run: caseInitializedNotification},
		Case{Name: "string id echo", Extended: true, Run: caseStringIDEcho},
		Case{Name: "tools/list input schema validates", Extended: true, Run: caseInputSchemaValidates},
	)
}

// roundTrip sends req, checks the HTTP status and decodes the envelope
func roundTrip(ctx context.Context, env *Env, req Request, what string, wantStatus int) (Object, error) {
	status, body, err := env.Client.Post(ctx, req)
	if err != nil {
		return nil, err
	}
	return decodeWithStatus(status, body, what, wantStatus)
}

func roundTripRaw(ctx context.Context, env *Env, payload string, what string, wantStatus int) (Object, error) {
	status, body, err := env.Client.PostRaw(ctx, payload)
	if err != nil {
		return nil, err
	}
	return decodeWithStatus(status, body, what, wantStatus)
}

func decodeWithStatus(status int, body, what string, wantStatus int) (Object, error) {
	if err := expectStatus(what, status, wantStatus); err != nil {
		return nil, err
	}
	return ParseEnvelope(body)
}

func expectStatus(what string, got, want int) error {
	if got != want {
		return failf("%s should return HTTP %d, got %d", what, want, got)
	}
	return nil
}

func caseInitialize(ctx context.Context, env *Env) error {
	req := Request{
		ID:     1,
		Method: "initialize",
		Params: map[string]any{"protocolVersion": env.Config.ProtocolVersion},
	}
	payload, err := roundTrip(ctx, env, req, "initialize", http.StatusOK)
	if err != nil {
		return err
	}
	result, err := ValidateSuccess(payload, 1)
	if err != nil {
		return err
	}

	r := at("initialize.result", result)
	if _, err := r.str("protocolVersion"); err != nil {
		return err
	}
	capabilities, err := r.object("capabilities")
	if err != nil {
		return err
	}
	tools, err := capabilities.object("tools")
	if err != nil {
		return err
	}
	if _, err := tools.boolean("listChanged"); err != nil {
		return err
	}
	available, err := tools.list("availableTools")
	if err != nil {
		return err
	}
	if !containsString(available, env.Config.ToolName) {
		return failf("initialize must advertise %s in availableTools, got %s", env.Config.ToolName, compactJSON(available))
	}

	serverInfo, err := r.object("serverInfo")
	if err != nil {
		return err
	}
	if _, err := serverInfo.nonEmptyString("name"); err != nil {
		return err
	}
	_, err = serverInfo.nonEmptyString("version")
	return err
}

// listTools fetches tools/list and returns the view of the configured tool
func listTools(ctx context.Context, env *Env, id any) (view, error) {
	req := Request{ID: id, Method: "tools/list", Params: map[string]any{}}
	payload, err := roundTrip(ctx, env, req, "tools/list", http.StatusOK)
	if err != nil {
		return view{}, err
	}
	result, err := ValidateSuccess(payload, id)
	if err != nil {
		return view{}, err
	}

	tools, err := at("tools/list.result", result).nonEmptyList("tools")
	if err != nil {
		return view{}, err
	}
	name := env.Config.ToolName
	for _, tool := range tools {
		if obj, ok := tool.(map[string]any); ok && obj["name"] == name {
			return at(name, Object(obj)), nil
		}
	}
	return view{}, failf("tools/list must include tool named %s", name)
}

// inputSchema checks the restricted schema shape and returns it
func inputSchema(tool view) (view, error) {
	schema, err := tool.object("inputSchema")
	if err != nil {
		return view{}, err
	}
	if err := schema.equal("type", "object"); err != nil {
		return view{}, err
	}
	properties, err := schema.object("properties")
	if err != nil {
		return view{}, err
	}
	command, err := properties.object("command")
	if err != nil {
		return view{}, err
	}
	if err := command.equal("type", "string"); err != nil {
		return view{}, err
	}
	required, err := schema.list("required")
	if err != nil {
		return view{}, err
	}
	if !containsString(required, "command") {
		return view{}, failf("%s.required must include 'command', got %s", schema.path, compactJSON(required))
	}
	if err := schema.equal("additionalProperties", false); err != nil {
		return view{}, err
	}
	return schema, nil
}

func caseToolsList(ctx context.Context, env *Env) error {
	tool, err := listTools(ctx, env, "tools-list")
	if err != nil {
		return err
	}
	if _, err := tool.nonEmptyString("description"); err != nil {
		return err
	}
	_, err = inputSchema(tool)
	return err
}

func toolsCall(name string, arguments map[string]any) map[string]any {
	return map[string]any{"name": name, "arguments": arguments}
}

func caseToolsCallResult(ctx context.Context, env *Env) error {
	req := Request{
		ID:     2,
		Method: "tools/call",
		Params: toolsCall(env.Config.ToolName, map[string]any{"command": env.Config.Command}),
	}
	payload, err := roundTrip(ctx, env, req, "tools/call", http.StatusOK)
	if err != nil {
		return err
	}
	result, err := ValidateSuccess(payload, 2)
	if err != nil {
		return err
	}

	r := at("tools/call.result", result)
	content, err := r.nonEmptyList("content")
	if err != nil {
		return err
	}
	first, ok := content[0].(map[string]any)
	if !ok {
		return mismatch("tools/call.result.content[0]", "an object", content[0], true)
	}
	item := at("tools/call.result.content[0]", Object(first))
	if err := item.equal("type", "text"); err != nil {
		return err
	}
	if _, err := item.str("text"); err != nil {
		return err
	}
	_, err = r.boolean("isError")
	return err
}

func caseToolsCallMissingCommand(ctx context.Context, env *Env) error {
	req := Request{
		ID:     3,
		Method: "tools/call",
		Params: toolsCall(env.Config.ToolName, map[string]any{}),
	}
	payload, err := roundTrip(ctx, env, req, "tools/call missing command", http.StatusOK)
	if err != nil {
		return err
	}
	_, err = ValidateError(payload, 3, CodeInvalidParams)
	return err
}

func caseUnknownMethod(ctx context.Context, env *Env) error {
	req := Request{ID: 4, Method: "unknown/method", Params: map[string]any{}}
	payload, err := roundTrip(ctx, env, req, "unknown method", http.StatusOK)
	if err != nil {
		return err
	}
	_, err = ValidateError(payload, 4, CodeMethodNotFound)
	return err
}

func caseParseError(ctx context.Context, env *Env) error {
	payload, err := roundTripRaw(ctx, env, ParseErrorBody, "invalid JSON", http.StatusBadRequest)
	if err != nil {
		return err
	}
	_, err = ValidateError(payload, nil, CodeParseError)
	return err
}

func expectNotificationAccepted(ctx context.Context, env *Env, method string) error {
	req := Request{Method: method, Params: map[string]any{}, Notify: true}
	status, body, err := env.Client.Post(ctx, req)
	if err != nil {
		return err
	}
	if err := expectStatus("notification without id", status, http.StatusAccepted); err != nil {
		return err
	}
	if body != "" {
		return failf("notification response body must be empty, got %q", body)
	}
	return nil
}

func caseNotificationNoID(ctx context.Context, env *Env) error {
	return expectNotificationAccepted(ctx, env, "tools/list")
}

func caseInvalidVersion(ctx context.Context, env *Env) error {
	payload, err := roundTripRaw(ctx, env, `{"jsonrpc":"1.0","id":5,"method":"tools/list","params":{}}`,
		"invalid jsonrpc version", http.StatusOK)
	if err != nil {
		return err
	}
	_, err = ValidateError(payload, 5, CodeInvalidRequest)
	return err
}

func caseMissingMethod(ctx context.Context, env *Env) error {
	payload, err := roundTripRaw(ctx, env, `{"jsonrpc":"2.0","id":6,"params":{}}`,
		"request without method", http.StatusOK)
	if err != nil {
		return err
	}
	_, err = ValidateError(payload, 6, CodeInvalidRequest)
	return err
}

func caseUnknownTool(ctx context.Context, env *Env) error {
	req := Request{
		ID:     7,
		Method: "tools/call",
		Params: toolsCall("no.such.tool", map[string]any{"command": env.Config.Command}),
	}
	payload, err := roundTrip(ctx, env, req, "tools/call unknown tool", http.StatusOK)
	if err != nil {
		return err
	}
	_, err = ValidateError(payload, 7, CodeInvalidParams)
	return err
}

func caseInitializedNotification(ctx context.Context, env *Env) error {
	return expectNotificationAccepted(ctx, env, "notifications/initialized")
}

func caseStringIDEcho(ctx context.Context, env *Env) error {
	req := Request{ID: "2", Method: "tools/list", Params: map[string]any{}}
	payload, err := roundTrip(ctx, env, req, "tools/list", http.StatusOK)
	if err != nil {
		return err
	}
	_, err = ValidateSuccess(payload, "2")
	return err
}

func caseInputSchemaValidates(ctx context.Context, env *Env) error {
	tool, err := listTools(ctx, env, "input-schema")
	if err != nil {
		return err
	}
	schemaView, err := inputSchema(tool)
	if err != nil {
		return err
	}
	schema, err := CompileInputSchema(map[string]any(schemaView.obj))
	if err != nil {
		return failf("%s does not compile as JSON Schema: %v", schemaView.path, err)
	}

	valid := map[string]any{"command": env.Config.Command}
	if err := schema.Validate(valid); err != nil {
		return failf("%s must accept %s: %v", schemaView.path, compactJSON(valid), err)
	}
	for _, invalid := range []map[string]any{
		{},
		{"command": env.Config.Command, "unexpected": true},
		{"command": 1},
	} {
		if err := schema.Validate(invalid); err == nil {
			return failf("%s must reject %s", schemaView.path, compactJSON(invalid))
		}
	}
	return nil
}

func compactJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
