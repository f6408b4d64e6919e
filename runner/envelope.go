package runner

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ParseEnvelope decodes a response body into a JSON object.
// A body that is not a single JSON object is an assertion failure.
func ParseEnvelope(body string) (Object, error) {
	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, failf("response is not valid JSON: %v. Body: %q", err, body)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, failf("response has trailing data after the JSON value. Body: %q", body)
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, mismatch("top-level response", "a JSON object", v, true)
	}
	return Object(obj), nil
}

// ValidateSuccess checks the success envelope and returns its result object
func ValidateSuccess(payload Object, expectedID any) (Object, error) {
	if err := validateHeader(payload, expectedID); err != nil {
		return nil, err
	}
	result, ok := payload["result"]
	if !ok {
		return nil, mismatch("result", "present in a successful response", nil, false)
	}
	if errVal, ok := payload["error"]; ok {
		return nil, mismatch("error", "absent in a successful response", errVal, true)
	}
	obj, ok := result.(map[string]any)
	if !ok {
		return nil, mismatch("result", "a JSON object", result, true)
	}
	return Object(obj), nil
}

// ValidateError checks the error envelope and returns its error object
func ValidateError(payload Object, expectedID any, expectedCode int64) (Object, error) {
	if err := validateHeader(payload, expectedID); err != nil {
		return nil, err
	}
	errVal, ok := payload["error"]
	errObj, isObj := errVal.(map[string]any)
	if !ok || !isObj {
		return nil, mismatch("error", "a JSON object", errVal, ok)
	}
	if result, ok := payload["result"]; ok {
		return nil, mismatch("result", "absent in an error response", result, true)
	}

	code, ok := errObj["code"]
	if !ok || !numberEquals(code, expectedCode) {
		return nil, mismatch("error.code", fmt.Sprint(expectedCode), code, ok)
	}
	msg, ok := errObj["message"]
	if _, isStr := msg.(string); !isStr {
		return nil, mismatch("error.message", "a string", msg, ok)
	}
	return Object(errObj), nil
}

func validateHeader(payload Object, expectedID any) error {
	version, ok := payload["jsonrpc"]
	if s, isStr := version.(string); !isStr || s != "2.0" {
		return mismatch("jsonrpc", `"2.0"`, version, ok)
	}
	id, ok := payload["id"]
	if !ok || !idEquals(id, expectedID) {
		return mismatch("id", describe(expectedID, true), id, ok)
	}
	return nil
}

// idEquals compares a decoded id against the expected one without coercing
// between strings and numbers.
func idEquals(got, want any) bool {
	switch w := want.(type) {
	case nil:
		return got == nil
	case string:
		s, ok := got.(string)
		return ok && s == w
	case int:
		return numberEquals(got, int64(w))
	case int64:
		return numberEquals(got, w)
	case float64:
		n, ok := got.(json.Number)
		if !ok {
			return false
		}
		f, err := n.Float64()
		return err == nil && f == w
	}
	return false
}

func numberEquals(got any, want int64) bool {
	n, ok := got.(json.Number)
	if !ok {
		return false
	}
	if i, err := n.Int64(); err == nil {
		return i == want
	}
	f, err := n.Float64()
	return err == nil && f == float64(want)
}

// describe renders a JSON value with its type for failure messages
func describe(v any, present bool) string {
	if !present {
		return "missing"
	}
	switch v := v.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("string %q", v)
	case json.Number:
		return "number " + v.String()
	case int, int64, float64:
		return fmt.Sprintf("number %v", v)
	case bool:
		return fmt.Sprintf("bool %t", v)
	case map[string]any:
		return fmt.Sprintf("object with %d field(s)", len(v))
	case Object:
		return fmt.Sprintf("object with %d field(s)", len(v))
	case []any:
		return fmt.Sprintf("array of length %d", len(v))
	}
	return fmt.Sprintf("%T %v", v, v)
}

// view walks a decoded object and names every field it touches by full path
type view struct {
	obj  Object
	path string
}

func at(path string, obj Object) view {
	return view{obj: obj, path: path}
}

func (v view) field(key string) (any, bool, string) {
	val, ok := v.obj[key]
	return val, ok, v.path + "." + key
}

func (v view) object(key string) (view, error) {
	val, ok, path := v.field(key)
	obj, isObj := val.(map[string]any)
	if !isObj {
		return view{}, mismatch(path, "an object", val, ok)
	}
	return view{obj: Object(obj), path: path}, nil
}

func (v view) str(key string) (string, error) {
	val, ok, path := v.field(key)
	s, isStr := val.(string)
	if !isStr {
		return "", mismatch(path, "a string", val, ok)
	}
	return s, nil
}

func (v view) nonEmptyString(key string) (string, error) {
	val, ok, path := v.field(key)
	s, isStr := val.(string)
	if !isStr || s == "" {
		return "", mismatch(path, "a non-empty string", val, ok)
	}
	return s, nil
}

func (v view) boolean(key string) (bool, error) {
	val, ok, path := v.field(key)
	b, isBool := val.(bool)
	if !isBool {
		return false, mismatch(path, "a bool", val, ok)
	}
	return b, nil
}

func (v view) list(key string) ([]any, error) {
	val, ok, path := v.field(key)
	list, isList := val.([]any)
	if !isList {
		return nil, mismatch(path, "a list", val, ok)
	}
	return list, nil
}

func (v view) nonEmptyList(key string) ([]any, error) {
	list, err := v.list(key)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, failf("%s.%s must not be empty", v.path, key)
	}
	return list, nil
}

// equal requires the field to hold exactly the given string or bool
func (v view) equal(key string, want any) error {
	val, ok, path := v.field(key)
	var same bool
	switch w := want.(type) {
	case string:
		s, isStr := val.(string)
		same = isStr && s == w
	case bool:
		b, isBool := val.(bool)
		same = isBool && b == w
	}
	if !same {
		return mismatch(path, describe(want, true), val, ok)
	}
	return nil
}

func containsString(list []any, s string) bool {
	for _, item := range list {
		if str, ok := item.(string); ok && str == s {
			return true
		}
	}
	return false
}
