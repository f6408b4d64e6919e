package runner

import (
	"errors"
	"fmt"
)

var (
	// ErrEndpointUnreachable indicates no HTTP response could be obtained
	ErrEndpointUnreachable = errors.New("endpoint unreachable")
	// ErrEndpointTimeout indicates the endpoint did not answer within the timeout
	ErrEndpointTimeout = errors.New("endpoint timeout")
	// ErrInvalidConfig indicates a configuration value that cannot be used
	ErrInvalidConfig = errors.New("invalid config")
)

// AssertionError reports a conformance violation by the endpoint.
// It names the offending field together with the expected and actual values.
type AssertionError struct {
	Field string
	Want  string
	Got   string
	// Msg overrides the field/want/got rendering when set
	Msg string
}

func (e *AssertionError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return fmt.Sprintf("%s must be %s, got %s", e.Field, e.Want, e.Got)
}

// mismatch builds an AssertionError describing the actual value v
func mismatch(field, want string, v any, present bool) *AssertionError {
	return &AssertionError{Field: field, Want: want, Got: describe(v, present)}
}

func failf(format string, args ...any) *AssertionError {
	return &AssertionError{Msg: fmt.Sprintf(format, args...)}
}

// TransportError reports that the endpoint could not be reached at all.
// It wraps ErrEndpointUnreachable or ErrEndpointTimeout.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("failed to reach MCP server at %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsAssertion reports whether err is a conformance violation
func IsAssertion(err error) bool {
	var ae *AssertionError
	return errors.As(err, &ae)
}

// IsTransport reports whether err is an environment failure
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
