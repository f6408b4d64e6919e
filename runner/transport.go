package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ProtocolVersionHeader carries the negotiated protocol version on every request
const ProtocolVersionHeader = "MCP-Protocol-Version"

// ClientConfig configures a Client
type ClientConfig struct {
	URL             string
	Timeout         time.Duration
	ProtocolVersion string
	// HTTPClient is optional; a client with Timeout is created when nil
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client posts JSON-RPC payloads to one endpoint and records every exchange
type Client struct {
	url             string
	timeout         time.Duration
	protocolVersion string
	http            *http.Client
	log             zerolog.Logger
	exchanges       []Exchange
}

// NewClient creates a client for the given endpoint
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		url:             cfg.URL,
		timeout:         cfg.Timeout,
		protocolVersion: cfg.ProtocolVersion,
		http:            httpClient,
		log:             cfg.Logger,
	}
}

// Post serializes req as compact JSON and sends it.
// HTTP error statuses are returned normally; only a missing response is an error.
func (c *Client) Post(ctx context.Context, req Request) (int, string, error) {
	body, err := req.Encode()
	if err != nil {
		return 0, "", fmt.Errorf("failed to encode request: %w", err)
	}
	return c.send(ctx, req.Method, body)
}

// PostRaw sends payload verbatim, for bodies that must not be valid JSON
func (c *Client) PostRaw(ctx context.Context, payload string) (int, string, error) {
	return c.send(ctx, "", []byte(payload))
}

// Exchanges returns the round trips made so far
func (c *Client) Exchanges() []Exchange {
	return append([]Exchange(nil), c.exchanges...)
}

func (c *Client) send(ctx context.Context, method string, body []byte) (int, string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return 0, "", &TransportError{URL: c.url, Err: fmt.Errorf("%w: %v", ErrEndpointUnreachable, err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(ProtocolVersionHeader, c.protocolVersion)

	exchange := Exchange{Method: method, RequestBody: string(body)}
	c.log.Debug().Str("method", method).Str("url", c.url).Int("bytes", len(body)).Msg("Sending request")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.exchanges = append(c.exchanges, exchange)
		return 0, "", &TransportError{URL: c.url, Err: classify(err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.exchanges = append(c.exchanges, exchange)
		return 0, "", &TransportError{URL: c.url, Err: fmt.Errorf("%w: reading body: %v", classifyBase(err), err)}
	}
	text := strings.ToValidUTF8(string(raw), "\uFFFD")

	exchange.StatusCode = resp.StatusCode
	exchange.ResponseBody = text
	c.exchanges = append(c.exchanges, exchange)

	c.log.Debug().
		Str("method", method).
		Int("status", resp.StatusCode).
		Int("bytes", len(raw)).
		Dur("elapsed", time.Since(start)).
		Msg("Received response")
	return resp.StatusCode, text, nil
}

// classify wraps a client error with the matching sentinel
func classify(err error) error {
	return fmt.Errorf("%w: %v", classifyBase(err), err)
}

func classifyBase(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrEndpointTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrEndpointTimeout
	}
	return ErrEndpointUnreachable
}
