// Package apiclient is the single outbound HTTP path to the grading backend.
// Every request carries the stored bearer token when one exists. The client
// neither retries nor caches; failures are returned to the caller as-is.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/edusync/edusync/internal/tokenstore"
)

// maxResponseSize bounds how much of a response body is read (1 MB).
const maxResponseSize = 1 << 20

// MetricsRecorder is an optional sink for request metrics.
type MetricsRecorder interface {
	ObserveAPIRequest(method, route string, status int, elapsed time.Duration)
	IncTransportError(kind string)
}

// Request describes one backend call.
type Request struct {
	Method string
	Path   string
	// Route is the path template used as a metrics label. Defaults to Path.
	Route string
	Body  any
	// Anonymous suppresses the bearer header, as for login.
	Anonymous bool
}

// Client talks to the backend REST API.
type Client struct {
	baseURL        string
	http           *http.Client
	tokens         tokenstore.Store
	metrics        MetricsRecorder
	onUnauthorized func(ctx context.Context)
}

// New creates a Client rooted at baseURL. A zero timeout leaves the
// transport's default behaviour in place.
func New(baseURL string, tokens tokenstore.Store, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
	}
}

// SetMetrics sets the optional metrics recorder.
func (c *Client) SetMetrics(m MetricsRecorder) {
	c.metrics = m
}

// OnUnauthorized registers fn to run when a request that carried a token is
// answered with 401. The error is still returned to the caller.
func (c *Client) OnUnauthorized(fn func(ctx context.Context)) {
	c.onUnauthorized = fn
}

// Do sends req and decodes a JSON response into out when out is non-nil.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	route := req.Route
	if route == "" {
		route = req.Path
	}

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("encoding %s %s body: %w", req.Method, req.Path, err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.baseURL+req.Path, body)
	if err != nil {
		return fmt.Errorf("building %s %s: %w", req.Method, req.Path, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	withToken := false
	if !req.Anonymous && c.tokens != nil {
		token, err := c.tokens.Read(ctx)
		if err != nil {
			return fmt.Errorf("reading token: %w", err)
		}
		if token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
			withToken = true
		}
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	elapsed := time.Since(start)
	if err != nil {
		if c.metrics != nil {
			c.metrics.ObserveAPIRequest(req.Method, route, 0, elapsed)
			c.metrics.IncTransportError(classifyTransportError(err))
		}
		return fmt.Errorf("%s %s: %w", req.Method, req.Path, err)
	}
	defer resp.Body.Close()

	if c.metrics != nil {
		c.metrics.ObserveAPIRequest(req.Method, route, resp.StatusCode, elapsed)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("reading %s %s response: %w", req.Method, req.Path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := parseError(req.Method, req.Path, resp.StatusCode, data)
		if resp.StatusCode == http.StatusUnauthorized && withToken && c.onUnauthorized != nil {
			c.onUnauthorized(ctx)
		}
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", req.Method, req.Path, err)
	}
	return nil
}

// classifyTransportError categorizes a client-side request failure.
func classifyTransportError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "dns"
	}
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		if netErr.Op == "dial" {
			return "connection_refused"
		}
		return "network"
	}
	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return "timeout"
	}
	return "other"
}
