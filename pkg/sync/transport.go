package sync

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/marmos91/offsync/pkg/queue"
)

// maxResponseBody bounds how much of a server response is retained for
// diagnostics. Replayed requests are fire-and-forget; the body is only
// useful for error reporting.
const maxResponseBody = 64 * 1024

// Response is the transport-level result of replaying a request.
type Response struct {
	StatusCode int
	Body       []byte
}

// Transport replays a queued request against the upstream server.
//
// Implementations return an error only for transport-level failures
// (connection refused, timeout, DNS). A server response, whatever its
// status code, is returned as a Response; the coordinator classifies it.
type Transport interface {
	Execute(ctx context.Context, r *queue.Request) (*Response, error)
}

// HTTPTransport replays requests over HTTP. A request's Endpoint is
// resolved against BaseURL unless it is already absolute.
type HTTPTransport struct {
	baseURL string
	client  *http.Client
}

// NewHTTPTransport creates a transport that resolves relative endpoints
// against baseURL. The per-attempt deadline comes from the context, so the
// underlying client carries no timeout of its own.
func NewHTTPTransport(baseURL string) *HTTPTransport {
	return &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
	}
}

// Execute implements Transport.
func (t *HTTPTransport) Execute(ctx context.Context, r *queue.Request) (*Response, error) {
	url := r.Endpoint
	if !strings.Contains(url, "://") {
		url = t.baseURL + "/" + strings.TrimLeft(url, "/")
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, url, bytes.NewReader(r.Body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}
