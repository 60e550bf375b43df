package connectivity

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// DefaultProbeURL answers 204 with no body, which keeps probes cheap.
const DefaultProbeURL = "http://clients3.google.com/generate_204"

// Prober checks for a real internet path.
//
// Probe failures are never fatal: the Monitor degrades classification to
// Limited and moves on. The probe runs under its own timeout, independent
// of any sync-attempt deadline.
type Prober interface {
	Probe(ctx context.Context) error
}

// HTTPProber probes reachability with a minimal GET request.
type HTTPProber struct {
	url    string
	client *http.Client
}

// NewHTTPProber creates a prober against the given URL. An empty URL falls
// back to DefaultProbeURL. The request deadline comes from the caller's
// context, not from the client.
func NewHTTPProber(url string) *HTTPProber {
	if url == "" {
		url = DefaultProbeURL
	}
	return &HTTPProber{
		url:    url,
		client: &http.Client{},
	}
}

// Probe issues the request and reports whether the endpoint answered with
// a success status. Redirects and server errors count as failures: a
// captive portal intercepting the probe must classify as Limited.
func (p *HTTPProber) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("failed to build probe request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("probe endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
