// Package request is the shared outbound HTTP plumbing for the provider
// clients (2GIS, Ollama, Gemini).
package request

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"ticketflow/pkg/tracker"
	"ticketflow/pkg/version"
)

var defaultUserAgent = fmt.Sprintf("ticketflow/%s", version.Version)

// Client is a thin HTTP client bound to one provider label. It carries
// the concerns every provider call shares (context, timeout, tracker
// accounting, body handling) and leaves status-code policy to the caller:
// the geocoder maps 4xx to an empty result while the NLP client treats
// any non-2xx as a failure.
type Client struct {
	provider   string
	httpClient *http.Client
	tracker    *tracker.Tracker
}

// New creates a Client for one provider. timeout bounds the whole
// exchange including the body read; 0 keeps the transport default.
func New(provider string, timeout time.Duration, tr *tracker.Tracker) *Client {
	return &Client{
		provider:   provider,
		httpClient: &http.Client{Timeout: timeout},
		tracker:    tr,
	}
}

// Get performs a GET request. A transport-level failure returns a non-nil
// error; any received response returns its status and body with err nil.
func (c *Client) Get(ctx context.Context, u string, headers map[string]string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	return c.do(req, headers)
}

// Post performs a POST with a JSON body.
func (c *Client) Post(ctx context.Context, u string, body []byte, headers map[string]string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, headers)
}

// CloseIdleConnections releases pooled connections. The geocoder calls
// this when a batch finishes.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

func (c *Client) do(req *http.Request, headers map[string]string) (int, []byte, error) {
	req.Header.Set("User-Agent", defaultUserAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if c.tracker != nil {
			c.tracker.TrackAPIFailure(c.provider)
		}
		return 0, nil, fmt.Errorf("%s request: %w", c.provider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if c.tracker != nil {
			c.tracker.TrackAPIFailure(c.provider)
		}
		return resp.StatusCode, nil, fmt.Errorf("%s read body: %w", c.provider, err)
	}

	elapsed := time.Since(start)
	if c.tracker != nil {
		c.tracker.TrackLatency(c.provider, elapsed.Milliseconds())
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			c.tracker.TrackAPISuccess(c.provider)
		} else {
			c.tracker.TrackAPIFailure(c.provider)
		}
	}
	slog.Debug("Network request",
		"provider", c.provider, "host", req.URL.Host,
		"status", resp.StatusCode, "duration", elapsed)

	return resp.StatusCode, body, nil
}
