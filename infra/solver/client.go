// Package solver is the HTTP client of the VROOM routing solver.
package solver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kilianp07/fleetsim/core/vrp"
)

// Client posts problems to a VROOM endpoint.
type Client struct {
	url     string
	session *http.Client
}

// New returns a Client for url. A nil session uses http.DefaultClient.
func New(url string, session *http.Client) *Client {
	if session == nil {
		session = http.DefaultClient
	}
	return &Client{url: url, session: session}
}

// Solve posts body and returns the response body. Timeouts are driven by ctx.
func (c *Client) Solve(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.session.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read solver response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &vrp.StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	return b, nil
}
