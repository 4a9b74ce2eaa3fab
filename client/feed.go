// Package client is the HTTP client for the whaleflow feed service.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mqqz/whaleflow-sub000/service/feed"
	"github.com/mqqz/whaleflow-sub000/service/record"
)

// Snapshot is the server's visible-records snapshot.
type Snapshot struct {
	Records          []*record.Record  `json:"records"`
	ConnectionStatus map[string]string `json:"connection_status"`
	QueueDepth       int               `json:"queue_depth"`
	Controls         feed.Controls     `json:"controls"`
}

// Client is the HTTP client for the whaleflow feed service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new feed service client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Snapshot retrieves the visible records and per-network connection status.
func (c *Client) Snapshot(ctx context.Context) (*Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/v1/records", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var snapshot Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &snapshot, nil
}

// Controls retrieves the current feed controls.
func (c *Client) Controls(ctx context.Context) (*feed.Controls, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/v1/controls", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var controls feed.Controls
	if err := json.NewDecoder(resp.Body).Decode(&controls); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &controls, nil
}

// UpdateControls replaces the feed controls and returns the installed set.
func (c *Client) UpdateControls(ctx context.Context, controls feed.Controls) (*feed.Controls, error) {
	body, err := json.Marshal(controls)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "PUT", c.baseURL+"/api/v1/controls", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var installed feed.Controls
	if err := json.NewDecoder(resp.Body).Decode(&installed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug("controls updated",
		"min_amount", installed.MinAmount,
		"whale_only", installed.WhaleOnly,
		"paused", installed.Paused,
	)
	return &installed, nil
}

// StreamRecords connects to the SSE stream and invokes fn for every record
// until ctx is canceled or the stream ends. Keepalive comments and unknown
// events are skipped.
func (c *Client) StreamRecords(ctx context.Context, fn func(*record.Record)) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/v1/stream/records", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	// The stream is long-lived, so bypass the client timeout.
	streamClient := &http.Client{Transport: c.httpClient.Transport}
	resp, err := streamClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	c.logger.Debug("record stream connected", "url", req.URL.String())

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var event string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, ":"):
			// Keepalive comment.
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			if event != "record" {
				continue
			}
			var rec record.Record
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &rec); err != nil {
				c.logger.Warn("failed to decode stream record", "error", err)
				continue
			}
			fn(&rec)
		case line == "":
			event = ""
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("stream read failed: %w", err)
	}
	return ctx.Err()
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("request failed: %s", errResp.Error)
}
