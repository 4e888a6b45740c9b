package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/thruflo/gauge/internal/speedtest"
)

// Client provides HTTP access to a running `gauge serve` instance. It
// subscribes to the event stream, reconnecting and catching up on missed
// events, and requests actions.
type Client struct {
	// baseURL is the base URL of the server (e.g., "http://localhost:8080")
	baseURL string

	// httpClient is the HTTP client used for requests
	httpClient *http.Client

	// lastSeq is the sequence number of the last event received
	lastSeq uint64

	// mu protects lastSeq
	mu sync.RWMutex

	// reconnectInterval is the time to wait between reconnection attempts
	reconnectInterval time.Duration

	// maxReconnectAttempts is the maximum number of reconnection attempts (0 = unlimited)
	maxReconnectAttempts int
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithReconnectInterval sets the interval between reconnection attempts.
func WithReconnectInterval(interval time.Duration) ClientOption {
	return func(c *Client) {
		c.reconnectInterval = interval
	}
}

// WithMaxReconnectAttempts sets the maximum number of reconnection attempts.
// Set to 0 for unlimited attempts.
func WithMaxReconnectAttempts(attempts int) ClientOption {
	return func(c *Client) {
		c.maxReconnectAttempts = attempts
	}
}

// NewClient creates a new Client for the given base URL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 0, // No timeout for streaming connections
		},
		reconnectInterval:    2 * time.Second,
		maxReconnectAttempts: 0,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Session fetches the current session snapshot. It doubles as a
// reachability check.
func (c *Client) Session(ctx context.Context) (*speedtest.Session, error) {
	var session speedtest.Session
	if err := c.getJSON(ctx, "/session", &session); err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

// Reading fetches the needle position the server is currently showing,
// including the sequence number of the last event it published.
func (c *Client) Reading(ctx context.Context) (*Reading, error) {
	var reading Reading
	if err := c.getJSON(ctx, "/reading", &reading); err != nil {
		return nil, fmt.Errorf("failed to get reading: %w", err)
	}
	return &reading, nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Subscribe returns a channel that receives events from the server.
// It uses Server-Sent Events (SSE) and automatically reconnects and catches
// up on missed events if the connection is lost.
// The channel is closed when the context is canceled or max reconnect attempts are exceeded.
// If fromSeq is 0, every event the server still retains is returned.
func (c *Client) Subscribe(ctx context.Context, fromSeq uint64) (<-chan *Event, <-chan error) {
	eventCh := make(chan *Event, 100)
	errCh := make(chan error, 1)

	c.mu.Lock()
	if fromSeq > 0 {
		c.lastSeq = fromSeq - 1
	} else {
		c.lastSeq = 0
	}
	c.mu.Unlock()

	go c.subscriptionLoop(ctx, eventCh, errCh)

	return eventCh, errCh
}

// subscriptionLoop handles the main subscription loop with reconnection logic.
func (c *Client) subscriptionLoop(ctx context.Context, eventCh chan<- *Event, errCh chan<- error) {
	defer close(eventCh)
	defer close(errCh)

	attempts := 0

	for {
		if ctx.Err() != nil {
			return
		}

		c.mu.RLock()
		fromSeq := c.lastSeq + 1
		c.mu.RUnlock()

		err := c.streamEvents(ctx, fromSeq, eventCh)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			// The server closed the stream; treat it like a dropped connection.
			err = io.ErrUnexpectedEOF
		} else {
			attempts++
		}

		if c.maxReconnectAttempts > 0 && attempts >= c.maxReconnectAttempts {
			errCh <- fmt.Errorf("max reconnection attempts (%d) exceeded: %w", c.maxReconnectAttempts, err)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.reconnectInterval):
		}
	}
}

// streamEvents connects to the SSE endpoint and streams events.
func (c *Client) streamEvents(ctx context.Context, fromSeq uint64, eventCh chan<- *Event) error {
	url := fmt.Sprintf("%s/events?since=%d", c.baseURL, fromSeq)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return c.parseSSEStream(ctx, resp.Body, eventCh)
}

// parseSSEStream parses Server-Sent Events from the response body.
func (c *Client) parseSSEStream(ctx context.Context, body io.Reader, eventCh chan<- *Event) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var dataLines []string

	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}

		line := scanner.Text()

		// Empty line signals end of event
		if line == "" {
			if len(dataLines) == 0 {
				continue
			}
			event, err := UnmarshalEvent([]byte(strings.Join(dataLines, "\n")))
			dataLines = nil
			if err != nil {
				continue
			}

			c.mu.Lock()
			if event.Seq > c.lastSeq {
				c.lastSeq = event.Seq
			}
			c.mu.Unlock()

			select {
			case <-ctx.Done():
				return nil
			case eventCh <- event:
			}
			continue
		}

		// Only data lines carry the event; id and event fields repeat what
		// the JSON already holds.
		if data, ok := strings.CutPrefix(line, "data:"); ok {
			dataLines = append(dataLines, strings.TrimPrefix(data, " "))
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading stream: %w", err)
	}

	return nil
}

// Do requests an action and returns the server's acknowledgment. A rejected
// action (for example starting while a test runs) is returned as an Ack with
// AckStatusRejected, not as an error.
func (c *Client) Do(ctx context.Context, action Action) (*Ack, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/actions/"+string(action), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send %s: %w", action, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted, http.StatusConflict:
	default:
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var ack Ack
	if err := json.Unmarshal(body, &ack); err != nil {
		return nil, fmt.Errorf("failed to parse acknowledgment: %w", err)
	}

	return &ack, nil
}

// StartTest requests a new session.
func (c *Client) StartTest(ctx context.Context) (*Ack, error) {
	return c.Do(ctx, ActionStartTest)
}

// ResetTest requests that the current session be discarded.
func (c *Client) ResetTest(ctx context.Context) (*Ack, error) {
	return c.Do(ctx, ActionResetTest)
}

// LastSeq returns the sequence number of the last received event.
func (c *Client) LastSeq() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSeq
}

// BaseURL returns the base URL of the server.
func (c *Client) BaseURL() string {
	return c.baseURL
}
