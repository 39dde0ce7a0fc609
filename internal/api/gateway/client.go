// Package gateway is the HTTP client for the assistant control plane:
// REST for snapshots, thread and model CRUD, and outbound actions, plus
// the resumable SSE event subscription.
package gateway

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

	"github.com/codedeck/codedeck/internal/stream"
	"github.com/codedeck/codedeck/internal/timeline"
)

const defaultBaseURL = "http://localhost:7850"

// SSE channel types pushed by the gateway.
const (
	sseEventGateway   = "gateway"
	sseEventHeartbeat = "heartbeat"
)

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithAPIKey sets the bearer token sent with every request.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithClientLogger sets the logger used for skipped-frame reporting.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client talks to the assistant gateway.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new gateway client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchSnapshot retrieves the point-in-time thread state. A failure here
// is fatal for the conversation view; there is no automatic retry.
func (c *Client) FetchSnapshot(ctx context.Context, threadID string) (*Snapshot, error) {
	var snap Snapshot
	if err := c.getJSON(ctx, "/api/threads/"+threadID+"/snapshot", &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// ListThreads retrieves all known threads.
func (c *Client) ListThreads(ctx context.Context) ([]Thread, error) {
	var list threadList
	if err := c.getJSON(ctx, "/api/threads", &list); err != nil {
		return nil, err
	}
	return list.Threads, nil
}

// CreateThread starts a new conversation.
func (c *Client) CreateThread(ctx context.Context, title string) (*Thread, error) {
	var thread Thread
	body := map[string]string{"title": title}
	if err := c.postJSON(ctx, "/api/threads", body, &thread); err != nil {
		return nil, err
	}
	return &thread, nil
}

// ListModels retrieves the model catalog.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	var list modelList
	if err := c.getJSON(ctx, "/api/models", &list); err != nil {
		return nil, err
	}
	return list.Models, nil
}

// SendMessage posts a user message and returns the id of the turn the
// assistant starts in response.
func (c *Client) SendMessage(ctx context.Context, threadID, text string) (string, error) {
	var out struct {
		TurnID string `json:"turnId"`
	}
	path := "/api/threads/" + threadID + "/messages"
	if err := c.postJSON(ctx, path, map[string]string{"text": text}, &out); err != nil {
		return "", err
	}
	return out.TurnID, nil
}

// SubmitApproval submits a decision for a pending approval. Success of
// the HTTP call does not mean the approval is resolved; the registry only
// empties when the decision event comes back on the feed.
func (c *Client) SubmitApproval(ctx context.Context, threadID, approvalID, decision string) error {
	path := "/api/threads/" + threadID + "/approvals/" + approvalID
	return c.postJSON(ctx, path, map[string]string{"decision": decision}, nil)
}

// SubmitInteraction submits an answer for a pending interaction.
func (c *Client) SubmitInteraction(ctx context.Context, threadID, interactionID, answer string) error {
	path := "/api/threads/" + threadID + "/interactions/" + interactionID
	return c.postJSON(ctx, path, map[string]string{"answer": answer}, nil)
}

// InterruptTurn asks the assistant process to stop the running turn.
func (c *Client) InterruptTurn(ctx context.Context, threadID, turnID string) error {
	path := "/api/threads/" + threadID + "/turns/" + turnID + "/interrupt"
	return c.postJSON(ctx, path, nil, nil)
}

// Subscribe opens the SSE event feed for a thread, resuming from since.
// The returned channel closes on transport failure. Its signature matches
// stream.Subscriber so the connection manager can own reconnects.
func (c *Client) Subscribe(ctx context.Context, threadID string, since uint64) (<-chan stream.Envelope, error) {
	url := fmt.Sprintf("%s/api/threads/%s/events?since=%d", c.baseURL, threadID, since)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		return nil, responseError(resp.StatusCode, respBody)
	}

	out := make(chan stream.Envelope)
	go c.streamReader(ctx, resp.Body, out)
	return out, nil
}

// SubscriberFor binds Subscribe to one thread in the shape the stream
// manager consumes.
func (c *Client) SubscriberFor(threadID string) stream.Subscriber {
	return func(ctx context.Context, since uint64) (<-chan stream.Envelope, error) {
		return c.Subscribe(ctx, threadID, since)
	}
}

func (c *Client) streamReader(ctx context.Context, body io.ReadCloser, out chan<- stream.Envelope) {
	defer close(out)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	// Event payloads can carry whole tool outputs.
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	var eventName string
	var data strings.Builder

	dispatch := func() {
		defer func() {
			eventName = ""
			data.Reset()
		}()
		switch eventName {
		case sseEventHeartbeat:
			select {
			case out <- stream.Envelope{Heartbeat: true}:
			case <-ctx.Done():
			}
		case sseEventGateway:
			var ev timeline.RawEvent
			if err := json.Unmarshal([]byte(data.String()), &ev); err != nil {
				// One bad frame must never halt the stream.
				c.logger.Warn("dropping malformed gateway event", slog.String("error", err.Error()))
				return
			}
			select {
			case out <- stream.Envelope{Event: &ev}:
			case <-ctx.Done():
			}
		}
	}

	for scanner.Scan() {
		line := scanner.Text()

		// Blank line terminates a frame.
		if line == "" {
			if eventName != "" {
				dispatch()
			}
			continue
		}
		// Comment lines are keepalive padding.
		if strings.HasPrefix(line, ":") {
			continue
		}
		if strings.HasPrefix(line, "event: ") {
			eventName = strings.TrimPrefix(line, "event: ")
			continue
		}
		if strings.HasPrefix(line, "data: ") {
			data.WriteString(strings.TrimPrefix(line, "data: "))
			continue
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		c.logger.Warn("event stream read error", slog.String("error", err.Error()))
	}
}

func (c *Client) getJSON(ctx context.Context, path string, into any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	c.setAuth(req)
	return c.do(req, into)
}

func (c *Client) postJSON(ctx context.Context, path string, body, into any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	c.setAuth(req)
	return c.do(req, into)
}

func (c *Client) do(req *http.Request, into any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return responseError(resp.StatusCode, respBody)
	}
	if into == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, into); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func (c *Client) setAuth(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func responseError(status int, body []byte) error {
	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return fmt.Errorf("gateway error (status %d): %s", status, apiErr.Error.Message)
	}
	return fmt.Errorf("gateway error (status %d): %s", status, string(body))
}
