// Package agentclient talks to the OpenCode agent process over HTTP and
// its Server-Sent Events run stream: creating sessions, sending turns, and
// subscribing to partial/response/error events as they happen.
package agentclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"time"
)

// Event is one Server-Sent Event emitted on an Agent session's run stream.
type Event struct {
	Type      string `json:"type"` // protocol.AgentEventPartial / Response / Error / ...
	SessionID string `json:"sessionId"`
	Text      string `json:"text,omitempty"`
	Error     string `json:"error,omitempty"`
}

// EventHandler receives events from SubscribeEvents, one per SSE frame.
type EventHandler func(Event)

// Client is an HTTP+SSE client bound to one OpenCode instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client targeting an OpenCode instance at hostname:port.
func New(hostname string, port int) *Client {
	return &Client{
		baseURL:    fmt.Sprintf("http://%s:%d", hostname, port),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// CreateSession opens a new Agent session, returning its id. Implements
// sessions.SessionCreator.
func (c *Client) CreateSession(title string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(context.Background(), http.MethodPost, "/session", map[string]string{"title": title}, &out); err != nil {
		return "", fmt.Errorf("create agent session: %w", err)
	}
	return out.ID, nil
}

// DeleteSession removes a session from the Agent process.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/session/"+sessionID, nil, nil)
}

// ListSessions returns the ids of all sessions known to the Agent process.
func (c *Client) ListSessions(ctx context.Context) ([]string, error) {
	var out []struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/session", nil, &out); err != nil {
		return nil, err
	}
	ids := make([]string, len(out))
	for i, s := range out {
		ids[i] = s.ID
	}
	return ids, nil
}

// AbortSession cancels an in-flight run on a session.
func (c *Client) AbortSession(ctx context.Context, sessionID string) error {
	return c.doJSON(ctx, http.MethodPost, "/session/"+sessionID+"/abort", nil, nil)
}

// CheckHealth reports whether the Agent process is reachable.
func (c *Client) CheckHealth(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodGet, "/health", nil, nil)
}

// SendMessage sends a prompt and blocks for the full response text.
func (c *Client) SendMessage(ctx context.Context, sessionID, prompt string) (string, error) {
	var out struct {
		Text string `json:"text"`
	}
	body := map[string]string{"sessionId": sessionID, "prompt": prompt}
	if err := c.doJSON(ctx, http.MethodPost, "/session/"+sessionID+"/message", body, &out); err != nil {
		return "", fmt.Errorf("send agent message: %w", err)
	}
	return out.Text, nil
}

// SendMessageAsync starts a turn without waiting for completion; the
// caller observes progress via SubscribeEvents.
func (c *Client) SendMessageAsync(ctx context.Context, sessionID, prompt string) error {
	body := map[string]string{"sessionId": sessionID, "prompt": prompt}
	return c.doJSON(ctx, http.MethodPost, "/session/"+sessionID+"/message/async", body, nil)
}

// SubscribeEvents streams SSE events for sessionID to handler until ctx is
// canceled, transparently reconnecting on a transient read failure with
// capped exponential backoff.
func (c *Client) SubscribeEvents(ctx context.Context, sessionID string, handler EventHandler) error {
	backoff := 500 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := c.streamOnce(ctx, sessionID, handler)
		if err == nil || ctx.Err() != nil {
			return ctx.Err()
		}

		slog.Warn("agent event stream disconnected, reconnecting", "session_id", sessionID, "backoff", backoff, "error", err)

		jittered := time.Duration(float64(backoff) * (0.9 + 0.2*rand.Float64()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jittered):
		}
		backoff = time.Duration(math.Min(float64(backoff*2), float64(maxBackoff)))
	}
}

// streamOnce opens one SSE connection and reads frames until the
// connection closes or errors.
func (c *Client) streamOnce(ctx context.Context, sessionID string, handler EventHandler) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/session/"+sessionID+"/events", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("agent event stream returned status %d", resp.StatusCode)
	}

	return parseSSE(resp.Body, handler)
}

// parseSSE reads "data: <json>" frames, the way the Agent's run stream
// frames one JSON event per data line.
func parseSSE(body io.Reader, handler EventHandler) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			slog.Warn("malformed agent SSE event", "error", err)
			continue
		}
		handler(ev)
	}
	return scanner.Err()
}

func (c *Client) doJSON(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("agent request %s %s failed: %d %s", method, path, resp.StatusCode, string(data))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
