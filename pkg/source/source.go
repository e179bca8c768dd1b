// Package source is the conversation source adapter: it connects to the
// experiment backend, streams live conversation turns over SSE and fetches
// historical conversations in bulk.
package source

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"milgramgo/pkg/model"
	"milgramgo/pkg/request"
)

// Event is one well-formed stream event.
type Event struct {
	Type    string        `json:"type"` // "message" or "end"
	Speaker model.Speaker `json:"speaker"`
	Text    string        `json:"text"`
}

// Client talks to the experiment backend.
type Client struct {
	baseURL string
	// stream uses a dedicated client without timeout, SSE connections are
	// long-lived
	streamClient *http.Client
	rc           *request.Client
}

// New creates a source client rooted at baseURL.
func New(baseURL string, rc *request.Client) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		streamClient: &http.Client{},
		rc:           rc,
	}
}

// Stream opens the live experiment SSE stream and emits events on the
// returned channel. The channel closes on an "end" event, on context
// cancellation, or when the connection drops. Unparseable events are
// ignored with a warning.
func (c *Client) Stream(ctx context.Context) (<-chan Event, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/run-experiment", http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to open experiment stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("experiment stream rejected: status %d", resp.StatusCode)
	}

	events := make(chan Event)
	go func() {
		defer close(events)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "" {
				continue
			}

			var ev Event
			if err := json.Unmarshal([]byte(payload), &ev); err != nil {
				slog.Warn("Ignoring malformed stream event", "payload", payload, "error", err)
				continue
			}

			switch ev.Type {
			case "message":
				select {
				case events <- ev:
				case <-ctx.Done():
					return
				}
			case "end":
				select {
				case events <- ev:
				case <-ctx.Done():
				}
				return
			default:
				slog.Warn("Ignoring stream event of unknown type", "type", ev.Type)
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			slog.Warn("Experiment stream closed with error", "error", err)
		}
	}()

	return events, nil
}

// LoadAllConversations fetches the full historical conversation list.
func (c *Client) LoadAllConversations(ctx context.Context) ([]model.Conversation, error) {
	body, err := c.rc.Get(ctx, c.baseURL+"/api/load-all-conversations", "")
	if err != nil {
		return nil, fmt.Errorf("failed to load conversations: %w", err)
	}

	var conversations []model.Conversation
	if err := json.Unmarshal(body, &conversations); err != nil {
		return nil, fmt.Errorf("failed to parse conversations: %w", err)
	}
	return conversations, nil
}
