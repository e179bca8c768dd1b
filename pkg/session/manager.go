// Package session owns the lifecycle of one playback session: starting a
// live experiment stream, replaying a stored conversation, and the atomic
// reset that clears queue and cursor together.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"milgramgo/pkg/model"
	"milgramgo/pkg/player"
	"milgramgo/pkg/source"
	"milgramgo/pkg/store"
	"milgramgo/pkg/turnqueue"
)

// Source is the conversation source consumed by the manager.
type Source interface {
	Stream(ctx context.Context) (<-chan source.Event, error)
	LoadAllConversations(ctx context.Context) ([]model.Conversation, error)
}

// Manager coordinates the queue, the player and the conversation source.
type Manager struct {
	mu sync.Mutex

	queue  *turnqueue.Queue
	player *player.Player
	src    Source
	store  store.ConversationStore

	messages     []model.Message
	cancelStream context.CancelFunc
	streaming    bool
	loadedID     string

	onUpdate func()
}

// New creates a Manager. store may be nil (no offline replay cache).
func New(q *turnqueue.Queue, p *player.Player, src Source, cs store.ConversationStore, onUpdate func()) *Manager {
	if onUpdate == nil {
		onUpdate = func() {}
	}
	return &Manager{
		queue:    q,
		player:   p,
		src:      src,
		store:    cs,
		onUpdate: onUpdate,
	}
}

// StartLive resets the session and begins streaming a new live experiment.
func (m *Manager) StartLive(ctx context.Context) error {
	m.Reset()

	streamCtx, cancel := context.WithCancel(ctx)
	events, err := m.src.Stream(streamCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to start live session: %w", err)
	}

	m.mu.Lock()
	m.cancelStream = cancel
	m.streaming = true
	m.mu.Unlock()

	m.player.SetStarted(true)
	slog.Info("Live experiment session started")

	go m.consume(events)
	return nil
}

// consume drains the stream, enqueueing message events. Closing the stream
// stops enqueues but never touches turns already in the queue or pipeline.
func (m *Manager) consume(events <-chan source.Event) {
	for ev := range events {
		if ev.Type != "message" {
			break
		}
		m.queue.Enqueue(ev.Speaker, ev.Text)
		m.appendMessage(ev.Speaker, ev.Text)
	}

	m.mu.Lock()
	m.streaming = false
	if m.cancelStream != nil {
		m.cancelStream()
		m.cancelStream = nil
	}
	m.mu.Unlock()

	// The session stays started, playback of queued turns continues
	slog.Info("Experiment stream finished")
	m.onUpdate()
}

// LoadConversation resets the session and synchronously enqueues a stored
// or remote historical conversation.
func (m *Manager) LoadConversation(ctx context.Context, id string) error {
	conv, err := m.findConversation(ctx, id)
	if err != nil {
		return err
	}

	m.Reset()

	for _, msg := range conv.Messages {
		m.queue.Enqueue(msg.Speaker, msg.Text)
		m.appendMessage(msg.Speaker, msg.Text)
	}

	m.mu.Lock()
	m.loadedID = id
	m.mu.Unlock()

	m.player.SetStarted(true)
	slog.Info("Historical conversation loaded", "id", id, "turns", len(conv.Messages))
	return nil
}

// findConversation checks the local store first, then the backend. Remote
// conversations are persisted for later offline replay.
func (m *Manager) findConversation(ctx context.Context, id string) (*model.Conversation, error) {
	if m.store != nil {
		if conv, err := m.store.GetConversation(ctx, id); err == nil && conv != nil {
			return conv, nil
		}
	}

	conversations, err := m.src.LoadAllConversations(ctx)
	if err != nil {
		return nil, fmt.Errorf("conversation %s not cached and backend unavailable: %w", id, err)
	}

	var found *model.Conversation
	for i := range conversations {
		conv := &conversations[i]
		if m.store != nil {
			if err := m.store.SaveConversation(ctx, conv); err != nil {
				slog.Warn("Failed to cache conversation", "id", conv.ID, "error", err)
			}
		}
		if conv.ID == id {
			found = conv
		}
	}
	if found == nil {
		return nil, fmt.Errorf("conversation %s not found", id)
	}
	return found, nil
}

// Conversations lists stored and remote conversations, deduplicated by id.
// The backend being unreachable degrades to the local store only.
func (m *Manager) Conversations(ctx context.Context) ([]model.ConversationSummary, error) {
	seen := make(map[string]bool)
	var out []model.ConversationSummary

	if remote, err := m.src.LoadAllConversations(ctx); err != nil {
		slog.Warn("Backend conversation list unavailable, using local cache", "error", err)
	} else {
		for i := range remote {
			conv := &remote[i]
			if m.store != nil {
				if err := m.store.SaveConversation(ctx, conv); err != nil {
					slog.Warn("Failed to cache conversation", "id", conv.ID, "error", err)
				}
			}
			seen[conv.ID] = true
			out = append(out, model.ConversationSummary{
				ID:           conv.ID,
				Timestamp:    conv.Timestamp,
				FinalVoltage: conv.FinalVoltage,
				Turns:        len(conv.Messages),
			})
		}
	}

	if m.store != nil {
		stored, err := m.store.ListConversations(ctx)
		if err != nil {
			if len(out) == 0 {
				return nil, fmt.Errorf("no conversation source available: %w", err)
			}
		} else {
			for _, s := range stored {
				if !seen[s.ID] {
					out = append(out, s)
				}
			}
		}
	}

	return out, nil
}

// Reset atomically clears stream, cursor, queue and transcript.
func (m *Manager) Reset() {
	m.mu.Lock()
	if m.cancelStream != nil {
		m.cancelStream()
		m.cancelStream = nil
	}
	m.streaming = false
	m.loadedID = ""
	m.messages = nil
	m.mu.Unlock()

	// Cursor first so a released artifact is never mid-playback
	m.player.Reset()
	m.queue.Reset()
	m.onUpdate()
}

// Stop shuts the session down.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.cancelStream != nil {
		m.cancelStream()
		m.cancelStream = nil
	}
	m.streaming = false
	m.mu.Unlock()
}

// Streaming reports whether a live stream is currently open.
func (m *Manager) Streaming() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streaming
}

// LoadedConversation returns the id of the replayed conversation, or "".
func (m *Manager) LoadedConversation() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadedID
}

// Messages returns a copy of the transcript log.
func (m *Manager) Messages() []model.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

func (m *Manager) appendMessage(speaker model.Speaker, text string) {
	m.mu.Lock()
	m.messages = append(m.messages, model.Message{
		Speaker:   speaker,
		Text:      text,
		Timestamp: time.Now(),
	})
	m.mu.Unlock()
	m.onUpdate()
}
