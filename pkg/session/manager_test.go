package session

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"milgramgo/pkg/model"
	"milgramgo/pkg/player"
	"milgramgo/pkg/source"
	"milgramgo/pkg/turnqueue"
)

// fakeSource feeds scripted events and conversations.
type fakeSource struct {
	mu            sync.Mutex
	events        []source.Event
	conversations []model.Conversation
	streamErr     error
	loadErr       error
	loadCalls     int
}

func (f *fakeSource) Stream(ctx context.Context) (<-chan source.Event, error) {
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	ch := make(chan source.Event)
	go func() {
		defer close(ch)
		for _, ev := range f.events {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (f *fakeSource) LoadAllConversations(ctx context.Context) ([]model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadCalls++
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.conversations, nil
}

// memStore is an in-memory ConversationStore.
type memStore struct {
	mu    sync.Mutex
	convs map[string]*model.Conversation
}

func newMemStore() *memStore {
	return &memStore{convs: make(map[string]*model.Conversation)}
}

func (s *memStore) GetConversation(_ context.Context, id string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.convs[id]; ok {
		return c, nil
	}
	return nil, errors.New("not found")
}

func (s *memStore) SaveConversation(_ context.Context, conv *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *conv
	s.convs[conv.ID] = &c
	return nil
}

func (s *memStore) ListConversations(_ context.Context) ([]model.ConversationSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ConversationSummary
	for _, c := range s.convs {
		out = append(out, model.ConversationSummary{
			ID: c.ID, Timestamp: c.Timestamp, FinalVoltage: c.FinalVoltage, Turns: len(c.Messages),
		})
	}
	return out, nil
}

// nullAudio satisfies audio.Service without touching a device.
type nullAudio struct{}

func (nullAudio) Play(string, func()) error { return nil }
func (nullAudio) Pause()                    {}
func (nullAudio) Resume()                   {}
func (nullAudio) Stop()                     {}
func (nullAudio) Shutdown()                 {}
func (nullAudio) IsPlaying() bool           { return false }
func (nullAudio) IsBusy() bool              { return false }
func (nullAudio) IsPaused() bool            { return false }
func (nullAudio) SetVolume(float64)         {}
func (nullAudio) Volume() float64           { return 1 }
func (nullAudio) SetRate(float64)           {}
func (nullAudio) Rate() float64             { return 2 }
func (nullAudio) SetMuted(bool)             {}
func (nullAudio) Muted() bool               { return false }

type nullImage struct{}

func (nullImage) ProduceImage(_ context.Context, _ model.Turn, basePath string) (string, error) {
	path := basePath + ".png"
	return path, os.WriteFile(path, []byte("img"), 0o644)
}

func newTestManager(t *testing.T, src *fakeSource, cs *memStore) (*Manager, *turnqueue.Queue) {
	t.Helper()
	q := turnqueue.New(context.Background(), nil, nullImage{}, t.TempDir(), nil)
	p := player.New(q, nullAudio{}, time.Second, nil)
	q.SetNotify(p.Kick)
	// The player loop is not started: these tests exercise session
	// bookkeeping, not playback.
	var m *Manager
	if cs != nil {
		m = New(q, p, src, cs, nil)
	} else {
		m = New(q, p, src, nil, nil)
	}
	return m, q
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestStartLiveEnqueuesStreamedTurns(t *testing.T) {
	src := &fakeSource{events: []source.Event{
		{Type: "message", Speaker: model.SpeakerProfessor, Text: "Begin."},
		{Type: "message", Speaker: model.SpeakerLearner, Text: model.ShockSentinel},
		{Type: "end"},
	}}
	m, q := newTestManager(t, src, nil)

	if err := m.StartLive(context.Background()); err != nil {
		t.Fatalf("StartLive failed: %v", err)
	}

	waitFor(t, "stream drained", func() bool { return !m.Streaming() })
	if q.Len() != 2 {
		t.Errorf("expected 2 enqueued turns, got %d", q.Len())
	}

	msgs := m.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 transcript messages, got %d", len(msgs))
	}
	if msgs[0].Speaker != model.SpeakerProfessor || msgs[0].Timestamp.IsZero() {
		t.Errorf("unexpected transcript entry %+v", msgs[0])
	}
}

func TestStartLiveStreamError(t *testing.T) {
	src := &fakeSource{streamErr: errors.New("backend down")}
	m, _ := newTestManager(t, src, nil)

	if err := m.StartLive(context.Background()); err == nil {
		t.Fatal("expected error when stream cannot open")
	}
	if m.Streaming() {
		t.Error("must not report streaming after failed start")
	}
}

func TestLoadConversationFromStore(t *testing.T) {
	cs := newMemStore()
	cs.SaveConversation(context.Background(), &model.Conversation{
		ID: "run-7",
		Messages: []model.ConversationMessage{
			{Speaker: model.SpeakerProfessor, Text: "Begin."},
			{Speaker: model.SpeakerParticipant, Text: "Okay."},
		},
	})
	src := &fakeSource{loadErr: errors.New("offline")}
	m, q := newTestManager(t, src, cs)

	if err := m.LoadConversation(context.Background(), "run-7"); err != nil {
		t.Fatalf("LoadConversation failed: %v", err)
	}
	if q.Len() != 2 {
		t.Errorf("expected 2 turns, got %d", q.Len())
	}
	if m.LoadedConversation() != "run-7" {
		t.Errorf("loaded id = %q", m.LoadedConversation())
	}
	if src.loadCalls != 0 {
		t.Error("store hit must not call the backend")
	}
}

func TestLoadConversationFetchesAndCaches(t *testing.T) {
	cs := newMemStore()
	src := &fakeSource{conversations: []model.Conversation{
		{ID: "run-1", Messages: []model.ConversationMessage{{Speaker: model.SpeakerProfessor, Text: "Hi"}}},
		{ID: "run-2", Messages: []model.ConversationMessage{{Speaker: model.SpeakerLearner, Text: "Ow"}}},
	}}
	m, q := newTestManager(t, src, cs)

	if err := m.LoadConversation(context.Background(), "run-2"); err != nil {
		t.Fatalf("LoadConversation failed: %v", err)
	}
	if q.Len() != 1 {
		t.Errorf("expected 1 turn, got %d", q.Len())
	}

	// All fetched conversations are cached for offline replay
	if _, err := cs.GetConversation(context.Background(), "run-1"); err != nil {
		t.Error("sibling conversation not cached")
	}

	// Second load hits the store
	if err := m.LoadConversation(context.Background(), "run-2"); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if src.loadCalls != 1 {
		t.Errorf("expected 1 backend call total, got %d", src.loadCalls)
	}
}

func TestLoadConversationUnknown(t *testing.T) {
	src := &fakeSource{conversations: []model.Conversation{{ID: "run-1"}}}
	m, _ := newTestManager(t, src, newMemStore())

	if err := m.LoadConversation(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for unknown conversation")
	}
}

func TestConversationsMergesStoreAndRemote(t *testing.T) {
	cs := newMemStore()
	cs.SaveConversation(context.Background(), &model.Conversation{ID: "local-only", FinalVoltage: 150})
	src := &fakeSource{conversations: []model.Conversation{
		{ID: "remote-1", FinalVoltage: 450},
		{ID: "local-only", FinalVoltage: 150},
	}}
	m, _ := newTestManager(t, src, cs)

	list, err := m.Conversations(context.Background())
	if err != nil {
		t.Fatalf("Conversations failed: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("expected 2 deduplicated conversations, got %d: %+v", len(list), list)
	}
}

func TestConversationsOfflineFallsBackToStore(t *testing.T) {
	cs := newMemStore()
	cs.SaveConversation(context.Background(), &model.Conversation{ID: "cached", FinalVoltage: 300})
	src := &fakeSource{loadErr: errors.New("offline")}
	m, _ := newTestManager(t, src, cs)

	list, err := m.Conversations(context.Background())
	if err != nil {
		t.Fatalf("Conversations failed: %v", err)
	}
	if len(list) != 1 || list[0].ID != "cached" {
		t.Errorf("expected cached conversation only, got %+v", list)
	}
}

func TestResetClearsTranscriptAndQueue(t *testing.T) {
	src := &fakeSource{conversations: []model.Conversation{
		{ID: "run-1", Messages: []model.ConversationMessage{{Speaker: model.SpeakerProfessor, Text: "Hi"}}},
	}}
	m, q := newTestManager(t, src, newMemStore())

	if err := m.LoadConversation(context.Background(), "run-1"); err != nil {
		t.Fatal(err)
	}

	m.Reset()
	if q.Len() != 0 {
		t.Errorf("queue not cleared, %d turns left", q.Len())
	}
	if len(m.Messages()) != 0 {
		t.Error("transcript not cleared")
	}
	if m.LoadedConversation() != "" {
		t.Error("loaded id not cleared")
	}
}
