package api

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"milgramgo/pkg/audio"
	"milgramgo/pkg/model"
	"milgramgo/pkg/player"
	"milgramgo/pkg/turnqueue"
)

// silentAudio is an audio.Service that completes playback only on demand.
type silentAudio struct {
	mu       sync.Mutex
	playing  bool
	paused   bool
	volume   float64
	rate     float64
	muted    bool
	complete func()
}

func newSilentAudio() *silentAudio {
	return &silentAudio{volume: 0.8, rate: 2.0}
}

func (a *silentAudio) Play(path string, onComplete func()) error {
	a.mu.Lock()
	a.playing = true
	a.paused = false
	a.complete = onComplete
	a.mu.Unlock()
	return nil
}

func (a *silentAudio) finish() {
	a.mu.Lock()
	fn := a.complete
	a.playing = false
	a.complete = nil
	a.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (a *silentAudio) Pause()  { a.mu.Lock(); a.paused = true; a.mu.Unlock() }
func (a *silentAudio) Resume() { a.mu.Lock(); a.paused = false; a.mu.Unlock() }
func (a *silentAudio) Stop() {
	a.mu.Lock()
	a.playing = false
	a.paused = false
	a.complete = nil
	a.mu.Unlock()
}
func (a *silentAudio) Shutdown() { a.Stop() }

func (a *silentAudio) IsPlaying() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.playing && !a.paused
}

func (a *silentAudio) IsBusy() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.playing || a.paused
}

func (a *silentAudio) IsPaused() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.paused
}

func (a *silentAudio) SetVolume(vol float64) {
	if vol < 0 {
		vol = 0
	}
	if vol > 1 {
		vol = 1
	}
	a.mu.Lock()
	a.volume = vol
	a.mu.Unlock()
}

func (a *silentAudio) Volume() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.volume
}

func (a *silentAudio) SetRate(rate float64) {
	if rate < 0.5 {
		rate = 0.5
	}
	if rate > 4 {
		rate = 4
	}
	a.mu.Lock()
	a.rate = rate
	a.mu.Unlock()
}

func (a *silentAudio) Rate() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rate
}

func (a *silentAudio) SetMuted(muted bool) {
	a.mu.Lock()
	a.muted = muted
	a.mu.Unlock()
}

func (a *silentAudio) Muted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.muted
}

var _ audio.Service = (*silentAudio)(nil)

// fileProducers write real files so media handles can remove them.
type fileAudioProducer struct{}

func (fileAudioProducer) ProduceAudio(ctx context.Context, speaker model.Speaker, text, basePath string) (string, error) {
	path := basePath + ".mp3"
	return path, os.WriteFile(path, []byte("audio"), 0o644)
}

type fileImageProducer struct{}

func (fileImageProducer) ProduceImage(ctx context.Context, turn model.Turn, basePath string) (string, error) {
	path := basePath + ".png"
	return path, os.WriteFile(path, []byte("image"), 0o644)
}

type apiHarness struct {
	queue  *turnqueue.Queue
	player *player.Player
	audio  *silentAudio
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()

	dir := filepath.Join(t.TempDir(), "artifacts")
	svc := newSilentAudio()
	q := turnqueue.New(context.Background(), fileAudioProducer{}, fileImageProducer{}, dir, nil)
	p := player.New(q, svc, 50*time.Millisecond, nil)
	q.SetNotify(p.Kick)
	p.Start()
	t.Cleanup(p.Stop)

	return &apiHarness{queue: q, player: p, audio: svc}
}

// waitFor polls until cond is true or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

// memState is an in-memory store.StateStore.
type memState struct {
	mu   sync.Mutex
	vals map[string]string
}

func newMemState() *memState {
	return &memState{vals: make(map[string]string)}
}

func (s *memState) GetState(ctx context.Context, key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vals[key]
	return v, ok
}

func (s *memState) SetState(ctx context.Context, key, val string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vals[key] = val
	return nil
}
