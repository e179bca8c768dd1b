// Package turnqueue owns the ordered turn list and the media pipeline that
// turns raw speaker/text pairs into playable audio and scene artifacts.
//
// The pipeline is single-flight: at most one turn is in production at any
// time, strictly in queue order. A generation counter guards against
// completions that were dispatched before a Reset.
package turnqueue

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"milgramgo/pkg/media"
	"milgramgo/pkg/model"
)

// AudioProducer generates the speech artifact for a turn and returns the
// final file path.
type AudioProducer interface {
	ProduceAudio(ctx context.Context, speaker model.Speaker, text, basePath string) (string, error)
}

// ImageProducer generates the scene artifact for a turn and returns the
// final file path.
type ImageProducer interface {
	ProduceImage(ctx context.Context, turn model.Turn, basePath string) (string, error)
}

// Queue is the synchronized turn queue.
type Queue struct {
	mu sync.Mutex

	turns   []*model.Turn
	nextIdx int // first turn not yet sent to production

	inFlight bool
	gen      uint64 // bumped on Reset, stale completions are dropped

	audio        AudioProducer
	image        ImageProducer
	artifactsDir string

	ctx    context.Context
	notify func() // fired after enqueue and after a turn becomes ready
}

// New creates a Queue. notify may be nil; it is called outside the lock.
func New(ctx context.Context, audio AudioProducer, image ImageProducer, artifactsDir string, notify func()) *Queue {
	if notify == nil {
		notify = func() {}
	}
	return &Queue{
		audio:        audio,
		image:        image,
		artifactsDir: artifactsDir,
		ctx:          ctx,
		notify:       notify,
	}
}

// SetNotify replaces the notification callback. Used during wiring, before
// any turns are enqueued.
func (q *Queue) SetNotify(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if fn == nil {
		fn = func() {}
	}
	q.notify = fn
}

// Enqueue appends a turn and kicks the pipeline. The turn kind is decided
// here, once, and never re-derived downstream.
func (q *Queue) Enqueue(speaker model.Speaker, text string) *model.Turn {
	turn := &model.Turn{
		ID:      uuid.NewString(),
		Speaker: speaker,
		Kind:    model.ClassifyTurn(speaker, text),
		Text:    text,
	}

	q.mu.Lock()
	q.turns = append(q.turns, turn)
	q.mu.Unlock()

	slog.Debug("Turn enqueued", "id", turn.ID, "speaker", speaker, "kind", turn.Kind)
	q.notify()
	q.pump()
	return turn
}

// Len returns the number of turns in the queue.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.turns)
}

// Get returns a copy of the turn at index i.
func (q *Queue) Get(i int) (model.Turn, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if i < 0 || i >= len(q.turns) {
		return model.Turn{}, false
	}
	return *q.turns[i], true
}

// Ready reports whether the turn at index i has finished production.
func (q *Queue) Ready(i int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return i >= 0 && i < len(q.turns) && q.turns[i].Ready
}

// Snapshot returns the UI view of the queue. currentIdx marks the cursor
// position; pass a negative value for no cursor.
func (q *Queue) Snapshot(currentIdx int) []model.TurnSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]model.TurnSnapshot, len(q.turns))
	for i, t := range q.turns {
		out[i] = model.TurnSnapshot{
			ID:      t.ID,
			Speaker: t.Speaker,
			Kind:    t.Kind.String(),
			Text:    t.Text,
			Ready:   t.Ready,
			Current: i == currentIdx,
		}
	}
	return out
}

// Reset drops all turns and releases their artifacts. Any in-flight
// production keeps running but its completion is discarded.
func (q *Queue) Reset() {
	q.mu.Lock()
	turns := q.turns
	q.turns = nil
	q.nextIdx = 0
	q.gen++
	q.inFlight = false
	q.mu.Unlock()

	for _, t := range turns {
		releaseTurn(t)
	}
	slog.Info("Turn queue reset", "dropped", len(turns))
	q.notify()
}

// pump starts production of the next pending turn if the pipeline is idle.
func (q *Queue) pump() {
	q.mu.Lock()
	if q.inFlight || q.nextIdx >= len(q.turns) {
		q.mu.Unlock()
		return
	}
	turn := *q.turns[q.nextIdx]
	gen := q.gen
	q.inFlight = true
	q.nextIdx++
	q.mu.Unlock()

	go q.produce(gen, turn)
}

// produce runs both producers for one turn. Producer failures are
// tolerated: the corresponding handle stays nil and the turn still becomes
// ready, so one bad synthesis cannot wedge the queue.
func (q *Queue) produce(gen uint64, turn model.Turn) {
	if err := os.MkdirAll(q.artifactsDir, 0o755); err != nil {
		slog.Error("Failed to create artifacts dir", "dir", q.artifactsDir, "error", err)
	}

	var (
		audioHandle *media.Handle
		imageHandle *media.Handle
		wg          sync.WaitGroup
	)

	if turn.Kind == model.TurnKindSpeech && q.audio != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			base := filepath.Join(q.artifactsDir, fmt.Sprintf("turn-%s-audio", turn.ID))
			path, err := q.audio.ProduceAudio(q.ctx, turn.Speaker, turn.Text, base)
			if err != nil {
				slog.Warn("Audio production failed", "turn", turn.ID, "speaker", turn.Speaker, "error", err)
				return
			}
			audioHandle = media.NewHandle(path)
		}()
	}

	if q.image != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			base := filepath.Join(q.artifactsDir, fmt.Sprintf("turn-%s-scene", turn.ID))
			path, err := q.image.ProduceImage(q.ctx, turn, base)
			if err != nil {
				slog.Warn("Scene production failed", "turn", turn.ID, "error", err)
				return
			}
			imageHandle = media.NewHandle(path)
		}()
	}

	wg.Wait()
	q.complete(gen, turn.ID, audioHandle, imageHandle)
}

// complete publishes the artifacts for a finished turn, unless the queue
// was reset since production started.
func (q *Queue) complete(gen uint64, turnID string, audioHandle, imageHandle *media.Handle) {
	q.mu.Lock()
	if gen != q.gen {
		q.mu.Unlock()
		// The queue moved on, the artifacts have no owner
		if audioHandle != nil {
			audioHandle.Release()
		}
		if imageHandle != nil {
			imageHandle.Release()
		}
		slog.Debug("Stale production discarded", "turn", turnID)
		return
	}

	for _, t := range q.turns {
		if t.ID == turnID {
			t.Audio = audioHandle
			t.Image = imageHandle
			t.Ready = true
			break
		}
	}
	q.inFlight = false
	q.mu.Unlock()

	slog.Debug("Turn ready", "turn", turnID, "audio", audioHandle != nil, "image", imageHandle != nil)
	q.notify()
	q.pump()
}

func releaseTurn(t *model.Turn) {
	if t.Audio != nil {
		t.Audio.Release()
	}
	if t.Image != nil {
		t.Image.Release()
	}
}
