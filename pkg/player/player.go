// Package player owns the sync cursor: the single authoritative pointer to
// the currently presented turn, the play/pause/seek state machine, and the
// presentation side effects (audio output, current scene image).
//
// Autoplay is level-triggered: a run-loop goroutine re-evaluates the
// playback conditions whenever any progress-enabling mutation kicks it, so
// playback starts whenever the conditions hold regardless of which event
// made them hold.
package player

import (
	"log/slog"
	"sync"
	"time"

	"milgramgo/pkg/audio"
	"milgramgo/pkg/logging"
	"milgramgo/pkg/media"
	"milgramgo/pkg/model"
	"milgramgo/pkg/turnqueue"
)

// Status is the cursor snapshot exposed to the UI.
type Status struct {
	Index   int     `json:"index"`
	Playing bool    `json:"playing"`
	Paused  bool    `json:"paused"`
	Ended   bool    `json:"ended"`
	Muted   bool    `json:"muted"`
	Volume  float64 `json:"volume"`
	Rate    float64 `json:"rate"`
}

// Player drives lock-step presentation of queue turns.
type Player struct {
	mu sync.Mutex

	queue *turnqueue.Queue
	audio audio.Service

	index          int
	playing        bool
	manuallyPaused bool
	awaitingNext   bool // current turn finished, waiting for the next to become ready
	ended          bool
	started        bool

	// playGen invalidates completion callbacks from superseded playbacks
	playGen uint64

	currentImage *media.Handle
	shockDwell   time.Duration

	kick     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	onUpdate func()
}

// New creates a Player. onUpdate may be nil; it is called outside the lock
// after every observable state change.
func New(queue *turnqueue.Queue, svc audio.Service, shockDwell time.Duration, onUpdate func()) *Player {
	if shockDwell <= 0 {
		shockDwell = 1300 * time.Millisecond
	}
	if onUpdate == nil {
		onUpdate = func() {}
	}
	return &Player{
		queue:      queue,
		audio:      svc,
		index:      -1,
		shockDwell: shockDwell,
		kick:       make(chan struct{}, 1),
		done:       make(chan struct{}),
		onUpdate:   onUpdate,
	}
}

// Start launches the run loop. Call once.
func (p *Player) Start() {
	go p.run()
}

// Stop terminates the run loop and stops audio output.
func (p *Player) Stop() {
	p.stopOnce.Do(func() { close(p.done) })
	p.audio.Stop()
}

// Kick asks the run loop to re-evaluate the autoplay conditions. Safe to
// call from any goroutine; coalesces while an evaluation is pending.
func (p *Player) Kick() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

func (p *Player) run() {
	for {
		select {
		case <-p.done:
			return
		case <-p.kick:
			p.evaluate()
		}
	}
}

// evaluate applies the level-triggered autoplay policy.
func (p *Player) evaluate() {
	p.mu.Lock()

	if !p.started || p.manuallyPaused || p.playing {
		p.mu.Unlock()
		return
	}

	changed := false
	switch {
	case p.index == -1:
		// Idle -> Ready(0) -> Playing(0)
		if p.queue.Ready(0) {
			p.index = 0
			p.playLocked()
			changed = true
		}
	case p.awaitingNext:
		// Stalled after finishing the current turn
		if p.queue.Ready(p.index + 1) {
			p.index++
			p.awaitingNext = false
			p.playLocked()
			changed = true
		}
	default:
		// Ready(i) with autoplay conditions satisfied
		if p.queue.Ready(p.index) {
			p.playLocked()
			changed = true
		}
	}

	p.mu.Unlock()
	if changed {
		p.onUpdate()
	}
}

// playLocked starts presentation of the turn at the current index. Caller
// holds p.mu and has verified readiness.
func (p *Player) playLocked() {
	turn, ok := p.queue.Get(p.index)
	if !ok {
		slog.Warn("Play requested for missing turn", "index", p.index)
		return
	}

	p.swapImageLocked(turn)

	p.playGen++
	gen := p.playGen
	p.playing = true
	p.ended = false

	if turn.Audio != nil {
		if err := p.audio.Play(turn.Audio.Path(), func() { p.finishPlayback(gen) }); err != nil {
			slog.Warn("Audio output rejected playback", "index", p.index, "error", err)
			// Pause rather than hot-loop on a failing output. An explicit
			// toggle retries.
			p.playing = false
			p.manuallyPaused = true
			return
		}
		logging.TraceDefault("Playback started", "index", p.index, "turn", turn.ID)
		return
	}

	// No audio artifact. Shock turns hold the scene for a fixed dwell,
	// anything else advances immediately.
	delay := time.Duration(0)
	if turn.Kind == model.TurnKindShock {
		delay = p.shockDwell
	}
	time.AfterFunc(delay, func() { p.finishPlayback(gen) })
	logging.TraceDefault("Synthetic playback started", "index", p.index, "kind", turn.Kind.String(), "dwell", delay)
}

// swapImageLocked replaces the displayed image with the turn's image,
// releasing the superseded handle. A turn with no image keeps the previous
// scene on screen.
func (p *Player) swapImageLocked(turn model.Turn) {
	if turn.Image == nil {
		return
	}
	if err := turn.Image.Retain(); err != nil {
		slog.Warn("Scene image vanished before display", "index", p.index, "error", err)
		return
	}
	if p.currentImage != nil {
		p.currentImage.Release()
	}
	p.currentImage = turn.Image
}

// finishPlayback handles the end of one turn's presentation, real or
// synthetic. Stale completions from superseded playbacks are dropped.
func (p *Player) finishPlayback(gen uint64) {
	p.mu.Lock()

	if gen != p.playGen || !p.playing {
		p.mu.Unlock()
		return
	}
	p.playing = false

	if p.index+1 < p.queue.Len() {
		if p.queue.Ready(p.index + 1) {
			p.index++
			p.playLocked()
		} else {
			// Stall until the pipeline catches up
			p.awaitingNext = true
		}
	} else {
		// End of queue. Suppress autoplay until an explicit command; if
		// more turns stream in later the user resumes deliberately.
		p.ended = true
		p.awaitingNext = true
		p.manuallyPaused = true
		slog.Info("Playback reached end of queue", "index", p.index)
	}

	p.mu.Unlock()
	p.onUpdate()
}

// SetStarted marks the session started (or not). The Idle -> Ready(0)
// transition requires it.
func (p *Player) SetStarted(started bool) {
	p.mu.Lock()
	p.started = started
	p.mu.Unlock()
	p.Kick()
}

// Toggle pauses active playback or clears the pause and resumes.
func (p *Player) Toggle() {
	p.mu.Lock()

	if p.index == -1 || p.queue.Len() == 0 {
		p.mu.Unlock()
		slog.Warn("Toggle ignored, no turn selected")
		return
	}

	if p.playing {
		p.audio.Pause()
		p.playing = false
		p.manuallyPaused = true
		p.mu.Unlock()
		p.onUpdate()
		return
	}

	p.manuallyPaused = false
	p.ended = false

	if p.audio.IsBusy() && p.audio.IsPaused() {
		p.audio.Resume()
		p.playing = true
		p.mu.Unlock()
		p.onUpdate()
		return
	}

	p.mu.Unlock()
	p.onUpdate()
	p.Kick()
}

// SeekNext moves the cursor forward by one, only onto a ready turn.
func (p *Player) SeekNext() {
	p.seek(1)
}

// SeekPrevious moves the cursor back by one, only onto a ready turn.
func (p *Player) SeekPrevious() {
	p.seek(-1)
}

func (p *Player) seek(delta int) {
	p.mu.Lock()

	target := p.index + delta
	if !p.queue.Ready(target) {
		p.mu.Unlock()
		slog.Warn("Seek ignored, target not ready", "target", target)
		return
	}

	// Seeking always stops current playback
	p.playGen++
	p.audio.Stop()
	p.playing = false
	p.awaitingNext = false
	p.ended = false
	p.index = target

	p.mu.Unlock()
	p.onUpdate()
	p.Kick()
}

// Reset returns the cursor to its initial state and releases the displayed
// image. The queue itself is reset by the session manager.
func (p *Player) Reset() {
	p.mu.Lock()

	p.playGen++
	p.audio.Stop()
	p.playing = false
	p.manuallyPaused = false
	p.awaitingNext = false
	p.ended = false
	p.started = false
	p.index = -1

	if p.currentImage != nil {
		p.currentImage.Release()
		p.currentImage = nil
	}

	p.mu.Unlock()
	p.onUpdate()
}

// SetVolume sets the output volume. Presentation-only, no state transitions.
func (p *Player) SetVolume(vol float64) {
	p.audio.SetVolume(vol)
	p.onUpdate()
}

// SetRate sets the playback speed multiplier.
func (p *Player) SetRate(rate float64) {
	p.audio.SetRate(rate)
	p.onUpdate()
}

// ToggleMute flips the mute state.
func (p *Player) ToggleMute() {
	p.audio.SetMuted(!p.audio.Muted())
	p.onUpdate()
}

// Index returns the current cursor position, -1 when nothing is selected.
func (p *Player) Index() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.index
}

// CurrentImagePath returns the path of the displayed scene image, or ""
// when none is shown.
func (p *Player) CurrentImagePath() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.currentImage == nil {
		return ""
	}
	return p.currentImage.Path()
}

// Status returns the cursor snapshot.
func (p *Player) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Status{
		Index:   p.index,
		Playing: p.playing,
		Paused:  p.manuallyPaused,
		Ended:   p.ended,
		Muted:   p.audio.Muted(),
		Volume:  p.audio.Volume(),
		Rate:    p.audio.Rate(),
	}
}
