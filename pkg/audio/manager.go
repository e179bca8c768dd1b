// Package audio provides playback of turn artifacts through the system
// audio output.
package audio

import (
	"log/slog"
	"math"
	"os"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/wav"
)

// Service defines the interface for audio playback control.
type Service interface {
	// Play starts playback of an audio file. onComplete is called when
	// playback finishes naturally (not when stopped manually).
	Play(filepath string, onComplete func()) error
	// Pause pauses current playback.
	Pause()
	// Resume resumes paused playback.
	Resume()
	// Stop stops current playback without firing onComplete.
	Stop()
	// Shutdown stops playback and releases the output device state.
	Shutdown()

	// IsPlaying returns true if audio is currently playing (not paused).
	IsPlaying() bool
	// IsBusy returns true if audio is loaded (playing or paused).
	IsBusy() bool
	// IsPaused returns true if playback is paused.
	IsPaused() bool

	// SetVolume sets playback volume (0.0 to 1.0).
	SetVolume(vol float64)
	// Volume returns the current volume level.
	Volume() float64
	// SetRate sets the playback speed multiplier (0.5 to 4.0), applied live.
	SetRate(rate float64)
	// Rate returns the current playback speed multiplier.
	Rate() float64
	// SetMuted silences output without changing the stored volume.
	SetMuted(muted bool)
	// Muted returns the mute state.
	Muted() bool
}

// Manager implements Service using gopxl/beep.
type Manager struct {
	mu                 sync.RWMutex
	ctrl               *beep.Ctrl
	resampler          *beep.Resampler
	volStreamer        *effects.Volume
	trackStreamer      beep.StreamSeekCloser
	trackFormat        beep.Format
	volume             float64
	rate               float64
	muted              bool
	isPaused           bool
	speakerInitialized bool
	deviceSampleRate   beep.SampleRate
}

// New creates a Manager with the given initial volume and rate.
func New(volume, rate float64) *Manager {
	if rate <= 0 {
		rate = 1.0
	}
	return &Manager{
		volume: clampVolume(volume),
		rate:   clampRate(rate),
	}
}

// Play starts playback of an audio file.
func (m *Manager) Play(filepath string, onComplete func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopLocked()

	streamer, format, err := m.decodeStreamer(filepath)
	if err != nil {
		return err
	}

	if err := m.ensureSpeakerInitialized(streamer); err != nil {
		return err
	}

	// One resampler covers both the device rate conversion and the
	// playback speed, so rate changes apply live via SetRatio.
	resampler := beep.ResampleRatio(3, m.ratioLocked(format), streamer)

	volStreamer := &effects.Volume{
		Streamer: resampler,
		Base:     2,
		Volume:   volumeToPower(m.volume),
		Silent:   m.muted || m.volume <= 0.01,
	}

	m.resampler = resampler
	m.volStreamer = volStreamer
	m.trackStreamer = streamer
	m.trackFormat = format

	m.ctrl = &beep.Ctrl{Streamer: volStreamer}
	m.isPaused = false

	speaker.Play(beep.Seq(m.ctrl, beep.Callback(func() {
		// Run completion off the speaker thread
		go func() {
			m.mu.Lock()
			m.ctrl = nil
			m.isPaused = false
			m.mu.Unlock()
			streamer.Close()

			if onComplete != nil {
				onComplete()
			}
		}()
	})))

	slog.Debug("Playing audio", "path", filepath, "rate", m.rate)
	return nil
}

// Pause pauses current playback.
func (m *Manager) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctrl != nil {
		speaker.Lock()
		m.ctrl.Paused = true
		speaker.Unlock()
		m.isPaused = true
	}
}

// Resume resumes paused playback.
func (m *Manager) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctrl != nil && m.isPaused {
		speaker.Lock()
		m.ctrl.Paused = false
		speaker.Unlock()
		m.isPaused = false
	}
}

// Stop stops current playback.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

func (m *Manager) stopLocked() {
	if m.trackStreamer != nil {
		m.trackStreamer.Close()
		m.trackStreamer = nil
	}
	if m.ctrl != nil {
		speaker.Clear()
		m.ctrl = nil
		m.isPaused = false
	}
}

// Shutdown stops playback.
func (m *Manager) Shutdown() {
	m.Stop()
}

// IsPlaying returns true if audio is currently playing.
func (m *Manager) IsPlaying() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ctrl != nil && !m.isPaused
}

// IsBusy returns true if audio is loaded (playing or paused).
func (m *Manager) IsBusy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ctrl != nil
}

// IsPaused returns true if playback is paused.
func (m *Manager) IsPaused() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isPaused
}

// SetVolume sets playback volume (0.0 to 1.0).
func (m *Manager) SetVolume(vol float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.volume = clampVolume(vol)

	if m.volStreamer != nil {
		speaker.Lock()
		m.volStreamer.Volume = volumeToPower(m.volume)
		m.volStreamer.Silent = m.muted || m.volume <= 0.01
		speaker.Unlock()
	}
}

// Volume returns the current volume level.
func (m *Manager) Volume() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.volume
}

// SetRate sets the playback speed multiplier, applied live to the current
// stream.
func (m *Manager) SetRate(rate float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rate = clampRate(rate)

	if m.resampler != nil {
		speaker.Lock()
		m.resampler.SetRatio(m.ratioLocked(m.trackFormat))
		speaker.Unlock()
	}
}

// Rate returns the current playback speed multiplier.
func (m *Manager) Rate() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rate
}

// SetMuted silences output without touching the stored volume.
func (m *Manager) SetMuted(muted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.muted = muted

	if m.volStreamer != nil {
		speaker.Lock()
		m.volStreamer.Silent = muted || m.volume <= 0.01
		speaker.Unlock()
	}
}

// Muted returns the mute state.
func (m *Manager) Muted() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.muted
}

// ratioLocked computes the resample ratio combining the source-to-device
// conversion with the playback speed.
func (m *Manager) ratioLocked(format beep.Format) float64 {
	if m.deviceSampleRate == 0 || format.SampleRate == 0 {
		return m.rate
	}
	return float64(format.SampleRate) / float64(m.deviceSampleRate) * m.rate
}

func (m *Manager) ensureSpeakerInitialized(streamer beep.StreamSeekCloser) error {
	const targetSampleRate = 48000
	if !m.speakerInitialized {
		err := speaker.Init(beep.SampleRate(targetSampleRate), beep.SampleRate(targetSampleRate).N(time.Second/10))
		if err != nil {
			streamer.Close()
			slog.Error("Failed to initialize speaker", "error", err)
			return err
		}
		m.speakerInitialized = true
		m.deviceSampleRate = beep.SampleRate(targetSampleRate)
	}
	return nil
}

func (m *Manager) decodeStreamer(path string) (beep.StreamSeekCloser, beep.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		slog.Error("Failed to open audio file", "path", path, "error", err)
		return nil, beep.Format{}, err
	}

	// Try MP3 first
	streamer, format, err := mp3.Decode(f)
	if err == nil {
		return streamer, format, nil
	}

	// Reopen for the WAV attempt, the failed MP3 decode may have consumed bytes
	f.Close()
	f, err = os.Open(path)
	if err != nil {
		return nil, beep.Format{}, err
	}

	streamer, format, err = wav.Decode(f)
	if err != nil {
		f.Close()
		slog.Error("Failed to decode audio file", "path", path, "error", err)
		return nil, beep.Format{}, err
	}

	return streamer, format, nil
}

func volumeToPower(vol float64) float64 {
	// Beep's effects.Volume adds to the exponent (base 2). Unity gain at
	// vol 1.0, log taper below.
	if vol <= 0.01 {
		return -10
	}
	return math.Log2(vol)
}

func clampVolume(vol float64) float64 {
	if vol < 0 {
		return 0
	}
	if vol > 1 {
		return 1
	}
	return vol
}

func clampRate(rate float64) float64 {
	if rate < 0.5 {
		return 0.5
	}
	if rate > 4.0 {
		return 4.0
	}
	return rate
}
