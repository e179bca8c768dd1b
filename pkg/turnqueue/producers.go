package turnqueue

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"milgramgo/pkg/model"
	"milgramgo/pkg/scene"
	"milgramgo/pkg/tts"
)

// SpeechProducer adapts a tts.Provider to the queue's AudioProducer,
// selecting the voice per speaker role. A fatal synthesis error switches
// the producer to the fallback provider for the rest of the session.
type SpeechProducer struct {
	provider tts.Provider
	fallback tts.Provider
	voices   map[string]string // speaker role -> voice ID

	mu          sync.Mutex
	useFallback bool
}

// NewSpeechProducer creates a SpeechProducer. fallback may be nil.
func NewSpeechProducer(provider, fallback tts.Provider, voices map[string]string) *SpeechProducer {
	return &SpeechProducer{provider: provider, fallback: fallback, voices: voices}
}

// ProduceAudio synthesizes speech for one turn and returns the artifact path.
func (p *SpeechProducer) ProduceAudio(ctx context.Context, speaker model.Speaker, text, basePath string) (string, error) {
	voice := p.voices[string(speaker)]

	format, err := p.current().Synthesize(ctx, text, voice, basePath)
	if err == nil {
		return withExt(basePath, format), nil
	}

	if tts.IsFatalError(err) && p.activateFallback() {
		slog.Warn("TTS: fatal synthesis error, switching to fallback engine", "error", err)
		format, err = p.fallback.Synthesize(ctx, text, voice, basePath)
		if err == nil {
			return withExt(basePath, format), nil
		}
	}
	return "", fmt.Errorf("synthesis failed for %s: %w", speaker, err)
}

func (p *SpeechProducer) current() tts.Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.useFallback {
		return p.fallback
	}
	return p.provider
}

// activateFallback flips to the fallback provider. It returns false when
// there is no fallback or it is already active.
func (p *SpeechProducer) activateFallback() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fallback == nil || p.useFallback {
		return false
	}
	p.useFallback = true
	return true
}

// SceneProducer adapts a scene.Renderer to the queue's ImageProducer.
type SceneProducer struct {
	renderer scene.Renderer
}

// NewSceneProducer creates a SceneProducer.
func NewSceneProducer(renderer scene.Renderer) *SceneProducer {
	return &SceneProducer{renderer: renderer}
}

// ProduceImage renders the scene for one turn and returns the artifact path.
func (p *SceneProducer) ProduceImage(ctx context.Context, turn model.Turn, basePath string) (string, error) {
	format, err := p.renderer.Render(ctx, ParamsForTurn(turn), basePath)
	if err != nil {
		return "", fmt.Errorf("scene render failed: %w", err)
	}
	return withExt(basePath, format), nil
}

// ParamsForTurn maps a turn onto the fixed scene parameter set. Shock turns
// show the shock overlay with no speech bubble; speech turns put the text
// in the speaking character's bubble.
func ParamsForTurn(turn model.Turn) scene.Params {
	if turn.Kind == model.TurnKindShock {
		return scene.Params{DisplayShock: true}
	}

	params := scene.Params{}
	switch turn.Speaker {
	case model.SpeakerProfessor:
		params.ProfessorMessage = turn.Text
	case model.SpeakerLearner:
		params.LearnerMessage = turn.Text
	case model.SpeakerParticipant:
		params.ParticipantMessage = turn.Text
	}
	return params
}

func withExt(basePath, format string) string {
	if filepath.Ext(basePath) == "."+format {
		return basePath
	}
	return basePath + "." + format
}
