// Package openaitts implements tts.Provider using the OpenAI speech API directly,
// for running without the experiment backend's synthesis endpoint.
package openaitts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"milgramgo/pkg/config"
	"milgramgo/pkg/tracker"
	"milgramgo/pkg/tts"
)

const defaultModel = "gpt-4o-mini-tts"

// Provider implements tts.Provider for the OpenAI speech endpoint.
type Provider struct {
	client  openai.Client
	model   string
	tracker *tracker.Tracker
}

// NewProvider creates an OpenAI TTS provider.
func NewProvider(cfg config.OpenAITTSConfig, t *tracker.Tracker) (*Provider, error) {
	if cfg.Key == "" {
		return nil, fmt.Errorf("no OpenAI API key configured")
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	return &Provider{
		client:  openai.NewClient(option.WithAPIKey(cfg.Key)),
		model:   model,
		tracker: t,
	}, nil
}

// Synthesize generates speech via the OpenAI API and writes an mp3 file.
func (p *Provider) Synthesize(ctx context.Context, text, voice, outputPath string) (string, error) {
	if voice == "" {
		voice = string(openai.AudioSpeechNewParamsVoiceAlloy)
	}

	cleanText := tts.StripSpeakerLabels(text)

	resp, err := p.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model:          p.model,
		Voice:          openai.AudioSpeechNewParamsVoice(voice),
		Input:          cleanText,
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		tts.Log("OPENAI", cleanText, 0, err)
		if p.tracker != nil {
			p.tracker.TrackAPIFailure("openai")
		}
		return "", fmt.Errorf("speech request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		tts.Log("OPENAI", cleanText, resp.StatusCode, nil)
		if p.tracker != nil {
			p.tracker.TrackAPIFailure("openai")
		}
		errMsg := fmt.Sprintf("openai speech api error (status %d)", resp.StatusCode)
		return "", tts.NewFatalError(resp.StatusCode, errMsg)
	}

	tts.Log("OPENAI", cleanText, 200, nil)
	ext := "mp3"
	filename := outputPath
	if filepath.Ext(filename) != "."+ext {
		filename = filename + "." + ext
	}

	f, err := os.Create(filename)
	if err != nil {
		return "", fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		if p.tracker != nil {
			p.tracker.TrackAPIFailure("openai")
		}
		return "", fmt.Errorf("failed to write audio to file: %w", err)
	}
	f.Close()

	if err := tts.VerifyAudioFile(filename); err != nil {
		if p.tracker != nil {
			p.tracker.TrackAPIFailure("openai")
		}
		return "", err
	}

	if p.tracker != nil {
		p.tracker.TrackAPISuccess("openai")
	}

	return ext, nil
}

// Voices returns the OpenAI built-in voices used for the three roles.
func (p *Provider) Voices(ctx context.Context) ([]tts.Voice, error) {
	ids := []string{"alloy", "ash", "echo", "fable", "onyx", "nova", "shimmer"}
	voices := make([]tts.Voice, 0, len(ids))
	for _, id := range ids {
		voices = append(voices, tts.Voice{ID: id, Name: id, Language: "en-US", IsNeural: true})
	}
	return voices, nil
}
