// Package backend implements tts.Provider against the experiment backend's
// /api/tts endpoint, which maps speaker roles to voices server-side.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"milgramgo/pkg/tracker"
	"milgramgo/pkg/tts"
)

// Provider implements tts.Provider for the experiment backend.
type Provider struct {
	baseURL string
	client  *http.Client
	tracker *tracker.Tracker
}

type synthesisRequest struct {
	Role    string `json:"role"`
	Message string `json:"message"`
}

// NewProvider creates a backend TTS provider rooted at baseURL.
func NewProvider(baseURL string, t *tracker.Tracker) *Provider {
	return &Provider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		tracker: t,
	}
}

// Synthesize requests speech from the backend. The voice argument carries the
// speaker role; the backend owns the role-to-voice mapping.
func (p *Provider) Synthesize(ctx context.Context, text, voice, outputPath string) (string, error) {
	if voice == "" {
		return "", fmt.Errorf("no speaker role given for backend synthesis")
	}

	payload, err := json.Marshal(synthesisRequest{Role: voice, Message: tts.StripSpeakerLabels(text)})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/api/tts", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		tts.Log("BACKEND", text, 0, err)
		if p.tracker != nil {
			p.tracker.TrackAPIFailure("backend-tts")
		}
		return "", fmt.Errorf("api request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		tts.Log("BACKEND", text, resp.StatusCode, nil)
		body, err := io.ReadAll(resp.Body)
		bodyStr := string(body)
		if err != nil {
			bodyStr = fmt.Sprintf("[failed to read body: %v]", err)
		}
		if bodyStr == "" {
			bodyStr = "[empty body]"
		}

		if p.tracker != nil {
			p.tracker.TrackAPIFailure("backend-tts")
		}

		// FatalError for 4xx/5xx to trigger fallback
		errMsg := fmt.Sprintf("backend tts error (status %d): %s", resp.StatusCode, bodyStr)
		return "", tts.NewFatalError(resp.StatusCode, errMsg)
	}

	tts.Log("BACKEND", text, 200, nil)
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
			p.tracker.TrackAPIFailure("backend-tts")
		}
		return "", fmt.Errorf("failed to write audio to file: %w", err)
	}
	f.Close()

	if err := tts.VerifyAudioFile(filename); err != nil {
		if p.tracker != nil {
			p.tracker.TrackAPIFailure("backend-tts")
		}
		return "", err
	}

	if p.tracker != nil {
		p.tracker.TrackAPISuccess("backend-tts")
	}

	return ext, nil
}

// Voices returns the fixed roles the backend accepts.
func (p *Provider) Voices(ctx context.Context) ([]tts.Voice, error) {
	return []tts.Voice{
		{ID: "Professor", Name: "Professor (backend mapping)", Language: "en-US", IsNeural: true},
		{ID: "Learner", Name: "Learner (backend mapping)", Language: "en-US", IsNeural: true},
		{ID: "Participant", Name: "Participant (backend mapping)", Language: "en-US", IsNeural: true},
	}, nil
}
