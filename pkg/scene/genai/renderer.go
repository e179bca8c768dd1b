// Package genai implements scene.Renderer using Google's image generation API.
// Instead of compositing sprites it asks the model for a full illustration of
// the laboratory scene described by the turn parameters.
package genai

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"google.golang.org/genai"

	"milgramgo/pkg/config"
	"milgramgo/pkg/scene"
	"milgramgo/pkg/tracker"
)

const defaultModel = "imagen-3.0-generate-002"

// Renderer implements scene.Renderer via the genai SDK.
type Renderer struct {
	client  *genai.Client
	model   string
	tracker *tracker.Tracker
}

// NewRenderer creates a genai-backed scene renderer.
func NewRenderer(cfg config.GenAISceneConfig, t *tracker.Tracker) (*Renderer, error) {
	if cfg.Key == "" {
		return nil, fmt.Errorf("no GenAI API key configured")
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.Key,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}

	return &Renderer{client: client, model: model, tracker: t}, nil
}

// Render asks the model for a scene illustration and writes it to outputPath.
// On API failure a plain backdrop is written so the turn can still complete.
func (r *Renderer) Render(ctx context.Context, params scene.Params, outputPath string) (string, error) {
	prompt := buildPrompt(params)

	resp, err := r.client.Models.GenerateImages(ctx, r.model, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
	})
	if err != nil {
		if r.tracker != nil {
			r.tracker.TrackAPIFailure("genai")
		}
		return scene.WriteFallback(outputPath)
	}

	if len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil {
		if r.tracker != nil {
			r.tracker.TrackAPIFailure("genai")
		}
		return scene.WriteFallback(outputPath)
	}

	if r.tracker != nil {
		r.tracker.TrackAPISuccess("genai")
	}

	if filepath.Ext(outputPath) != ".png" {
		outputPath += ".png"
	}
	if err := os.WriteFile(outputPath, resp.GeneratedImages[0].Image.ImageBytes, 0o644); err != nil {
		return "", fmt.Errorf("failed to write image: %w", err)
	}
	return "png", nil
}

// buildPrompt describes the fixed laboratory layout and the active line.
func buildPrompt(params scene.Params) string {
	var sb strings.Builder
	sb.WriteString("A 1960s psychology laboratory, flat illustration style. ")
	sb.WriteString("A professor in a grey lab coat stands on the right. ")
	sb.WriteString("A participant sits at a shock generator panel on the left. ")
	sb.WriteString("A learner is strapped to a chair behind a glass window at the back. ")

	switch {
	case params.DisplayShock:
		sb.WriteString("Electric sparks surround the learner's chair, the room lit with harsh flickering light.")
	case params.ProfessorMessage != "":
		sb.WriteString(fmt.Sprintf("The professor is speaking sternly: %q.", params.ProfessorMessage))
	case params.ParticipantMessage != "":
		sb.WriteString(fmt.Sprintf("The participant is speaking hesitantly: %q.", params.ParticipantMessage))
	case params.LearnerMessage != "":
		sb.WriteString(fmt.Sprintf("The learner is calling out from the chair: %q.", params.LearnerMessage))
	default:
		sb.WriteString("The room is quiet, everyone waiting.")
	}

	return sb.String()
}
