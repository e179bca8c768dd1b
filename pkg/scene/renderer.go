// Package scene defines the scene image producer interface and parameters.
// A scene shows the three participants of the experiment with the active
// speaker's speech bubble, or the shock overlay for punishment turns.
package scene

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
)

// CanvasSize is the width and height of generated scene images.
const CanvasSize = 1024

// Params describes the scene to render for one turn.
type Params struct {
	ProfessorMessage   string
	ParticipantMessage string
	LearnerMessage     string
	DisplayShock       bool
}

// Renderer produces a scene image file for the given parameters.
type Renderer interface {
	// Render writes an image to outputPath and returns the format ("png").
	Render(ctx context.Context, params Params, outputPath string) (string, error)
}

// fallbackColor matches the plain backdrop used when rendering fails upstream.
var fallbackColor = color.RGBA{R: 0xF0, G: 0xF0, B: 0xF0, A: 0xFF}

// WriteFallback writes a solid backdrop image, used when a renderer fails
// and the turn should still become ready with a placeholder.
func WriteFallback(outputPath string) (string, error) {
	img := image.NewRGBA(image.Rect(0, 0, CanvasSize, CanvasSize))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = fallbackColor.R
		img.Pix[i+1] = fallbackColor.G
		img.Pix[i+2] = fallbackColor.B
		img.Pix[i+3] = 0xFF
	}
	return "png", writePNG(outputPath, img)
}

func writePNG(outputPath string, img image.Image) error {
	if filepath.Ext(outputPath) != ".png" {
		outputPath += ".png"
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create image file: %w", err)
	}
	defer f.Close()
	return png.Encode(f, img)
}

// Mock is a Renderer that writes the fallback backdrop, for tests and
// running without scene assets.
type Mock struct{}

// Render writes a plain backdrop image.
func (Mock) Render(ctx context.Context, params Params, outputPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return WriteFallback(outputPath)
}
