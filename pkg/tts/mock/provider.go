// Package mock implements tts.Provider with locally generated silence,
// used for tests and for running the player without any speech service.
package mock

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"milgramgo/pkg/tts"
)

const (
	sampleRate = 8000
	// Duration scales with text length so playback pacing resembles speech.
	msPerChar   = 50
	minDuration = 300 * time.Millisecond
	maxDuration = 5 * time.Second
)

// Provider implements tts.Provider by writing silent WAV files.
type Provider struct{}

// NewProvider creates a mock provider.
func NewProvider() *Provider {
	return &Provider{}
}

// Synthesize writes a silent wav file sized to the text length.
func (p *Provider) Synthesize(ctx context.Context, text, voice, outputPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dur := time.Duration(len(text)*msPerChar) * time.Millisecond
	if dur < minDuration {
		dur = minDuration
	}
	if dur > maxDuration {
		dur = maxDuration
	}

	filename := outputPath
	if filepath.Ext(filename) != ".wav" {
		filename = filename + ".wav"
	}

	if err := writeSilence(filename, dur); err != nil {
		return "", fmt.Errorf("failed to write mock audio: %w", err)
	}
	return "wav", nil
}

// Voices returns a single placeholder voice.
func (p *Provider) Voices(ctx context.Context) ([]tts.Voice, error) {
	return []tts.Voice{{ID: "silence", Name: "Mock Silence", Language: "en-US"}}, nil
}

// writeSilence writes a 16-bit mono PCM WAV of zeros.
func writeSilence(path string, dur time.Duration) error {
	samples := int(float64(sampleRate) * dur.Seconds())
	dataLen := samples * 2

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+dataLen))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], 1) // mono
	binary.LittleEndian.PutUint32(header[24:28], sampleRate)
	binary.LittleEndian.PutUint32(header[28:32], sampleRate*2)
	binary.LittleEndian.PutUint16(header[32:34], 2)
	binary.LittleEndian.PutUint16(header[34:36], 16)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(dataLen))

	if _, err := f.Write(header); err != nil {
		return err
	}
	_, err = f.Write(make([]byte, dataLen))
	return err
}
