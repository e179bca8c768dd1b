package tts

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

var speakerLabelRegex = regexp.MustCompile(`(?m)^[A-Za-z_]+(\s*\([^)]+\))?:\s*`)

// StripSpeakerLabels removes leading speaker labels like "Professor:" or
// "Learner (distressed):" from dialogue lines before synthesis.
func StripSpeakerLabels(script string) string {
	return speakerLabelRegex.ReplaceAllString(script, "")
}

// CollapseWhitespace normalizes runs of whitespace to single spaces.
// Stage directions sometimes arrive with hard line breaks mid-sentence.
func CollapseWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// VerifyAudioFile checks that a synthesized audio file exists and is at
// least MinAudioSize bytes. Providers sometimes return 200 with an error
// page or an empty body.
func VerifyAudioFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("audio file missing: %w", err)
	}
	if info.Size() < MinAudioSize {
		return fmt.Errorf("audio file too small: %d bytes (min %d)", info.Size(), MinAudioSize)
	}
	return nil
}
