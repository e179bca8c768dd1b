package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"milgramgo/pkg/tracker"
	"milgramgo/pkg/tts"
)

func TestSynthesizeWritesAudio(t *testing.T) {
	fakeMP3 := append([]byte("ID3"), make([]byte, tts.MinAudioSize)...)

	var gotBody map[string]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tts" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write(fakeMP3)
	}))
	defer ts.Close()

	p := NewProvider(ts.URL, tracker.New())
	out := filepath.Join(t.TempDir(), "turn-1")

	format, err := p.Synthesize(context.Background(), "Professor: Please continue.", "Professor", out)
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if format != "mp3" {
		t.Errorf("expected mp3 format, got %s", format)
	}
	if gotBody["role"] != "Professor" {
		t.Errorf("expected role Professor, got %q", gotBody["role"])
	}
	if gotBody["message"] != "Please continue." {
		t.Errorf("expected stripped message, got %q", gotBody["message"])
	}

	data, err := os.ReadFile(out + ".mp3")
	if err != nil {
		t.Fatalf("output file missing: %v", err)
	}
	if string(data) != string(fakeMP3) {
		t.Errorf("output mismatch: %d bytes", len(data))
	}
}

func TestSynthesizeRejectsTruncatedAudio(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3"))
	}))
	defer ts.Close()

	p := NewProvider(ts.URL, tracker.New())
	_, err := p.Synthesize(context.Background(), "text", "Learner", filepath.Join(t.TempDir(), "out"))
	if err == nil {
		t.Fatal("expected error for truncated audio body")
	}
}

func TestSynthesizeServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "voice model unavailable", http.StatusBadGateway)
	}))
	defer ts.Close()

	p := NewProvider(ts.URL, tracker.New())

	_, err := p.Synthesize(context.Background(), "text", "Learner", filepath.Join(t.TempDir(), "out"))
	if err == nil {
		t.Fatal("expected error on 502")
	}
	if !tts.IsFatalError(err) {
		t.Errorf("expected FatalError, got %T", err)
	}
}

func TestSynthesizeMissingRole(t *testing.T) {
	p := NewProvider("http://localhost:0", tracker.New())
	if _, err := p.Synthesize(context.Background(), "text", "", "out"); err == nil {
		t.Fatal("expected error for missing role")
	}
}
