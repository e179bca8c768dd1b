package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"milgramgo/pkg/model"
	"milgramgo/pkg/player"
)

func postJSON(t *testing.T, handler http.HandlerFunc, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest("POST", target, bytes.NewBuffer(data))
	rr := httptest.NewRecorder()
	handler(rr, req)
	return rr
}

func decodeStatus(t *testing.T, rr *httptest.ResponseRecorder) player.Status {
	t.Helper()
	var st player.Status
	if err := json.Unmarshal(rr.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	return st
}

func TestPlayerHandler_Status(t *testing.T) {
	h := newAPIHarness(t)
	handler := NewPlayerHandler(h.player, nil)

	req := httptest.NewRequest("GET", "/api/player/status", nil)
	rr := httptest.NewRecorder()
	handler.HandleStatus(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	st := decodeStatus(t, rr)
	if st.Index != -1 {
		t.Errorf("Expected index -1 before playback, got %d", st.Index)
	}
	if st.Playing {
		t.Error("Expected not playing")
	}
}

func TestPlayerHandler_Control(t *testing.T) {
	h := newAPIHarness(t)
	handler := NewPlayerHandler(h.player, nil)

	t.Run("Unknown action", func(t *testing.T) {
		rr := postJSON(t, handler.HandleControl, "/api/player/control", PlayerControlRequest{Action: "rewind"})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", rr.Code)
		}
	})

	t.Run("Invalid JSON", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/player/control", bytes.NewBufferString("{invalid}"))
		rr := httptest.NewRecorder()
		handler.HandleControl(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", rr.Code)
		}
	})

	t.Run("Mute toggles", func(t *testing.T) {
		rr := postJSON(t, handler.HandleControl, "/api/player/control", PlayerControlRequest{Action: "mute"})
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", rr.Code)
		}
		if st := decodeStatus(t, rr); !st.Muted {
			t.Error("Expected muted after mute action")
		}

		rr = postJSON(t, handler.HandleControl, "/api/player/control", PlayerControlRequest{Action: "mute"})
		if st := decodeStatus(t, rr); st.Muted {
			t.Error("Expected unmuted after second mute action")
		}
	})

	t.Run("Toggle pauses playback", func(t *testing.T) {
		h.queue.Enqueue(model.SpeakerProfessor, "Continue, please.")
		h.player.SetStarted(true)
		waitFor(t, 2*time.Second, func() bool { return h.player.Status().Playing })

		rr := postJSON(t, handler.HandleControl, "/api/player/control", PlayerControlRequest{Action: "toggle"})
		st := decodeStatus(t, rr)
		if st.Playing {
			t.Error("Expected paused after toggle")
		}
		if !st.Paused {
			t.Error("Expected paused flag set")
		}
	})
}

func TestPlayerHandler_VolumeAndRate(t *testing.T) {
	h := newAPIHarness(t)
	state := newMemState()
	handler := NewPlayerHandler(h.player, state)

	rr := postJSON(t, handler.HandleVolume, "/api/player/volume", PlayerVolumeRequest{Volume: 1.7})
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	if st := decodeStatus(t, rr); st.Volume != 1.0 {
		t.Errorf("Expected volume clamped to 1.0, got %f", st.Volume)
	}
	if v, ok := state.GetState(context.Background(), "volume"); !ok || v != "1.00" {
		t.Errorf("Expected persisted volume 1.00, got %q", v)
	}

	rr = postJSON(t, handler.HandleRate, "/api/player/rate", PlayerRateRequest{Rate: 0.1})
	if st := decodeStatus(t, rr); st.Rate != 0.5 {
		t.Errorf("Expected rate clamped to 0.5, got %f", st.Rate)
	}
	if v, ok := state.GetState(context.Background(), "rate"); !ok || v != "0.50" {
		t.Errorf("Expected persisted rate 0.50, got %q", v)
	}
}
