package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"milgramgo/pkg/model"
)

func TestQueueHandler_Empty(t *testing.T) {
	h := newAPIHarness(t)
	handler := NewQueueHandler(h.queue, h.player)

	req := httptest.NewRequest("GET", "/api/queue", nil)
	rr := httptest.NewRecorder()
	handler.HandleQueue(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	var resp QueueResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 0 {
		t.Errorf("Expected empty queue, got %d turns", resp.Count)
	}
}

func TestQueueHandler_MarksCurrentTurn(t *testing.T) {
	h := newAPIHarness(t)
	handler := NewQueueHandler(h.queue, h.player)

	h.queue.Enqueue(model.SpeakerProfessor, "The experiment requires that you continue.")
	h.queue.Enqueue(model.SpeakerShockDevice, model.ShockSentinel)
	h.player.SetStarted(true)
	waitFor(t, 2*time.Second, func() bool { return h.player.Status().Playing })

	req := httptest.NewRequest("GET", "/api/queue", nil)
	rr := httptest.NewRecorder()
	handler.HandleQueue(rr, req)

	var resp QueueResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 2 {
		t.Fatalf("Expected 2 turns, got %d", resp.Count)
	}
	if !resp.Turns[0].Current {
		t.Error("Expected first turn to be current")
	}
	if resp.Turns[1].Current {
		t.Error("Expected second turn not current")
	}
	if resp.Turns[0].Kind != "speech" || resp.Turns[1].Kind != "shock" {
		t.Errorf("Unexpected kinds: %s, %s", resp.Turns[0].Kind, resp.Turns[1].Kind)
	}
	if !resp.Turns[0].Ready {
		t.Error("Expected first turn ready")
	}
}
