package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"milgramgo/pkg/player"
	"milgramgo/pkg/store"
)

// PlayerHandler handles playback control endpoints.
type PlayerHandler struct {
	player *player.Player
	state  store.StateStore
}

// NewPlayerHandler creates a new PlayerHandler. The state store may be nil;
// volume and rate are then not persisted across restarts.
func NewPlayerHandler(p *player.Player, st store.StateStore) *PlayerHandler {
	return &PlayerHandler{player: p, state: st}
}

// PlayerControlRequest represents a transport control command.
type PlayerControlRequest struct {
	Action string `json:"action"` // "toggle", "next", "previous", "mute"
}

// PlayerVolumeRequest represents a volume change request.
type PlayerVolumeRequest struct {
	Volume float64 `json:"volume"`
}

// PlayerRateRequest represents a playback speed change request.
type PlayerRateRequest struct {
	Rate float64 `json:"rate"`
}

// HandleControl handles POST /api/player/control
func (h *PlayerHandler) HandleControl(w http.ResponseWriter, r *http.Request) {
	var req PlayerControlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	switch req.Action {
	case "toggle":
		h.player.Toggle()
	case "next":
		h.player.SeekNext()
	case "previous":
		h.player.SeekPrevious()
	case "mute":
		h.player.ToggleMute()
	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
		return
	}

	slog.Debug("Player control", "action", req.Action)
	h.writeStatus(w)
}

// HandleVolume handles POST /api/player/volume
func (h *PlayerHandler) HandleVolume(w http.ResponseWriter, r *http.Request) {
	var req PlayerVolumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	h.player.SetVolume(req.Volume)
	h.persist(r, "volume", h.player.Status().Volume)
	h.writeStatus(w)
}

// HandleRate handles POST /api/player/rate
func (h *PlayerHandler) HandleRate(w http.ResponseWriter, r *http.Request) {
	var req PlayerRateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	h.player.SetRate(req.Rate)
	h.persist(r, "rate", h.player.Status().Rate)
	h.writeStatus(w)
}

// HandleStatus handles GET /api/player/status
func (h *PlayerHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	h.writeStatus(w)
}

func (h *PlayerHandler) writeStatus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.player.Status()); err != nil {
		slog.Error("Failed to encode player status", "error", err)
	}
}

func (h *PlayerHandler) persist(r *http.Request, key string, val float64) {
	if h.state == nil {
		return
	}
	strVal := fmt.Sprintf("%.2f", val)
	if err := h.state.SetState(r.Context(), key, strVal); err != nil {
		slog.Error("Failed to persist player setting", "key", key, "error", err)
	}
}
