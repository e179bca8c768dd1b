package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"milgramgo/pkg/model"
	"milgramgo/pkg/player"
	"milgramgo/pkg/turnqueue"
)

// QueueHandler exposes the turn queue for the transcript view.
type QueueHandler struct {
	queue  *turnqueue.Queue
	player *player.Player
}

// NewQueueHandler creates a new QueueHandler.
func NewQueueHandler(q *turnqueue.Queue, p *player.Player) *QueueHandler {
	return &QueueHandler{queue: q, player: p}
}

// QueueResponse is the transcript payload.
type QueueResponse struct {
	Turns []model.TurnSnapshot `json:"turns"`
	Count int                  `json:"count"`
}

// HandleQueue handles GET /api/queue
func (h *QueueHandler) HandleQueue(w http.ResponseWriter, r *http.Request) {
	turns := h.queue.Snapshot(h.player.Index())
	resp := QueueResponse{
		Turns: turns,
		Count: len(turns),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode queue", "error", err)
	}
}
