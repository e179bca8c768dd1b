package api

import (
	"log/slog"
	"net/http"
	"os"

	"milgramgo/pkg/player"
)

// ImageHandler serves the scene image of the current turn.
type ImageHandler struct {
	player *player.Player
}

// NewImageHandler creates a new ImageHandler.
func NewImageHandler(p *player.Player) *ImageHandler {
	return &ImageHandler{player: p}
}

// HandleCurrentImage handles GET /api/images/current. It serves whatever
// scene the player currently displays, or 404 before the first turn plays.
func (h *ImageHandler) HandleCurrentImage(w http.ResponseWriter, r *http.Request) {
	path := h.player.CurrentImagePath()
	if path == "" {
		http.Error(w, "no scene available", http.StatusNotFound)
		return
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		http.Error(w, "scene image not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("Failed to stat scene image", "path", path, "error", err)
		http.Error(w, "internal processing error", http.StatusInternalServerError)
		return
	}
	if info.IsDir() {
		http.Error(w, "path is a directory", http.StatusBadRequest)
		return
	}

	// The image swaps per turn, never let the browser cache it
	w.Header().Set("Cache-Control", "no-store")
	http.ServeFile(w, r, path)
}
