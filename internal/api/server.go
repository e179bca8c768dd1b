package api

import (
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"milgramgo/internal/ui"
	"milgramgo/pkg/version"
)

// NewServer creates and configures the HTTP server.
// It accepts handlers for all API endpoints and a shutdownFunc for graceful shutdown.
func NewServer(addr string, playerH *PlayerHandler, queueH *QueueHandler, sessionH *SessionHandler, imageH *ImageHandler, stats *StatsHandler, hub *Hub, shutdown func()) *http.Server {
	mux := http.NewServeMux()

	// 1. Health Endpoint
	mux.HandleFunc("GET /health", handleHealth)

	// 2. Version Endpoint
	mux.HandleFunc("GET /api/version", handleVersion)

	// 3. Player Endpoints
	mux.HandleFunc("GET /api/player/status", playerH.HandleStatus)
	mux.HandleFunc("POST /api/player/control", playerH.HandleControl)
	mux.HandleFunc("POST /api/player/volume", playerH.HandleVolume)
	mux.HandleFunc("POST /api/player/rate", playerH.HandleRate)

	// 4. Queue Endpoint
	mux.HandleFunc("GET /api/queue", queueH.HandleQueue)

	// 5. Session Endpoints
	mux.HandleFunc("POST /api/session/start", sessionH.HandleStart)
	mux.HandleFunc("POST /api/session/load", sessionH.HandleLoad)
	mux.HandleFunc("POST /api/session/reset", sessionH.HandleReset)
	mux.HandleFunc("GET /api/conversations", sessionH.HandleConversations)

	// 6. Current Scene Image
	mux.HandleFunc("GET /api/images/current", imageH.HandleCurrentImage)

	// 7. Stats Endpoint
	mux.Handle("GET /api/stats", stats)

	// 8. Logs Endpoint
	mux.HandleFunc("GET /api/log/latest", handleLatestLog)

	// 9. WebSocket state push
	mux.HandleFunc("GET /ws", hub.HandleWS)

	// 10. Shutdown Endpoint
	mux.HandleFunc("POST /api/shutdown", func(w http.ResponseWriter, r *http.Request) {
		slog.Info("Shutdown requested via API")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("Shutting down...")); err != nil {
			slog.Warn("Failed to write shutdown response", "error", err)
		}

		// Delay slightly to allow response flush
		go func() {
			time.Sleep(100 * time.Millisecond)
			shutdown()
		}()
	})

	// 11. Static Files (UI) with SPA fallback
	distFS, err := fs.Sub(ui.DistFS, "dist")
	if err != nil {
		slog.Error("Failed to mount embedded UI", "error", err)
	} else {
		mux.Handle("/", http.FileServer(&spaFileSystem{root: http.FS(distFS)}))
	}

	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Warn("Failed to write health response", "error", err)
	}
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"version": "%s"}`, version.Version)
}
