package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"milgramgo/pkg/model"
	"milgramgo/pkg/session"
)

// SessionHandler handles session lifecycle endpoints.
type SessionHandler struct {
	manager *session.Manager
	// baseCtx bounds live streams, which must outlive the HTTP request
	baseCtx context.Context
}

// NewSessionHandler creates a new SessionHandler. baseCtx should be the
// application context so a live stream survives the request that started it.
func NewSessionHandler(m *session.Manager, baseCtx context.Context) *SessionHandler {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &SessionHandler{manager: m, baseCtx: baseCtx}
}

// SessionLoadRequest identifies a stored conversation to replay.
type SessionLoadRequest struct {
	ConversationID string `json:"conversation_id"`
}

// SessionStatusResponse reports the session state after a lifecycle change.
type SessionStatusResponse struct {
	Status    string          `json:"status"`
	Streaming bool            `json:"streaming"`
	LoadedID  string          `json:"loaded_id,omitempty"`
	Messages  []model.Message `json:"messages,omitempty"`
}

// HandleStart handles POST /api/session/start
func (h *SessionHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.StartLive(h.baseCtx); err != nil {
		slog.Error("Failed to start live session", "error", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	h.writeState(w, "started")
}

// HandleLoad handles POST /api/session/load
func (h *SessionHandler) HandleLoad(w http.ResponseWriter, r *http.Request) {
	var req SessionLoadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ConversationID == "" {
		http.Error(w, "missing conversation_id", http.StatusBadRequest)
		return
	}

	if err := h.manager.LoadConversation(r.Context(), req.ConversationID); err != nil {
		slog.Error("Failed to load conversation", "id", req.ConversationID, "error", err)
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	h.writeState(w, "loaded")
}

// HandleReset handles POST /api/session/reset
func (h *SessionHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	h.manager.Reset()
	h.writeState(w, "reset")
}

// HandleConversations handles GET /api/conversations
func (h *SessionHandler) HandleConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := h.manager.Conversations(r.Context())
	if err != nil {
		slog.Error("Failed to list conversations", "error", err)
		http.Error(w, "conversation list unavailable", http.StatusBadGateway)
		return
	}
	if convs == nil {
		convs = []model.ConversationSummary{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(convs); err != nil {
		slog.Error("Failed to encode conversations", "error", err)
	}
}

func (h *SessionHandler) writeState(w http.ResponseWriter, status string) {
	resp := SessionStatusResponse{
		Status:    status,
		Streaming: h.manager.Streaming(),
		LoadedID:  h.manager.LoadedConversation(),
		Messages:  h.manager.Messages(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode session state", "error", err)
	}
}
