package handler

import (
	"context"
	"net/http"

	"github.com/go-notify-nosql/internal/application/session"
)

type realtimeHub interface {
	Broadcast(ctx context.Context, message string, recipientIDs []string) int
	ConnectionCount() int
}

type sessionStats interface {
	Stats() session.Stats
}

// RealtimeHandler exposes administrative views of live sessions.
type RealtimeHandler struct {
	hub      realtimeHub
	sessions sessionStats
}

func NewRealtimeHandler(hub realtimeHub, sessions sessionStats) *RealtimeHandler {
	return &RealtimeHandler{hub: hub, sessions: sessions}
}

type broadcastRequest struct {
	Message      string   `json:"message"`
	RecipientIDs []string `json:"user_ids,omitempty"`
}

// Broadcast sends a realtime-only message. Nothing is persisted.
func (h *RealtimeHandler) Broadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	sent := h.hub.Broadcast(r.Context(), req.Message, req.RecipientIDs)
	writeJSON(w, http.StatusOK, map[string]int{"sent": sent})
}

// StatsEnvelope adds the raw socket count to the session view. Sockets that
// have not joined any recipient only show up in OpenSockets.
type StatsEnvelope struct {
	session.Stats
	OpenSockets int `json:"open_sockets"`
}

func (h *RealtimeHandler) Stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StatsEnvelope{Stats: h.sessions.Stats(), OpenSockets: h.hub.ConnectionCount()})
}
