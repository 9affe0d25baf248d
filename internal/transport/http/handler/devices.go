package handler

import (
	"context"
	"net/http"

	"github.com/go-notify-nosql/internal/domain"
	"github.com/go-notify-nosql/internal/transport/http/middleware"
)

type tokenRegistry interface {
	Register(ctx context.Context, recipientID string, req domain.RegisterTokenRequest) (*domain.DeviceToken, error)
	Unregister(ctx context.Context, recipientID, token string) error
}

// DeviceHandler handles push-token registration for the caller.
type DeviceHandler struct {
	tokens tokenRegistry
}

func NewDeviceHandler(tokens tokenRegistry) *DeviceHandler { return &DeviceHandler{tokens: tokens} }

func (h *DeviceHandler) RegisterToken(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req domain.RegisterTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	t, err := h.tokens.Register(r.Context(), claims.UserID, req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *DeviceHandler) UnregisterToken(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req struct {
		Token string `json:"token"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.tokens.Unregister(r.Context(), claims.UserID, req.Token); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "token removed"})
}
