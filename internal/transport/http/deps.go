package http

import (
	"context"
	"net/http"

	"github.com/go-notify-nosql/internal/application/notification"
	"github.com/go-notify-nosql/internal/application/session"
	"github.com/go-notify-nosql/internal/domain"
	jwtinfra "github.com/go-notify-nosql/internal/infrastructure/jwt"
)

// TokenRegistry is the minimal interface the router requires from the device token registry.
type TokenRegistry interface {
	Register(ctx context.Context, recipientID string, req domain.RegisterTokenRequest) (*domain.DeviceToken, error)
	Unregister(ctx context.Context, recipientID, token string) error
}

// SessionStats is the minimal interface the router requires from the session registry.
type SessionStats interface {
	Stats() session.Stats
}

// RealtimeHub serves websocket upgrades and realtime broadcasts.
type RealtimeHub interface {
	http.Handler
	Broadcast(ctx context.Context, message string, recipientIDs []string) int
	ConnectionCount() int
}

// Deps holds the services and infrastructure the router wires into handlers.
type Deps struct {
	Notifications notification.Service
	Tokens        TokenRegistry
	Sessions      SessionStats
	Hub           RealtimeHub
	JWTProvider   *jwtinfra.Provider
}
