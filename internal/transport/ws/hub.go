// Package ws serves the realtime session protocol over websockets.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-notify-nosql/internal/pkg/id"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxFrameSize   = 4096
	sendBufferSize = 64
)

// Client and server event names.
const (
	EventJoin         = "join"
	EventLeave        = "leave"
	EventAck          = "ack"
	EventRoomJoined   = "roomJoined"
	EventRoomLeft     = "roomLeft"
	EventAckReceived  = "acknowledgmentReceived"
	EventBroadcast    = "broadcast"
	EventError        = "error"
	EventNotification = "notification"
)

var (
	ErrUnknownConnection = errors.New("unknown connection")
	ErrBufferFull        = errors.New("connection send buffer full")
)

type sessionRegistry interface {
	Join(recipientID, connID string) error
	Leave(recipientID, connID string) bool
	OnDisconnect(connID string) []string
	ConnectionsFor(recipientID string) []string
}

// Frame is the wire envelope in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type Options struct {
	AllowedOrigins []string
	PingInterval   time.Duration
	PongTimeout    time.Duration
}

// Hub owns every live websocket connection and routes frames between them
// and the session registry.
type Hub struct {
	sessions     sessionRegistry
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	pongTimeout  time.Duration
	now          func() time.Time

	mu      sync.RWMutex
	clients map[string]*client
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func NewHub(sessions sessionRegistry, opts Options) *Hub {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 25 * time.Second
	}
	if opts.PongTimeout <= opts.PingInterval {
		opts.PongTimeout = opts.PingInterval + 5*time.Second
	}
	h := &Hub{
		sessions:     sessions,
		pingInterval: opts.PingInterval,
		pongTimeout:  opts.PongTimeout,
		now:          time.Now,
		clients:      make(map[string]*client),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

// ServeHTTP upgrades the request and starts the connection's pumps.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	c := &client{
		id:   id.New(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	slog.Info("websocket connected", "conn_id", c.id, "remote", r.RemoteAddr)

	go h.writePump(c)
	go h.readPump(c)
}

// Send queues one event for connID. It never blocks on a slow client.
func (h *Hub) Send(ctx context.Context, connID, event string, data any) error {
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%s: %w", connID, ErrUnknownConnection)
	}
	b, err := json.Marshal(outFrame{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", event, err)
	}
	return c.enqueue(ctx, b)
}

// Broadcast sends a broadcast frame to the live connections of recipientIDs,
// or to every connection when none are given. It returns the number of
// connections the frame was queued for.
func (h *Hub) Broadcast(ctx context.Context, message string, recipientIDs []string) int {
	var targets []string
	if len(recipientIDs) == 0 {
		h.mu.RLock()
		for cid := range h.clients {
			targets = append(targets, cid)
		}
		h.mu.RUnlock()
	} else {
		seen := make(map[string]bool)
		for _, rid := range recipientIDs {
			for _, cid := range h.sessions.ConnectionsFor(rid) {
				if !seen[cid] {
					seen[cid] = true
					targets = append(targets, cid)
				}
			}
		}
	}

	data := map[string]any{"message": message, "timestamp": h.now().UTC()}
	sent := 0
	for _, cid := range targets {
		if err := h.Send(ctx, cid, EventBroadcast, data); err != nil {
			slog.Warn("broadcast send failed", "conn_id", cid, "err", err)
			continue
		}
		sent++
	}
	return sent
}

// ConnectionCount returns the number of open websocket connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		h.drop(c)
	}
}

func (c *client) enqueue(ctx context.Context, b []byte) error {
	select {
	case <-c.done:
		return fmt.Errorf("%s: %w", c.id, ErrUnknownConnection)
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	select {
	case c.send <- b:
		return nil
	default:
		return fmt.Errorf("%s: %w", c.id, ErrBufferFull)
	}
}

// join registers rid for c unless c was already dropped. drop removes the
// client under h.mu before running OnDisconnect, so a join that wins the lock
// is always undone by that cleanup and a join that loses it is refused.
func (h *Hub) join(c *client, rid string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; !ok {
		return fmt.Errorf("%s: %w", c.id, ErrUnknownConnection)
	}
	return h.sessions.Join(rid, c.id)
}

// drop unregisters c exactly once and releases its sessions.
func (h *Hub) drop(c *client) {
	c.once.Do(func() {
		h.mu.Lock()
		delete(h.clients, c.id)
		h.mu.Unlock()
		close(c.done)
		recipients := h.sessions.OnDisconnect(c.id)
		_ = c.conn.Close()
		slog.Info("websocket disconnected", "conn_id", c.id, "recipients", len(recipients))
	})
}

func (h *Hub) readPump(c *client) {
	defer h.drop(c)
	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(h.pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.pongTimeout))
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("websocket read failed", "conn_id", c.id, "err", err)
			}
			return
		}
		h.handle(c, raw)
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		h.drop(c)
	}()
	for {
		select {
		case b := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}
