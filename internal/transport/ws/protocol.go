package ws

import (
	"context"
	"encoding/json"
	"log/slog"
)

// handle dispatches one client frame. Malformed input is answered with an
// error event and never closes the connection.
func (h *Hub) handle(c *client, raw []byte) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil || f.Event == "" {
		h.reply(c, EventError, map[string]string{"message": "malformed frame"})
		return
	}

	switch f.Event {
	case EventJoin:
		rid, ok := h.stringData(c, f, "recipient id must be a non-empty string")
		if !ok {
			return
		}
		if err := h.join(c, rid); err != nil {
			h.reply(c, EventError, map[string]string{"message": err.Error()})
			return
		}
		slog.Info("recipient joined", "user_id", rid, "conn_id", c.id)
		h.reply(c, EventRoomJoined, map[string]any{
			"recipient_id":  rid,
			"connection_id": c.id,
			"timestamp":     h.now().UTC(),
		})
	case EventLeave:
		rid, ok := h.stringData(c, f, "recipient id must be a non-empty string")
		if !ok {
			return
		}
		h.sessions.Leave(rid, c.id)
		h.reply(c, EventRoomLeft, map[string]any{"recipient_id": rid, "timestamp": h.now().UTC()})
	case EventAck:
		nid, ok := h.stringData(c, f, "notification id must be a non-empty string")
		if !ok {
			return
		}
		slog.Debug("notification acknowledged", "notification_id", nid, "conn_id", c.id)
		h.reply(c, EventAckReceived, map[string]any{"notification_id": nid, "timestamp": h.now().UTC()})
	default:
		h.reply(c, EventError, map[string]string{"message": "unknown event " + f.Event})
	}
}

func (h *Hub) stringData(c *client, f Frame, problem string) (string, bool) {
	var s string
	if err := json.Unmarshal(f.Data, &s); err != nil || s == "" {
		h.reply(c, EventError, map[string]string{"message": problem})
		return "", false
	}
	return s, true
}

func (h *Hub) reply(c *client, event string, data any) {
	if err := h.Send(context.Background(), c.id, event, data); err != nil {
		slog.Warn("websocket reply failed", "conn_id", c.id, "event", event, "err", err)
	}
}
