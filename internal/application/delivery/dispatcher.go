package delivery

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-notify-nosql/internal/domain"
	"golang.org/x/sync/errgroup"
)

const (
	defaultTimeout = 5 * time.Second

	// EventNotification is the realtime event name for a delivered record.
	EventNotification = "notification"
)

type sessionLookup interface {
	ConnectionsFor(recipientID string) []string
}

// RealtimeSender pushes one event to one live connection.
type RealtimeSender interface {
	Send(ctx context.Context, connID, event string, data any) error
}

type tokenRegistry interface {
	TokensFor(ctx context.Context, recipientID string) []string
	Invalidate(ctx context.Context, tokens ...string)
}

// PushProvider sends one message to many device tokens.
type PushProvider interface {
	SendMulticast(ctx context.Context, tokens []string, msg domain.PushMessage) (domain.PushBatchResult, error)
}

// Result reports which channels accepted a record.
type Result struct {
	RealtimeSent bool `json:"realtime_sent"`
	PushSent     bool `json:"push_sent"`
}

// RealtimePayload is the record as pushed to live connections.
type RealtimePayload struct {
	*domain.Notification
	Realtime       bool   `json:"realtime"`
	DeliveryMethod string `json:"delivery_method"`
}

type Dispatcher struct {
	sessions sessionLookup
	sender   RealtimeSender
	tokens   tokenRegistry
	push     PushProvider // nil disables push
	timeout  time.Duration
}

func NewDispatcher(sessions sessionLookup, sender RealtimeSender, tokens tokenRegistry, push PushProvider, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Dispatcher{sessions: sessions, sender: sender, tokens: tokens, push: push, timeout: timeout}
}

// Dispatch attempts realtime and push delivery of n in parallel. Each channel
// is bounded by the dispatcher timeout and failures only show up as false.
func (d *Dispatcher) Dispatch(ctx context.Context, n *domain.Notification) Result {
	var (
		res Result
		g   errgroup.Group
	)
	g.Go(func() error {
		res.RealtimeSent = d.bounded(ctx, "realtime", n, d.sendRealtime)
		return nil
	})
	g.Go(func() error {
		res.PushSent = d.bounded(ctx, "push", n, d.sendPush)
		return nil
	})
	_ = g.Wait()
	slog.Info("notification dispatched",
		"notification_id", n.NotificationID, "user_id", n.RecipientID,
		"realtime_sent", res.RealtimeSent, "push_sent", res.PushSent)
	return res
}

// bounded runs one channel attempt under the dispatcher timeout. A channel that
// ignores cancellation is abandoned once the timeout fires.
func (d *Dispatcher) bounded(ctx context.Context, channel string, n *domain.Notification, attempt func(context.Context, *domain.Notification) bool) bool {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	done := make(chan bool, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("delivery channel panicked", "channel", channel, "notification_id", n.NotificationID, "panic", r)
				done <- false
			}
		}()
		done <- attempt(ctx, n)
	}()
	select {
	case ok := <-done:
		return ok
	case <-ctx.Done():
		slog.Warn("delivery channel timed out", "channel", channel, "notification_id", n.NotificationID, "err", ctx.Err())
		return false
	}
}

func (d *Dispatcher) sendRealtime(ctx context.Context, n *domain.Notification) bool {
	if d.sessions == nil || d.sender == nil {
		return false
	}
	conns := d.sessions.ConnectionsFor(n.RecipientID)
	if len(conns) == 0 {
		return false
	}
	payload := RealtimePayload{Notification: n, Realtime: true, DeliveryMethod: "socket"}
	for _, conn := range conns {
		if err := d.sender.Send(ctx, conn, EventNotification, payload); err != nil {
			slog.Warn("realtime send failed", "conn_id", conn, "user_id", n.RecipientID, "err", err)
		}
	}
	return true
}

func (d *Dispatcher) sendPush(ctx context.Context, n *domain.Notification) bool {
	if d.push == nil || d.tokens == nil {
		return false
	}
	tokens := d.tokens.TokensFor(ctx, n.RecipientID)
	if len(tokens) == 0 {
		return false
	}
	res, err := d.push.SendMulticast(ctx, tokens, PushMessageFor(n))
	if err != nil {
		if !errors.Is(err, context.DeadlineExceeded) {
			slog.Warn("push send failed", "user_id", n.RecipientID, "err", err)
		}
		return false
	}

	var invalid []string
	for _, r := range res.Results {
		if r.Invalid {
			invalid = append(invalid, r.Token)
		} else if r.Err != nil {
			slog.Warn("push to device failed", "user_id", n.RecipientID, "err", r.Err)
		}
	}
	if len(invalid) > 0 {
		// Pruning must survive the channel timeout.
		d.tokens.Invalidate(context.WithoutCancel(ctx), invalid...)
	}
	return res.SuccessCount > 0
}

// PushMessageFor builds the provider payload for n.
func PushMessageFor(n *domain.Notification) domain.PushMessage {
	title := "New Notification"
	switch {
	case n.Category == domain.CategoryWelcome:
		title = "Welcome"
	case n.IsBundled:
		title = "New Notifications"
	}
	data := map[string]string{
		"notification_id": n.NotificationID,
		"type":            string(n.Category),
	}
	if n.SubjectID != "" {
		data["action_id"] = n.SubjectID
	}
	if s := n.Subject; s != nil {
		setIf(data, "property_title", s.Title)
		setIf(data, "property_price", s.Price)
		setIf(data, "property_location", s.Location)
		setIf(data, "property_image", s.Image)
	}
	if n.IsBundled {
		data["is_bundled"] = "true"
		data["bundle_count"] = strconv.Itoa(n.BundleCount)
	}
	return domain.PushMessage{Title: title, Body: n.Message, Sound: n.Sound, Data: data}
}

func setIf(m map[string]string, k, v string) {
	if v != "" {
		m[k] = v
	}
}
