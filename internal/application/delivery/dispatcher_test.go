package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-notify-nosql/internal/application/device"
	"github.com/go-notify-nosql/internal/application/session"
	"github.com/go-notify-nosql/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockPush struct{ mock.Mock }

func (m *mockPush) SendMulticast(ctx context.Context, tokens []string, msg domain.PushMessage) (domain.PushBatchResult, error) {
	args := m.Called(tokens, msg)
	return args.Get(0).(domain.PushBatchResult), args.Error(1)
}

type recordingSender struct {
	mu   sync.Mutex
	sent map[string][]any
	err  error
}

func (s *recordingSender) Send(_ context.Context, connID, event string, data any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sent == nil {
		s.sent = make(map[string][]any)
	}
	s.sent[connID] = append(s.sent[connID], data)
	return s.err
}

// slowPush ignores cancellation entirely.
type slowPush struct{ delay time.Duration }

func (p slowPush) SendMulticast(context.Context, []string, domain.PushMessage) (domain.PushBatchResult, error) {
	time.Sleep(p.delay)
	return domain.PushBatchResult{SuccessCount: 1}, nil
}

func record() *domain.Notification {
	return &domain.Notification{
		NotificationID: "n1",
		RecipientID:    "u1",
		Message:        "Ann asked about Flat 4",
		Category:       domain.CategoryEnquiry,
		Sound:          "default",
		Vibration:      "default",
		BundleCount:    1,
	}
}

func registerToken(t *testing.T, r *device.Registry, rid, tok string) {
	t.Helper()
	_, err := r.Register(context.Background(), rid, domain.RegisterTokenRequest{Token: tok, Platform: domain.PlatformAndroid})
	require.NoError(t, err)
}

// --- tests ---

func TestDispatch_RealtimeWithoutTokens(t *testing.T) {
	sessions := session.NewRegistry()
	require.NoError(t, sessions.Join("u1", "c1"))
	require.NoError(t, sessions.Join("u1", "c2"))
	sender := &recordingSender{}
	push := new(mockPush)
	d := NewDispatcher(sessions, sender, device.NewRegistry(nil), push, time.Second)

	res := d.Dispatch(context.Background(), record())

	assert.Equal(t, Result{RealtimeSent: true, PushSent: false}, res)
	require.Len(t, sender.sent["c1"], 1)
	payload := sender.sent["c1"][0].(RealtimePayload)
	assert.True(t, payload.Realtime)
	assert.Equal(t, "socket", payload.DeliveryMethod)
	assert.Equal(t, "n1", payload.NotificationID)
	assert.Len(t, sender.sent["c2"], 1)
	push.AssertNotCalled(t, "SendMulticast", mock.Anything, mock.Anything)
}

func TestDispatch_RealtimeSendErrorStillCounts(t *testing.T) {
	sessions := session.NewRegistry()
	require.NoError(t, sessions.Join("u1", "c1"))
	d := NewDispatcher(sessions, &recordingSender{err: errors.New("buffer full")}, nil, nil, time.Second)
	assert.True(t, d.Dispatch(context.Background(), record()).RealtimeSent)
}

func TestDispatch_OfflineNoTokens(t *testing.T) {
	d := NewDispatcher(session.NewRegistry(), &recordingSender{}, device.NewRegistry(nil), new(mockPush), time.Second)
	assert.Equal(t, Result{}, d.Dispatch(context.Background(), record()))
}

func TestDispatch_PrunesInvalidTokens(t *testing.T) {
	tokens := device.NewRegistry(nil)
	registerToken(t, tokens, "u1", "good")
	registerToken(t, tokens, "u1", "stale")
	push := new(mockPush)
	push.On("SendMulticast", []string{"good", "stale"}, mock.Anything).Return(domain.PushBatchResult{
		SuccessCount: 1,
		FailureCount: 1,
		Results: []domain.PushResult{
			{Token: "good"},
			{Token: "stale", Err: errors.New("unregistered"), Invalid: true},
		},
	}, nil)
	d := NewDispatcher(session.NewRegistry(), &recordingSender{}, tokens, push, time.Second)

	res := d.Dispatch(context.Background(), record())

	assert.True(t, res.PushSent)
	assert.False(t, res.RealtimeSent)
	assert.Equal(t, []string{"good"}, tokens.TokensFor(context.Background(), "u1"))
}

func TestDispatch_TransientFailureKeepsTokens(t *testing.T) {
	tokens := device.NewRegistry(nil)
	registerToken(t, tokens, "u1", "tok")
	push := new(mockPush)
	push.On("SendMulticast", mock.Anything, mock.Anything).Return(domain.PushBatchResult{
		FailureCount: 1,
		Results:      []domain.PushResult{{Token: "tok", Err: errors.New("unavailable")}},
	}, nil)
	d := NewDispatcher(nil, nil, tokens, push, time.Second)

	assert.False(t, d.Dispatch(context.Background(), record()).PushSent)
	assert.Equal(t, []string{"tok"}, tokens.TokensFor(context.Background(), "u1"))
}

func TestDispatch_SlowPushTimesOut(t *testing.T) {
	sessions := session.NewRegistry()
	require.NoError(t, sessions.Join("u1", "c1"))
	tokens := device.NewRegistry(nil)
	registerToken(t, tokens, "u1", "tok")
	d := NewDispatcher(sessions, &recordingSender{}, tokens, slowPush{delay: 2 * time.Second}, 50*time.Millisecond)

	start := time.Now()
	res := d.Dispatch(context.Background(), record())

	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, res.RealtimeSent)
	assert.False(t, res.PushSent)
}

func TestPushMessageFor(t *testing.T) {
	n := record()
	n.SubjectID = "listing-4"
	n.Subject = &domain.Subject{Title: "Flat 4", Price: "1200"}
	msg := PushMessageFor(n)
	assert.Equal(t, "New Notification", msg.Title)
	assert.Equal(t, n.Message, msg.Body)
	assert.Equal(t, "n1", msg.Data["notification_id"])
	assert.Equal(t, "enquiry", msg.Data["type"])
	assert.Equal(t, "listing-4", msg.Data["action_id"])
	assert.Equal(t, "Flat 4", msg.Data["property_title"])
	assert.NotContains(t, msg.Data, "property_image")
	assert.NotContains(t, msg.Data, "is_bundled")

	n.IsBundled = true
	n.BundleCount = 5
	n.Message = "You have 5 new property enquiries"
	msg = PushMessageFor(n)
	assert.Equal(t, "New Notifications", msg.Title)
	assert.Equal(t, "You have 5 new property enquiries", msg.Body)
	assert.Equal(t, "5", msg.Data["bundle_count"])

	n.Category = domain.CategoryWelcome
	assert.Equal(t, "Welcome", PushMessageFor(n).Title)
}
