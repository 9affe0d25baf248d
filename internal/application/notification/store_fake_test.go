package notification

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-notify-nosql/internal/domain"
)

// fakeStore is an in-memory notificationStore with the same conditional
// write semantics as the DynamoDB repository.
type fakeStore struct {
	mu        sync.Mutex
	records   map[string]*domain.Notification
	listErr   error
	createErr map[string]error // keyed by recipient id
	conflicts int              // number of Replace calls to reject
	heads     map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records:   make(map[string]*domain.Notification),
		createErr: make(map[string]error),
		heads:     make(map[string]string),
	}
}

func (f *fakeStore) Head(_ context.Context, recipientID string, category domain.Category) (string, *domain.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.heads[groupKey(recipientID, category)]
	if !ok {
		return "", nil, nil
	}
	n, ok := f.records[id]
	if !ok {
		return id, nil, nil
	}
	return id, n.Clone(), nil
}

func (f *fakeStore) Create(_ context.Context, n *domain.Notification, prevHeadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.createErr[n.RecipientID]; err != nil {
		return err
	}
	if _, ok := f.records[n.NotificationID]; ok {
		return fmt.Errorf("notification exists: %w", domain.ErrConflict)
	}
	key := groupKey(n.RecipientID, n.Category)
	if f.heads[key] != prevHeadID {
		return fmt.Errorf("group head moved: %w", domain.ErrConflict)
	}
	f.records[n.NotificationID] = n.Clone()
	f.heads[key] = n.NotificationID
	return nil
}

func (f *fakeStore) Replace(_ context.Context, n *domain.Notification, prevCount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conflicts > 0 {
		f.conflicts--
		return fmt.Errorf("injected: %w", domain.ErrConflict)
	}
	cur, ok := f.records[n.NotificationID]
	if !ok || cur.BundleCount != prevCount || cur.IsRead {
		return fmt.Errorf("stale bundle: %w", domain.ErrConflict)
	}
	f.records[n.NotificationID] = n.Clone()
	return nil
}

func (f *fakeStore) Get(_ context.Context, notificationID string) (*domain.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.records[notificationID]
	if !ok {
		return nil, fmt.Errorf("notification not found: %w", domain.ErrNotFound)
	}
	return n.Clone(), nil
}

func (f *fakeStore) sorted(keep func(*domain.Notification) bool) []domain.Notification {
	var out []domain.Notification
	for _, n := range f.records {
		if keep(n) {
			out = append(out, *n.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].NotificationID > out[j].NotificationID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (f *fakeStore) ListRecent(_ context.Context, recipientID string, category domain.Category, since time.Time) ([]domain.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.sorted(func(n *domain.Notification) bool {
		return n.RecipientID == recipientID && n.Category == category && !n.CreatedAt.Before(since)
	}), nil
}

func (f *fakeStore) ListUnread(_ context.Context, recipientID string) ([]domain.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sorted(func(n *domain.Notification) bool { return n.RecipientID == recipientID && !n.IsRead }), nil
}

func (f *fakeStore) CountByRecipient(_ context.Context, recipientID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sorted(func(n *domain.Notification) bool { return n.RecipientID == recipientID })), nil
}

func (f *fakeStore) ListPage(_ context.Context, recipientID string, offset, limit int) ([]domain.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.sorted(func(n *domain.Notification) bool { return n.RecipientID == recipientID })
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (f *fakeStore) MarkAsRead(_ context.Context, notificationID string) (*domain.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.records[notificationID]
	if !ok {
		return nil, fmt.Errorf("notification not found: %w", domain.ErrNotFound)
	}
	n.IsRead = true
	return n.Clone(), nil
}

func (f *fakeStore) Delete(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		delete(f.records, id)
	}
	return nil
}

// seed stores n as-is, bypassing the planner.
func (f *fakeStore) seed(n domain.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[n.NotificationID] = n.Clone()
}

func (f *fakeStore) all(recipientID string) []domain.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sorted(func(n *domain.Notification) bool { return n.RecipientID == recipientID })
}

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []*domain.Notification
}

func (d *recordingDispatcher) Enqueue(n *domain.Notification) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, n)
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// laggyStore hides every record it created from ListRecent and ListUnread,
// the way a GSI that has not caught up yet would. Head and Get stay
// consistent.
type laggyStore struct {
	*fakeStore
	hidden     map[string]bool
	staleHeads int // Head calls that report no head, as a slower instance would
}

func newLaggyStore() *laggyStore {
	return &laggyStore{fakeStore: newFakeStore(), hidden: make(map[string]bool)}
}

func (l *laggyStore) Create(ctx context.Context, n *domain.Notification, prevHeadID string) error {
	if err := l.fakeStore.Create(ctx, n, prevHeadID); err != nil {
		return err
	}
	l.mu.Lock()
	l.hidden[n.NotificationID] = true
	l.mu.Unlock()
	return nil
}

func (l *laggyStore) Head(ctx context.Context, recipientID string, category domain.Category) (string, *domain.Notification, error) {
	l.mu.Lock()
	if l.staleHeads > 0 {
		l.staleHeads--
		l.mu.Unlock()
		return "", nil, nil
	}
	l.mu.Unlock()
	return l.fakeStore.Head(ctx, recipientID, category)
}

func (l *laggyStore) visible(in []domain.Notification, err error) ([]domain.Notification, error) {
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.Notification
	for _, n := range in {
		if !l.hidden[n.NotificationID] {
			out = append(out, n)
		}
	}
	return out, nil
}

func (l *laggyStore) ListRecent(ctx context.Context, recipientID string, category domain.Category, since time.Time) ([]domain.Notification, error) {
	return l.visible(l.fakeStore.ListRecent(ctx, recipientID, category, since))
}

func (l *laggyStore) ListUnread(ctx context.Context, recipientID string) ([]domain.Notification, error) {
	return l.visible(l.fakeStore.ListUnread(ctx, recipientID))
}
