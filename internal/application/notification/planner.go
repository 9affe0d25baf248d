package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-notify-nosql/internal/domain"
	"github.com/go-notify-nosql/internal/pkg/id"
	"github.com/go-notify-nosql/internal/pkg/validate"
)

// group is the set of intents sharing (recipient, category) within one call.
type group struct {
	recipientID string
	category    domain.Category
	intents     []domain.Intent
	events      []int
}

func groupKey(recipientID string, category domain.Category) string {
	return recipientID + "|" + string(category)
}

// BundleKey identifies the open bundle a group merges into.
func BundleKey(recipientID string, category domain.Category, window time.Duration) string {
	return fmt.Sprintf("%s|%s|%d", recipientID, category, int(window/time.Minute))
}

// partition splits intents into groups keyed by (recipient, category) in
// first-appearance order. Invalid intents come back as failed outcomes.
func partition(intents []domain.Intent) ([]group, []domain.Outcome) {
	var (
		groups  []group
		invalid []domain.Outcome
		index   = make(map[string]int)
	)
	for i, in := range intents {
		if err := validate.Struct(in); err != nil {
			invalid = append(invalid, domain.Outcome{
				RecipientID: in.RecipientID,
				Category:    in.Category,
				Action:      domain.ActionSkipped,
				Events:      []int{i},
				Err:         fmt.Errorf("%s: %w", err.Error(), domain.ErrBadRequest),
			})
			continue
		}
		key := groupKey(in.RecipientID, in.Category)
		gi, ok := index[key]
		if !ok {
			gi = len(groups)
			index[key] = gi
			groups = append(groups, group{recipientID: in.RecipientID, category: in.Category})
		}
		groups[gi].intents = append(groups[gi].intents, in)
		groups[gi].events = append(groups[gi].events, i)
	}
	return groups, invalid
}

// planGroup decides between skip, create and merge for g and performs the
// write. The caller holds the group lock.
func (s *service) planGroup(ctx context.Context, g group, window time.Duration) (domain.Outcome, error) {
	now := s.now().UTC()
	recent, err := s.repo.ListRecent(ctx, g.recipientID, g.category, now.Add(-(window + s.dupWindow)))
	if err != nil {
		return domain.Outcome{}, fmt.Errorf("load recent notifications: %w", err)
	}
	headID, head, err := s.repo.Head(ctx, g.recipientID, g.category)
	if err != nil {
		return domain.Outcome{}, fmt.Errorf("load group head: %w", err)
	}
	recent = withHead(recent, head)

	if len(g.intents) == 1 {
		in := g.intents[0]
		if dup := findDuplicate(recent, in.Message, in.SubjectID, now.Add(-s.dupWindow)); dup != nil {
			slog.Info("duplicate notification suppressed", "user_id", g.recipientID, "category", g.category, "notification_id", dup.NotificationID)
			return domain.Outcome{Action: domain.ActionSkipped, Notification: dup}, nil
		}
	}

	key := BundleKey(g.recipientID, g.category, window)
	open := findOpen(recent, key, now.Add(-window))
	if open == nil {
		n := newRecord(g, key, now)
		if err := s.repo.Create(ctx, n, headID); err != nil {
			return domain.Outcome{}, fmt.Errorf("create notification: %w", err)
		}
		if n.IsBundled {
			slog.Info("bundle created", "user_id", g.recipientID, "category", g.category, "bundle_count", n.BundleCount)
		}
		return domain.Outcome{Action: domain.ActionCreated, Notification: n}, nil
	}

	prevCount := open.BundleCount
	mergeInto(open, g, key, now)
	if err := s.repo.Replace(ctx, open, prevCount); err != nil {
		return domain.Outcome{}, fmt.Errorf("update bundle %s: %w", open.NotificationID, err)
	}
	slog.Info("bundle updated", "user_id", g.recipientID, "category", g.category, "bundle_count", open.BundleCount)
	return domain.Outcome{Action: domain.ActionUpdated, Notification: open}, nil
}

// withHead overlays the consistently read head on the listing, which may not
// show it yet or may show an older copy of it.
func withHead(recent []domain.Notification, head *domain.Notification) []domain.Notification {
	if head == nil {
		return recent
	}
	for i := range recent {
		if recent[i].NotificationID == head.NotificationID {
			recent[i] = *head
			return recent
		}
	}
	return append([]domain.Notification{*head}, recent...)
}

// findOpen returns the newest unread record created at or after since that a
// group may merge into: a bundle carrying key, or an individual record that
// will be promoted to a bundle.
func findOpen(recent []domain.Notification, key string, since time.Time) *domain.Notification {
	for i := range recent {
		n := &recent[i]
		if n.IsRead || n.CreatedAt.Before(since) {
			continue
		}
		if n.IsBundled && n.BundleKey != key {
			continue
		}
		return n
	}
	return nil
}

func newItem(in domain.Intent, now time.Time) domain.BundledItem {
	return domain.BundledItem{
		ID:          id.NewAt(now),
		RecipientID: in.RecipientID,
		Message:     in.Message,
		SubjectID:   in.SubjectID,
		Subject:     in.Subject,
		CreatedAt:   now,
	}
}

// newRecord builds an individual record for a single intent, or a bundle
// seeded from the first intent's display fields.
func newRecord(g group, key string, now time.Time) *domain.Notification {
	first := g.intents[0]
	n := &domain.Notification{
		NotificationID: id.NewAt(now),
		RecipientID:    g.recipientID,
		Message:        first.Message,
		Category:       g.category,
		MediaKey:       first.MediaKey,
		ActorName:      first.ActorName,
		Button:         first.Button,
		Subject:        first.Subject,
		Status:         first.Status,
		SubjectID:      first.SubjectID,
		Sound:          orDefault(first.Sound),
		Vibration:      orDefault(first.Vibration),
		BundleCount:    1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if len(g.intents) == 1 {
		return n
	}
	items := make([]domain.BundledItem, 0, len(g.intents))
	for _, in := range g.intents {
		items = append(items, newItem(in, now))
	}
	n.IsBundled = true
	n.BundleKey = key
	n.BundledItems = items
	n.BundleCount = len(items)
	n.Message = BundleMessage(g.category, n.BundleCount)
	return n
}

// mergeInto appends g's intents to open, promoting an individual record to a
// bundle first.
func mergeInto(open *domain.Notification, g group, key string, now time.Time) {
	if !open.IsBundled {
		open.BundledItems = []domain.BundledItem{open.Snapshot()}
		open.IsBundled = true
		open.BundleKey = key
	}
	for _, in := range g.intents {
		open.BundledItems = append(open.BundledItems, newItem(in, now))
	}
	open.BundleCount = len(open.BundledItems)
	open.Message = BundleMessage(g.category, open.BundleCount)
	open.UpdatedAt = now
}

func orDefault(v string) string {
	if v == "" {
		return domain.DefaultDeliveryProfile
	}
	return v
}
