package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/go-notify-nosql/internal/domain"
)

func (s *service) ManualCleanup(ctx context.Context, recipientID string) (int, error) {
	if recipientID == "" {
		return 0, fmt.Errorf("recipient id is required: %w", domain.ErrBadRequest)
	}
	return s.cleanup(ctx, recipientID)
}

// cleanup collapses every unread (recipient, category) group with more than
// one record into its oldest record and deletes the rest. It returns the
// number of deleted records. Group locks are taken in sorted order so it
// cannot interleave with ingestion for the same keys.
func (s *service) cleanup(ctx context.Context, recipientID string) (int, error) {
	unread, err := s.repo.ListUnread(ctx, recipientID)
	if err != nil {
		return 0, fmt.Errorf("list unread: %w", err)
	}
	categories := duplicatedCategories(unread)
	if len(categories) == 0 {
		return 0, nil
	}
	for _, c := range categories {
		unlock := s.locks.Lock(groupKey(recipientID, c))
		defer unlock()
	}

	// Re-read under the locks; ingestion may have merged in the meantime.
	unread, err = s.repo.ListUnread(ctx, recipientID)
	if err != nil {
		return 0, fmt.Errorf("list unread: %w", err)
	}
	byCategory := make(map[domain.Category][]domain.Notification)
	for _, n := range unread {
		byCategory[n.Category] = append(byCategory[n.Category], n)
	}

	deleted := 0
	for _, c := range categories {
		records := byCategory[c]
		if len(records) < 2 {
			continue
		}
		n, err := s.collapse(ctx, recipientID, c, records)
		if errors.Is(err, domain.ErrConflict) {
			slog.Warn("skipped cleanup group after concurrent update", "user_id", recipientID, "category", c)
			continue
		}
		if err != nil {
			return deleted, err
		}
		deleted += n
	}
	return deleted, nil
}

func (s *service) collapse(ctx context.Context, recipientID string, c domain.Category, records []domain.Notification) (int, error) {
	sort.SliceStable(records, func(i, j int) bool { return records[i].CreatedAt.Before(records[j].CreatedAt) })
	survivor := records[0]
	prevCount := survivor.BundleCount

	var items []domain.BundledItem
	ids := make([]string, 0, len(records)-1)
	for i := range records {
		items = append(items, records[i].Items()...)
		if i > 0 {
			ids = append(ids, records[i].NotificationID)
		}
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })

	survivor.IsBundled = true
	survivor.BundleKey = BundleKey(recipientID, c, s.bundleWindow)
	survivor.BundledItems = items
	survivor.BundleCount = len(items)
	survivor.Message = BundleMessage(c, survivor.BundleCount)
	survivor.UpdatedAt = s.now().UTC()

	if err := s.repo.Replace(ctx, &survivor, prevCount); err != nil {
		return 0, fmt.Errorf("update surviving notification %s: %w", survivor.NotificationID, err)
	}
	if err := s.repo.Delete(ctx, ids); err != nil {
		return 0, fmt.Errorf("delete collapsed notifications: %w", err)
	}
	slog.Info("collapsed duplicate notifications", "user_id", recipientID, "category", c, "deleted", len(ids), "bundle_count", survivor.BundleCount)
	return len(ids), nil
}

// duplicatedCategories returns, sorted, the categories with two or more records.
func duplicatedCategories(records []domain.Notification) []domain.Category {
	counts := make(map[domain.Category]int)
	for _, n := range records {
		counts[n.Category]++
	}
	var out []domain.Category
	for c, n := range counts {
		if n > 1 {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
