package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-notify-nosql/internal/domain"
)

// Page is one slice of a recipient's feed, newest first.
type Page struct {
	Notifications []domain.Notification
	Page          int
	PageSize      int
	TotalCount    int
	TotalPages    int
	HasMore       bool
}

func (s *service) Fetch(ctx context.Context, recipientID string, page, pageSize int) (*Page, error) {
	if recipientID == "" {
		return nil, fmt.Errorf("recipient id is required: %w", domain.ErrBadRequest)
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = s.pageSize
	}
	if pageSize > s.maxPageSize {
		pageSize = s.maxPageSize
	}

	// Historical duplicates are collapsed lazily when the feed is opened.
	if page == 1 {
		if _, err := s.cleanup(ctx, recipientID); err != nil {
			slog.Warn("feed cleanup failed", "user_id", recipientID, "err", err)
		}
	}

	total, err := s.repo.CountByRecipient(ctx, recipientID)
	if err != nil {
		return nil, fmt.Errorf("count notifications: %w", err)
	}
	offset := (page - 1) * pageSize
	items, err := s.repo.ListPage(ctx, recipientID, offset, pageSize)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	for i := range items {
		s.signMedia(ctx, &items[i])
	}
	return &Page{
		Notifications: items,
		Page:          page,
		PageSize:      pageSize,
		TotalCount:    total,
		TotalPages:    (total + pageSize - 1) / pageSize,
		HasMore:       offset+len(items) < total,
	}, nil
}

// signMedia swaps stored object keys for presigned URLs. Failures leave the key as is.
func (s *service) signMedia(ctx context.Context, n *domain.Notification) {
	if s.media == nil {
		return
	}
	sign := func(key string) string {
		if key == "" {
			return key
		}
		url, err := s.media.PresignGet(ctx, key)
		if err != nil {
			slog.Warn("could not presign media", "notification_id", n.NotificationID, "key", key, "err", err)
			return key
		}
		return url
	}
	n.MediaKey = sign(n.MediaKey)
	if n.Subject != nil {
		subj := *n.Subject
		subj.Image = sign(subj.Image)
		n.Subject = &subj
	}
	for i := range n.BundledItems {
		if it := n.BundledItems[i].Subject; it != nil {
			subj := *it
			subj.Image = sign(subj.Image)
			n.BundledItems[i].Subject = &subj
		}
	}
}
