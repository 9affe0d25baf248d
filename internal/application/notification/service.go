package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-notify-nosql/internal/domain"
	"github.com/go-notify-nosql/internal/pkg/keylock"
	"github.com/go-notify-nosql/internal/pkg/validate"
)

const (
	defaultDuplicateWindow = 5 * time.Minute
	defaultBundleWindow    = 30 * time.Minute
	defaultPageSize        = 20
	defaultMaxPageSize     = 100

	// maxMergeAttempts bounds retries when a conditional bundle write loses
	// against a concurrent writer or a MarkRead.
	maxMergeAttempts = 3
)

type Service interface {
	CreateOne(ctx context.Context, in domain.Intent) (domain.Outcome, error)
	CreateBatch(ctx context.Context, intents []domain.Intent, bundleWindow time.Duration) ([]domain.Outcome, error)
	CreateBulk(ctx context.Context, req BulkRequest) ([]domain.Outcome, error)
	IsDuplicate(ctx context.Context, recipientID, message string, category domain.Category, subjectID string, window time.Duration) (*domain.Notification, error)
	Fetch(ctx context.Context, recipientID string, page, pageSize int) (*Page, error)
	MarkRead(ctx context.Context, notificationID, recipientID string) (*domain.Notification, error)
	GetBundleDetails(ctx context.Context, notificationID, recipientID string) (*domain.Notification, error)
	ManualCleanup(ctx context.Context, recipientID string) (int, error)
}

type notificationStore interface {
	// Head returns the group's newest record from a strongly consistent read.
	// headID is the stored pointer even when its record is gone (n == nil).
	Head(ctx context.Context, recipientID string, category domain.Category) (headID string, n *domain.Notification, err error)
	// Create stores n and moves the group head from prevHeadID to it. A head
	// that moved in the meantime yields domain.ErrConflict.
	Create(ctx context.Context, n *domain.Notification, prevHeadID string) error
	// Replace overwrites n only if the stored record still has prevCount
	// and is unread; otherwise it returns domain.ErrConflict.
	Replace(ctx context.Context, n *domain.Notification, prevCount int) error
	Get(ctx context.Context, notificationID string) (*domain.Notification, error)
	// ListRecent returns the recipient's records of one category created at
	// or after since, newest first. It may lag behind recent writes.
	ListRecent(ctx context.Context, recipientID string, category domain.Category, since time.Time) ([]domain.Notification, error)
	ListUnread(ctx context.Context, recipientID string) ([]domain.Notification, error)
	CountByRecipient(ctx context.Context, recipientID string) (int, error)
	ListPage(ctx context.Context, recipientID string, offset, limit int) ([]domain.Notification, error)
	MarkAsRead(ctx context.Context, notificationID string) (*domain.Notification, error)
	Delete(ctx context.Context, notificationIDs []string) error
}

// dispatcher receives every persisted or updated record. Enqueue must not block
// on delivery.
type dispatcher interface {
	Enqueue(n *domain.Notification)
}

type mediaSigner interface {
	PresignGet(ctx context.Context, key string) (string, error)
}

type ServiceDeps struct {
	Repo            notificationStore
	Dispatcher      dispatcher
	MediaSigner     mediaSigner // optional
	DuplicateWindow time.Duration
	BundleWindow    time.Duration
	PageSize        int
	MaxPageSize     int
	Clock           func() time.Time
}

type service struct {
	repo         notificationStore
	dispatcher   dispatcher
	media        mediaSigner
	dupWindow    time.Duration
	bundleWindow time.Duration
	pageSize     int
	maxPageSize  int
	now          func() time.Time
	locks        *keylock.Map
}

func NewService(deps ServiceDeps) Service {
	s := &service{
		repo:         deps.Repo,
		dispatcher:   deps.Dispatcher,
		media:        deps.MediaSigner,
		dupWindow:    deps.DuplicateWindow,
		bundleWindow: deps.BundleWindow,
		pageSize:     deps.PageSize,
		maxPageSize:  deps.MaxPageSize,
		now:          deps.Clock,
		locks:        keylock.New(),
	}
	if s.dupWindow <= 0 {
		s.dupWindow = defaultDuplicateWindow
	}
	if s.bundleWindow <= 0 {
		s.bundleWindow = defaultBundleWindow
	}
	if s.pageSize <= 0 {
		s.pageSize = defaultPageSize
	}
	if s.maxPageSize <= 0 {
		s.maxPageSize = defaultMaxPageSize
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// BulkRequest sends the same message to many recipients.
type BulkRequest struct {
	RecipientIDs []string        `json:"user_ids" validate:"required,min=1,dive,required"`
	Message      string          `json:"message" validate:"required"`
	Category     domain.Category `json:"type" validate:"required,category"`
	Subject      *domain.Subject `json:"property,omitempty"`
	Status       string          `json:"status,omitempty"`
}

func (s *service) CreateOne(ctx context.Context, in domain.Intent) (domain.Outcome, error) {
	if err := validate.Struct(in); err != nil {
		return domain.Outcome{}, fmt.Errorf("%s: %w", err.Error(), domain.ErrBadRequest)
	}
	out := s.processGroup(ctx, group{
		recipientID: in.RecipientID,
		category:    in.Category,
		intents:     []domain.Intent{in},
		events:      []int{0},
	}, s.bundleWindow)
	return out, out.Err
}

func (s *service) CreateBatch(ctx context.Context, intents []domain.Intent, bundleWindow time.Duration) ([]domain.Outcome, error) {
	if len(intents) == 0 {
		return nil, fmt.Errorf("no notifications supplied: %w", domain.ErrBadRequest)
	}
	if bundleWindow <= 0 {
		bundleWindow = s.bundleWindow
	}
	groups, invalid := partition(intents)
	outcomes := make([]domain.Outcome, 0, len(groups)+len(invalid))
	outcomes = append(outcomes, invalid...)
	for _, g := range groups {
		outcomes = append(outcomes, s.processGroup(ctx, g, bundleWindow))
	}
	logSummary(len(intents), outcomes)
	return outcomes, nil
}

func (s *service) CreateBulk(ctx context.Context, req BulkRequest) ([]domain.Outcome, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), domain.ErrBadRequest)
	}
	status := req.Status
	if status == "" {
		status = "Bulk Notification"
	}
	intents := make([]domain.Intent, 0, len(req.RecipientIDs))
	for _, rid := range req.RecipientIDs {
		intents = append(intents, domain.Intent{
			RecipientID: rid,
			Message:     req.Message,
			Category:    req.Category,
			Subject:     req.Subject,
			Status:      status,
		})
	}
	return s.CreateBatch(ctx, intents, s.bundleWindow)
}

// processGroup runs dedup, open-bundle lookup and the write for one
// (recipient, category) group while holding that group's lock.
func (s *service) processGroup(ctx context.Context, g group, window time.Duration) domain.Outcome {
	unlock := s.locks.Lock(groupKey(g.recipientID, g.category))
	defer unlock()

	var (
		out domain.Outcome
		err error
	)
	for attempt := 0; attempt < maxMergeAttempts; attempt++ {
		out, err = s.planGroup(ctx, g, window)
		if !errors.Is(err, domain.ErrConflict) {
			break
		}
		slog.Warn("bundle write conflicted, retrying", "user_id", g.recipientID, "category", g.category, "attempt", attempt+1)
	}
	out.RecipientID = g.recipientID
	out.Category = g.category
	out.Events = g.events
	if err != nil {
		slog.Error("failed to persist notification group", "user_id", g.recipientID, "category", g.category, "err", err)
		out.Action = domain.ActionSkipped
		out.Notification = nil
		out.Err = err
		return out
	}
	if out.Action != domain.ActionSkipped {
		s.dispatch(out.Notification)
	}
	return out
}

func (s *service) dispatch(n *domain.Notification) {
	if s.dispatcher == nil || n == nil {
		return
	}
	s.dispatcher.Enqueue(n.Clone())
}

func (s *service) IsDuplicate(ctx context.Context, recipientID, message string, category domain.Category, subjectID string, window time.Duration) (*domain.Notification, error) {
	if window <= 0 {
		window = s.dupWindow
	}
	since := s.now().UTC().Add(-window)
	recent, err := s.repo.ListRecent(ctx, recipientID, category, since.Add(-s.bundleWindow))
	if err != nil {
		return nil, fmt.Errorf("duplicate check: %w", err)
	}
	_, head, err := s.repo.Head(ctx, recipientID, category)
	if err != nil {
		return nil, fmt.Errorf("duplicate check: %w", err)
	}
	return findDuplicate(withHead(recent, head), message, subjectID, since), nil
}

func (s *service) MarkRead(ctx context.Context, notificationID, recipientID string) (*domain.Notification, error) {
	n, err := s.ownedNotification(ctx, notificationID, recipientID)
	if err != nil {
		return nil, err
	}
	if n.IsRead {
		return n, nil
	}
	return s.repo.MarkAsRead(ctx, notificationID)
}

func (s *service) GetBundleDetails(ctx context.Context, notificationID, recipientID string) (*domain.Notification, error) {
	n, err := s.ownedNotification(ctx, notificationID, recipientID)
	if err != nil {
		return nil, err
	}
	if !n.IsBundled {
		return nil, domain.ErrNotBundled
	}
	s.signMedia(ctx, n)
	return n, nil
}

// ownedNotification loads a record and, when recipientID is set, checks that
// it belongs to that recipient.
func (s *service) ownedNotification(ctx context.Context, notificationID, recipientID string) (*domain.Notification, error) {
	if notificationID == "" {
		return nil, fmt.Errorf("notification id is required: %w", domain.ErrBadRequest)
	}
	n, err := s.repo.Get(ctx, notificationID)
	if err != nil {
		return nil, err
	}
	if recipientID != "" && n.RecipientID != recipientID {
		return nil, fmt.Errorf("forbidden: %w", domain.ErrForbidden)
	}
	return n, nil
}

func logSummary(total int, outcomes []domain.Outcome) {
	var created, updated, skipped, failed int
	for _, o := range outcomes {
		switch {
		case !o.Success():
			failed++
		case o.Action == domain.ActionCreated:
			created++
		case o.Action == domain.ActionUpdated:
			updated++
		default:
			skipped++
		}
	}
	slog.Info("notification batch processed",
		"total", total, "created", created, "updated", updated, "skipped", skipped, "failed", failed)
}
