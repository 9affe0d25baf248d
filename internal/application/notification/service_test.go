package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-notify-nosql/internal/domain"
	"github.com/go-notify-nosql/internal/pkg/id"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*service, *fakeStore, *recordingDispatcher, *fakeClock) {
	t.Helper()
	store := newFakeStore()
	disp := &recordingDispatcher{}
	clock := &fakeClock{t: t0}
	svc := NewService(ServiceDeps{Repo: store, Dispatcher: disp, Clock: clock.Now}).(*service)
	return svc, store, disp, clock
}

func intent(rid string, c domain.Category, msg string) domain.Intent {
	return domain.Intent{RecipientID: rid, Message: msg, Category: c}
}

func seeded(rid string, c domain.Category, msg string, at time.Time) domain.Notification {
	return domain.Notification{
		NotificationID: id.NewAt(at),
		RecipientID:    rid,
		Message:        msg,
		Category:       c,
		BundleCount:    1,
		Sound:          domain.DefaultDeliveryProfile,
		Vibration:      domain.DefaultDeliveryProfile,
		CreatedAt:      at,
		UpdatedAt:      at,
	}
}

// --- ingestion ---

func TestCreateOne_NewRecordIsIndividual(t *testing.T) {
	svc, store, disp, _ := newTestService(t)

	out, err := svc.CreateOne(context.Background(), intent("u1", domain.CategoryEnquiry, "Ann asked about Flat 4"))
	require.NoError(t, err)
	assert.Equal(t, domain.ActionCreated, out.Action)
	require.NotNil(t, out.Notification)
	assert.False(t, out.Notification.IsBundled)
	assert.Equal(t, 1, out.Notification.BundleCount)
	assert.Equal(t, domain.DefaultDeliveryProfile, out.Notification.Sound)
	assert.Len(t, store.all("u1"), 1)
	assert.Equal(t, 1, disp.count())
}

func TestCreateOne_DuplicateSuppressed(t *testing.T) {
	svc, store, disp, clock := newTestService(t)
	ctx := context.Background()
	in := intent("u1", domain.CategoryReview, "New review on Flat 4")
	in.SubjectID = "listing-4"

	first, err := svc.CreateOne(ctx, in)
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)
	second, err := svc.CreateOne(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, domain.ActionSkipped, second.Action)
	assert.Equal(t, first.Notification.NotificationID, second.Notification.NotificationID)
	assert.Len(t, store.all("u1"), 1)
	assert.Equal(t, 1, disp.count())
}

func TestCreateOne_DifferentSubjectIsNotDuplicate(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()
	a := intent("u1", domain.CategoryReview, "New review")
	a.SubjectID = "listing-1"
	b := a
	b.SubjectID = "listing-2"

	_, err := svc.CreateOne(ctx, a)
	require.NoError(t, err)
	out, err := svc.CreateOne(ctx, b)
	require.NoError(t, err)

	assert.Equal(t, domain.ActionUpdated, out.Action)
	assert.Equal(t, 2, store.all("u1")[0].BundleCount)
}

func TestCreateOne_RepeatAfterDuplicateWindowIsMerged(t *testing.T) {
	svc, store, _, clock := newTestService(t)
	ctx := context.Background()
	in := intent("u1", domain.CategoryFollow, "Bo started following you")

	_, err := svc.CreateOne(ctx, in)
	require.NoError(t, err)
	clock.Advance(6 * time.Minute)
	out, err := svc.CreateOne(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, domain.ActionUpdated, out.Action)
	recs := store.all("u1")
	require.Len(t, recs, 1)
	assert.Equal(t, 2, recs[0].BundleCount)
	assert.Equal(t, "2 people started following you", recs[0].Message)
}

func TestCreateOne_SequentialEventsPromoteToBundle(t *testing.T) {
	svc, store, disp, clock := newTestService(t)
	ctx := context.Background()

	first, err := svc.CreateOne(ctx, intent("u1", domain.CategoryEnquiry, "enquiry 1"))
	require.NoError(t, err)
	for i := 2; i <= 3; i++ {
		clock.Advance(time.Minute)
		out, err := svc.CreateOne(ctx, intent("u1", domain.CategoryEnquiry, fmt.Sprintf("enquiry %d", i)))
		require.NoError(t, err)
		assert.Equal(t, domain.ActionUpdated, out.Action)
		assert.Equal(t, i, out.Notification.BundleCount)
	}

	recs := store.all("u1")
	require.Len(t, recs, 1)
	b := recs[0]
	assert.Equal(t, first.Notification.NotificationID, b.NotificationID)
	assert.True(t, b.IsBundled)
	assert.Equal(t, 3, b.BundleCount)
	assert.Len(t, b.BundledItems, 3)
	assert.Equal(t, first.Notification.NotificationID, b.BundledItems[0].ID)
	assert.Equal(t, "You have 3 new property enquiries", b.Message)
	assert.Equal(t, BundleKey("u1", domain.CategoryEnquiry, 30*time.Minute), b.BundleKey)
	assert.Equal(t, 3, disp.count())
}

func TestCreateOne_OutsideBundleWindowStartsNewRecord(t *testing.T) {
	svc, store, _, clock := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateOne(ctx, intent("u1", domain.CategoryEnquiry, "enquiry 1"))
	require.NoError(t, err)
	clock.Advance(31 * time.Minute)
	out, err := svc.CreateOne(ctx, intent("u1", domain.CategoryEnquiry, "enquiry 2"))
	require.NoError(t, err)

	assert.Equal(t, domain.ActionCreated, out.Action)
	recs := store.all("u1")
	require.Len(t, recs, 2)
	for _, r := range recs {
		assert.Equal(t, 1, r.BundleCount)
		assert.False(t, r.IsBundled)
	}
}

func TestCreateOne_ReadRecordIsNeverMerged(t *testing.T) {
	svc, store, _, clock := newTestService(t)
	ctx := context.Background()

	first, err := svc.CreateOne(ctx, intent("u1", domain.CategoryBoost, "boost 1"))
	require.NoError(t, err)
	_, err = svc.MarkRead(ctx, first.Notification.NotificationID, "u1")
	require.NoError(t, err)
	clock.Advance(time.Minute)
	out, err := svc.CreateOne(ctx, intent("u1", domain.CategoryBoost, "boost 2"))
	require.NoError(t, err)

	assert.Equal(t, domain.ActionCreated, out.Action)
	old, err := store.Get(ctx, first.Notification.NotificationID)
	require.NoError(t, err)
	assert.True(t, old.IsRead)
	assert.Equal(t, 1, old.BundleCount)
}

func TestCreateOne_ConcurrentEventsFormOneBundle(t *testing.T) {
	svc, store, disp, _ := newTestService(t)
	const k = 20

	var wg sync.WaitGroup
	errs := make(chan error, k)
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.CreateOne(context.Background(), intent("u1", domain.CategoryEnquiry, fmt.Sprintf("enquiry %d", i)))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	recs := store.all("u1")
	require.Len(t, recs, 1)
	assert.Equal(t, k, recs[0].BundleCount)
	assert.Len(t, recs[0].BundledItems, k)
	assert.Equal(t, k, disp.count())
	assert.Equal(t, 0, svc.locks.Len())
}

func TestCreateOne_RetriesAfterConflict(t *testing.T) {
	svc, store, _, clock := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateOne(ctx, intent("u1", domain.CategoryAlert, "alert 1"))
	require.NoError(t, err)
	clock.Advance(time.Minute)
	store.conflicts = 1
	out, err := svc.CreateOne(ctx, intent("u1", domain.CategoryAlert, "alert 2"))
	require.NoError(t, err)

	assert.Equal(t, domain.ActionUpdated, out.Action)
	assert.Equal(t, 2, store.all("u1")[0].BundleCount)
}

func TestCreateOne_PersistentConflictFails(t *testing.T) {
	svc, _, disp, clock := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateOne(ctx, intent("u1", domain.CategoryAlert, "alert 1"))
	require.NoError(t, err)
	clock.Advance(time.Minute)
	svc.repo.(*fakeStore).conflicts = maxMergeAttempts

	out, err := svc.CreateOne(ctx, intent("u1", domain.CategoryAlert, "alert 2"))
	assert.True(t, errors.Is(err, domain.ErrConflict))
	assert.Equal(t, domain.ActionSkipped, out.Action)
	assert.Nil(t, out.Notification)
	assert.Equal(t, 1, disp.count())
}

func newLaggyService(t *testing.T) (*service, *laggyStore, *fakeClock) {
	t.Helper()
	store := newLaggyStore()
	clock := &fakeClock{t: t0}
	svc := NewService(ServiceDeps{Repo: store, Dispatcher: &recordingDispatcher{}, Clock: clock.Now}).(*service)
	return svc, store, clock
}

func TestCreateOne_MergesWhileIndexLags(t *testing.T) {
	svc, store, clock := newLaggyService(t)
	ctx := context.Background()

	_, err := svc.CreateOne(ctx, intent("u1", domain.CategoryEnquiry, "Ann asked about Flat 4"))
	require.NoError(t, err)
	clock.Advance(time.Minute)
	out, err := svc.CreateOne(ctx, intent("u1", domain.CategoryEnquiry, "Bob asked about Flat 9"))
	require.NoError(t, err)

	assert.Equal(t, domain.ActionUpdated, out.Action)
	recs := store.all("u1")
	require.Len(t, recs, 1)
	assert.Equal(t, 2, recs[0].BundleCount)
}

func TestCreateOne_DuplicateCaughtWhileIndexLags(t *testing.T) {
	svc, store, clock := newLaggyService(t)
	ctx := context.Background()
	in := intent("u1", domain.CategoryReview, "New review on Flat 4")

	_, err := svc.CreateOne(ctx, in)
	require.NoError(t, err)
	clock.Advance(time.Minute)
	out, err := svc.CreateOne(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, domain.ActionSkipped, out.Action)
	assert.Len(t, store.all("u1"), 1)
}

func TestCreateOne_ConcurrentEventsFormOneBundleWhileIndexLags(t *testing.T) {
	svc, store, _ := newLaggyService(t)
	const k = 12

	var wg sync.WaitGroup
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.CreateOne(context.Background(), intent("u1", domain.CategoryEnquiry, fmt.Sprintf("enquiry %d", i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	recs := store.all("u1")
	require.Len(t, recs, 1)
	assert.Equal(t, k, recs[0].BundleCount)
}

func TestCreateOne_CompetingCreatorRetriesIntoMerge(t *testing.T) {
	svc, store, clock := newLaggyService(t)
	ctx := context.Background()

	_, err := svc.CreateOne(ctx, intent("u1", domain.CategoryEnquiry, "Ann asked about Flat 4"))
	require.NoError(t, err)

	// The next event neither sees the record in the index nor, on its first
	// attempt, the head pointer; the conditional create must reject it.
	store.staleHeads = 1
	clock.Advance(time.Minute)
	out, err := svc.CreateOne(ctx, intent("u1", domain.CategoryEnquiry, "Bob asked about Flat 9"))
	require.NoError(t, err)

	assert.Equal(t, domain.ActionUpdated, out.Action)
	recs := store.all("u1")
	require.Len(t, recs, 1)
	assert.Equal(t, 2, recs[0].BundleCount)
}

func TestIsDuplicate_SeesHeadWhileIndexLags(t *testing.T) {
	svc, _, _ := newLaggyService(t)
	ctx := context.Background()
	created, err := svc.CreateOne(ctx, intent("u2", domain.CategoryFollow, "Cara followed you"))
	require.NoError(t, err)

	dup, err := svc.IsDuplicate(ctx, "u2", "Cara followed you", domain.CategoryFollow, "", 0)
	require.NoError(t, err)
	require.NotNil(t, dup)
	assert.Equal(t, created.Notification.NotificationID, dup.NotificationID)
}

func TestCreateOne_ValidationError(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	cases := []domain.Intent{
		{Message: "hi", Category: domain.CategoryAlert},
		{RecipientID: "u1", Category: domain.CategoryAlert},
		{RecipientID: "u1", Message: "hi", Category: "gossip"},
	}
	for _, in := range cases {
		_, err := svc.CreateOne(context.Background(), in)
		assert.True(t, errors.Is(err, domain.ErrBadRequest), "intent %+v", in)
	}
}

func TestCreateBatch_BundlesPerRecipientAndCategory(t *testing.T) {
	svc, store, disp, _ := newTestService(t)
	var intents []domain.Intent
	for i := 0; i < 5; i++ {
		intents = append(intents, intent("u1", domain.CategoryEnquiry, fmt.Sprintf("enquiry %d", i)))
	}
	intents = append(intents,
		intent("u2", domain.CategoryEnquiry, "other enquiry a"),
		intent("u1", domain.CategoryReview, "a review"),
		intent("u2", domain.CategoryEnquiry, "other enquiry b"),
	)

	outcomes, err := svc.CreateBatch(context.Background(), intents, 0)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	assert.Equal(t, []int{0, 1, 2, 3, 4}, outcomes[0].Events)
	assert.Equal(t, domain.ActionCreated, outcomes[0].Action)
	assert.True(t, outcomes[0].Notification.IsBundled)
	assert.Equal(t, 5, outcomes[0].Notification.BundleCount)
	assert.Equal(t, "You have 5 new property enquiries", outcomes[0].Notification.Message)

	assert.Equal(t, []int{5, 7}, outcomes[1].Events)
	for _, item := range outcomes[1].Notification.BundledItems {
		assert.Equal(t, "u2", item.RecipientID)
	}
	assert.Equal(t, []int{6}, outcomes[2].Events)
	assert.False(t, outcomes[2].Notification.IsBundled)

	assert.Len(t, store.all("u1"), 2)
	assert.Len(t, store.all("u2"), 1)
	assert.Equal(t, 3, disp.count())
}

func TestCreateBatch_FailuresAreIsolated(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	store.createErr["u2"] = errors.New("throttled")

	outcomes, err := svc.CreateBatch(context.Background(), []domain.Intent{
		intent("u1", domain.CategoryAlert, "a"),
		intent("u2", domain.CategoryAlert, "b"),
		{RecipientID: "u3", Message: "c", Category: "nope"},
	}, time.Hour)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	byRecipient := map[string]domain.Outcome{}
	for _, o := range outcomes {
		byRecipient[o.RecipientID] = o
	}
	assert.True(t, byRecipient["u1"].Success())
	assert.False(t, byRecipient["u2"].Success())
	assert.True(t, errors.Is(byRecipient["u3"].Err, domain.ErrBadRequest))
	assert.Equal(t, []int{2}, byRecipient["u3"].Events)
	assert.Len(t, store.all("u1"), 1)
}

func TestCreateBatch_Empty(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	_, err := svc.CreateBatch(context.Background(), nil, 0)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
}

func TestCreateBulk_DefaultsStatus(t *testing.T) {
	svc, store, _, _ := newTestService(t)

	outcomes, err := svc.CreateBulk(context.Background(), BulkRequest{
		RecipientIDs: []string{"u1", "u2"},
		Message:      "Maintenance tonight",
		Category:     domain.CategoryBroadcast,
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	for _, rid := range []string{"u1", "u2"} {
		recs := store.all(rid)
		require.Len(t, recs, 1)
		assert.Equal(t, "Bulk Notification", recs[0].Status)
	}

	_, err = svc.CreateBulk(context.Background(), BulkRequest{Message: "x", Category: domain.CategoryBroadcast})
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
}

func TestIsDuplicate_MatchesBundledItems(t *testing.T) {
	svc, _, _, clock := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateBatch(ctx, []domain.Intent{
		intent("u1", domain.CategoryEnquiry, "a"),
		intent("u1", domain.CategoryEnquiry, "b"),
	}, 0)
	require.NoError(t, err)
	clock.Advance(time.Minute)

	dup, err := svc.IsDuplicate(ctx, "u1", "b", domain.CategoryEnquiry, "", 0)
	require.NoError(t, err)
	require.NotNil(t, dup)
	assert.True(t, dup.IsBundled)

	dup, err = svc.IsDuplicate(ctx, "u2", "b", domain.CategoryEnquiry, "", 0)
	require.NoError(t, err)
	assert.Nil(t, dup)

	clock.Advance(10 * time.Minute)
	dup, err = svc.IsDuplicate(ctx, "u1", "b", domain.CategoryEnquiry, "", 0)
	require.NoError(t, err)
	assert.Nil(t, dup)
}

func TestBundleMessage(t *testing.T) {
	assert.Equal(t, "You have 3 new property enquiries", BundleMessage(domain.CategoryEnquiry, 3))
	assert.Equal(t, "You have 2 new reviews", BundleMessage(domain.CategoryReview, 2))
	assert.Equal(t, "You have 4 new boost requests", BundleMessage(domain.CategoryBoost, 4))
	assert.Equal(t, "7 people started following you", BundleMessage(domain.CategoryFollow, 7))
	assert.Equal(t, "You have 2 new alert notifications", BundleMessage(domain.CategoryAlert, 2))
	assert.Equal(t, "You have 2 new X notifications", BundleMessage("X", 2))
	for _, c := range domain.Categories {
		assert.Contains(t, bundleTemplates, c)
	}
}

// --- read side ---

func TestMarkRead(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()
	n := seeded("u1", domain.CategoryAlert, "a", t0)
	store.seed(n)

	_, err := svc.MarkRead(ctx, n.NotificationID, "u2")
	assert.True(t, errors.Is(err, domain.ErrForbidden))

	_, err = svc.MarkRead(ctx, "missing", "u1")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	got, err := svc.MarkRead(ctx, n.NotificationID, "u1")
	require.NoError(t, err)
	assert.True(t, got.IsRead)

	got, err = svc.MarkRead(ctx, n.NotificationID, "u1")
	require.NoError(t, err)
	assert.True(t, got.IsRead)
}

func TestGetBundleDetails(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()
	single := seeded("u1", domain.CategoryAlert, "a", t0)
	store.seed(single)

	_, err := svc.GetBundleDetails(ctx, single.NotificationID, "u1")
	assert.True(t, errors.Is(err, domain.ErrNotBundled))
	assert.True(t, errors.Is(err, domain.ErrBadRequest))

	outcomes, err := svc.CreateBatch(ctx, []domain.Intent{
		intent("u1", domain.CategoryReview, "r1"),
		intent("u1", domain.CategoryReview, "r2"),
	}, 0)
	require.NoError(t, err)
	got, err := svc.GetBundleDetails(ctx, outcomes[0].Notification.NotificationID, "u1")
	require.NoError(t, err)
	assert.Len(t, got.BundledItems, 2)

	_, err = svc.GetBundleDetails(ctx, outcomes[0].Notification.NotificationID, "u9")
	assert.True(t, errors.Is(err, domain.ErrForbidden))
}

func TestManualCleanup_CollapsesIntoOldest(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()
	oldest := seeded("u1", domain.CategoryEnquiry, "e1", t0.Add(-3*time.Hour))
	store.seed(oldest)
	store.seed(seeded("u1", domain.CategoryEnquiry, "e2", t0.Add(-2*time.Hour)))
	store.seed(seeded("u1", domain.CategoryEnquiry, "e3", t0.Add(-1*time.Hour)))
	read := seeded("u1", domain.CategoryEnquiry, "e0", t0.Add(-4*time.Hour))
	read.IsRead = true
	store.seed(read)
	store.seed(seeded("u1", domain.CategoryReview, "r1", t0.Add(-time.Hour)))
	store.seed(seeded("u2", domain.CategoryEnquiry, "x", t0.Add(-time.Hour)))

	deleted, err := svc.ManualCleanup(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	survivor, err := store.Get(ctx, oldest.NotificationID)
	require.NoError(t, err)
	assert.True(t, survivor.IsBundled)
	assert.Equal(t, 3, survivor.BundleCount)
	assert.Equal(t, "You have 3 new property enquiries", survivor.Message)
	require.Len(t, survivor.BundledItems, 3)
	assert.Equal(t, []string{"e1", "e2", "e3"}, []string{
		survivor.BundledItems[0].Message, survivor.BundledItems[1].Message, survivor.BundledItems[2].Message,
	})

	assert.Len(t, store.all("u1"), 3) // survivor, read record, review
	assert.Len(t, store.all("u2"), 1)

	deleted, err = svc.ManualCleanup(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, deleted)

	_, err = svc.ManualCleanup(ctx, "")
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
}

func TestFetch_PaginatesAndCollapsesOnFirstPage(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()
	store.seed(seeded("u1", domain.CategoryFollow, "f1", t0.Add(-5*time.Hour)))
	store.seed(seeded("u1", domain.CategoryFollow, "f2", t0.Add(-4*time.Hour)))
	store.seed(seeded("u1", domain.CategoryAlert, "a", t0.Add(-3*time.Hour)))
	store.seed(seeded("u1", domain.CategoryReview, "r", t0.Add(-2*time.Hour)))
	store.seed(seeded("u1", domain.CategoryBoost, "b", t0.Add(-1*time.Hour)))

	p1, err := svc.Fetch(ctx, "u1", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 4, p1.TotalCount)
	assert.Equal(t, 2, p1.TotalPages)
	assert.True(t, p1.HasMore)
	require.Len(t, p1.Notifications, 2)
	assert.Equal(t, "b", p1.Notifications[0].Message)

	p2, err := svc.Fetch(ctx, "u1", 2, 2)
	require.NoError(t, err)
	assert.False(t, p2.HasMore)
	require.Len(t, p2.Notifications, 2)
	assert.Equal(t, "2 people started following you", p2.Notifications[1].Message)

	p3, err := svc.Fetch(ctx, "u1", 3, 2)
	require.NoError(t, err)
	assert.Empty(t, p3.Notifications)
	assert.False(t, p3.HasMore)
}

func TestFetch_ClampsPageSize(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	p, err := svc.Fetch(context.Background(), "u1", 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, defaultMaxPageSize, p.PageSize)
	assert.Zero(t, p.TotalPages)

	_, err = svc.Fetch(context.Background(), "", 1, 10)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
}

type prefixSigner struct{}

func (prefixSigner) PresignGet(_ context.Context, key string) (string, error) {
	if key == "broken" {
		return "", errors.New("no credentials")
	}
	return "https://media.example/" + key, nil
}

func TestFetch_SignsMedia(t *testing.T) {
	store := newFakeStore()
	svc := NewService(ServiceDeps{Repo: store, MediaSigner: prefixSigner{}})
	n := seeded("u1", domain.CategoryListing, "listed", t0)
	n.MediaKey = "avatars/1.png"
	n.Subject = &domain.Subject{Title: "Flat 4", Image: "broken"}
	store.seed(n)

	p, err := svc.Fetch(context.Background(), "u1", 1, 10)
	require.NoError(t, err)
	require.Len(t, p.Notifications, 1)
	assert.Equal(t, "https://media.example/avatars/1.png", p.Notifications[0].MediaKey)
	assert.Equal(t, "broken", p.Notifications[0].Subject.Image)

	stored, err := store.Get(context.Background(), n.NotificationID)
	require.NoError(t, err)
	assert.Equal(t, "avatars/1.png", stored.MediaKey)
}

func TestEnquiryScenario_FiveSequentialEvents(t *testing.T) {
	svc, store, disp, clock := newTestService(t)
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		in := intent("U1", domain.CategoryEnquiry, fmt.Sprintf("New enquiry on listing %d", i))
		in.SubjectID = fmt.Sprintf("listing-%d", i)
		_, err := svc.CreateOne(ctx, in)
		require.NoError(t, err)
		clock.Advance(4 * time.Minute)
	}

	recs := store.all("U1")
	require.Len(t, recs, 1)
	assert.True(t, recs[0].IsBundled)
	assert.Equal(t, 5, recs[0].BundleCount)

	require.Equal(t, 5, disp.count())
	last := disp.sent[4]
	assert.Equal(t, 5, last.BundleCount)
	assert.Equal(t, "You have 5 new property enquiries", last.Message)
}
