package notification_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/homecarehub/homecare/internal/database"
	"github.com/homecarehub/homecare/internal/notification"
	"github.com/homecarehub/homecare/internal/scope"
)

type fakeCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{counts: make(map[string]int64)}
}

func (f *fakeCounter) Incr(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[key]++
	return nil
}

func (f *fakeCounter) Set(_ context.Context, key string, value int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[key] = value
	return nil
}

func (f *fakeCounter) Get(_ context.Context, key string) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.counts[key]
	return v, ok, nil
}

type fakeMailer struct {
	sent []string
}

func (f *fakeMailer) Send(_ context.Context, to, subject, _ string) error {
	f.sent = append(f.sent, to+": "+subject)
	return nil
}

func setupService(t *testing.T) (*notification.Service, *fakeCounter, *fakeMailer) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	counter := newFakeCounter()
	mailer := &fakeMailer{}
	return notification.NewService(zap.NewNop(), db, counter, mailer), counter, mailer
}

func TestNotifySanitizesContent(t *testing.T) {
	svc, _, _ := setupService(t)
	userID := uuid.New()

	n, err := svc.Notify(context.Background(), userID, nil, "staff.role_changed",
		`Role updated <script>alert("x")</script>`, "<b>Your role</b> is now senior")
	require.NoError(t, err)
	assert.Equal(t, "Role updated ", n.Title)
	assert.Equal(t, "Your role is now senior", n.Body)
	assert.Nil(t, n.ReadAt)
}

func TestNotifyEmailDelivers(t *testing.T) {
	svc, _, mailer := setupService(t)

	_, err := svc.NotifyEmail(context.Background(), uuid.New(), nil, "invite.created",
		"You have been invited", "Join Rosewood Care", "invitee@example.com")
	require.NoError(t, err)
	require.Len(t, mailer.sent, 1)
	assert.Contains(t, mailer.sent[0], "invitee@example.com")
}

func TestListAndUnreadCount(t *testing.T) {
	svc, counter, _ := setupService(t)
	ctx := context.Background()
	userID := uuid.New()
	other := uuid.New()

	for i := 0; i < 3; i++ {
		_, err := svc.Notify(ctx, userID, nil, "staff.role_changed", "Update", "body")
		require.NoError(t, err)
	}
	_, err := svc.Notify(ctx, other, nil, "staff.role_changed", "Update", "body")
	require.NoError(t, err)

	list, err := svc.List(ctx, userID, false, 10, 0)
	require.NoError(t, err)
	assert.Len(t, list, 3)

	count, err := svc.UnreadCount(ctx, userID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)

	// Cold counter falls back to the table and warms itself.
	counter.counts = map[string]int64{}
	count, err = svc.UnreadCount(ctx, userID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)
	assert.Len(t, counter.counts, 1)
}

func TestMarkRead(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()
	userID := uuid.New()
	q := &scope.Requester{UserID: userID, Level: scope.LevelStaff}

	n, err := svc.Notify(ctx, userID, nil, "billing.plan_changed", "Plan changed", "")
	require.NoError(t, err)

	require.NoError(t, svc.MarkRead(ctx, q, n.ID))

	unread, err := svc.List(ctx, userID, true, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, unread)

	count, err := svc.UnreadCount(ctx, userID)
	require.NoError(t, err)
	assert.Zero(t, count)

	// Idempotent.
	require.NoError(t, svc.MarkRead(ctx, q, n.ID))

	assert.ErrorIs(t, svc.MarkRead(ctx, q, uuid.New()), notification.ErrNotFound)

	stranger := &scope.Requester{UserID: uuid.New(), Level: scope.LevelStaff}
	n2, err := svc.Notify(ctx, userID, nil, "billing.plan_changed", "Plan changed", "")
	require.NoError(t, err)
	assert.ErrorIs(t, svc.MarkRead(ctx, stranger, n2.ID), scope.ErrOutOfScope)
}

func TestMarkAllRead(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()
	userID := uuid.New()
	q := &scope.Requester{UserID: userID, Level: scope.LevelStaff}

	for i := 0; i < 4; i++ {
		_, err := svc.Notify(ctx, userID, nil, "staff.role_changed", "Update", "")
		require.NoError(t, err)
	}

	require.NoError(t, svc.MarkAllRead(ctx, q))

	count, err := svc.UnreadCount(ctx, userID)
	require.NoError(t, err)
	assert.Zero(t, count)

	unread, err := svc.List(ctx, userID, true, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, unread)
}
