package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bistro/internal/actorcontext"
	"github.com/smallbiznis/bistro/internal/clock"
	"github.com/smallbiznis/bistro/internal/notification/domain"
	"github.com/smallbiznis/bistro/internal/notification/repository"
	"github.com/smallbiznis/bistro/internal/testutil"
	userdomain "github.com/smallbiznis/bistro/internal/user/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(ctx context.Context, n domain.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

type fixture struct {
	svc    domain.Service
	db     *gorm.DB
	clock  *clock.FakeClock
	sender *mockSender
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := testutil.OpenDB(t, &domain.Channel{}, &domain.Preference{}, &domain.Notification{}, &userdomain.User{})
	fc := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	sender := &mockSender{}
	svc := New(Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  testutil.Node(t),
		Clock:  fc,
		Repo:   repository.Provide(),
		Sender: sender,
	})
	require.NoError(t, db.Create(&[]domain.Channel{
		{Code: "email", Name: "Email", Active: true, CreatedAt: fc.Now()},
		{Code: "sms", Name: "SMS", Active: true, CreatedAt: fc.Now()},
		{Code: "fax", Name: "Fax", Active: false, CreatedAt: fc.Now()},
	}).Error)
	return fixture{svc: svc, db: db, clock: fc, sender: sender}
}

func TestNotifyUsesDefaultChannelAndPreference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Notify(ctx, nil, domain.NotifyRequest{UserID: 7, Event: domain.EventCreditApproved}))

	_, err := f.svc.SetPreference(ctx, domain.SetPreferenceRequest{UserID: 7, Event: domain.EventCreditPaid, ChannelCode: "sms"})
	require.NoError(t, err)
	require.NoError(t, f.svc.Notify(ctx, nil, domain.NotifyRequest{UserID: 7, Event: domain.EventCreditPaid}))

	items, err := f.svc.ListForUser(ctx, 7)
	require.NoError(t, err)
	require.Len(t, items, 2)

	byEvent := map[domain.Event]string{}
	for _, n := range items {
		byEvent[n.Event] = n.ChannelCode
		assert.Equal(t, domain.StatusPending, n.Status)
		assert.Equal(t, 3, n.MaxAttempts)
	}
	assert.Equal(t, "email", byEvent[domain.EventCreditApproved])
	assert.Equal(t, "sms", byEvent[domain.EventCreditPaid])
}

func TestSetPreferenceRejectsInactiveChannel(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.SetPreference(context.Background(), domain.SetPreferenceRequest{UserID: 7, Event: domain.EventCreditPaid, ChannelCode: "fax"})
	assert.ErrorIs(t, err, domain.ErrUnknownChannel)

	_, err = f.svc.SetPreference(context.Background(), domain.SetPreferenceRequest{UserID: 7, Event: domain.EventCreditPaid, ChannelCode: "pigeon"})
	assert.ErrorIs(t, err, domain.ErrUnknownChannel)

	var fax domain.Channel
	require.NoError(t, f.db.Where("code = ?", "fax").First(&fax).Error)
	assert.False(t, fax.Active)
}

// forgetfulRepo drops preferences on read.
type forgetfulRepo struct {
	domain.Repository
}

func (forgetfulRepo) FindPreference(context.Context, *gorm.DB, snowflake.ID, domain.Event) (*domain.Preference, error) {
	return nil, nil
}

func TestSetPreferenceReportsLostWrite(t *testing.T) {
	f := newFixture(t)
	svc := New(Params{
		DB:     f.db,
		Log:    zap.NewNop(),
		GenID:  testutil.Node(t),
		Clock:  f.clock,
		Repo:   forgetfulRepo{Repository: repository.Provide()},
		Sender: f.sender,
	})

	_, err := svc.SetPreference(context.Background(), domain.SetPreferenceRequest{UserID: 7, Event: domain.EventCreditPaid, ChannelCode: "sms"})
	assert.ErrorIs(t, err, domain.ErrPreferenceLost)
}

func TestNotifyRollsBackWithCallerTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := f.db.Transaction(func(tx *gorm.DB) error {
		require.NoError(t, f.svc.Notify(ctx, tx, domain.NotifyRequest{UserID: 9, Event: domain.EventOrderCreated}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	items, err := f.svc.ListForUser(ctx, 9)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestNotifyRoleFansOutToActiveUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := f.clock.Now()

	require.NoError(t, f.db.Create(&[]userdomain.User{
		{ID: 1, Username: "boss", DisplayName: "Boss", Role: actorcontext.RoleAdmin, Active: true, CreatedAt: now, UpdatedAt: now},
		{ID: 2, Username: "old", DisplayName: "Old", Role: actorcontext.RoleAdmin, Active: false, CreatedAt: now, UpdatedAt: now},
		{ID: 3, Username: "cook", DisplayName: "Cook", Role: actorcontext.RoleCook, Active: true, CreatedAt: now, UpdatedAt: now},
	}).Error)

	require.NoError(t, f.svc.NotifyRole(ctx, nil, actorcontext.RoleAdmin, domain.EventStockLow, map[string]any{"sku": "CAF-1"}))

	var count int64
	require.NoError(t, f.db.Model(&domain.Notification{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	items, err := f.svc.ListForUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "CAF-1", items[0].Payload["sku"])
}

func TestDispatchDueSendsPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Notify(ctx, nil, domain.NotifyRequest{UserID: 7, Event: domain.EventOrderDelivered}))
	f.sender.On("Send", mock.Anything, mock.Anything).Return(nil).Once()

	res, err := f.svc.DispatchDue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, domain.DispatchResult{Claimed: 1, Sent: 1}, res)

	items, err := f.svc.ListForUser(ctx, 7)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, domain.StatusSent, items[0].Status)
	assert.Equal(t, 1, items[0].Attempts)
	require.NotNil(t, items[0].SentAt)

	res, err = f.svc.DispatchDue(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, res.Claimed)
	f.sender.AssertExpectations(t)
}

func TestDispatchDueRetriesThenFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Notify(ctx, nil, domain.NotifyRequest{UserID: 7, Event: domain.EventCreditSuspended}))
	f.sender.On("Send", mock.Anything, mock.Anything).Return(errors.New("gateway down"))

	res, err := f.svc.DispatchDue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Retrying)

	// Not due again until the backoff elapses.
	res, err = f.svc.DispatchDue(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, res.Claimed)

	f.clock.Advance(5 * time.Minute)
	res, err = f.svc.DispatchDue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Retrying)

	f.clock.Advance(5 * time.Minute)
	res, err = f.svc.DispatchDue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)

	items, err := f.svc.ListForUser(ctx, 7)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, domain.StatusFailed, items[0].Status)
	assert.Equal(t, 3, items[0].Attempts)
	require.NotNil(t, items[0].LastError)
	assert.Equal(t, "gateway down", *items[0].LastError)

	f.clock.Advance(time.Hour)
	res, err = f.svc.DispatchDue(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, res.Claimed)
	f.sender.AssertNumberOfCalls(t, "Send", 3)
}

func TestNotifyValidatesInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.Notify(ctx, nil, domain.NotifyRequest{Event: domain.EventCreditPaid}), domain.ErrInvalidUser)
	assert.ErrorIs(t, f.svc.Notify(ctx, nil, domain.NotifyRequest{UserID: 1}), domain.ErrInvalidEvent)
}
