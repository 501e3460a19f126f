package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/bistro/internal/actorcontext"
	"github.com/smallbiznis/bistro/internal/clock"
	"github.com/smallbiznis/bistro/internal/testutil"
	"github.com/smallbiznis/bistro/internal/user/domain"
	"github.com/smallbiznis/bistro/internal/user/repository"
	"github.com/smallbiznis/bistro/pkg/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) domain.Service {
	t.Helper()
	return New(Params{
		DB:    testutil.OpenDB(t, &domain.User{}),
		Log:   zap.NewNop(),
		GenID: testutil.Node(t),
		Clock: clock.NewFakeClock(time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
	})
}

func TestCreateUser(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.CreateUserRequest{Username: "  Ana ", Role: "client"})
	require.NoError(t, err)
	assert.Equal(t, "ana", created.Username)
	assert.Equal(t, "ana", created.DisplayName)
	assert.Equal(t, actorcontext.RoleClient, created.Role)

	loaded, err := svc.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, loaded.ID)

	_, err = svc.Create(ctx, domain.CreateUserRequest{Username: "ana", Role: "waiter"})
	assert.ErrorIs(t, err, domain.ErrUsernameTaken)
}

func TestCreateUserRejectsInvalidInput(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, domain.CreateUserRequest{Username: "bo", Role: "client"})
	assert.True(t, errors.Is(err, validation.ErrInvalid))

	_, err = svc.Create(ctx, domain.CreateUserRequest{Username: "ana maria", Role: "client"})
	assert.ErrorIs(t, err, domain.ErrInvalidUsername)

	_, err = svc.Create(ctx, domain.CreateUserRequest{Username: "bruno", Role: "chef"})
	assert.ErrorIs(t, err, domain.ErrInvalidRole)

	_, err = svc.Create(ctx, domain.CreateUserRequest{Username: "bruno", Role: "system"})
	assert.ErrorIs(t, err, domain.ErrInvalidRole)
}

func TestListUsersByRole(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for _, req := range []domain.CreateUserRequest{
		{Username: "admin", Role: "admin"},
		{Username: "carla", Role: "client"},
		{Username: "diego", Role: "client"},
	} {
		_, err := svc.Create(ctx, req)
		require.NoError(t, err)
	}

	clients, err := svc.List(ctx, domain.ListUserRequest{Role: actorcontext.RoleClient})
	require.NoError(t, err)
	require.Len(t, clients, 2)
	assert.Equal(t, "carla", clients[0].Username)

	_, err = svc.GetByID(ctx, 12345)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInactiveUserStaysInactive(t *testing.T) {
	db := testutil.OpenDB(t, &domain.User{})
	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: testutil.Node(t),
		Clock: clock.NewFakeClock(time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
	})
	ctx := context.Background()
	now := time.Date(2026, 1, 4, 9, 0, 0, 0, time.UTC)

	require.NoError(t, db.Create(&domain.User{
		ID: 77, Username: "retired", DisplayName: "Retired", Role: actorcontext.RoleWaiter,
		Active: false, CreatedAt: now, UpdatedAt: now,
	}).Error)
	_, err := svc.Create(ctx, domain.CreateUserRequest{Username: "current", Role: "waiter"})
	require.NoError(t, err)

	loaded, err := svc.GetByID(ctx, 77)
	require.NoError(t, err)
	assert.False(t, loaded.Active)

	active, err := svc.List(ctx, domain.ListUserRequest{Role: actorcontext.RoleWaiter, ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "current", active[0].Username)
}
