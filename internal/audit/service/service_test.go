package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/smallbiznis/bistro/internal/actorcontext"
	auditdomain "github.com/smallbiznis/bistro/internal/audit/domain"
	"github.com/smallbiznis/bistro/internal/audit/repository"
	"github.com/smallbiznis/bistro/internal/clock"
	"github.com/smallbiznis/bistro/internal/testutil"
	"github.com/smallbiznis/bistro/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAuditLogAndList(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC))
	node := testutil.Node(t)
	svc := NewService(Params{
		DB:    testutil.OpenDB(t, &auditdomain.AuditLog{}),
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  repository.Provide(),
	})

	adminID := node.Generate()
	ctx := actorcontext.WithActor(context.Background(), adminID, actorcontext.RoleAdmin)

	for i := 0; i < 3; i++ {
		target := "42"
		require.NoError(t, svc.AuditLog(ctx, nil, "accreditation.approved", "accreditation_request", &target, map[string]any{"n": i}))
		clk.Advance(time.Minute)
	}
	require.NoError(t, svc.AuditLog(context.Background(), nil, "order.transition", "order", nil, nil))
	assert.ErrorIs(t, svc.AuditLog(ctx, nil, " ", "order", nil, nil), auditdomain.ErrInvalidAction)

	first, err := svc.List(ctx, auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageSize: 2},
		Action:     "accreditation.approved",
	})
	require.NoError(t, err)
	require.Len(t, first.AuditLogs, 2)
	assert.True(t, first.HasMore)
	assert.Equal(t, string(actorcontext.RoleAdmin), first.AuditLogs[0].ActorRole)
	require.NotNil(t, first.AuditLogs[0].ActorID)
	assert.Equal(t, adminID, *first.AuditLogs[0].ActorID)

	second, err := svc.List(ctx, auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageSize: 2, PageToken: first.NextPageToken},
		Action:     "accreditation.approved",
	})
	require.NoError(t, err)
	require.Len(t, second.AuditLogs, 1)
	assert.False(t, second.HasMore)

	system, err := svc.List(ctx, auditdomain.ListAuditLogRequest{TargetType: "order"})
	require.NoError(t, err)
	require.Len(t, system.AuditLogs, 1)
	assert.Equal(t, string(actorcontext.RoleSystem), system.AuditLogs[0].ActorRole)
	assert.Nil(t, system.AuditLogs[0].ActorID)

	byAdmin, err := svc.List(ctx, auditdomain.ListAuditLogRequest{ActorID: &adminID})
	require.NoError(t, err)
	assert.Len(t, byAdmin.AuditLogs, 3)
	assert.Equal(t, "42", *byAdmin.AuditLogs[0].TargetID)
	assert.Equal(t, "2", fmt.Sprint(byAdmin.AuditLogs[0].Metadata["n"]))

	_, err = svc.List(ctx, auditdomain.ListAuditLogRequest{Pagination: pagination.Pagination{PageToken: "!!"}})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidPageToken)
}
