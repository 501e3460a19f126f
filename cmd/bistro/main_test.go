package main

import (
	"context"
	"testing"

	"github.com/smallbiznis/bistro/internal/config"
	notificationdomain "github.com/smallbiznis/bistro/internal/notification/domain"
	"github.com/smallbiznis/bistro/internal/testutil"
	userdomain "github.com/smallbiznis/bistro/internal/user/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSeedDatabaseUsesCommandContext(t *testing.T) {
	conn := testutil.OpenDB(t, &notificationdomain.Channel{}, &userdomain.User{})
	node := testutil.Node(t)
	cfg := config.Config{Bootstrap: config.BootstrapConfig{AdminUsername: "admin"}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := seedDatabase(ctx)(conn, cfg, node, zap.NewNop())
	require.ErrorIs(t, err, context.Canceled)

	var users int64
	require.NoError(t, conn.Model(&userdomain.User{}).Count(&users).Error)
	assert.Zero(t, users)

	require.NoError(t, seedDatabase(context.Background())(conn, cfg, node, zap.NewNop()))
	require.NoError(t, conn.Model(&userdomain.User{}).Count(&users).Error)
	assert.EqualValues(t, 1, users)
}
