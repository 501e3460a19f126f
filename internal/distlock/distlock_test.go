package distlock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bsm/redislock"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/bistro/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

func TestDisabledRedisYieldsNilLocker(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	client, err := NewClient(lc, config.Config{}, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, client)
	assert.Nil(t, NewLocker(client))
	lc.RequireStart().RequireStop()
}

func TestRunWithoutLockerCallsThrough(t *testing.T) {
	called := false
	boom := errors.New("boom")
	err := Run(context.Background(), nil, "bistro:test", time.Second, func(context.Context) error {
		called = true
		return boom
	})
	assert.True(t, called)
	assert.ErrorIs(t, err, boom)
}

func TestRunSkipsWorkWhenRedisIsUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	called := false
	err := Run(context.Background(), redislock.New(client), "bistro:test", time.Second, func(context.Context) error {
		called = true
		return nil
	})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrBusy)
	assert.False(t, called)
}
