package push

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisGuard(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	guard := NewRedisGuard(client, time.Hour)
	ctx := context.Background()

	ok, err := guard.Acquire(ctx, "n1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = guard.Acquire(ctx, "n1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, mr.Exists("push:delivered:n1"))

	require.NoError(t, guard.Release(ctx, "n1"))
	ok, err = guard.Acquire(ctx, "n1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisGuardExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	guard := NewRedisGuard(client, time.Minute)
	ctx := context.Background()

	ok, err := guard.Acquire(ctx, "n2")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)

	ok, err = guard.Acquire(ctx, "n2")
	require.NoError(t, err)
	assert.True(t, ok)
}
