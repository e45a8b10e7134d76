package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestAggregateLockExclusive(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	lock := NewAggregateLock(client, time.Minute)
	ctx := context.Background()
	key := TransferLockKey(42)

	require.NoError(t, lock.Acquire(ctx, key))
	require.ErrorIs(t, lock.Acquire(ctx, key), ErrLockHeld)

	require.NoError(t, lock.Release(ctx, key))
	require.NoError(t, lock.Acquire(ctx, key))
}

func TestAggregateLockExpires(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	lock := NewAggregateLock(client, time.Second)
	ctx := context.Background()
	key := ReturnLockKey(7)

	require.NoError(t, lock.Acquire(ctx, key))
	srv.FastForward(2 * time.Second)
	require.NoError(t, lock.Acquire(ctx, key))
}

func TestNilLockIsNoop(t *testing.T) {
	var lock *AggregateLock
	require.NoError(t, lock.Acquire(context.Background(), "any"))
	require.NoError(t, lock.Release(context.Background(), "any"))
}
