package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestNoop(t *testing.T) {
	release, err := Noop{}.Acquire(context.Background(), "k", time.Second)
	require.NoError(t, err)
	assert.NoError(t, release(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Noop{}.Acquire(ctx, "k", time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

// Enable with REDIS_IT=1.
func TestRedisLocker_MutualExclusion(t *testing.T) {
	if os.Getenv("REDIS_IT") != "1" {
		t.Skip("set REDIS_IT=1 to run the redis integration test")
	}
	ctx := context.Background()

	redisC, err := tcRedis.RunContainer(ctx, testcontainers.WithWaitStrategy(wait.ForListeningPort("6379/tcp")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = redisC.Terminate(ctx) })

	host, err := redisC.Host(ctx)
	require.NoError(t, err)
	port, err := redisC.MappedPort(ctx, "6379")
	require.NoError(t, err)

	rdb, err := NewRedisClient(ctx, fmt.Sprintf("%s:%s", host, port.Port()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	locker := NewRedisLocker(rdb)
	locker.poll = 10 * time.Millisecond

	release, err := locker.Acquire(ctx, "bootstrap:reports", 5*time.Second)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = locker.Acquire(waitCtx, "bootstrap:reports", 5*time.Second)
	assert.True(t, errors.Is(err, ErrNotAcquired))

	require.NoError(t, release(ctx))
	release2, err := locker.Acquire(ctx, "bootstrap:reports", 5*time.Second)
	require.NoError(t, err)
	assert.NoError(t, release2(ctx))
}
