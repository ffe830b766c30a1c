//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plantwin/plantwin/internal/domain"
	redisstore "github.com/plantwin/plantwin/internal/redis"
)

// newRedisClient returns a client connected to the test container and flushes
// the database on test cleanup so tests don't interfere with each other.
func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: testRedisAddr})
	t.Cleanup(func() {
		client.FlushDB(context.Background()) //nolint:errcheck
		client.Close()                       //nolint:errcheck
	})
	return client
}

func TestLocks_AcquireRelease(t *testing.T) {
	locks := redisstore.NewLockStore(newRedisClient(t))
	ctx := context.Background()

	lock, err := locks.Acquire(ctx, "plan-1", "task-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, "task-1", lock.TaskID)
	assert.Equal(t, "alice", lock.Owner)
	assert.True(t, lock.ExpiresAt.After(time.Now()))

	holder, err := locks.Holder(ctx, "plan-1", "task-1")
	require.NoError(t, err)
	require.NotNil(t, holder)
	assert.Equal(t, "alice", holder.Owner)

	require.NoError(t, locks.Release(ctx, "plan-1", "task-1", "alice"))

	holder, err = locks.Holder(ctx, "plan-1", "task-1")
	require.NoError(t, err)
	assert.Nil(t, holder, "released lock should have no holder")
}

func TestLocks_ConflictReportsHolder(t *testing.T) {
	locks := redisstore.NewLockStore(newRedisClient(t))
	ctx := context.Background()

	_, err := locks.Acquire(ctx, "plan-1", "task-1", "alice")
	require.NoError(t, err)

	_, err = locks.Acquire(ctx, "plan-1", "task-1", "bob")
	require.Error(t, err)

	var held *domain.LockHeldError
	require.ErrorAs(t, err, &held)
	assert.Equal(t, "task-1", held.TaskID)
	assert.Equal(t, "alice", held.Owner)
}

func TestLocks_SameOwnerRefreshes(t *testing.T) {
	locks := redisstore.NewLockStore(newRedisClient(t))
	ctx := context.Background()

	first, err := locks.Acquire(ctx, "plan-1", "task-1", "alice")
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	second, err := locks.Acquire(ctx, "plan-1", "task-1", "alice")
	require.NoError(t, err)
	assert.True(t, second.ExpiresAt.After(first.ExpiresAt), "re-acquire by the holder extends the TTL")
}

func TestLocks_ReleaseWrongOwner(t *testing.T) {
	locks := redisstore.NewLockStore(newRedisClient(t))
	ctx := context.Background()

	_, err := locks.Acquire(ctx, "plan-1", "task-1", "alice")
	require.NoError(t, err)

	err = locks.Release(ctx, "plan-1", "task-1", "bob")
	require.Error(t, err)

	var held *domain.LockHeldError
	require.ErrorAs(t, err, &held)
	assert.Equal(t, "alice", held.Owner)

	// Lock is still in place for the real owner.
	holder, err := locks.Holder(ctx, "plan-1", "task-1")
	require.NoError(t, err)
	require.NotNil(t, holder)
	assert.Equal(t, "alice", holder.Owner)
}

func TestLocks_IndependentTasks(t *testing.T) {
	locks := redisstore.NewLockStore(newRedisClient(t))
	ctx := context.Background()

	_, err := locks.Acquire(ctx, "plan-1", "task-1", "alice")
	require.NoError(t, err)

	// Same task ID in another plan, and another task in the same plan.
	_, err = locks.Acquire(ctx, "plan-2", "task-1", "bob")
	require.NoError(t, err)
	_, err = locks.Acquire(ctx, "plan-1", "task-2", "bob")
	require.NoError(t, err)
}

// ── Result cache ─────────────────────────────────────────────────────────────

func TestResults_SetGet_RoundTrip(t *testing.T) {
	results := redisstore.NewResultStore(newRedisClient(t))
	ctx := context.Background()

	payload := []byte(`{"plan_id":"plan-1","n_iterations":1000}`)
	require.NoError(t, results.SetResult(ctx, "run-1", payload, time.Minute))

	got, err := results.GetResult(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestResults_NotFound(t *testing.T) {
	results := redisstore.NewResultStore(newRedisClient(t))

	_, err := results.GetResult(context.Background(), "no-such-run")
	require.ErrorIs(t, err, redisstore.ErrResultNotFound)
}

func TestResults_TTLExpiry(t *testing.T) {
	results := redisstore.NewResultStore(newRedisClient(t))
	ctx := context.Background()

	require.NoError(t, results.SetResult(ctx, "run-ttl", []byte(`{}`), 200*time.Millisecond))

	time.Sleep(300 * time.Millisecond)

	_, err := results.GetResult(ctx, "run-ttl")
	require.ErrorIs(t, err, redisstore.ErrResultNotFound, "result should expire with its TTL")
}
