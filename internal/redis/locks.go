// Package redis holds the Redis-backed collaborators: task edit locks,
// the forecast result cache, and scheduler leader election.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/plantwin/plantwin/internal/domain"
)

const lockTTL = 15 * time.Minute

func lockKey(planID, taskID string) string {
	return "plan:" + planID + ":lock:" + taskID
}

// Lock describes a held edit lock.
type Lock struct {
	TaskID    string    `json:"task_id"`
	Owner     string    `json:"owner"`
	ExpiresAt time.Time `json:"expires_at"`
}

// LockStore hands out advisory per-task edit locks with a TTL. Locks are
// cooperative: they signal editing intent, nothing enforces them.
type LockStore interface {
	Acquire(ctx context.Context, planID, taskID, owner string) (*Lock, error)
	Release(ctx context.Context, planID, taskID, owner string) error
	Holder(ctx context.Context, planID, taskID string) (*Lock, error)
}

type lockStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLockStore creates a Redis-backed LockStore with the default 15
// minute TTL.
func NewLockStore(client *redis.Client) LockStore {
	return &lockStore{client: client, ttl: lockTTL}
}

// NewClient creates and returns a new Redis client.
func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
		PoolSize:     10,
	})
}

// Acquire takes the lock for owner. A live lock held by someone else
// fails with LockHeldError naming the holder; re-acquiring one's own
// lock refreshes the TTL. Expired locks are simply taken over.
func (s *lockStore) Acquire(ctx context.Context, planID, taskID, owner string) (*Lock, error) {
	lock := Lock{TaskID: taskID, Owner: owner, ExpiresAt: time.Now().Add(s.ttl)}
	data, err := json.Marshal(lock)
	if err != nil {
		return nil, fmt.Errorf("marshal lock for %s: %w", taskID, err)
	}

	key := lockKey(planID, taskID)
	ok, err := s.client.SetNX(ctx, key, data, s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis acquire lock for %s: %w", taskID, err)
	}
	if ok {
		return &lock, nil
	}

	holder, err := s.Holder(ctx, planID, taskID)
	if err != nil {
		return nil, err
	}
	if holder == nil {
		// Raced with an expiry; one retry.
		ok, err = s.client.SetNX(ctx, key, data, s.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis acquire lock for %s: %w", taskID, err)
		}
		if ok {
			return &lock, nil
		}
		return nil, &domain.LockHeldError{TaskID: taskID}
	}
	if holder.Owner == owner {
		if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
			return nil, fmt.Errorf("redis refresh lock for %s: %w", taskID, err)
		}
		return &lock, nil
	}
	return nil, &domain.LockHeldError{TaskID: taskID, Owner: holder.Owner, ExpiresAt: holder.ExpiresAt}
}

// releaseScript deletes the key only when the stored lock belongs to
// the caller.
var releaseScript = redis.NewScript(`
local raw = redis.call("GET", KEYS[1])
if not raw then
  return 1
end
local lock = cjson.decode(raw)
if lock.owner == ARGV[1] then
  redis.call("DEL", KEYS[1])
  return 1
end
return 0
`)

// Release frees the lock if owner holds it. Releasing an absent lock
// succeeds; releasing someone else's lock fails with LockHeldError.
func (s *lockStore) Release(ctx context.Context, planID, taskID, owner string) error {
	res, err := releaseScript.Run(ctx, s.client, []string{lockKey(planID, taskID)}, owner).Int()
	if err != nil {
		return fmt.Errorf("redis release lock for %s: %w", taskID, err)
	}
	if res == 0 {
		holder, err := s.Holder(ctx, planID, taskID)
		if err != nil {
			return err
		}
		if holder == nil {
			return nil
		}
		return &domain.LockHeldError{TaskID: taskID, Owner: holder.Owner, ExpiresAt: holder.ExpiresAt}
	}
	return nil
}

// Holder returns the current lock, or nil when the task is unlocked.
func (s *lockStore) Holder(ctx context.Context, planID, taskID string) (*Lock, error) {
	data, err := s.client.Get(ctx, lockKey(planID, taskID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get lock for %s: %w", taskID, err)
	}
	var lock Lock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("unmarshal lock for %s: %w", taskID, err)
	}
	return &lock, nil
}
