package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const resultTTL = 24 * time.Hour

func resultKey(runID string) string { return "forecast:result:" + runID }

// ErrResultNotFound is returned when no cached forecast exists for a
// run id, either because the run is still queued or the result expired.
var ErrResultNotFound = errors.New("forecast result not found")

// ResultStore caches serialized batch forecast results by run id.
type ResultStore interface {
	SetResult(ctx context.Context, runID string, result []byte, ttl time.Duration) error
	GetResult(ctx context.Context, runID string) ([]byte, error)
}

type resultStore struct {
	client *redis.Client
}

// NewResultStore creates a Redis-backed ResultStore.
func NewResultStore(client *redis.Client) ResultStore {
	return &resultStore{client: client}
}

func (s *resultStore) SetResult(ctx context.Context, runID string, result []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = resultTTL
	}
	err := s.client.Set(ctx, resultKey(runID), result, ttl).Err()
	if err != nil {
		return fmt.Errorf("redis set result for %s: %w", runID, err)
	}
	return nil
}

func (s *resultStore) GetResult(ctx context.Context, runID string) ([]byte, error) {
	data, err := s.client.Get(ctx, resultKey(runID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrResultNotFound
		}
		return nil, fmt.Errorf("redis get result for %s: %w", runID, err)
	}
	return data, nil
}
