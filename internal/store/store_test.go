package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plantwin/plantwin/internal/domain"
)

func TestSeedStoreTasks(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewSeedStore(now)

	tasks, err := s.Tasks(context.Background(), SeedPlanID)
	require.NoError(t, err)
	require.NotEmpty(t, tasks)

	edges, err := s.Dependencies(context.Background(), SeedPlanID)
	require.NoError(t, err)
	require.NotEmpty(t, edges)

	byID := make(map[string]bool, len(tasks))
	for _, task := range tasks {
		byID[task.ID] = true
	}
	for _, e := range edges {
		assert.True(t, byID[e.TaskID], "edge references unknown task %s", e.TaskID)
		assert.True(t, byID[e.DependsOnID], "edge references unknown task %s", e.DependsOnID)
	}
}

func TestSeedStoreUnknownPlan(t *testing.T) {
	s := NewSeedStore(time.Now())

	_, err := s.Tasks(context.Background(), "other-plan")
	var notFound *domain.PlanNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "other-plan", notFound.PlanID)
}

func TestSeedStoreUpsert(t *testing.T) {
	s := NewSeedStore(time.Now())
	ctx := context.Background()

	before, err := s.Tasks(ctx, SeedPlanID)
	require.NoError(t, err)

	n, err := s.UpsertTasks(ctx, SeedPlanID, []domain.Task{
		{ID: "seed-01", Title: "Book venue (renegotiated)"},
		{ID: "new-01", Title: "Order badges"},
		{Title: "no id, skipped"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	after, err := s.Tasks(ctx, SeedPlanID)
	require.NoError(t, err)
	assert.Len(t, after, len(before)+1)
	assert.Equal(t, "Book venue (renegotiated)", after[0].Title)
	assert.Equal(t, SeedPlanID, after[len(after)-1].PlanID)
}

func TestSeedStoreSyncState(t *testing.T) {
	s := NewSeedStore(time.Now())
	ctx := context.Background()

	last, previous, err := s.SyncState(ctx, SeedPlanID)
	require.NoError(t, err)
	assert.Nil(t, last)
	assert.Nil(t, previous)

	t1 := time.Now().Add(-time.Hour)
	t2 := time.Now()
	require.NoError(t, s.SetSyncState(ctx, SeedPlanID, &t2, &t1))

	last, previous, err = s.SyncState(ctx, SeedPlanID)
	require.NoError(t, err)
	require.NotNil(t, last)
	require.NotNil(t, previous)
	assert.True(t, previous.Before(*last))
}

// emptyStore fakes a primary that has no rows yet.
type emptyStore struct {
	upserts int
}

func (e *emptyStore) Tasks(ctx context.Context, planID string) ([]domain.Task, error) {
	return nil, nil
}

func (e *emptyStore) Dependencies(ctx context.Context, planID string) ([]domain.DependencyEdge, error) {
	return nil, nil
}

func (e *emptyStore) UpsertTasks(ctx context.Context, planID string, tasks []domain.Task) (int, error) {
	e.upserts += len(tasks)
	return len(tasks), nil
}

func (e *emptyStore) SyncState(ctx context.Context, planID string) (*time.Time, *time.Time, error) {
	return nil, nil, nil
}

func (e *emptyStore) SetSyncState(ctx context.Context, planID string, last, previous *time.Time) error {
	return nil
}

func (e *emptyStore) Plans(ctx context.Context) ([]domain.Plan, error) {
	return nil, nil
}

type failingStore struct{ emptyStore }

func (f *failingStore) Tasks(ctx context.Context, planID string) ([]domain.Task, error) {
	return nil, errors.New("connection refused")
}

func TestFallbackServesSeedWhenPrimaryEmpty(t *testing.T) {
	seed := NewSeedStore(time.Now())
	fb := WithFallback(&emptyStore{}, seed)

	tasks, err := fb.Tasks(context.Background(), SeedPlanID)
	require.NoError(t, err)
	assert.NotEmpty(t, tasks)

	edges, err := fb.Dependencies(context.Background(), SeedPlanID)
	require.NoError(t, err)
	assert.NotEmpty(t, edges)
}

func TestFallbackServesSeedWhenPrimaryDown(t *testing.T) {
	seed := NewSeedStore(time.Now())
	fb := WithFallback(&failingStore{}, seed)

	tasks, err := fb.Tasks(context.Background(), SeedPlanID)
	require.NoError(t, err)
	assert.NotEmpty(t, tasks)
}

func TestFallbackOnlyCoversSeedPlan(t *testing.T) {
	seed := NewSeedStore(time.Now())
	fb := WithFallback(&failingStore{}, seed)

	_, err := fb.Tasks(context.Background(), "real-plan")
	assert.Error(t, err)
}

func TestFallbackWritesGoToPrimary(t *testing.T) {
	primary := &emptyStore{}
	fb := WithFallback(primary, NewSeedStore(time.Now()))

	n, err := fb.UpsertTasks(context.Background(), SeedPlanID, []domain.Task{{ID: "x"}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, primary.upserts)
}

func TestFallbackPlansIncludesSeed(t *testing.T) {
	fb := WithFallback(&emptyStore{}, NewSeedStore(time.Now()))

	plans, err := fb.Plans(context.Background())
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, SeedPlanID, plans[0].ID)
}
