// Package store defines the plan data access interface and the
// in-memory seed implementation used for demos and local development.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/plantwin/plantwin/internal/domain"
)

// PlanStore is the persistence interface the API and workers read plans
// through. A store returns the tasks and dependency edges for a plan,
// tracks sync bookkeeping, and accepts task upserts from sync runs.
type PlanStore interface {
	Tasks(ctx context.Context, planID string) ([]domain.Task, error)
	Dependencies(ctx context.Context, planID string) ([]domain.DependencyEdge, error)
	UpsertTasks(ctx context.Context, planID string, tasks []domain.Task) (int, error)
	SyncState(ctx context.Context, planID string) (last, previous *time.Time, err error)
	SetSyncState(ctx context.Context, planID string, last, previous *time.Time) error
	Plans(ctx context.Context) ([]domain.Plan, error)
}

// SeedStore is an in-memory PlanStore preloaded with a demo event plan.
// Dates are relative to the construction time so the attention and
// milestone views always have something to show.
type SeedStore struct {
	mu        sync.RWMutex
	planID    string
	tasks     map[string]domain.Task
	order     []string
	edges     []domain.DependencyEdge
	last      *time.Time
	previous  *time.Time
	createdAt time.Time
	eventDate time.Time
}

// SeedPlanID is the identifier of the built-in demo plan.
const SeedPlanID = "demo-event"

// NewSeedStore builds a SeedStore anchored at now.
func NewSeedStore(now time.Time) *SeedStore {
	s := &SeedStore{
		planID:    SeedPlanID,
		tasks:     make(map[string]domain.Task),
		createdAt: now,
		eventDate: now.AddDate(0, 0, 21),
	}
	for _, t := range seedTasks(now) {
		s.tasks[t.ID] = t
		s.order = append(s.order, t.ID)
	}
	s.edges = seedEdges()
	return s
}

func (s *SeedStore) Tasks(ctx context.Context, planID string) ([]domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if planID != s.planID {
		return nil, &domain.PlanNotFoundError{PlanID: planID}
	}
	out := make([]domain.Task, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.tasks[id])
	}
	return out, nil
}

func (s *SeedStore) Dependencies(ctx context.Context, planID string) ([]domain.DependencyEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if planID != s.planID {
		return nil, &domain.PlanNotFoundError{PlanID: planID}
	}
	out := make([]domain.DependencyEdge, len(s.edges))
	copy(out, s.edges)
	return out, nil
}

func (s *SeedStore) UpsertTasks(ctx context.Context, planID string, tasks []domain.Task) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if planID != s.planID {
		return 0, &domain.PlanNotFoundError{PlanID: planID}
	}
	count := 0
	for _, t := range tasks {
		if t.ID == "" {
			continue
		}
		t.PlanID = planID
		if _, ok := s.tasks[t.ID]; !ok {
			s.order = append(s.order, t.ID)
		}
		s.tasks[t.ID] = t
		count++
	}
	return count, nil
}

func (s *SeedStore) SyncState(ctx context.Context, planID string) (*time.Time, *time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if planID != s.planID {
		return nil, nil, &domain.PlanNotFoundError{PlanID: planID}
	}
	return s.last, s.previous, nil
}

func (s *SeedStore) SetSyncState(ctx context.Context, planID string, last, previous *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if planID != s.planID {
		return &domain.PlanNotFoundError{PlanID: planID}
	}
	s.last, s.previous = last, previous
	return nil
}

func (s *SeedStore) Plans(ctx context.Context) ([]domain.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	created := s.createdAt
	return []domain.Plan{{ID: s.planID, Name: "Demo Event Plan", EventDate: &s.eventDate, CreatedAt: &created}}, nil
}

// Fallback serves reads from primary, falling back to the seed store
// when the primary has no tasks for the demo plan. Writes always go to
// the primary.
type Fallback struct {
	primary PlanStore
	seed    *SeedStore
}

// WithFallback wraps primary so the demo plan stays available before
// the first sync has landed any rows.
func WithFallback(primary PlanStore, seed *SeedStore) *Fallback {
	return &Fallback{primary: primary, seed: seed}
}

func (f *Fallback) Tasks(ctx context.Context, planID string) ([]domain.Task, error) {
	tasks, err := f.primary.Tasks(ctx, planID)
	if f.useSeed(planID, tasks, err) {
		return f.seed.Tasks(ctx, planID)
	}
	return tasks, err
}

func (f *Fallback) Dependencies(ctx context.Context, planID string) ([]domain.DependencyEdge, error) {
	tasks, err := f.primary.Tasks(ctx, planID)
	if f.useSeed(planID, tasks, err) {
		return f.seed.Dependencies(ctx, planID)
	}
	return f.primary.Dependencies(ctx, planID)
}

func (f *Fallback) UpsertTasks(ctx context.Context, planID string, tasks []domain.Task) (int, error) {
	return f.primary.UpsertTasks(ctx, planID, tasks)
}

func (f *Fallback) SyncState(ctx context.Context, planID string) (*time.Time, *time.Time, error) {
	return f.primary.SyncState(ctx, planID)
}

func (f *Fallback) SetSyncState(ctx context.Context, planID string, last, previous *time.Time) error {
	return f.primary.SetSyncState(ctx, planID, last, previous)
}

func (f *Fallback) Plans(ctx context.Context) ([]domain.Plan, error) {
	plans, err := f.primary.Plans(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range plans {
		if p.ID == f.seed.planID {
			return plans, nil
		}
	}
	seeded, err := f.seed.Plans(ctx)
	if err != nil {
		return plans, nil
	}
	return append(plans, seeded...), nil
}

func (f *Fallback) useSeed(planID string, tasks []domain.Task, err error) bool {
	if planID != f.seed.planID {
		return false
	}
	if err != nil {
		return true
	}
	return len(tasks) == 0
}
