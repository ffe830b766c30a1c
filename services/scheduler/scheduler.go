// Package scheduler fires recurring batch forecasts on their cron
// schedules, with Redis leader election so only one instance enqueues.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/plantwin/plantwin/internal/kafka"
	"github.com/plantwin/plantwin/internal/postgres"
	"github.com/plantwin/plantwin/pkg/telemetry"
)

const (
	leaderKey     = "scheduler:leader"
	leaderTTL     = 30 * time.Second
	checkInterval = 15 * time.Second
)

// ScheduleStore is the slice of the Postgres repository the scheduler needs.
type ScheduleStore interface {
	DueSchedules(ctx context.Context, now time.Time) ([]postgres.Schedule, error)
	MarkScheduleRun(ctx context.Context, scheduleID string, ranAt, nextRunAt time.Time) error
	CreateForecastRun(ctx context.Context, run postgres.ForecastRun) error
}

// Scheduler enqueues due forecast schedules with Redis leader election.
type Scheduler struct {
	store      ScheduleStore
	producer   kafka.Producer
	redis      *redis.Client
	instanceID string
	logger     *slog.Logger
}

func NewScheduler(
	store ScheduleStore,
	producer kafka.Producer,
	redisClient *redis.Client,
	instanceID string,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		store:      store,
		producer:   producer,
		redis:      redisClient,
		instanceID: instanceID,
		logger:     logger,
	}
}

// Run is the main polling loop: tries to become leader, then fires due
// schedules. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	// Run once immediately before waiting for the first tick.
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if !s.acquireOrRenewLeadership(ctx) {
		telemetry.SchedulerLeaderGauge.Set(0)
		return
	}
	telemetry.SchedulerLeaderGauge.Set(1)
	if err := s.fireDueSchedules(ctx); err != nil {
		s.logger.Error("fireDueSchedules", slog.String("error", err.Error()))
	}
}

// acquireOrRenewLeadership attempts SETNX; returns true if this instance is the leader.
func (s *Scheduler) acquireOrRenewLeadership(ctx context.Context) bool {
	ok, err := s.redis.SetNX(ctx, leaderKey, s.instanceID, leaderTTL).Result()
	if err != nil {
		s.logger.Error("leader election SetNX", slog.String("error", err.Error()))
		return false
	}
	if ok {
		s.logger.Info("acquired scheduler leadership", slog.String("instance_id", s.instanceID))
		return true
	}

	// Already set — renew only if we own it (atomic Lua script avoids races).
	renewScript := redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		end
		return 0
	`)
	result, err := renewScript.Run(
		ctx, s.redis,
		[]string{leaderKey},
		s.instanceID,
		leaderTTL.Milliseconds(),
	).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		s.logger.Error("leader renewal", slog.String("error", err.Error()))
		return false
	}
	return result == 1
}

func (s *Scheduler) fireDueSchedules(ctx context.Context) error {
	schedules, err := s.store.DueSchedules(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	for _, sched := range schedules {
		if err := s.fire(ctx, sched); err != nil {
			s.logger.Error("fire schedule failed",
				slog.String("schedule_id", sched.ID),
				slog.String("plan_id", sched.PlanID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

func (s *Scheduler) fire(ctx context.Context, sched postgres.Schedule) error {
	now := time.Now().UTC()
	runID := uuid.New().String()

	req := kafka.ForecastRequest{
		RunID:       runID,
		PlanID:      sched.PlanID,
		Iterations:  sched.Iterations,
		Seed:        now.UnixNano(),
		ScheduleID:  sched.ID,
		RequestedAt: now,
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request for schedule %s: %w", sched.ID, err)
	}

	if err := s.store.CreateForecastRun(ctx, postgres.ForecastRun{
		RunID:       runID,
		PlanID:      sched.PlanID,
		Iterations:  sched.Iterations,
		Status:      postgres.RunStatusQueued,
		RequestedAt: now,
	}); err != nil {
		s.logger.Error("record scheduled run", slog.String("run_id", runID), slog.String("error", err.Error()))
	}

	if err := s.producer.Publish(ctx, kafka.TopicForecastRequests, sched.PlanID, payload); err != nil {
		return fmt.Errorf("publish request for schedule %s: %w", sched.ID, err)
	}

	schedule, err := cron.ParseStandard(sched.CronExpr)
	if err != nil {
		return fmt.Errorf("parse cron %q for schedule %s: %w", sched.CronExpr, sched.ID, err)
	}
	nextRun := schedule.Next(now)

	if err := s.store.MarkScheduleRun(ctx, sched.ID, now, nextRun); err != nil {
		return fmt.Errorf("mark schedule %s run: %w", sched.ID, err)
	}

	telemetry.SchedulerForecastsFired.Inc()
	s.logger.Info("scheduled forecast fired",
		slog.String("schedule_id", sched.ID),
		slog.String("plan_id", sched.PlanID),
		slog.String("run_id", runID),
		slog.Time("next_run", nextRun),
	)
	return nil
}
