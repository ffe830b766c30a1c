// Package postgres implements the plan store on PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/plantwin/plantwin/internal/domain"
)

// Schedule is one recurring forecast definition owned by the scheduler.
type Schedule struct {
	ID         string
	PlanID     string
	CronExpr   string
	Iterations int
	Enabled    bool
	LastRunAt  *time.Time
	NextRunAt  time.Time
}

// ForecastRun tracks one batch simulation from enqueue to completion.
type ForecastRun struct {
	RunID       string
	PlanID      string
	Iterations  int
	Status      string
	RequestedAt time.Time
	CompletedAt *time.Time
	Error       string
}

// Forecast run statuses.
const (
	RunStatusQueued    = "queued"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Repository provides plan persistence plus the scheduler and worker
// bookkeeping tables. It satisfies store.PlanStore.
type Repository interface {
	Tasks(ctx context.Context, planID string) ([]domain.Task, error)
	Dependencies(ctx context.Context, planID string) ([]domain.DependencyEdge, error)
	UpsertTasks(ctx context.Context, planID string, tasks []domain.Task) (int, error)
	ReplaceDependencies(ctx context.Context, planID string, edges []domain.DependencyEdge) error
	SyncState(ctx context.Context, planID string) (last, previous *time.Time, err error)
	SetSyncState(ctx context.Context, planID string, last, previous *time.Time) error
	Plans(ctx context.Context) ([]domain.Plan, error)

	DueSchedules(ctx context.Context, now time.Time) ([]Schedule, error)
	MarkScheduleRun(ctx context.Context, scheduleID string, ranAt, nextRunAt time.Time) error
	CreateForecastRun(ctx context.Context, run ForecastRun) error
	CompleteForecastRun(ctx context.Context, runID, status, errMsg string) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// NewPool creates a pgx connection pool and verifies connectivity.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

func (r *repository) Tasks(ctx context.Context, planID string) ([]domain.Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT plan_id, id, title, bucket_id, bucket_name, status,
		       percent_complete, start_date, due_date, completed_date,
		       created_date, assignee_ids, assignee_names, priority,
		       description, variance_days, last_modified_at
		FROM plan_tasks
		WHERE plan_id = $1
		ORDER BY position`, planID)
	if err != nil {
		return nil, fmt.Errorf("query tasks for plan %s: %w", planID, err)
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task for plan %s: %w", planID, err)
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks for plan %s: %w", planID, err)
	}
	return tasks, nil
}

func (r *repository) Dependencies(ctx context.Context, planID string) ([]domain.DependencyEdge, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT task_id, depends_on_id, dep_type
		FROM plan_dependencies
		WHERE plan_id = $1
		ORDER BY task_id, depends_on_id`, planID)
	if err != nil {
		return nil, fmt.Errorf("query dependencies for plan %s: %w", planID, err)
	}
	defer rows.Close()

	var edges []domain.DependencyEdge
	for rows.Next() {
		var e domain.DependencyEdge
		if err := rows.Scan(&e.TaskID, &e.DependsOnID, &e.Type); err != nil {
			return nil, fmt.Errorf("scan dependency for plan %s: %w", planID, err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dependencies for plan %s: %w", planID, err)
	}
	return edges, nil
}

func (r *repository) UpsertTasks(ctx context.Context, planID string, tasks []domain.Task) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin upsert for plan %s: %w", planID, err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO plans (id, name)
		VALUES ($1, $1)
		ON CONFLICT (id) DO NOTHING`, planID)
	if err != nil {
		return 0, fmt.Errorf("ensure plan %s: %w", planID, err)
	}

	count := 0
	for _, t := range tasks {
		if t.ID == "" {
			continue
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO plan_tasks (
				plan_id, id, title, bucket_id, bucket_name, status,
				percent_complete, start_date, due_date, completed_date,
				created_date, assignee_ids, assignee_names, priority,
				description, variance_days, last_modified_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
			ON CONFLICT (plan_id, id) DO UPDATE SET
				title = EXCLUDED.title,
				bucket_id = EXCLUDED.bucket_id,
				bucket_name = EXCLUDED.bucket_name,
				status = EXCLUDED.status,
				percent_complete = EXCLUDED.percent_complete,
				start_date = EXCLUDED.start_date,
				due_date = EXCLUDED.due_date,
				completed_date = EXCLUDED.completed_date,
				created_date = EXCLUDED.created_date,
				assignee_ids = EXCLUDED.assignee_ids,
				assignee_names = EXCLUDED.assignee_names,
				priority = EXCLUDED.priority,
				description = EXCLUDED.description,
				variance_days = EXCLUDED.variance_days,
				last_modified_at = EXCLUDED.last_modified_at`,
			planID, t.ID, t.Title, t.BucketID, t.BucketName, string(t.Status),
			t.PercentComplete, t.StartDate, t.DueDate, t.CompletedDate,
			t.CreatedDate, t.AssigneeIDs, t.AssigneeNames, t.Priority,
			t.Description, t.VarianceDays, t.LastModifiedAt)
		if err != nil {
			return 0, fmt.Errorf("upsert task %s in plan %s: %w", t.ID, planID, err)
		}
		count++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit upsert for plan %s: %w", planID, err)
	}
	return count, nil
}

func (r *repository) ReplaceDependencies(ctx context.Context, planID string, edges []domain.DependencyEdge) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin dependency replace for plan %s: %w", planID, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM plan_dependencies WHERE plan_id = $1`, planID); err != nil {
		return fmt.Errorf("clear dependencies for plan %s: %w", planID, err)
	}
	for _, e := range edges {
		depType := e.Type
		if depType == "" {
			depType = domain.DependencyTypeFS
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO plan_dependencies (plan_id, task_id, depends_on_id, dep_type)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (plan_id, task_id, depends_on_id) DO UPDATE SET dep_type = EXCLUDED.dep_type`,
			planID, e.TaskID, e.DependsOnID, depType)
		if err != nil {
			return fmt.Errorf("insert dependency %s->%s in plan %s: %w", e.TaskID, e.DependsOnID, planID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit dependency replace for plan %s: %w", planID, err)
	}
	return nil
}

func (r *repository) SyncState(ctx context.Context, planID string) (*time.Time, *time.Time, error) {
	var last, previous *time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT last_synced_at, previous_synced_at
		FROM plan_sync_state
		WHERE plan_id = $1`, planID).Scan(&last, &previous)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("query sync state for plan %s: %w", planID, err)
	}
	return last, previous, nil
}

func (r *repository) SetSyncState(ctx context.Context, planID string, last, previous *time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO plan_sync_state (plan_id, last_synced_at, previous_synced_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (plan_id) DO UPDATE SET
			last_synced_at = EXCLUDED.last_synced_at,
			previous_synced_at = EXCLUDED.previous_synced_at`,
		planID, last, previous)
	if err != nil {
		return fmt.Errorf("set sync state for plan %s: %w", planID, err)
	}
	return nil
}

func (r *repository) Plans(ctx context.Context) ([]domain.Plan, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, event_date, created_at
		FROM plans
		ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("query plans: %w", err)
	}
	defer rows.Close()

	var plans []domain.Plan
	for rows.Next() {
		var p domain.Plan
		if err := rows.Scan(&p.ID, &p.Name, &p.EventDate, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate plans: %w", err)
	}
	return plans, nil
}

func (r *repository) DueSchedules(ctx context.Context, now time.Time) ([]Schedule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, plan_id, cron_expr, iterations, enabled, last_run_at, next_run_at
		FROM scheduled_forecasts
		WHERE enabled AND next_run_at <= $1
		ORDER BY next_run_at`, now)
	if err != nil {
		return nil, fmt.Errorf("query due schedules: %w", err)
	}
	defer rows.Close()

	var schedules []Schedule
	for rows.Next() {
		var s Schedule
		if err := rows.Scan(&s.ID, &s.PlanID, &s.CronExpr, &s.Iterations, &s.Enabled, &s.LastRunAt, &s.NextRunAt); err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		schedules = append(schedules, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schedules: %w", err)
	}
	return schedules, nil
}

func (r *repository) MarkScheduleRun(ctx context.Context, scheduleID string, ranAt, nextRunAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE scheduled_forecasts
		SET last_run_at = $2, next_run_at = $3
		WHERE id = $1`, scheduleID, ranAt, nextRunAt)
	if err != nil {
		return fmt.Errorf("mark schedule %s run: %w", scheduleID, err)
	}
	return nil
}

func (r *repository) CreateForecastRun(ctx context.Context, run ForecastRun) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO forecast_runs (run_id, plan_id, iterations, status, requested_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id) DO NOTHING`,
		run.RunID, run.PlanID, run.Iterations, run.Status, run.RequestedAt)
	if err != nil {
		return fmt.Errorf("create forecast run %s: %w", run.RunID, err)
	}
	return nil
}

func (r *repository) CompleteForecastRun(ctx context.Context, runID, status, errMsg string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE forecast_runs
		SET status = $2, error = $3, completed_at = now()
		WHERE run_id = $1`, runID, status, errMsg)
	if err != nil {
		return fmt.Errorf("complete forecast run %s: %w", runID, err)
	}
	return nil
}

func scanTask(row interface{ Scan(dest ...any) error }) (*domain.Task, error) {
	var t domain.Task
	var status string
	err := row.Scan(
		&t.PlanID, &t.ID, &t.Title, &t.BucketID, &t.BucketName, &status,
		&t.PercentComplete, &t.StartDate, &t.DueDate, &t.CompletedDate,
		&t.CreatedDate, &t.AssigneeIDs, &t.AssigneeNames, &t.Priority,
		&t.Description, &t.VarianceDays, &t.LastModifiedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.TaskNotFoundError{PlanID: t.PlanID, TaskID: t.ID}
		}
		return nil, err
	}
	t.Status = domain.Status(status)
	return &t, nil
}
