// Package handler implements the REST surface of the api service.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/plantwin/plantwin/internal/cost"
	"github.com/plantwin/plantwin/internal/domain"
	"github.com/plantwin/plantwin/internal/graph"
	"github.com/plantwin/plantwin/internal/history"
	"github.com/plantwin/plantwin/internal/impact"
	"github.com/plantwin/plantwin/internal/kafka"
	"github.com/plantwin/plantwin/internal/markov"
	"github.com/plantwin/plantwin/internal/postgres"
	redisstore "github.com/plantwin/plantwin/internal/redis"
	"github.com/plantwin/plantwin/internal/simulate"
	"github.com/plantwin/plantwin/internal/store"
	"github.com/plantwin/plantwin/internal/views"
	"github.com/plantwin/plantwin/pkg/telemetry"
)

// RunRecorder persists forecast run bookkeeping. Nil-able: without
// Postgres the batch path still works, runs are just not recorded.
type RunRecorder interface {
	CreateForecastRun(ctx context.Context, run postgres.ForecastRun) error
}

// DependencyWriter replaces a plan's dependency edges. The Postgres
// repository implements it; the seed store does not need to.
type DependencyWriter interface {
	ReplaceDependencies(ctx context.Context, planID string, edges []domain.DependencyEdge) error
}

// REST handles HTTP requests for the api service.
type REST struct {
	plans    store.PlanStore
	locks    redisstore.LockStore
	results  redisstore.ResultStore
	producer kafka.Producer
	runs     RunRecorder
	deps     DependencyWriter
	logger   *slog.Logger
	now      func() time.Time
}

// NewREST creates a new REST handler. runs and deps may be nil when the
// service runs without Postgres.
func NewREST(
	plans store.PlanStore,
	locks redisstore.LockStore,
	results redisstore.ResultStore,
	producer kafka.Producer,
	runs RunRecorder,
	deps DependencyWriter,
	logger *slog.Logger,
) *REST {
	return &REST{
		plans:    plans,
		locks:    locks,
		results:  results,
		producer: producer,
		runs:     runs,
		deps:     deps,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Routes mounts every endpoint on the given router.
func (h *REST) Routes(r chi.Router) {
	r.Get("/plans", h.ListPlans)
	r.Route("/plans/{planID}", func(r chi.Router) {
		r.Get("/critical-path", h.CriticalPath)
		r.Get("/attention", h.Attention)
		r.Get("/execution", h.Execution)
		r.Get("/milestone", h.Milestone)
		r.Get("/changes", h.Changes)
		r.Get("/cost", h.Cost)
		r.Get("/markov", h.Markov)
		r.Get("/history/duration-bias", h.DurationBias)
		r.Get("/history/bottlenecks", h.Bottlenecks)
		r.Get("/history/throughput", h.Throughput)
		r.Get("/history/block-frequency", h.BlockFrequency)
		r.Post("/tasks", h.UpsertTasks)
		r.Get("/tasks/{taskID}/dependencies", h.TaskDependencies)
		r.Post("/tasks/{taskID}/impact", h.Impact)
		r.Post("/tasks/{taskID}/lock", h.AcquireLock)
		r.Delete("/tasks/{taskID}/lock", h.ReleaseLock)
		r.Post("/simulations/monte-carlo", h.MonteCarlo)
		r.Post("/simulations/batch", h.BatchForecast)
	})
	r.Get("/simulations/{runID}", h.ForecastResult)
}

func (h *REST) loadPlan(ctx context.Context, planID string) ([]domain.Task, []domain.DependencyEdge, error) {
	tasks, err := h.plans.Tasks(ctx, planID)
	if err != nil {
		return nil, nil, err
	}
	edges, err := h.plans.Dependencies(ctx, planID)
	if err != nil {
		return nil, nil, err
	}
	return tasks, edges, nil
}

// ListPlans handles GET /api/v1/plans.
func (h *REST) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.plans.Plans(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if plans == nil {
		plans = []domain.Plan{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"plans": plans, "count": len(plans)})
}

// CriticalPathResponse is the GET critical-path body.
type CriticalPathResponse struct {
	PlanID       string               `json:"plan_id"`
	Path         []domain.TaskSummary `json:"critical_path"`
	Length       int                  `json:"length"`
	Cyclic       bool                 `json:"cyclic"`
	DroppedEdges int                  `json:"dropped_edges,omitempty"`
}

// CriticalPath handles GET /api/v1/plans/{planID}/critical-path.
func (h *REST) CriticalPath(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "planID")
	tasks, edges, err := h.loadPlan(r.Context(), planID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	adj := graph.BuildAdjacency(tasks, edges)
	res := graph.CriticalPath(tasks, adj)

	byID := make(map[string]domain.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}
	path := make([]domain.TaskSummary, 0, len(res.Path))
	for _, id := range res.Path {
		path = append(path, domain.Summarize(byID[id]))
	}

	writeJSON(w, http.StatusOK, CriticalPathResponse{
		PlanID:       planID,
		Path:         path,
		Length:       res.Length,
		Cyclic:       res.Cyclic,
		DroppedEdges: adj.Dropped,
	})
}

// Attention handles GET /api/v1/plans/{planID}/attention.
func (h *REST) Attention(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "planID")
	tasks, edges, err := h.loadPlan(r.Context(), planID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views.Dashboard(planID, tasks, edges, h.now()))
}

// Execution handles GET /api/v1/plans/{planID}/execution.
func (h *REST) Execution(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "planID")
	tasks, edges, err := h.loadPlan(r.Context(), planID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	annotated := views.ExecutionTasks(planID, tasks, edges, h.now())
	writeJSON(w, http.StatusOK, map[string]any{
		"plan_id": planID,
		"tasks":   annotated,
		"count":   len(annotated),
	})
}

// Milestone handles GET /api/v1/plans/{planID}/milestone?event_date=...
func (h *REST) Milestone(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "planID")
	tasks, edges, err := h.loadPlan(r.Context(), planID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	var eventDate *time.Time
	if raw := r.URL.Query().Get("event_date"); raw != "" {
		eventDate = domain.ParseTime(raw)
		if eventDate == nil {
			writeError(w, http.StatusBadRequest, "invalid event_date")
			return
		}
	}
	writeJSON(w, http.StatusOK, views.Milestone(planID, tasks, edges, eventDate, h.now()))
}

// Changes handles GET /api/v1/plans/{planID}/changes.
func (h *REST) Changes(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "planID")
	tasks, err := h.plans.Tasks(r.Context(), planID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	_, previous, err := h.plans.SyncState(r.Context(), planID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views.ChangesSince(planID, tasks, previous, h.now()))
}

// TaskDependencies handles GET .../tasks/{taskID}/dependencies.
func (h *REST) TaskDependencies(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "planID")
	taskID := chi.URLParam(r, "taskID")
	tasks, edges, err := h.loadPlan(r.Context(), planID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	res, err := views.Dependencies(planID, taskID, tasks, edges)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// UpsertTasksRequest is the POST tasks body.
type UpsertTasksRequest struct {
	Tasks        []domain.Task           `json:"tasks"`
	Dependencies []domain.DependencyEdge `json:"dependencies,omitempty"`
}

// UpsertTasks handles POST /api/v1/plans/{planID}/tasks. It upserts the
// batch, optionally replaces the dependency set, and advances the sync
// bookkeeping used by the changes view.
func (h *REST) UpsertTasks(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "planID")

	var req UpsertTasksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Tasks) == 0 {
		writeError(w, http.StatusBadRequest, "field 'tasks' is required")
		return
	}

	ctx := r.Context()
	count, err := h.plans.UpsertTasks(ctx, planID, req.Tasks)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	if len(req.Dependencies) > 0 {
		if h.deps == nil {
			writeError(w, http.StatusBadRequest, "dependency updates require the database store")
			return
		}
		if err := h.deps.ReplaceDependencies(ctx, planID, req.Dependencies); err != nil {
			h.writeDomainError(w, err)
			return
		}
	}

	now := h.now()
	last, _, err := h.plans.SyncState(ctx, planID)
	if err == nil {
		if err := h.plans.SetSyncState(ctx, planID, &now, last); err != nil {
			h.logger.Error("set sync state", slog.String("plan_id", planID), slog.String("error", err.Error()))
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"plan_id": planID, "upserted": count})
}

// MonteCarloRequest is the interactive simulation body.
type MonteCarloRequest struct {
	Trials    int                `json:"n_trials"`
	EventDate *time.Time         `json:"event_date,omitempty"`
	Seed      *int64             `json:"seed,omitempty"`
	Bias      map[string]float64 `json:"bias,omitempty"`
}

// MonteCarlo handles POST .../simulations/monte-carlo synchronously.
func (h *REST) MonteCarlo(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("api").Start(r.Context(), "api.monte_carlo")
	defer span.End()

	planID := chi.URLParam(r, "planID")
	span.SetAttributes(attribute.String("plan.id", planID))

	var req MonteCarloRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tasks, edges, err := h.loadPlan(ctx, planID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	res, err := simulate.Run(planID, tasks, edges, simulate.Options{
		Trials:    req.Trials,
		EventDate: req.EventDate,
		Seed:      req.Seed,
		Bias:      req.Bias,
		Now:       h.now(),
	})
	if err != nil {
		span.RecordError(err)
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// BatchForecastRequest is the async simulation body.
type BatchForecastRequest struct {
	Iterations int                `json:"n_iterations"`
	Seed       int64              `json:"seed,omitempty"`
	Bias       map[string]float64 `json:"bias,omitempty"`
}

// BatchForecastResponse is the 202 body.
type BatchForecastResponse struct {
	RunID  string `json:"run_id"`
	PlanID string `json:"plan_id"`
	Status string `json:"status"`
}

// BatchForecast handles POST .../simulations/batch. The request is
// published to Kafka keyed by plan id; the simworker caches the result
// in Redis under the returned run id.
func (h *REST) BatchForecast(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("api").Start(r.Context(), "api.batch_forecast")
	defer span.End()

	planID := chi.URLParam(r, "planID")

	var req BatchForecastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Iterations < 0 || req.Iterations > simulate.MaxIterations {
		writeError(w, http.StatusBadRequest, "n_iterations must be between 1 and "+strconv.Itoa(simulate.MaxIterations))
		return
	}

	// Verify the plan has tasks before enqueueing work.
	tasks, err := h.plans.Tasks(ctx, planID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if len(tasks) == 0 {
		h.writeDomainError(w, &domain.NoTasksError{PlanID: planID})
		return
	}

	runID := uuid.New().String()
	now := h.now()
	span.SetAttributes(
		attribute.String("plan.id", planID),
		attribute.String("run.id", runID),
	)

	seed := req.Seed
	if seed == 0 {
		seed = now.UnixNano()
	}
	msg := kafka.ForecastRequest{
		RunID:       runID,
		PlanID:      planID,
		Iterations:  req.Iterations,
		Seed:        seed,
		Bias:        req.Bias,
		RequestedAt: now,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to serialize request")
		return
	}

	if h.runs != nil {
		err := h.runs.CreateForecastRun(ctx, postgres.ForecastRun{
			RunID:       runID,
			PlanID:      planID,
			Iterations:  req.Iterations,
			Status:      postgres.RunStatusQueued,
			RequestedAt: now,
		})
		if err != nil {
			h.logger.Error("record forecast run", slog.String("run_id", runID), slog.String("error", err.Error()))
			// Non-fatal: the Kafka path is the source of truth for execution.
		}
	}

	if err := h.producer.Publish(ctx, kafka.TopicForecastRequests, planID, payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "kafka publish failed")
		h.logger.Error("publish forecast request", slog.String("run_id", runID), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to enqueue forecast")
		return
	}

	telemetry.APISimulationsEnqueued.Inc()
	h.logger.Info("batch forecast enqueued",
		slog.String("run_id", runID),
		slog.String("plan_id", planID),
		slog.Int("n_iterations", req.Iterations),
	)
	writeJSON(w, http.StatusAccepted, BatchForecastResponse{RunID: runID, PlanID: planID, Status: postgres.RunStatusQueued})
}

// ForecastResult handles GET /api/v1/simulations/{runID}, serving the
// cached simworker output verbatim.
func (h *REST) ForecastResult(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	data, err := h.results.GetResult(r.Context(), runID)
	if err != nil {
		if errors.Is(err, redisstore.ErrResultNotFound) {
			writeError(w, http.StatusNotFound, "forecast result not found")
			return
		}
		h.logger.Error("get forecast result", slog.String("run_id", runID), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to retrieve result")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Markov handles GET /api/v1/plans/{planID}/markov?task_id=...
func (h *REST) Markov(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "planID")
	tasks, err := h.plans.Tasks(r.Context(), planID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	now := h.now()
	seed := now.UnixNano()
	if raw := r.URL.Query().Get("seed"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid seed")
			return
		}
		seed = parsed
	}

	matrix := markov.BuildMatrix(tasks, now)
	res, err := markov.Analyze(planID, tasks, r.URL.Query().Get("task_id"), matrix, now, rand.New(rand.NewSource(seed)))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ImpactRequest is the POST impact body; at least one field must be set.
type ImpactRequest struct {
	SlippageDays *int       `json:"slippage_days,omitempty"`
	NewDueDate   *time.Time `json:"new_due_date,omitempty"`
}

// Impact handles POST .../tasks/{taskID}/impact.
func (h *REST) Impact(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "planID")
	taskID := chi.URLParam(r, "taskID")

	var req ImpactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SlippageDays == nil && req.NewDueDate == nil {
		writeError(w, http.StatusBadRequest, "one of slippage_days or new_due_date is required")
		return
	}

	tasks, edges, err := h.loadPlan(r.Context(), planID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	res, err := impact.AnalyzeEdit(planID, taskID, tasks, edges, impact.Change{
		SlippageDays: req.SlippageDays,
		NewDueDate:   req.NewDueDate,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Cost handles GET /api/v1/plans/{planID}/cost.
func (h *REST) Cost(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "planID")
	tasks, edges, err := h.loadPlan(r.Context(), planID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cost.Total(planID, tasks, edges, cost.DefaultWeights(), h.now()))
}

// DurationBias handles GET .../history/duration-bias.
func (h *REST) DurationBias(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "planID")
	tasks, err := h.plans.Tasks(r.Context(), planID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	res := history.DurationBias(tasks)
	writeJSON(w, http.StatusOK, map[string]any{
		"plan_id":         planID,
		"bucket_stats":    res.BucketStats,
		"task_type_stats": res.TaskTypeStats,
		"bias_factors":    res.BiasFactors(),
	})
}

// Bottlenecks handles GET .../history/bottlenecks.
func (h *REST) Bottlenecks(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "planID")
	tasks, edges, err := h.loadPlan(r.Context(), planID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	ranked := history.Bottlenecks(tasks, edges)
	writeJSON(w, http.StatusOK, map[string]any{"plan_id": planID, "bottlenecks": ranked})
}

// Throughput handles GET .../history/throughput.
func (h *REST) Throughput(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "planID")
	tasks, err := h.plans.Tasks(r.Context(), planID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"plan_id": planID, "throughput": history.ResourceThroughput(tasks)})
}

// BlockFrequency handles GET .../history/block-frequency.
func (h *REST) BlockFrequency(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "planID")
	tasks, err := h.plans.Tasks(r.Context(), planID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	res := history.BlockFrequency(tasks)
	writeJSON(w, http.StatusOK, map[string]any{
		"plan_id":              planID,
		"total_blocked":        res.TotalBlocked,
		"block_rate_by_bucket": res.BlockRateByBucket,
		"blocked_tasks":        res.BlockedTasks,
	})
}

// LockRequest identifies the would-be lock owner.
type LockRequest struct {
	Owner string `json:"owner"`
}

// AcquireLock handles POST .../tasks/{taskID}/lock.
func (h *REST) AcquireLock(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "planID")
	taskID := chi.URLParam(r, "taskID")

	var req LockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Owner == "" {
		writeError(w, http.StatusBadRequest, "field 'owner' is required")
		return
	}

	lock, err := h.locks.Acquire(r.Context(), planID, taskID, req.Owner)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lock)
}

// ReleaseLock handles DELETE .../tasks/{taskID}/lock.
func (h *REST) ReleaseLock(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "planID")
	taskID := chi.URLParam(r, "taskID")

	owner := r.URL.Query().Get("owner")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "query parameter 'owner' is required")
		return
	}

	if err := h.locks.Release(r.Context(), planID, taskID, owner); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Healthz handles GET /healthz.
func (h *REST) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// Readyz handles GET /readyz, verifying the plan store answers.
func (h *REST) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if _, err := h.plans.Plans(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, "plan store not ready")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}

// writeDomainError maps typed domain errors onto HTTP status codes.
func (h *REST) writeDomainError(w http.ResponseWriter, err error) {
	var (
		taskNotFound *domain.TaskNotFoundError
		planNotFound *domain.PlanNotFoundError
		noTasks      *domain.NoTasksError
		lockHeld     *domain.LockHeldError
		badTrials    *domain.InvalidTrialCountError
	)
	switch {
	case errors.As(err, &taskNotFound), errors.As(err, &planNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &lockHeld):
		telemetry.APILockConflicts.Inc()
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &noTasks), errors.As(err, &badTrials):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("request failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
