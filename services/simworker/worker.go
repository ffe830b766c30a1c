// Package simworker consumes batch forecast requests from Kafka, runs
// the full Monte Carlo path, and caches results for the api service.
package simworker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/plantwin/plantwin/internal/domain"
	"github.com/plantwin/plantwin/internal/kafka"
	"github.com/plantwin/plantwin/internal/postgres"
	redisstore "github.com/plantwin/plantwin/internal/redis"
	"github.com/plantwin/plantwin/internal/simulate"
	"github.com/plantwin/plantwin/internal/store"
	"github.com/plantwin/plantwin/pkg/retry"
	"github.com/plantwin/plantwin/pkg/telemetry"
)

// RunRecorder is the slice of the Postgres repository the worker needs.
type RunRecorder interface {
	CreateForecastRun(ctx context.Context, run postgres.ForecastRun) error
	CompleteForecastRun(ctx context.Context, runID, status, errMsg string) error
}

// Worker executes forecast requests consumed from Kafka.
type Worker struct {
	consumer  kafka.Consumer
	producer  kafka.Producer
	plans     store.PlanStore
	results   redisstore.ResultStore
	runs      RunRecorder
	workerID  string
	resultTTL time.Duration
	baseDelay time.Duration
	logger    *slog.Logger

	wg sync.WaitGroup
}

// Option configures a Worker.
type Option func(*Worker)

func WithLogger(l *slog.Logger) Option     { return func(w *Worker) { w.logger = l } }
func WithResultTTL(d time.Duration) Option { return func(w *Worker) { w.resultTTL = d } }
func WithBaseDelay(d time.Duration) Option { return func(w *Worker) { w.baseDelay = d } }
func WithRunRecorder(r RunRecorder) Option { return func(w *Worker) { w.runs = r } }

// NewWorker constructs a Worker with the given dependencies and options.
func NewWorker(
	workerID string,
	consumer kafka.Consumer,
	producer kafka.Producer,
	plans store.PlanStore,
	results redisstore.ResultStore,
	opts ...Option,
) *Worker {
	w := &Worker{
		workerID:  workerID,
		consumer:  consumer,
		producer:  producer,
		plans:     plans,
		results:   results,
		resultTTL: 24 * time.Hour,
		baseDelay: time.Second,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run starts consuming and processing messages. Blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	return w.consumer.Subscribe(ctx, w.processMessage)
}

// Wait blocks until all in-flight forecasts finish. Call after Run returns.
func (w *Worker) Wait() { w.wg.Wait() }

// processMessage is the Kafka HandlerFunc. It always returns nil so the
// offset is committed; malformed or failed requests go to the DLQ
// instead of blocking the partition.
func (w *Worker) processMessage(consumerCtx context.Context, msg kafka.Message) error {
	var req kafka.ForecastRequest
	if err := json.Unmarshal(msg.Value, &req); err != nil || req.RunID == "" || req.PlanID == "" {
		w.logger.Error("malformed forecast request, sending to DLQ",
			slog.String("raw", string(msg.Value)),
		)
		_ = w.producer.Publish(consumerCtx, kafka.TopicForecastDLQ, string(msg.Key), msg.Value)
		telemetry.WorkerDLQTotal.Inc()
		return nil
	}

	ctx, span := otel.Tracer("simworker").Start(consumerCtx, "simworker.run_forecast")
	defer span.End()
	span.SetAttributes(
		attribute.String("run.id", req.RunID),
		attribute.String("plan.id", req.PlanID),
		attribute.Int("n_iterations", req.Iterations),
		attribute.String("worker.id", w.workerID),
	)

	log := w.logger.With(
		slog.String("run_id", req.RunID),
		slog.String("plan_id", req.PlanID),
	)

	w.wg.Add(1)
	defer w.wg.Done()

	start := time.Now()
	result, runErr := w.runForecast(ctx, req)
	durationSec := time.Since(start).Seconds()
	telemetry.WorkerForecastDuration.Observe(durationSec)

	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, "forecast failed")

		var noTasks *domain.NoTasksError
		var planNotFound *domain.PlanNotFoundError
		if errors.As(runErr, &noTasks) || errors.As(runErr, &planNotFound) {
			// Unrunnable, not transient. DLQ and move on.
			log.Error("forecast unrunnable, sending to DLQ", slog.String("error", runErr.Error()))
			_ = w.producer.Publish(ctx, kafka.TopicForecastDLQ, string(msg.Key), msg.Value)
			telemetry.WorkerDLQTotal.Inc()
		} else {
			log.Error("forecast failed", slog.String("error", runErr.Error()))
		}
		w.recordCompletion(ctx, req.RunID, postgres.RunStatusFailed, runErr.Error())
		telemetry.WorkerForecastsTotal.WithLabelValues(postgres.RunStatusFailed).Inc()
		return nil
	}

	telemetry.WorkerTrialsTotal.Add(float64(result.Iterations))

	payload, err := json.Marshal(result)
	if err != nil {
		log.Error("marshal forecast result", slog.String("error", err.Error()))
		w.recordCompletion(ctx, req.RunID, postgres.RunStatusFailed, err.Error())
		telemetry.WorkerForecastsTotal.WithLabelValues(postgres.RunStatusFailed).Inc()
		return nil
	}

	persistErr := retry.Do(ctx, retry.Config{
		MaxAttempts: 4,
		BaseDelay:   w.baseDelay,
		OnRetry: func(attempt int, retryErr error) {
			log.Warn("persist result failed, retrying",
				slog.Int("attempt", attempt),
				slog.String("error", retryErr.Error()),
			)
		},
	}, func() error {
		return w.results.SetResult(ctx, req.RunID, payload, w.resultTTL)
	})
	if persistErr != nil {
		// Not committing would rerun the whole forecast; record the
		// failure and let the client resubmit.
		log.Error("persist result exhausted retries", slog.String("error", persistErr.Error()))
		w.recordCompletion(ctx, req.RunID, postgres.RunStatusFailed, persistErr.Error())
		telemetry.WorkerForecastsTotal.WithLabelValues(postgres.RunStatusFailed).Inc()
		return nil
	}

	w.recordCompletion(ctx, req.RunID, postgres.RunStatusCompleted, "")
	telemetry.WorkerForecastsTotal.WithLabelValues(postgres.RunStatusCompleted).Inc()
	log.Info("forecast completed",
		slog.Int("n_iterations", result.Iterations),
		slog.Float64("duration_sec", durationSec),
	)
	return nil
}

func (w *Worker) runForecast(ctx context.Context, req kafka.ForecastRequest) (*simulate.FullResult, error) {
	tasks, err := w.plans.Tasks(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}
	edges, err := w.plans.Dependencies(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}
	return simulate.RunFull(req.PlanID, tasks, edges, simulate.BatchOptions{
		Iterations: req.Iterations,
		Seed:       req.Seed,
		Bias:       req.Bias,
		Now:        time.Now().UTC(),
	})
}

func (w *Worker) recordCompletion(ctx context.Context, runID, status, errMsg string) {
	if w.runs == nil {
		return
	}
	if err := w.runs.CompleteForecastRun(ctx, runID, status, errMsg); err != nil {
		w.logger.Error("record forecast completion",
			slog.String("run_id", runID),
			slog.String("error", err.Error()),
		)
	}
}
