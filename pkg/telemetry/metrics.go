package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ─── API ─────────────────────────────────────────────────────────────────────

	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "plantwin",
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "Total API requests, labelled by route and status class.",
	}, []string{"route", "status"})

	APISimulationsEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "plantwin",
		Subsystem: "api",
		Name:      "simulations_enqueued_total",
		Help:      "Batch forecast requests published to Kafka.",
	})

	APILockConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "plantwin",
		Subsystem: "api",
		Name:      "lock_conflicts_total",
		Help:      "Edit lock acquisitions rejected because another owner holds the lock.",
	})

	// ─── Simworker ───────────────────────────────────────────────────────────────

	WorkerForecastsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "plantwin",
		Subsystem: "simworker",
		Name:      "forecasts_total",
		Help:      "Batch forecasts processed, labelled by terminal status.",
	}, []string{"status"})

	WorkerForecastDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "plantwin",
		Subsystem: "simworker",
		Name:      "forecast_duration_seconds",
		Help:      "Wall-clock time of one batch forecast.",
		Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})

	WorkerTrialsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "plantwin",
		Subsystem: "simworker",
		Name:      "trials_total",
		Help:      "Monte Carlo trials executed across all forecasts.",
	})

	WorkerDLQTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "plantwin",
		Subsystem: "simworker",
		Name:      "dlq_total",
		Help:      "Malformed forecast requests forwarded to the dead-letter topic.",
	})

	// ─── Scheduler ───────────────────────────────────────────────────────────────

	SchedulerForecastsFired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "plantwin",
		Subsystem: "scheduler",
		Name:      "forecasts_fired_total",
		Help:      "Scheduled forecast requests published.",
	})

	SchedulerLeaderGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "plantwin",
		Subsystem: "scheduler",
		Name:      "is_leader",
		Help:      "1 while this instance holds scheduler leadership.",
	})
)
