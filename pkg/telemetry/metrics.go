package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "planflow"

var (
	// ─── API Gateway ─────────────────────────────────────────────────────────────

	APIProjectsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "projects_submitted_total",
		Help:      "Total projects accepted, labelled by how the plan was produced.",
	}, []string{"source"})

	APIPlansRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "plans_rejected_total",
		Help:      "Plans rejected by validation, labelled by validation kind.",
	}, []string{"kind"})

	APICommandsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "commands_published_total",
		Help:      "Project commands published to the runner.",
	}, []string{"command"})

	APIRateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "rate_limited_total",
		Help:      "Project submissions rejected by the rate limiter.",
	})

	// ─── Orchestrator ────────────────────────────────────────────────────────────

	OrchestratorRoundsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "orchestrator",
		Name:      "rounds_total",
		Help:      "Scheduler rounds executed.",
	})

	OrchestratorDispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "orchestrator",
		Name:      "dispatch_total",
		Help:      "Task dispatch attempts, labelled by role and outcome (completed, retrying, failed).",
	}, []string{"role", "outcome"})

	OrchestratorTasksInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "orchestrator",
		Name:      "tasks_inflight",
		Help:      "Capability invocations currently running.",
	}, []string{"role"})

	OrchestratorTaskDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "orchestrator",
		Name:      "task_duration_seconds",
		Help:      "Capability invocation time in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"role"})

	OrchestratorProjectsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "orchestrator",
		Name:      "projects_finished_total",
		Help:      "Runs that reached a terminal project status.",
	}, []string{"status"})

	// ─── Runner ──────────────────────────────────────────────────────────────────

	RunnerCommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "runner",
		Name:      "commands_total",
		Help:      "Commands consumed, labelled by command and result.",
	}, []string{"command", "result"})

	RunnerProjectsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "runner",
		Name:      "projects_active",
		Help:      "Projects currently driven by this runner.",
	})

	// ─── Kafka ───────────────────────────────────────────────────────────────────

	KafkaMessagesConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "kafka",
		Name:      "messages_consumed_total",
		Help:      "Messages handed to a handler, labelled by topic and result (ok, error).",
	}, []string{"topic", "result"})

	// ─── Resumer ─────────────────────────────────────────────────────────────────

	ResumerSweepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "resumer",
		Name:      "sweeps_total",
		Help:      "Stale-project sweeps run while holding leadership.",
	})

	ResumerProjectsResumed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "resumer",
		Name:      "projects_resumed_total",
		Help:      "Resume commands published for stale projects.",
	})
)
