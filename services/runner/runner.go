package runner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ramiqadoumi/planflow/internal/domain"
	"github.com/ramiqadoumi/planflow/internal/kafka"
	"github.com/ramiqadoumi/planflow/pkg/telemetry"
)

// Orchestrator is the part of the orchestrator the runner drives.
type Orchestrator interface {
	Execute(ctx context.Context, projectID string) (*domain.ExecutionState, error)
	Resume(ctx context.Context, projectID string) (*domain.ExecutionState, error)
	Retry(ctx context.Context, projectID string) (*domain.ExecutionState, error)
}

// Lease guards a project against being run by two runners at once.
type Lease interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
	Keep(ctx context.Context, lost func())
}

// LeaseFunc returns the lease for a project.
type LeaseFunc func(projectID string) Lease

// Runner consumes project commands and runs each project on its own goroutine.
type Runner struct {
	consumer kafka.Consumer
	orch     Orchestrator
	leases   LeaseFunc
	runnerID string
	logger   *slog.Logger

	mu     sync.Mutex
	active map[string]context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Runner.
type Option func(*Runner)

func WithLogger(l *slog.Logger) Option { return func(r *Runner) { r.logger = l } }
func WithLeases(f LeaseFunc) Option    { return func(r *Runner) { r.leases = f } }

// NewRunner constructs a Runner. Without WithLeases only in-process
// exclusion applies.
func NewRunner(runnerID string, consumer kafka.Consumer, orch Orchestrator, opts ...Option) *Runner {
	r := &Runner{
		consumer: consumer,
		orch:     orch,
		runnerID: runnerID,
		logger:   slog.Default(),
		active:   make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run consumes commands until ctx is cancelled. Cancelling ctx also cancels
// every active run; each finishes its current round and persists it.
func (r *Runner) Run(ctx context.Context) error {
	return r.consumer.Subscribe(ctx, r.handle)
}

// Wait blocks until every started run has returned. Call after Run returns.
func (r *Runner) Wait() { r.wg.Wait() }

// Active returns the ids of the projects running in this process.
func (r *Runner) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.active))
	for id := range r.active {
		ids = append(ids, id)
	}
	return ids
}

// handle is the kafka HandlerFunc. It always returns nil: a command that
// cannot be acted on now is dropped and the resumer re-issues it later.
func (r *Runner) handle(ctx context.Context, msg kafka.Message) error {
	cmd, err := kafka.DecodeCommand(msg.Value)
	if err != nil {
		r.logger.Error("malformed command, discarding",
			slog.String("error", err.Error()),
			slog.String("raw", string(msg.Value)),
		)
		telemetry.RunnerCommandsTotal.WithLabelValues("unknown", "malformed").Inc()
		return nil
	}

	log := r.logger.With(
		slog.String("project_id", cmd.ProjectID),
		slog.String("command", string(cmd.Type)),
		slog.String("command_id", cmd.ID),
	)

	if cmd.Type == kafka.CommandCancel {
		if r.cancel(cmd.ProjectID) {
			log.Info("run cancelled on request")
			telemetry.RunnerCommandsTotal.WithLabelValues(string(cmd.Type), "cancelled").Inc()
		} else {
			telemetry.RunnerCommandsTotal.WithLabelValues(string(cmd.Type), "not_running").Inc()
		}
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	if !r.track(cmd.ProjectID, cancel) {
		cancel()
		log.Info("project already running here, ignoring command")
		telemetry.RunnerCommandsTotal.WithLabelValues(string(cmd.Type), "busy").Inc()
		return nil
	}

	var lease Lease
	if r.leases != nil {
		lease = r.leases(cmd.ProjectID)
		ok, err := lease.Acquire(ctx)
		if err != nil || !ok {
			r.untrack(cmd.ProjectID)
			cancel()
			if err != nil {
				log.Error("lease acquire failed", slog.String("error", err.Error()))
			} else {
				log.Info("project owned by another runner, ignoring command")
			}
			telemetry.RunnerCommandsTotal.WithLabelValues(string(cmd.Type), "locked").Inc()
			return nil
		}
		go lease.Keep(runCtx, func() {
			log.Warn("project lease lost, stopping run")
			cancel()
		})
	}

	telemetry.RunnerCommandsTotal.WithLabelValues(string(cmd.Type), "started").Inc()
	telemetry.RunnerProjectsActive.Inc()
	r.wg.Add(1)
	go func() {
		defer func() {
			cancel()
			if lease != nil {
				releaseCtx, done := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				if err := lease.Release(releaseCtx); err != nil {
					log.Error("lease release failed", slog.String("error", err.Error()))
				}
				done()
			}
			r.untrack(cmd.ProjectID)
			telemetry.RunnerProjectsActive.Dec()
			r.wg.Done()
		}()
		r.execute(runCtx, cmd, log)
	}()
	return nil
}

func (r *Runner) execute(ctx context.Context, cmd kafka.Command, log *slog.Logger) {
	ctx, span := otel.Tracer("runner").Start(ctx, "runner.execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("project.id", cmd.ProjectID),
		attribute.String("command", string(cmd.Type)),
		attribute.String("runner.id", r.runnerID),
	)

	var run func(context.Context, string) (*domain.ExecutionState, error)
	switch cmd.Type {
	case kafka.CommandResume:
		run = r.orch.Resume
	case kafka.CommandRetry:
		run = r.orch.Retry
	default:
		run = r.orch.Execute
	}

	log.Info("run starting")
	start := time.Now()
	st, err := run(ctx, cmd.ProjectID)

	var cancelled *domain.RunCancelledError
	switch {
	case errors.As(err, &cancelled):
		log.Warn("run stopped before finishing", slog.Int("round", cancelled.Round))
	case err != nil:
		log.Error("run failed", slog.String("error", err.Error()))
		span.RecordError(err)
		span.SetStatus(codes.Error, "run failed")
	default:
		log.Info("run finished",
			slog.String("status", string(st.OverallStatus())),
			slog.Int("rounds", st.Round()),
			slog.Duration("elapsed", time.Since(start)),
		)
	}
}

func (r *Runner) track(projectID string, cancel context.CancelFunc) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.active[projectID]; busy {
		return false
	}
	r.active[projectID] = cancel
	return true
}

func (r *Runner) untrack(projectID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, projectID)
}

func (r *Runner) cancel(projectID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cancel, ok := r.active[projectID]
	if ok {
		cancel()
	}
	return ok
}
