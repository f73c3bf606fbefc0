// Package orchestrator drives a project's plan to a terminal status in
// rounds: compute the ready set, dispatch it through the capability
// registry, apply the retry policy, persist once, repeat.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ramiqadoumi/planflow/internal/capability"
	"github.com/ramiqadoumi/planflow/internal/domain"
	"github.com/ramiqadoumi/planflow/internal/store"
	"github.com/ramiqadoumi/planflow/pkg/retry"
	"github.com/ramiqadoumi/planflow/pkg/telemetry"
)

// Registry resolves a role to the capability that performs it.
type Registry interface {
	Lookup(role string) (capability.Capability, error)
}

// EventPublisher receives every state change of a run. Publish errors are
// logged and never stop the run.
type EventPublisher interface {
	Publish(ctx context.Context, ev domain.Event) error
}

// ExecutionRecorder keeps an audit row per dispatch attempt.
type ExecutionRecorder interface {
	RecordExecution(ctx context.Context, exec *domain.TaskExecution) error
}

// Orchestrator runs projects. One Orchestrator may drive many projects
// concurrently; each call to Run, Execute, Resume or Retry owns its project.
type Orchestrator struct {
	registry    Registry
	store       store.Store
	policy      retry.Policy
	maxParallel int
	taskTimeout time.Duration
	events      EventPublisher
	recorder    ExecutionRecorder
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithMaxRetries(n int) Option                      { return func(o *Orchestrator) { o.policy = retry.NewPolicy(n) } }
func WithMaxParallel(n int) Option                     { return func(o *Orchestrator) { o.maxParallel = n } }
func WithTaskTimeout(d time.Duration) Option           { return func(o *Orchestrator) { o.taskTimeout = d } }
func WithEventPublisher(p EventPublisher) Option       { return func(o *Orchestrator) { o.events = p } }
func WithExecutionRecorder(r ExecutionRecorder) Option { return func(o *Orchestrator) { o.recorder = r } }
func WithLogger(l *slog.Logger) Option                 { return func(o *Orchestrator) { o.logger = l } }
func WithClock(now func() time.Time) Option            { return func(o *Orchestrator) { o.now = now } }

// New constructs an Orchestrator. Defaults: 3 retries, unbounded parallelism
// within a round, no per-task timeout.
func New(registry Registry, st store.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry: registry,
		store:    st,
		policy:   retry.NewPolicy(retry.DefaultMaxRetries),
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// MaxRetries is the retry budget applied to every task.
func (o *Orchestrator) MaxRetries() int { return o.policy.MaxRetries }

// Seed validates p and persists its initial state without running it.
func (o *Orchestrator) Seed(ctx context.Context, p domain.Plan) (*domain.ExecutionState, error) {
	if err := domain.ValidatePlan(p); err != nil {
		return nil, err
	}
	st := domain.NewExecutionState(p, o.now())
	if err := o.store.Save(ctx, st); err != nil {
		return nil, &domain.PersistenceError{ProjectID: p.ProjectID, Op: "save", Err: err}
	}
	return st, nil
}

// Run validates and seeds p, then drives it to a terminal status.
//
// The returned error is non-nil only for plan, persistence, cancellation and
// internal conditions; task failures are reflected in the returned state.
func (o *Orchestrator) Run(ctx context.Context, p domain.Plan) (*domain.ExecutionState, error) {
	st, err := o.Seed(ctx, p)
	if err != nil {
		return nil, err
	}
	return o.loop(ctx, st)
}

// Execute loads a seeded project and runs it. Tasks left RUNNING by an
// interrupted run are reset to PENDING first; COMPLETED tasks are never
// invoked again.
func (o *Orchestrator) Execute(ctx context.Context, projectID string) (*domain.ExecutionState, error) {
	st, err := o.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	o.reset(ctx, st, st.ResetRunning(o.now()))
	return o.loop(ctx, st)
}

// Resume continues a project after a crash. It behaves exactly like Execute.
func (o *Orchestrator) Resume(ctx context.Context, projectID string) (*domain.ExecutionState, error) {
	return o.Execute(ctx, projectID)
}

// Retry gives terminally failed tasks a fresh retry budget and runs the
// project again. It is the way out of FAILED and BLOCKED once the cause
// (a missing capability, a broken endpoint) has been fixed.
func (o *Orchestrator) Retry(ctx context.Context, projectID string) (*domain.ExecutionState, error) {
	st, err := o.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	now := o.now()
	ids := append(st.ResetRunning(now), st.ResetFailed(now)...)
	o.reset(ctx, st, ids)
	return o.loop(ctx, st)
}

func (o *Orchestrator) load(ctx context.Context, projectID string) (*domain.ExecutionState, error) {
	st, err := o.store.Load(ctx, projectID)
	if err != nil {
		var nf *domain.ProjectNotFoundError
		if errors.As(err, &nf) {
			return nil, nf
		}
		return nil, &domain.PersistenceError{ProjectID: projectID, Op: "load", Err: err}
	}
	// A stored graph is re-checked so a damaged record surfaces as a plan
	// error instead of a project that can never leave BLOCKED.
	if err := domain.ValidatePlan(st.Plan()); err != nil {
		return nil, err
	}
	return st, nil
}

func (o *Orchestrator) reset(ctx context.Context, st *domain.ExecutionState, ids []string) {
	for _, id := range ids {
		t, _ := st.Task(id)
		o.logger.Info("task reset to pending",
			slog.String("project_id", st.ProjectID()),
			slog.String("task_id", id),
			slog.Int("retry_count", t.RetryCount),
		)
		o.publish(ctx, domain.NewEvent(domain.EventTaskReset, st.ProjectID(), st.Round(), st.OverallStatus(), o.now()).WithTask(t))
	}
}

// loop runs rounds until the project status is terminal.
func (o *Orchestrator) loop(ctx context.Context, st *domain.ExecutionState) (*domain.ExecutionState, error) {
	// Side effects of a round outlive cancellation of the run.
	bg := context.WithoutCancel(ctx)
	log := o.logger.With(slog.String("project_id", st.ProjectID()))

	limit := st.Len() * (o.policy.MaxRetries + 1)
	attempts := 0

	for {
		status := st.OverallStatus()
		if status.IsTerminal() {
			log.Info("project finished",
				slog.String("status", string(status)),
				slog.Int("rounds", st.Round()),
			)
			telemetry.OrchestratorProjectsFinished.WithLabelValues(string(status)).Inc()
			o.publish(bg, domain.NewEvent(domain.EventProjectFinished, st.ProjectID(), st.Round(), status, o.now()))
			return st, nil
		}
		if err := ctx.Err(); err != nil {
			log.Warn("run cancelled", slog.Int("round", st.Round()))
			return st, &domain.RunCancelledError{ProjectID: st.ProjectID(), Round: st.Round(), Err: err}
		}

		ready := st.ReadyTasks()
		if len(ready) == 0 {
			return st, &domain.StalledRunError{ProjectID: st.ProjectID(), Round: st.Round()}
		}
		if attempts+len(ready) > limit {
			return st, fmt.Errorf("project %s: dispatch attempts would exceed bound %d", st.ProjectID(), limit)
		}

		round := st.BeginRound(o.now())
		attempts += o.runRound(ctx, bg, st, round, ready)
		telemetry.OrchestratorRoundsTotal.Inc()

		if err := o.store.Save(bg, st); err != nil {
			log.Error("failed to persist round", slog.Int("round", round), slog.String("error", err.Error()))
			return st, &domain.PersistenceError{ProjectID: st.ProjectID(), Op: "save", Err: err}
		}
		o.publish(bg, domain.NewEvent(domain.EventRoundPersisted, st.ProjectID(), round, st.OverallStatus(), o.now()))
	}
}

// runRound dispatches ready concurrently and waits for every started
// dispatch. Tasks not yet started when ctx is cancelled stay queued. It
// returns the number of dispatches made.
func (o *Orchestrator) runRound(ctx, bg context.Context, st *domain.ExecutionState, round int, ready []domain.Task) int {
	ctxRound, span := otel.Tracer("orchestrator").Start(bg, "orchestrator.round")
	defer span.End()
	span.SetAttributes(
		attribute.String("project.id", st.ProjectID()),
		attribute.Int("round", round),
		attribute.Int("ready", len(ready)),
	)

	limit := o.maxParallel
	if limit <= 0 || limit > len(ready) {
		limit = len(ready)
	}
	sem := make(chan struct{}, limit)

	var wg sync.WaitGroup
	dispatched := 0
dispatch:
	for _, t := range ready {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			break dispatch
		}
		if ctx.Err() != nil {
			<-sem
			break dispatch
		}
		dispatched++
		wg.Add(1)
		go func(t domain.Task) {
			defer func() {
				<-sem
				wg.Done()
			}()
			o.dispatch(ctxRound, st, round, t)
		}(t)
	}
	wg.Wait()
	return dispatched
}

// dispatch runs one ready task and applies its outcome to st.
func (o *Orchestrator) dispatch(ctx context.Context, st *domain.ExecutionState, round int, t domain.Task) {
	ctx, span := otel.Tracer("orchestrator").Start(ctx, "orchestrator.dispatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("task.id", t.ID),
		attribute.String("task.role", t.Role),
		attribute.Int("task.retry_count", t.RetryCount),
	)

	c, err := o.registry.Lookup(t.Role)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "no capability registered")
		o.fail(ctx, st, round, t, err, 0, 0)
		return
	}

	attempt := t.RetryCount + 1
	running := t.Start(o.now())
	o.apply(ctx, st, round, domain.EventTaskStarted, running)

	runCtx := capability.WithProject(ctx, st.ProjectID())
	if o.taskTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, o.taskTimeout)
		defer cancel()
	}

	telemetry.OrchestratorTasksInFlight.WithLabelValues(t.Role).Inc()
	start := time.Now()
	res := invoke(runCtx, c, running)
	elapsed := time.Since(start)
	telemetry.OrchestratorTasksInFlight.WithLabelValues(t.Role).Dec()
	telemetry.OrchestratorTaskDurationSeconds.WithLabelValues(t.Role).Observe(elapsed.Seconds())

	if res.OK() {
		done := running.Complete(o.now())
		o.apply(ctx, st, round, domain.EventTaskCompleted, done)
		o.record(ctx, st, round, done, attempt, elapsed, nil)
		telemetry.OrchestratorDispatchTotal.WithLabelValues(t.Role, "completed").Inc()
		return
	}

	reason := res.Err()
	if o.taskTimeout > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		reason = fmt.Errorf("timed out after %s: %w", o.taskTimeout, reason)
	}
	span.RecordError(reason)
	span.SetStatus(codes.Error, "capability failed")
	o.fail(ctx, st, round, running, reason, attempt, elapsed)
}

// fail consults the retry policy and applies the resulting transition.
// attempt is zero when no capability was invoked.
func (o *Orchestrator) fail(ctx context.Context, st *domain.ExecutionState, round int, t domain.Task, reason error, attempt int, elapsed time.Duration) {
	if !retry.IsPermanent(reason) {
		reason = &domain.TransientExecutionError{TaskID: t.ID, Role: t.Role, Reason: reason}
	}
	decision, next := o.policy.OnFailure(t.RetryCount, reason)

	var (
		updated domain.Task
		typ     domain.EventType
		outcome string
	)
	switch decision {
	case retry.Retry:
		updated = t.Requeue(next, reason.Error(), o.now())
		typ, outcome = domain.EventTaskRetrying, "retrying"
	default:
		kind := domain.FailureExhausted
		if retry.IsPermanent(reason) {
			kind = domain.FailureUnrecoverable
		}
		updated = t.Fail(kind, next, reason.Error(), o.now())
		typ, outcome = domain.EventTaskFailed, "failed"
	}

	o.logger.Warn("task attempt failed",
		slog.String("project_id", st.ProjectID()),
		slog.String("task_id", t.ID),
		slog.String("role", t.Role),
		slog.Int("round", round),
		slog.Int("retry_count", next),
		slog.String("decision", decision.String()),
		slog.String("error", reason.Error()),
	)
	o.apply(ctx, st, round, typ, updated)
	o.record(ctx, st, round, updated, attempt, elapsed, reason)
	telemetry.OrchestratorDispatchTotal.WithLabelValues(t.Role, outcome).Inc()
}

func (o *Orchestrator) apply(ctx context.Context, st *domain.ExecutionState, round int, typ domain.EventType, t domain.Task) {
	if err := st.Apply(t); err != nil {
		o.logger.Error("failed to apply task transition", slog.String("error", err.Error()))
		return
	}
	o.publish(ctx, domain.NewEvent(typ, st.ProjectID(), round, st.OverallStatus(), t.UpdatedAt).WithTask(t))
}

func (o *Orchestrator) record(ctx context.Context, st *domain.ExecutionState, round int, t domain.Task, attempt int, elapsed time.Duration, reason error) {
	if o.recorder == nil {
		return
	}
	exec := &domain.TaskExecution{
		ID:         uuid.NewString(),
		ProjectID:  st.ProjectID(),
		TaskID:     t.ID,
		Role:       t.Role,
		Round:      round,
		Attempt:    attempt,
		Status:     t.Status,
		DurationMs: elapsed.Milliseconds(),
		ExecutedAt: t.UpdatedAt,
	}
	if reason != nil {
		exec.Error = reason.Error()
	}
	if err := o.recorder.RecordExecution(ctx, exec); err != nil {
		o.logger.Error("failed to record execution",
			slog.String("project_id", st.ProjectID()),
			slog.String("task_id", t.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (o *Orchestrator) publish(ctx context.Context, ev domain.Event) {
	if o.events == nil {
		return
	}
	if err := o.events.Publish(ctx, ev); err != nil {
		o.logger.Error("failed to publish event",
			slog.String("project_id", ev.ProjectID),
			slog.String("type", string(ev.Type)),
			slog.String("error", err.Error()),
		)
	}
}

// invoke runs c, turning a panic into a Failure.
func invoke(ctx context.Context, c capability.Capability, t domain.Task) (res capability.Result) {
	defer func() {
		if r := recover(); r != nil {
			res = capability.Failure(fmt.Errorf("capability %s panicked: %v", c.RoleName(), r))
		}
	}()
	return c.Run(ctx, t)
}
