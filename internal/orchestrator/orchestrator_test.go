package orchestrator_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramiqadoumi/planflow/internal/capability"
	"github.com/ramiqadoumi/planflow/internal/domain"
	"github.com/ramiqadoumi/planflow/internal/orchestrator"
	"github.com/ramiqadoumi/planflow/internal/store/memory"
)

// ── mocks ─────────────────────────────────────────────────────────────────────

// calls records capability invocations across all roles.
type calls struct {
	mu        sync.Mutex
	order     []string
	perTask   map[string]int
	completed map[string]bool
}

func newCalls() *calls {
	return &calls{perTask: make(map[string]int), completed: make(map[string]bool)}
}

// script builds a Capability for role whose outcome is decided by fn,
// which receives the 1-based invocation number for the task.
func (c *calls) script(role string, fn func(ctx context.Context, t domain.Task, n int) capability.Result) capability.Capability {
	return capability.Func{Role: role, Fn: func(ctx context.Context, t domain.Task) capability.Result {
		c.mu.Lock()
		c.order = append(c.order, t.ID)
		c.perTask[t.ID]++
		n := c.perTask[t.ID]
		c.mu.Unlock()

		res := fn(ctx, t, n)
		if res.OK() {
			c.mu.Lock()
			c.completed[t.ID] = true
			c.mu.Unlock()
		}
		return res
	}}
}

func (c *calls) ok(role string) capability.Capability {
	return c.script(role, func(context.Context, domain.Task, int) capability.Result { return capability.Success() })
}

func (c *calls) count(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.perTask[id]
}

func (c *calls) sequence() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.order...)
}

// countingStore counts saves and can fail them from a given call on.
type countingStore struct {
	*memory.Store
	saves    atomic.Int32
	failFrom int32
}

func (s *countingStore) Save(ctx context.Context, st *domain.ExecutionState) error {
	n := s.saves.Add(1)
	if s.failFrom > 0 && n >= s.failFrom {
		return errors.New("redis: connection refused")
	}
	return s.Store.Save(ctx, st)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *fakePublisher) Publish(_ context.Context, ev domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *fakePublisher) types() []domain.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.EventType, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type fakeRecorder struct {
	mu    sync.Mutex
	execs []domain.TaskExecution
}

func (r *fakeRecorder) RecordExecution(_ context.Context, exec *domain.TaskExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.execs = append(r.execs, *exec)
	return nil
}

// ── helpers ───────────────────────────────────────────────────────────────────

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func task(id, role string, deps ...string) domain.Task {
	return domain.NewTask(id, role, deps, "", t0)
}

func plan(id string, tasks ...domain.Task) domain.Plan {
	return domain.NewPlan(id, "title", "", tasks, t0)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newOrchestrator(reg *capability.Registry, st *countingStore, opts ...orchestrator.Option) *orchestrator.Orchestrator {
	opts = append([]orchestrator.Option{orchestrator.WithLogger(quietLogger())}, opts...)
	return orchestrator.New(reg, st, opts...)
}

func status(t *testing.T, st *domain.ExecutionState, id string) domain.Task {
	t.Helper()
	tk, ok := st.Task(id)
	require.True(t, ok, "task %s missing", id)
	return tk
}

func assertDerived(t *testing.T, st *domain.ExecutionState) {
	t.Helper()
	assert.Equal(t, domain.DeriveStatus(st.Tasks()), st.OverallStatus())
}

// ── scenarios ─────────────────────────────────────────────────────────────────

func TestRun_LinearChainCompletesInOrder(t *testing.T) {
	c := newCalls()
	reg := capability.NewRegistry(c.ok("backend"), c.ok("frontend"), c.ok("testing"))
	st := &countingStore{Store: memory.New()}

	final, err := newOrchestrator(reg, st).Run(context.Background(), plan("p1",
		task("A", "backend"),
		task("B", "frontend", "A"),
		task("C", "testing", "B"),
	))

	require.NoError(t, err)
	assert.Equal(t, domain.ProjectStatusCompleted, final.OverallStatus())
	assert.Equal(t, []string{"A", "B", "C"}, c.sequence())
	for _, id := range []string{"A", "B", "C"} {
		tk := status(t, final, id)
		assert.Equal(t, domain.StatusCompleted, tk.Status)
		assert.Zero(t, tk.RetryCount)
	}
	assert.Equal(t, 3, final.Round())
	assert.Equal(t, int32(4), st.saves.Load(), "one save at seed plus one per round")

	persisted, err := st.Load(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectStatusCompleted, persisted.OverallStatus())
}

func TestRun_MissingCapabilityBlocksDependents(t *testing.T) {
	c := newCalls()
	reg := capability.NewRegistry(c.ok("backend"), c.ok("testing"))
	st := &countingStore{Store: memory.New()}

	final, err := newOrchestrator(reg, st).Run(context.Background(), plan("p2",
		task("A", "backend"),
		task("B", "infra", "A"),
		task("C", "testing", "B"),
	))

	require.NoError(t, err)
	assert.Equal(t, domain.ProjectStatusBlocked, final.OverallStatus())

	b := status(t, final, "B")
	assert.Equal(t, domain.StatusFailed, b.Status)
	assert.Equal(t, domain.FailureUnrecoverable, b.Failure)
	assert.Zero(t, b.RetryCount, "a missing capability consumes no retry budget")
	assert.Contains(t, b.LastError, "infra")

	assert.Equal(t, domain.StatusPending, status(t, final, "C").Status)
	assert.Zero(t, c.count("C"))
	assertDerived(t, final)
}

func TestRun_MissingCapabilityOnLeafFailsProject(t *testing.T) {
	c := newCalls()
	rec := &fakeRecorder{}
	final, err := newOrchestrator(capability.NewRegistry(c.ok("backend")), &countingStore{Store: memory.New()},
		orchestrator.WithExecutionRecorder(rec),
	).Run(context.Background(), plan("leaf",
		task("a", "backend"),
		task("b", "infra"),
	))

	require.NoError(t, err)
	assert.Equal(t, domain.ProjectStatusFailed, final.OverallStatus())
	assert.Equal(t, domain.StatusCompleted, status(t, final, "a").Status)

	b := status(t, final, "b")
	assert.Equal(t, domain.StatusFailed, b.Status)
	assert.Equal(t, domain.FailureUnrecoverable, b.Failure)
	assert.Zero(t, b.RetryCount)
	assertDerived(t, final)

	attempts := map[string]int{}
	for _, exec := range rec.execs {
		attempts[exec.TaskID] = exec.Attempt
	}
	assert.Equal(t, map[string]int{"a": 1, "b": 0}, attempts, "nothing was invoked for b")
}

func TestRun_TransientFailuresThenSuccess(t *testing.T) {
	c := newCalls()
	flaky := c.script("backend", func(_ context.Context, _ domain.Task, n int) capability.Result {
		if n <= 2 {
			return capability.Failure(fmt.Errorf("attempt %d: upstream 503", n))
		}
		return capability.Success()
	})
	rec := &fakeRecorder{}
	st := &countingStore{Store: memory.New()}

	final, err := newOrchestrator(capability.NewRegistry(flaky), st,
		orchestrator.WithMaxRetries(3),
		orchestrator.WithExecutionRecorder(rec),
	).Run(context.Background(), plan("p3", task("A", "backend")))

	require.NoError(t, err)
	a := status(t, final, "A")
	assert.Equal(t, domain.StatusCompleted, a.Status)
	assert.Equal(t, 2, a.RetryCount)
	assert.Equal(t, 2, final.RetryCount("A"))
	assert.Equal(t, 3, c.count("A"))

	require.Len(t, rec.execs, 3)
	for i, exec := range rec.execs {
		assert.Equal(t, i+1, exec.Attempt)
		assert.Equal(t, i+1, exec.Round)
	}
	assert.Equal(t, domain.StatusRetrying, rec.execs[0].Status)
	assert.Equal(t, domain.StatusCompleted, rec.execs[2].Status)
}

func TestRun_RetryBudgetExhausted(t *testing.T) {
	c := newCalls()
	broken := c.script("backend", func(context.Context, domain.Task, int) capability.Result {
		return capability.Failure(errors.New("always down"))
	})
	reg := capability.NewRegistry(broken, c.ok("frontend"))
	st := &countingStore{Store: memory.New()}

	final, err := newOrchestrator(reg, st, orchestrator.WithMaxRetries(3)).Run(context.Background(), plan("p",
		task("A", "backend"),
		task("B", "frontend", "A"),
	))

	require.NoError(t, err)
	assert.Equal(t, domain.ProjectStatusFailed, final.OverallStatus())
	a := status(t, final, "A")
	assert.Equal(t, domain.StatusFailed, a.Status)
	assert.Equal(t, domain.FailureExhausted, a.Failure)
	assert.Equal(t, 3, a.RetryCount, "retry count never exceeds the maximum")
	assert.Equal(t, 3, c.count("A"))
	assert.Zero(t, c.count("B"))
	assertDerived(t, final)
}

func TestRun_IndependentBranchContinuesAfterFailure(t *testing.T) {
	c := newCalls()
	broken := c.script("infra", func(context.Context, domain.Task, int) capability.Result {
		return capability.Failure(errors.New("down"))
	})
	reg := capability.NewRegistry(broken, c.ok("backend"), c.ok("frontend"))
	st := &countingStore{Store: memory.New()}

	final, err := newOrchestrator(reg, st, orchestrator.WithMaxRetries(2)).Run(context.Background(), plan("p",
		task("I", "infra"),
		task("D", "frontend", "I"),
		task("X", "backend"),
		task("Y", "backend", "X"),
		task("Z", "frontend", "Y"),
	))

	require.NoError(t, err)
	assert.Equal(t, domain.ProjectStatusFailed, final.OverallStatus())
	for _, id := range []string{"X", "Y", "Z"} {
		assert.Equal(t, domain.StatusCompleted, status(t, final, id).Status, id)
	}
	assert.Equal(t, domain.StatusPending, status(t, final, "D").Status)
}

func TestRun_CycleRejectedWithoutState(t *testing.T) {
	st := &countingStore{Store: memory.New()}
	final, err := newOrchestrator(capability.NewRegistry(), st).Run(context.Background(), plan("p4",
		task("X", "backend", "Y"),
		task("Y", "backend", "X"),
	))

	require.Error(t, err)
	assert.Nil(t, final)
	var verr *domain.PlanValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, domain.ValidationCycle, verr.Kind)

	ok, _ := st.Exists(context.Background(), "p4")
	assert.False(t, ok, "no execution state may be created for an invalid plan")
	assert.Zero(t, st.saves.Load())
}

func TestResume_ResetsRunningAndSkipsCompleted(t *testing.T) {
	c := newCalls()
	reg := capability.NewRegistry(c.ok("backend"), c.ok("frontend"))
	mem := memory.New()
	mem.Put(domain.Snapshot{
		ProjectID: "p5",
		Round:     1,
		Tasks: []domain.Task{
			task("A", "backend").Complete(t0),
			task("B", "frontend", "A").Start(t0),
		},
	})
	pub := &fakePublisher{}
	st := &countingStore{Store: mem}

	final, err := newOrchestrator(reg, st, orchestrator.WithEventPublisher(pub)).Resume(context.Background(), "p5")

	require.NoError(t, err)
	assert.Equal(t, domain.ProjectStatusCompleted, final.OverallStatus())
	assert.Zero(t, c.count("A"), "completed tasks are never re-invoked")
	assert.Equal(t, 1, c.count("B"))
	assert.Equal(t, 2, final.Round())

	types := pub.types()
	require.NotEmpty(t, types)
	assert.Equal(t, domain.EventTaskReset, types[0])
	assert.Equal(t, domain.EventProjectFinished, types[len(types)-1])
}

// ── properties ────────────────────────────────────────────────────────────────

func TestRun_NoTaskStartsBeforeDependenciesComplete(t *testing.T) {
	c := newCalls()
	var violations atomic.Int32
	deps := map[string][]string{}
	check := func(role string) capability.Capability {
		return c.script(role, func(_ context.Context, tk domain.Task, _ int) capability.Result {
			c.mu.Lock()
			for _, d := range deps[tk.ID] {
				if !c.completed[d] {
					violations.Add(1)
				}
			}
			c.mu.Unlock()
			return capability.Success()
		})
	}
	tasks := []domain.Task{
		task("arch", "architecture"),
		task("api", "backend", "arch"),
		task("db", "backend", "arch"),
		task("ui", "frontend", "api"),
		task("e2e", "testing", "ui", "db"),
		task("docs", "architecture"),
	}
	for _, tk := range tasks {
		deps[tk.ID] = tk.Dependencies
	}
	reg := capability.NewRegistry(check("architecture"), check("backend"), check("frontend"), check("testing"))

	final, err := newOrchestrator(reg, &countingStore{Store: memory.New()}).Run(context.Background(), plan("dag", tasks...))

	require.NoError(t, err)
	assert.Equal(t, domain.ProjectStatusCompleted, final.OverallStatus())
	assert.Zero(t, violations.Load())
	assert.Equal(t, 4, final.Round(), "arch|docs, api|db, ui, e2e")
}

func TestRun_DispatchesReadyTasksConcurrently(t *testing.T) {
	var started sync.WaitGroup
	started.Add(2)
	barrier := capability.Func{Role: "backend", Fn: func(ctx context.Context, _ domain.Task) capability.Result {
		started.Done()
		done := make(chan struct{})
		go func() { started.Wait(); close(done) }()
		select {
		case <-done:
			return capability.Success()
		case <-time.After(2 * time.Second):
			return capability.Failure(errors.New("peer never started"))
		}
	}}

	final, err := newOrchestrator(capability.NewRegistry(barrier), &countingStore{Store: memory.New()}).
		Run(context.Background(), plan("par", task("a", "backend"), task("b", "backend")))

	require.NoError(t, err)
	assert.Equal(t, domain.ProjectStatusCompleted, final.OverallStatus())
	assert.Equal(t, 1, final.Round())
}

func TestRun_MaxParallelBoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	slow := capability.Func{Role: "backend", Fn: func(context.Context, domain.Task) capability.Result {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return capability.Success()
	}}

	final, err := newOrchestrator(capability.NewRegistry(slow), &countingStore{Store: memory.New()},
		orchestrator.WithMaxParallel(2),
	).Run(context.Background(), plan("lim",
		task("a", "backend"), task("b", "backend"), task("c", "backend"), task("d", "backend"), task("e", "backend"),
	))

	require.NoError(t, err)
	assert.Equal(t, domain.ProjectStatusCompleted, final.OverallStatus())
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRun_StatusMatchesDerivationAfterEveryEvent(t *testing.T) {
	c := newCalls()
	flaky := c.script("backend", func(_ context.Context, _ domain.Task, n int) capability.Result {
		if n == 1 {
			return capability.Failure(errors.New("first try fails"))
		}
		return capability.Success()
	})
	pub := &fakePublisher{}
	final, err := newOrchestrator(capability.NewRegistry(flaky), &countingStore{Store: memory.New()},
		orchestrator.WithEventPublisher(pub),
	).Run(context.Background(), plan("ev", task("a", "backend"), task("b", "backend", "a")))

	require.NoError(t, err)
	assertDerived(t, final)
	for _, ev := range pub.events {
		assert.NotEqual(t, domain.ProjectStatusCreated, ev.OverallStatus)
		if ev.Type == domain.EventProjectFinished {
			assert.Equal(t, domain.ProjectStatusCompleted, ev.OverallStatus)
		}
	}
	assert.Contains(t, pub.types(), domain.EventTaskRetrying)
	assert.Contains(t, pub.types(), domain.EventRoundPersisted)
}

// ── errors and cancellation ───────────────────────────────────────────────────

func TestRun_CancellationLetsInFlightWorkFinish(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	entered := make(chan struct{})
	c := newCalls()
	blocking := c.script("backend", func(runCtx context.Context, _ domain.Task, _ int) capability.Result {
		close(entered)
		<-release
		if runCtx.Err() != nil {
			return capability.Failure(runCtx.Err())
		}
		return capability.Success()
	})
	reg := capability.NewRegistry(blocking, c.ok("frontend"))
	st := &countingStore{Store: memory.New()}

	type result struct {
		st  *domain.ExecutionState
		err error
	}
	done := make(chan result, 1)
	go func() {
		final, err := newOrchestrator(reg, st).Run(ctx, plan("cx", task("A", "backend"), task("B", "frontend", "A")))
		done <- result{final, err}
	}()

	<-entered
	cancel()
	close(release)
	res := <-done

	var cancelled *domain.RunCancelledError
	require.True(t, errors.As(res.err, &cancelled), "got %v", res.err)
	assert.ErrorIs(t, res.err, context.Canceled)
	assert.Equal(t, domain.StatusCompleted, status(t, res.st, "A").Status, "in-flight result is applied")
	assert.Zero(t, c.count("B"), "no new round starts after cancellation")

	persisted, err := st.Load(context.Background(), "cx")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, status(t, persisted, "A").Status, "the round is persisted")
}

func TestRun_PersistenceErrorPropagates(t *testing.T) {
	c := newCalls()
	st := &countingStore{Store: memory.New(), failFrom: 2}

	final, err := newOrchestrator(capability.NewRegistry(c.ok("backend")), st).
		Run(context.Background(), plan("pe", task("a", "backend"), task("b", "backend", "a")))

	var perr *domain.PersistenceError
	require.True(t, errors.As(err, &perr), "got %v", err)
	assert.Equal(t, "save", perr.Op)
	assert.Equal(t, "pe", perr.ProjectID)
	require.NotNil(t, final)
	assert.Equal(t, 1, final.Round(), "the run stops at the first failed save")
	assert.Zero(t, c.count("b"))
}

func TestRun_SeedPersistenceError(t *testing.T) {
	st := &countingStore{Store: memory.New(), failFrom: 1}
	_, err := newOrchestrator(capability.NewRegistry(), st).Run(context.Background(), plan("pe", task("a", "backend")))
	var perr *domain.PersistenceError
	require.True(t, errors.As(err, &perr))
}

func TestExecute_RejectsDamagedStoredGraph(t *testing.T) {
	c := newCalls()
	mem := memory.New()
	mem.Put(domain.Snapshot{
		ProjectID: "damaged",
		Round:     1,
		Tasks: []domain.Task{
			task("a", "backend").Complete(t0),
			task("b", "backend", "gone"),
		},
	})

	_, err := newOrchestrator(capability.NewRegistry(c.ok("backend")), &countingStore{Store: mem}).
		Resume(context.Background(), "damaged")

	var verr *domain.PlanValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, domain.ValidationMissingDependency, verr.Kind)
	assert.Equal(t, "gone", verr.Ref)
	assert.Zero(t, c.count("b"))
}

func TestExecute_UnknownProject(t *testing.T) {
	_, err := newOrchestrator(capability.NewRegistry(), &countingStore{Store: memory.New()}).
		Execute(context.Background(), "ghost")
	var nf *domain.ProjectNotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "ghost", nf.ProjectID)
}

func TestExecute_SeededProject(t *testing.T) {
	c := newCalls()
	st := &countingStore{Store: memory.New()}
	o := newOrchestrator(capability.NewRegistry(c.ok("backend")), st)

	seeded, err := o.Seed(context.Background(), plan("seeded", task("a", "backend")))
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectStatusCreated, seeded.Summary().OverallStatus)
	assert.Zero(t, c.count("a"))

	final, err := o.Execute(context.Background(), "seeded")
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectStatusCompleted, final.OverallStatus())
	assert.Equal(t, 1, c.count("a"))
}

func TestRun_TaskTimeoutIsRetryable(t *testing.T) {
	c := newCalls()
	hang := c.script("backend", func(ctx context.Context, _ domain.Task, _ int) capability.Result {
		<-ctx.Done()
		return capability.Failure(ctx.Err())
	})

	final, err := newOrchestrator(capability.NewRegistry(hang), &countingStore{Store: memory.New()},
		orchestrator.WithTaskTimeout(10*time.Millisecond),
		orchestrator.WithMaxRetries(2),
	).Run(context.Background(), plan("to", task("a", "backend")))

	require.NoError(t, err)
	a := status(t, final, "a")
	assert.Equal(t, domain.StatusFailed, a.Status)
	assert.Equal(t, domain.FailureExhausted, a.Failure)
	assert.Equal(t, 2, c.count("a"))
	assert.Contains(t, a.LastError, "timed out")
}

func TestRun_PanickingCapabilityIsAFailure(t *testing.T) {
	boom := capability.Func{Role: "backend", Fn: func(context.Context, domain.Task) capability.Result {
		panic("nil map")
	}}
	final, err := newOrchestrator(capability.NewRegistry(boom), &countingStore{Store: memory.New()},
		orchestrator.WithMaxRetries(1),
	).Run(context.Background(), plan("pn", task("a", "backend")))

	require.NoError(t, err)
	assert.Equal(t, domain.ProjectStatusFailed, final.OverallStatus())
	assert.Contains(t, status(t, final, "a").LastError, "panicked")
}

func TestRun_PermanentCapabilityFailureFailsProject(t *testing.T) {
	c := newCalls()
	reject := c.script("backend", func(context.Context, domain.Task, int) capability.Result {
		return capability.Failure(&capability.PermanentError{Err: errors.New("400 bad request")})
	})
	final, err := newOrchestrator(capability.NewRegistry(reject), &countingStore{Store: memory.New()}).
		Run(context.Background(), plan("perm", task("a", "backend")))

	require.NoError(t, err)
	assert.Equal(t, domain.ProjectStatusFailed, final.OverallStatus())
	assert.Equal(t, domain.FailureUnrecoverable, status(t, final, "a").Failure)
	assert.Equal(t, 1, c.count("a"))
}

func TestRetry_RecoversProjectOnceCapabilityExists(t *testing.T) {
	c := newCalls()
	reg := capability.NewRegistry(c.ok("backend"))
	st := &countingStore{Store: memory.New()}
	o := newOrchestrator(reg, st)

	first, err := o.Run(context.Background(), plan("rt", task("a", "backend"), task("b", "infra", "a")))
	require.NoError(t, err)
	require.Equal(t, domain.ProjectStatusFailed, first.OverallStatus())

	reg.Register(c.ok("infra"))
	final, err := o.Retry(context.Background(), "rt")

	require.NoError(t, err)
	assert.Equal(t, domain.ProjectStatusCompleted, final.OverallStatus())
	assert.Equal(t, 1, c.count("a"), "completed work is kept")
	assert.Equal(t, 1, c.count("b"))
}

func TestRun_EmptyPlanCompletesWithoutRounds(t *testing.T) {
	st := &countingStore{Store: memory.New()}
	final, err := newOrchestrator(capability.NewRegistry(), st).Run(context.Background(), plan("empty"))

	require.NoError(t, err)
	assert.Equal(t, domain.ProjectStatusCompleted, final.OverallStatus())
	assert.Zero(t, final.Round())
	assert.Equal(t, int32(1), st.saves.Load())
}

func TestOrchestrator_DefaultRetryBudget(t *testing.T) {
	o := orchestrator.New(capability.NewRegistry(), memory.New())
	assert.Equal(t, 3, o.MaxRetries())
	assert.Equal(t, 5, orchestrator.New(capability.NewRegistry(), memory.New(), orchestrator.WithMaxRetries(5)).MaxRetries())
}
