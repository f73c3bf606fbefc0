package resumer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ramiqadoumi/planflow/internal/kafka"
	"github.com/ramiqadoumi/planflow/pkg/telemetry"
)

// StaleLister finds projects that were running but stopped persisting.
type StaleLister interface {
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

// Leader is held by at most one resumer instance at a time.
type Leader interface {
	Acquire(ctx context.Context) (bool, error)
}

// CommandSender publishes project commands.
type CommandSender interface {
	Send(ctx context.Context, cmd kafka.Command) error
}

// InUseFunc reports whether a runner currently holds the project's lease.
type InUseFunc func(ctx context.Context, projectID string) (bool, error)

// Resumer periodically re-issues resume commands for projects whose runner
// died mid-run. Only the elected leader sweeps.
type Resumer struct {
	projects   StaleLister
	leader     Leader
	commands   CommandSender
	inUse      InUseFunc
	schedule   string
	staleAfter time.Duration
	batch      int
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Resumer.
type Option func(*Resumer)

func WithSchedule(spec string) Option { return func(r *Resumer) { r.schedule = spec } }

func WithStaleAfter(d time.Duration) Option { return func(r *Resumer) { r.staleAfter = d } }

func WithBatch(n int) Option { return func(r *Resumer) { r.batch = n } }

func WithLogger(l *slog.Logger) Option { return func(r *Resumer) { r.logger = l } }

func WithClock(now func() time.Time) Option { return func(r *Resumer) { r.now = now } }

// New constructs a Resumer. Defaults: sweep every 30 seconds, a project is
// stale after 10 minutes without a saved round, 100 projects per sweep.
func New(projects StaleLister, leader Leader, commands CommandSender, inUse InUseFunc, opts ...Option) *Resumer {
	r := &Resumer{
		projects:   projects,
		leader:     leader,
		commands:   commands,
		inUse:      inUse,
		schedule:   "@every 30s",
		staleAfter: 10 * time.Minute,
		batch:      100,
		logger:     slog.Default(),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run sweeps on the cron schedule until ctx is cancelled, and once right away.
func (r *Resumer) Run(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(r.schedule, func() { r.tick(ctx) }); err != nil {
		return fmt.Errorf("parse schedule %q: %w", r.schedule, err)
	}

	r.tick(ctx)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func (r *Resumer) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	n, err := r.Sweep(ctx)
	if err != nil {
		r.logger.Error("sweep failed", slog.String("error", err.Error()))
		return
	}
	if n > 0 {
		r.logger.Info("stale projects resumed", slog.Int("count", n))
	}
}

// Sweep publishes a resume command for every stale project whose lease is
// free, and returns how many were published. It does nothing unless this
// instance is the leader.
func (r *Resumer) Sweep(ctx context.Context) (int, error) {
	leader, err := r.leader.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("leader election: %w", err)
	}
	if !leader {
		return 0, nil
	}
	telemetry.ResumerSweepsTotal.Inc()

	ids, err := r.projects.ListStale(ctx, r.now().Add(-r.staleAfter), r.batch)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, id := range ids {
		log := r.logger.With(slog.String("project_id", id))
		if r.inUse != nil {
			busy, err := r.inUse(ctx, id)
			if err != nil {
				log.Error("lease check failed", slog.String("error", err.Error()))
				continue
			}
			if busy {
				log.Debug("stale project still leased, skipping")
				continue
			}
		}
		if err := r.commands.Send(ctx, kafka.NewCommand(kafka.CommandResume, id, "resumer")); err != nil {
			log.Error("publish resume failed", slog.String("error", err.Error()))
			continue
		}
		log.Info("resume command published")
		telemetry.ResumerProjectsResumed.Inc()
		sent++
	}
	return sent, nil
}
