// Package store defines the persistence contract for project execution state.
package store

import (
	"context"
	"log/slog"

	"github.com/ramiqadoumi/planflow/internal/domain"
	"github.com/ramiqadoumi/planflow/pkg/retry"
)

// Store persists one ExecutionState per project. The orchestrator saves once
// per round and loads once at the start of a run or resume.
//
// Load returns *domain.ProjectNotFoundError when no state exists.
type Store interface {
	Save(ctx context.Context, st *domain.ExecutionState) error
	Load(ctx context.Context, projectID string) (*domain.ExecutionState, error)
	Delete(ctx context.Context, projectID string) error
	Exists(ctx context.Context, projectID string) (bool, error)
}

// Lister is implemented by stores that can enumerate their projects.
type Lister interface {
	List(ctx context.Context) ([]domain.Summary, error)
}

// ProjectStore is a Store that can also list projects, as the API needs.
type ProjectStore interface {
	Store
	Lister
}

type retrying struct {
	next   Store
	cfg    retry.Config
	logger *slog.Logger
}

// WithRetry wraps s so that every call is retried with retry.Do. A missing
// project is reported immediately.
func WithRetry(s Store, cfg retry.Config, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.Default()
	}
	r := &retrying{next: s, cfg: cfg, logger: logger}
	if l, ok := s.(Lister); ok {
		return &retryingLister{retrying: r, lister: l}
	}
	return r
}

func (r *retrying) config(op, projectID string) retry.Config {
	cfg := r.cfg
	cfg.OnRetry = func(attempt int, err error) {
		r.logger.Warn("store call failed, retrying",
			slog.String("op", op),
			slog.String("project_id", projectID),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
	}
	return cfg
}

func (r *retrying) Save(ctx context.Context, st *domain.ExecutionState) error {
	return retry.Do(ctx, r.config("save", st.ProjectID()), func() error {
		return r.next.Save(ctx, st)
	})
}

func (r *retrying) Load(ctx context.Context, projectID string) (*domain.ExecutionState, error) {
	var st *domain.ExecutionState
	err := retry.Do(ctx, r.config("load", projectID), func() error {
		var err error
		st, err = r.next.Load(ctx, projectID)
		return err
	})
	return st, err
}

func (r *retrying) Delete(ctx context.Context, projectID string) error {
	return retry.Do(ctx, r.config("delete", projectID), func() error {
		return r.next.Delete(ctx, projectID)
	})
}

func (r *retrying) Exists(ctx context.Context, projectID string) (bool, error) {
	var ok bool
	err := retry.Do(ctx, r.config("exists", projectID), func() error {
		var err error
		ok, err = r.next.Exists(ctx, projectID)
		return err
	})
	return ok, err
}

type retryingLister struct {
	*retrying
	lister Lister
}

func (r *retryingLister) List(ctx context.Context) ([]domain.Summary, error) {
	var out []domain.Summary
	err := retry.Do(ctx, r.config("list", ""), func() error {
		var err error
		out, err = r.lister.List(ctx)
		return err
	})
	return out, err
}
