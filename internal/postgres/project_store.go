package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ramiqadoumi/planflow/internal/domain"
	"github.com/ramiqadoumi/planflow/internal/store"
)

// ProjectStore persists execution state as one projects row plus one
// project_tasks row per task, written in a single transaction.
type ProjectStore struct {
	pool *pgxpool.Pool
}

var _ store.ProjectStore = (*ProjectStore)(nil)

// NewProjectStore wraps a pgxpool.
func NewProjectStore(pool *pgxpool.Pool) *ProjectStore {
	return &ProjectStore{pool: pool}
}

func (s *ProjectStore) Save(ctx context.Context, st *domain.ExecutionState) error {
	snap := st.Snapshot()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save %s: %w", snap.ProjectID, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx, `
		INSERT INTO projects (id, title, description, overall_status, round, created_at, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			title          = EXCLUDED.title,
			description    = EXCLUDED.description,
			overall_status = EXCLUDED.overall_status,
			round          = EXCLUDED.round,
			last_updated   = EXCLUDED.last_updated
	`,
		snap.ProjectID, snap.Title, snap.Description, string(snap.OverallStatus),
		snap.Round, snap.CreatedAt, snap.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("upsert project %s: %w", snap.ProjectID, err)
	}

	batch := &pgx.Batch{}
	for i, t := range snap.Tasks {
		deps := t.Dependencies
		if deps == nil {
			deps = []string{}
		}
		batch.Queue(`
			INSERT INTO project_tasks
				(project_id, id, position, role, dependencies, status, retry_count,
				 failure, last_error, description, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (project_id, id) DO UPDATE SET
				position     = EXCLUDED.position,
				role         = EXCLUDED.role,
				dependencies = EXCLUDED.dependencies,
				status       = EXCLUDED.status,
				retry_count  = EXCLUDED.retry_count,
				failure      = EXCLUDED.failure,
				last_error   = EXCLUDED.last_error,
				description  = EXCLUDED.description,
				updated_at   = EXCLUDED.updated_at
		`,
			snap.ProjectID, t.ID, i, t.Role, deps, string(t.Status), t.RetryCount,
			string(t.Failure), t.LastError, t.Description, t.CreatedAt, t.UpdatedAt,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert tasks of %s: %w", snap.ProjectID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit save %s: %w", snap.ProjectID, err)
	}
	return nil
}

func (s *ProjectStore) Load(ctx context.Context, projectID string) (*domain.ExecutionState, error) {
	var (
		snap   domain.Snapshot
		status string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, title, description, overall_status, round, created_at, last_updated
		FROM projects
		WHERE id = $1
	`, projectID).Scan(
		&snap.ProjectID, &snap.Title, &snap.Description, &status,
		&snap.Round, &snap.CreatedAt, &snap.LastUpdated,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.ProjectNotFoundError{ProjectID: projectID}
		}
		return nil, fmt.Errorf("load project %s: %w", projectID, err)
	}
	snap.OverallStatus = domain.ProjectStatus(status)

	tasks, err := s.tasks(ctx, `WHERE project_id = $1`, projectID)
	if err != nil {
		return nil, err
	}
	snap.Tasks = tasks[projectID]
	return domain.RestoreExecutionState(snap)
}

func (s *ProjectStore) Delete(ctx context.Context, projectID string) error {
	// project_tasks rows go with ON DELETE CASCADE; the execution audit is kept.
	if _, err := s.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, projectID); err != nil {
		return fmt.Errorf("delete project %s: %w", projectID, err)
	}
	return nil
}

func (s *ProjectStore) Exists(ctx context.Context, projectID string) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM projects WHERE id = $1)`, projectID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("exists project %s: %w", projectID, err)
	}
	return ok, nil
}

// List returns every project, newest first.
func (s *ProjectStore) List(ctx context.Context) ([]domain.Summary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, title, description, overall_status, round, created_at, last_updated
		FROM projects
		ORDER BY created_at DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	snaps, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Snapshot, error) {
		var (
			snap   domain.Snapshot
			status string
		)
		err := row.Scan(&snap.ProjectID, &snap.Title, &snap.Description, &status,
			&snap.Round, &snap.CreatedAt, &snap.LastUpdated)
		snap.OverallStatus = domain.ProjectStatus(status)
		return snap, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan projects: %w", err)
	}

	tasks, err := s.tasks(ctx, "")
	if err != nil {
		return nil, err
	}

	out := make([]domain.Summary, 0, len(snaps))
	for _, snap := range snaps {
		snap.Tasks = tasks[snap.ProjectID]
		st, err := domain.RestoreExecutionState(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, st.Summary())
	}
	return out, nil
}

// ListStale returns ids of projects that started running but have not been
// persisted since before cutoff, oldest first.
func (s *ProjectStore) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id
		FROM projects
		WHERE overall_status = $1 AND round > 0 AND last_updated < $2
		ORDER BY last_updated
		LIMIT $3
	`, string(domain.ProjectStatusRunning), cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale projects: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan stale projects: %w", err)
	}
	return ids, nil
}

// tasks loads task rows grouped by project id, in plan order.
func (s *ProjectStore) tasks(ctx context.Context, where string, args ...any) (map[string][]domain.Task, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT project_id, id, role, dependencies, status, retry_count,
		       failure, last_error, description, created_at, updated_at
		FROM project_tasks
		`+where+`
		ORDER BY project_id, position
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]domain.Task)
	for rows.Next() {
		var (
			projectID       string
			t               domain.Task
			status, failure string
		)
		err := rows.Scan(
			&projectID, &t.ID, &t.Role, &t.Dependencies, &status, &t.RetryCount,
			&failure, &t.LastError, &t.Description, &t.CreatedAt, &t.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.Status = domain.Status(status)
		t.Failure = domain.Failure(failure)
		if len(t.Dependencies) == 0 {
			t.Dependencies = nil
		}
		out[projectID] = append(out[projectID], t)
	}
	return out, rows.Err()
}
