package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ramiqadoumi/planflow/internal/domain"
)

// ExecutionRepository is the dispatch audit trail. It satisfies the
// orchestrator's ExecutionRecorder.
type ExecutionRepository struct {
	pool *pgxpool.Pool
}

func NewExecutionRepository(pool *pgxpool.Pool) *ExecutionRepository {
	return &ExecutionRepository{pool: pool}
}

func (r *ExecutionRepository) RecordExecution(ctx context.Context, exec *domain.TaskExecution) error {
	if exec.ID == "" {
		exec.ID = uuid.New().String()
	}
	if exec.ExecutedAt.IsZero() {
		exec.ExecutedAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO task_executions
			(id, project_id, task_id, role, round, attempt, status, duration_ms, error, executed_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		exec.ID, exec.ProjectID, exec.TaskID, exec.Role, exec.Round, exec.Attempt,
		string(exec.Status), exec.DurationMs, exec.Error, exec.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("record execution for task %s/%s: %w", exec.ProjectID, exec.TaskID, err)
	}
	return nil
}

// ListByProject returns the attempts made for a project, oldest first.
func (r *ExecutionRepository) ListByProject(ctx context.Context, projectID string, limit int) ([]domain.TaskExecution, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, project_id, task_id, role, round, attempt, status, duration_ms, error, executed_at
		FROM task_executions
		WHERE project_id = $1
		ORDER BY executed_at, round, task_id
		LIMIT $2
	`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("list executions of %s: %w", projectID, err)
	}
	defer rows.Close()

	var out []domain.TaskExecution
	for rows.Next() {
		var (
			e      domain.TaskExecution
			status string
		)
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.TaskID, &e.Role, &e.Round, &e.Attempt,
			&status, &e.DurationMs, &e.Error, &e.ExecutedAt); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		e.Status = domain.Status(status)
		out = append(out, e)
	}
	return out, rows.Err()
}

// AgentRepository is the agent catalog.
type AgentRepository struct {
	pool *pgxpool.Pool
}

func NewAgentRepository(pool *pgxpool.Pool) *AgentRepository {
	return &AgentRepository{pool: pool}
}

const agentColumns = `id, role_name, kind, description, active, config, created_at, updated_at`

func (r *AgentRepository) Create(ctx context.Context, a *domain.Agent) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	if a.Config == nil {
		a.Config = map[string]string{}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO agents (`+agentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, a.ID, a.RoleName, string(a.Kind), a.Description, a.Active, a.Config, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create agent %s: %w", a.ID, err)
	}
	return nil
}

// Update overwrites the mutable fields of an existing agent.
func (r *AgentRepository) Update(ctx context.Context, a *domain.Agent) error {
	a.UpdatedAt = time.Now().UTC()
	if a.Config == nil {
		a.Config = map[string]string{}
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE agents
		SET role_name = $2, kind = $3, description = $4, active = $5, config = $6, updated_at = $7
		WHERE id = $1
	`, a.ID, a.RoleName, string(a.Kind), a.Description, a.Active, a.Config, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update agent %s: %w", a.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.AgentNotFoundError{Key: a.ID}
	}
	return nil
}

func (r *AgentRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM agents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete agent %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.AgentNotFoundError{Key: id}
	}
	return nil
}

func (r *AgentRepository) Get(ctx context.Context, id string) (*domain.Agent, error) {
	a, err := scanAgent(r.pool.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.AgentNotFoundError{Key: id}
	}
	return a, err
}

func (r *AgentRepository) List(ctx context.Context) ([]domain.Agent, error) {
	return r.query(ctx, `SELECT `+agentColumns+` FROM agents ORDER BY role_name, created_at`)
}

func (r *AgentRepository) ListByRole(ctx context.Context, role string) ([]domain.Agent, error) {
	return r.query(ctx, `SELECT `+agentColumns+` FROM agents WHERE role_name = $1 ORDER BY created_at`, role)
}

// SetActive switches several agents on or off in one statement and returns
// how many rows changed.
func (r *AgentRepository) SetActive(ctx context.Context, ids []string, active bool) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE agents SET active = $2, updated_at = $3 WHERE id = ANY($1)
	`, ids, active, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("batch update agents: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *AgentRepository) query(ctx context.Context, sql string, args ...any) ([]domain.Agent, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query agents: %w", err)
	}
	defer rows.Close()

	var out []domain.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// scanAgent reads an agent row from any pgx row type.
func scanAgent(row interface {
	Scan(...any) error
}) (*domain.Agent, error) {
	var (
		a    domain.Agent
		kind string
	)
	err := row.Scan(&a.ID, &a.RoleName, &kind, &a.Description, &a.Active, &a.Config, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan agent: %w", err)
	}
	a.Kind = domain.AgentKind(kind)
	return &a, nil
}
