//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ramiqadoumi/planflow/internal/domain"
	"github.com/ramiqadoumi/planflow/internal/postgres"
)

var testPostgresDSN string

func TestMain(m *testing.M) {
	os.Exit(run(m))
}

func run(m *testing.M) int {
	ctx := context.Background()

	pgCtr, err := tcPostgres.Run(ctx, "postgres:15-alpine",
		tcPostgres.WithDatabase("planflow"),
		tcPostgres.WithUsername("planflow"),
		tcPostgres.WithPassword("planflow"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		log.Fatalf("start postgres container: %v", err)
	}
	defer pgCtr.Terminate(ctx) //nolint:errcheck

	dsn, err := pgCtr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		log.Fatalf("postgres connection string: %v", err)
	}
	testPostgresDSN = dsn

	pool, err := postgres.NewPool(ctx, dsn)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	if _, err := postgres.Migrate(ctx, pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	pool.Close()

	return m.Run()
}

// newPool connects to the test container and truncates every table on cleanup.
func newPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, testPostgresDSN)
	require.NoError(t, err)
	t.Cleanup(func() {
		pool.Exec(ctx, "TRUNCATE task_executions, project_tasks, projects, agents CASCADE") //nolint:errcheck
		pool.Close()
	})
	return pool
}

func seeded(id string, now time.Time) *domain.ExecutionState {
	plan := domain.NewPlan(id, "shop", "online shop", []domain.Task{
		domain.NewTask("design", "architecture", nil, "design", now),
		domain.NewTask("api", "backend", []string{"design"}, "api", now),
		domain.NewTask("ui", "frontend", []string{"design"}, "ui", now),
	}, now)
	return domain.NewExecutionState(plan, now)
}

func TestMigrate_Idempotent(t *testing.T) {
	pool := newPool(t)
	files, err := postgres.Migrate(context.Background(), pool)
	require.NoError(t, err)
	assert.Len(t, files, 4)
}

func TestProjectStore_SaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := postgres.NewProjectStore(newPool(t))
	now := time.Now().UTC().Truncate(time.Microsecond)

	st := seeded("p-1", now)
	st.BeginRound(now)
	design, _ := st.Task("design")
	require.NoError(t, st.Apply(design.Complete(now)))
	api, _ := st.Task("api")
	require.NoError(t, st.Apply(api.Requeue(1, "timeout", now)))
	require.NoError(t, s.Save(ctx, st))

	got, err := s.Load(ctx, "p-1")
	require.NoError(t, err)
	want, have := st.Snapshot(), got.Snapshot()
	assert.Equal(t, want.Round, have.Round)
	assert.Equal(t, want.Title, have.Title)
	require.Len(t, have.Tasks, 3)
	for i := range want.Tasks {
		assert.Equal(t, want.Tasks[i].ID, have.Tasks[i].ID)
		assert.Equal(t, want.Tasks[i].Status, have.Tasks[i].Status)
		assert.Equal(t, want.Tasks[i].Dependencies, have.Tasks[i].Dependencies)
		assert.True(t, want.Tasks[i].UpdatedAt.Equal(have.Tasks[i].UpdatedAt))
	}
	assert.Equal(t, 1, got.RetryCount("api"))
	assert.Equal(t, "timeout", have.Tasks[1].LastError)
	assert.Equal(t, domain.ProjectStatusRunning, got.OverallStatus())
}

func TestProjectStore_SaveOverwrites(t *testing.T) {
	ctx := context.Background()
	s := postgres.NewProjectStore(newPool(t))
	now := time.Now().UTC().Truncate(time.Microsecond)

	st := seeded("p-1", now)
	require.NoError(t, s.Save(ctx, st))

	st.BeginRound(now)
	for _, task := range st.Tasks() {
		require.NoError(t, st.Apply(task.Complete(now)))
	}
	require.NoError(t, s.Save(ctx, st))

	got, err := s.Load(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectStatusCompleted, got.OverallStatus())
	var ids []string
	for _, task := range got.Tasks() {
		ids = append(ids, task.ID)
	}
	assert.Equal(t, []string{"design", "api", "ui"}, ids)
}

func TestProjectStore_LoadMissing(t *testing.T) {
	s := postgres.NewProjectStore(newPool(t))
	_, err := s.Load(context.Background(), "nope")
	var nf *domain.ProjectNotFoundError
	require.True(t, errors.As(err, &nf))
}

func TestProjectStore_DeleteExists(t *testing.T) {
	ctx := context.Background()
	s := postgres.NewProjectStore(newPool(t))
	require.NoError(t, s.Save(ctx, seeded("p-1", time.Now().UTC())))

	ok, err := s.Exists(ctx, "p-1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Delete(ctx, "p-1"))
	ok, err = s.Exists(ctx, "p-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProjectStore_ListAndListStale(t *testing.T) {
	ctx := context.Background()
	s := postgres.NewProjectStore(newPool(t))
	old := time.Now().UTC().Add(-time.Hour)

	fresh := seeded("fresh", old)
	require.NoError(t, s.Save(ctx, fresh))

	stale := seeded("stale", old)
	stale.BeginRound(old)
	require.NoError(t, s.Save(ctx, stale))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)

	ids, err := s.ListStale(ctx, time.Now().UTC().Add(-time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"stale"}, ids)
}

func TestExecutionRepository_RecordAndList(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewExecutionRepository(newPool(t))

	for i := 1; i <= 2; i++ {
		require.NoError(t, repo.RecordExecution(ctx, &domain.TaskExecution{
			ProjectID:  "p-1",
			TaskID:     "api",
			Role:       "backend",
			Round:      i,
			Attempt:    i,
			Status:     domain.StatusRetrying,
			DurationMs: 5,
			ExecutedAt: time.Now().UTC().Add(time.Duration(i) * time.Second),
		}))
	}

	got, err := repo.ListByProject(ctx, "p-1", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Attempt)
	assert.Equal(t, 2, got[1].Attempt)
}

func TestAgentRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewAgentRepository(newPool(t))

	a := &domain.Agent{
		RoleName: "backend",
		Kind:     domain.AgentKindWebhook,
		Active:   true,
		Config:   map[string]string{"url": "http://hooks.local/backend"},
	}
	require.NoError(t, repo.Create(ctx, a))
	require.NotEmpty(t, a.ID)

	got, err := repo.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "http://hooks.local/backend", got.Config["url"])

	a.Description = "rest api"
	require.NoError(t, repo.Update(ctx, a))

	byRole, err := repo.ListByRole(ctx, "backend")
	require.NoError(t, err)
	require.Len(t, byRole, 1)
	assert.Equal(t, "rest api", byRole[0].Description)

	n, err := repo.SetActive(ctx, []string{a.ID}, false)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	require.NoError(t, repo.Delete(ctx, a.ID))
	_, err = repo.Get(ctx, a.ID)
	var nf *domain.AgentNotFoundError
	assert.True(t, errors.As(err, &nf))
}
