package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramiqadoumi/planflow/internal/domain"
	"github.com/ramiqadoumi/planflow/internal/store/memory"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newState(id string, created time.Time) *domain.ExecutionState {
	p := domain.NewPlan(id, "t", "", []domain.Task{
		domain.NewTask("a", "backend", nil, "", created),
		domain.NewTask("b", "frontend", []string{"a"}, "", created),
	}, created)
	return domain.NewExecutionState(p, created)
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	st := newState("p1", t0)

	require.NoError(t, s.Save(ctx, st))
	ok, err := s.Exists(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.Load(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, st.Snapshot(), got.Snapshot())
}

func TestStore_SaveIsolatesLaterMutations(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	st := newState("p1", t0)
	require.NoError(t, s.Save(ctx, st))

	a, _ := st.Task("a")
	require.NoError(t, st.Apply(a.Complete(t0)))

	got, err := s.Load(ctx, "p1")
	require.NoError(t, err)
	a, _ = got.Task("a")
	assert.Equal(t, domain.StatusPending, a.Status)
}

func TestStore_LoadMissing(t *testing.T) {
	_, err := memory.New().Load(context.Background(), "nope")
	var nf *domain.ProjectNotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "nope", nf.ProjectID)
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.Save(ctx, newState("p1", t0)))
	require.NoError(t, s.Delete(ctx, "p1"))
	require.NoError(t, s.Delete(ctx, "p1"), "deleting twice is not an error")

	ok, err := s.Exists(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.Save(ctx, newState("old", t0)))
	require.NoError(t, s.Save(ctx, newState("new", t0.Add(time.Hour))))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].ProjectID)
	assert.Equal(t, "old", list[1].ProjectID)
}

func TestStore_PutRecomputesOnLoad(t *testing.T) {
	s := memory.New()
	s.Put(domain.Snapshot{
		ProjectID:     "p",
		OverallStatus: domain.ProjectStatusFailed,
		Tasks: []domain.Task{
			domain.NewTask("a", "backend", nil, "", t0).Complete(t0),
		},
	})
	st, err := s.Load(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectStatusCompleted, st.OverallStatus())
}
