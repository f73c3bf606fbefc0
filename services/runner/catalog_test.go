package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramiqadoumi/planflow/internal/capability"
	"github.com/ramiqadoumi/planflow/internal/domain"
)

type fakeSource struct {
	agents []domain.Agent
	err    error
}

func (s *fakeSource) List(context.Context) ([]domain.Agent, error) { return s.agents, s.err }

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestCatalog_UsesSourceThenFallback(t *testing.T) {
	src := &fakeSource{agents: []domain.Agent{{ID: "1", RoleName: "backend", Active: true}}}
	c := NewCatalog(src, capability.DefaultAgents(), &capability.Factory{}, quietLogger())

	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, []string{"backend"}, c.Registry().Roles())

	src.agents = nil
	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, []string{"architecture", "backend", "frontend", "testing"}, c.Registry().Roles())
}

func TestCatalog_SourceErrorKeepsRegistry(t *testing.T) {
	src := &fakeSource{agents: []domain.Agent{{ID: "1", RoleName: "backend", Active: true}}}
	c := NewCatalog(src, nil, &capability.Factory{}, quietLogger())
	require.NoError(t, c.Refresh(context.Background()))

	src.err = errors.New("db down")
	require.Error(t, c.Refresh(context.Background()))
	assert.Equal(t, []string{"backend"}, c.Registry().Roles())
}

func TestCatalog_NilSource(t *testing.T) {
	c := NewCatalog(nil, []domain.Agent{{ID: "1", RoleName: "qa", Active: true}}, &capability.Factory{}, quietLogger())
	require.NoError(t, c.Refresh(context.Background()))

	_, err := c.Registry().Lookup("qa")
	require.NoError(t, err)
}
