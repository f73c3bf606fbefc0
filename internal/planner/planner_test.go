package planner_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramiqadoumi/planflow/internal/domain"
	"github.com/ramiqadoumi/planflow/internal/planner"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func ids(p domain.Plan) []string {
	out := make([]string, 0, len(p.Tasks))
	for _, t := range p.Tasks {
		out = append(out, t.ID)
	}
	return out
}

func TestParseDocument_YAML(t *testing.T) {
	doc := `
title: Shop
description: online shop
tasks:
  - id: design
    role: architecture
  - id: api
    role: backend
    dependencies: [design]
    description: REST API
`
	plan, err := planner.ParseDocument([]byte(doc), "p-1", now)
	require.NoError(t, err)

	assert.Equal(t, "p-1", plan.ProjectID)
	assert.Equal(t, "Shop", plan.Title)
	assert.Equal(t, []string{"design", "api"}, ids(plan))
	assert.Equal(t, []string{"design"}, plan.Tasks[1].Dependencies)
	assert.Equal(t, domain.StatusPending, plan.Tasks[1].Status)
	require.NoError(t, domain.ValidatePlan(plan))
}

func TestParseDocument_JSONInFence(t *testing.T) {
	doc := "Here is the plan:\n```json\n" +
		`{"title":"T","tasks":[{"id":"a","role":"backend","dependencies":[]}]}` +
		"\n```\nGood luck."

	plan, err := planner.ParseDocument([]byte(doc), "p-1", now)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(plan))
}

func TestParseDocument_Errors(t *testing.T) {
	for name, doc := range map[string]string{
		"empty":     "  \n",
		"malformed": "tasks: [ {",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := planner.ParseDocument([]byte(doc), "p-1", now)
			var de *domain.DecompositionError
			require.True(t, errors.As(err, &de), "got %v", err)
		})
	}
}

func TestTemplatePlanner_FourStages(t *testing.T) {
	plan, err := planner.NewTemplatePlanner().Decompose(context.Background(), "Build a shop\nwith payments")
	require.NoError(t, err)

	assert.NotEmpty(t, plan.ProjectID)
	assert.Equal(t, "Build a shop", plan.Title)
	assert.Equal(t, []string{"architecture", "backend", "frontend", "testing"}, ids(plan))
	assert.Equal(t, []string{"backend", "frontend"}, plan.Tasks[3].Dependencies)
	require.NoError(t, domain.ValidatePlan(plan))
}

func TestTemplatePlanner_EmptyRequirement(t *testing.T) {
	_, err := planner.NewTemplatePlanner().Decompose(context.Background(), "   ")
	var de *domain.DecompositionError
	require.True(t, errors.As(err, &de))
}

func TestHTTPPlanner_Decompose(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got = string(b)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"title":"Shop","tasks":[{"id":"a","role":"backend"},{"id":"b","role":"testing","dependencies":["a"]}]}`) //nolint:errcheck
	}))
	defer srv.Close()

	plan, err := planner.NewHTTPPlanner(srv.URL, srv.Client(), nil).Decompose(context.Background(), "a shop")
	require.NoError(t, err)

	assert.JSONEq(t, `{"requirement":"a shop"}`, got)
	assert.Equal(t, []string{"a", "b"}, ids(plan))
	assert.Equal(t, "a shop", plan.Description)
}

func TestHTTPPlanner_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		io.WriteString(w, "tasks:\n  - id: a\n    role: backend\n") //nolint:errcheck
	}))
	defer srv.Close()

	plan, err := planner.NewHTTPPlanner(srv.URL, srv.Client(), nil).Decompose(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Len(t, plan.Tasks, 1)
}

func TestHTTPPlanner_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "bad requirement", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	_, err := planner.NewHTTPPlanner(srv.URL, srv.Client(), nil).Decompose(context.Background(), "x")
	var de *domain.DecompositionError
	require.True(t, errors.As(err, &de))
	assert.True(t, strings.Contains(err.Error(), "422"))
	assert.Equal(t, int32(1), calls.Load())
}
