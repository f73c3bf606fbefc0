package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ramiqadoumi/planflow/internal/domain"
)

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func TestStatusConstants(t *testing.T) {
	tests := []struct {
		status domain.Status
		want   string
	}{
		{domain.StatusPending, "PENDING"},
		{domain.StatusRunning, "RUNNING"},
		{domain.StatusCompleted, "COMPLETED"},
		{domain.StatusFailed, "FAILED"},
		{domain.StatusRetrying, "RETRYING"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if string(tt.status) != tt.want {
				t.Errorf("Status value = %q, want %q", tt.status, tt.want)
			}
			if !tt.status.Valid() {
				t.Errorf("Valid(%q) = false, want true", tt.status)
			}
		})
	}
	assert.False(t, domain.Status("DONE").Valid())
}

func TestIsTerminal(t *testing.T) {
	for _, s := range []domain.Status{domain.StatusCompleted, domain.StatusFailed} {
		assert.True(t, s.IsTerminal(), "IsTerminal(%q)", s)
	}
	for _, s := range []domain.Status{domain.StatusPending, domain.StatusRunning, domain.StatusRetrying} {
		assert.False(t, s.IsTerminal(), "IsTerminal(%q)", s)
	}
}

func TestWaiting(t *testing.T) {
	assert.True(t, domain.StatusPending.Waiting())
	assert.True(t, domain.StatusRetrying.Waiting())
	assert.False(t, domain.StatusRunning.Waiting())
	assert.False(t, domain.StatusFailed.Waiting())
}

func TestTaskTransitions_ReturnNewValues(t *testing.T) {
	deps := []string{"a"}
	orig := domain.NewTask("b", "backend", deps, "build api", t0)
	deps[0] = "mutated"
	assert.Equal(t, []string{"a"}, orig.Dependencies, "NewTask must copy dependencies")

	later := t0.Add(time.Minute)
	started := orig.Start(later)
	assert.Equal(t, domain.StatusPending, orig.Status, "receiver must not change")
	assert.Equal(t, domain.StatusRunning, started.Status)
	assert.Equal(t, later, started.UpdatedAt)
	assert.Equal(t, t0, started.CreatedAt)

	requeued := started.Requeue(1, "boom", later)
	assert.Equal(t, domain.StatusRetrying, requeued.Status)
	assert.Equal(t, 1, requeued.RetryCount)
	assert.Equal(t, "boom", requeued.LastError)

	done := requeued.Complete(later)
	assert.Equal(t, domain.StatusCompleted, done.Status)
	assert.Empty(t, done.LastError)
	assert.Equal(t, 1, done.RetryCount, "Complete keeps the retry count")

	failed := started.Fail(domain.FailureUnrecoverable, 0, "no capability", later)
	assert.Equal(t, domain.StatusFailed, failed.Status)
	assert.Equal(t, domain.FailureUnrecoverable, failed.Failure)

	reset := failed.Reset(true, later)
	assert.Equal(t, domain.StatusPending, reset.Status)
	assert.Equal(t, domain.FailureNone, reset.Failure)
	assert.Zero(t, reset.RetryCount)

	kept := requeued.Start(later).Reset(false, later)
	assert.Equal(t, 1, kept.RetryCount, "Reset(false) keeps retry budget")
}

func TestPlan_Dependents(t *testing.T) {
	p := domain.NewPlan("p1", "title", "desc", []domain.Task{
		domain.NewTask("a", "backend", nil, "", t0),
		domain.NewTask("b", "frontend", []string{"a"}, "", t0),
		domain.NewTask("c", "backend", []string{"a", "b"}, "", t0),
	}, t0)

	assert.Equal(t, map[string][]string{"a": {"b", "c"}, "b": {"c"}}, p.Dependents())
}
