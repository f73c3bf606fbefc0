package domain

import (
	"slices"
	"time"
)

// Status represents the states a task can be in.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusRetrying  Status = "RETRYING"
)

// Valid reports whether s is one of the known task statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusRetrying:
		return true
	}
	return false
}

// IsTerminal returns true if no further state transitions are possible within a run.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Waiting is true for tasks that are queued for dispatch. A RETRYING task is
// re-queued and eligible exactly like a PENDING one.
func (s Status) Waiting() bool {
	return s == StatusPending || s == StatusRetrying
}

// Failure records why a task ended up FAILED.
type Failure string

const (
	FailureNone Failure = ""
	// FailureExhausted means the retry budget ran out on operational failures.
	FailureExhausted Failure = "EXHAUSTED"
	// FailureUnrecoverable means retrying could not help (e.g. no capability for the role).
	FailureUnrecoverable Failure = "UNRECOVERABLE"
)

// Task is one unit of work assigned to a role. It is a value: transitions
// return a new Task and never modify the receiver.
type Task struct {
	ID           string    `json:"id"`
	Role         string    `json:"role"`
	Dependencies []string  `json:"dependencies"`
	Status       Status    `json:"status"`
	RetryCount   int       `json:"retry_count"`
	Failure      Failure   `json:"failure,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
	Description  string    `json:"description,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewTask returns a PENDING task with no retries consumed.
func NewTask(id, role string, deps []string, description string, now time.Time) Task {
	return Task{
		ID:           id,
		Role:         role,
		Dependencies: slices.Clone(deps),
		Status:       StatusPending,
		Description:  description,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Start moves the task to RUNNING.
func (t Task) Start(now time.Time) Task {
	t.Status = StatusRunning
	t.UpdatedAt = now
	return t
}

// Complete moves the task to COMPLETED and clears any recorded error.
func (t Task) Complete(now time.Time) Task {
	t.Status = StatusCompleted
	t.Failure = FailureNone
	t.LastError = ""
	t.UpdatedAt = now
	return t
}

// Requeue marks the task RETRYING with retryCount attempts consumed.
func (t Task) Requeue(retryCount int, reason string, now time.Time) Task {
	t.Status = StatusRetrying
	t.RetryCount = retryCount
	t.LastError = reason
	t.UpdatedAt = now
	return t
}

// Fail marks the task terminally FAILED.
func (t Task) Fail(kind Failure, retryCount int, reason string, now time.Time) Task {
	t.Status = StatusFailed
	t.Failure = kind
	t.RetryCount = retryCount
	t.LastError = reason
	t.UpdatedAt = now
	return t
}

// Reset returns the task to PENDING. When clearRetries is set the retry
// budget and failure record are cleared too.
func (t Task) Reset(clearRetries bool, now time.Time) Task {
	t.Status = StatusPending
	if clearRetries {
		t.RetryCount = 0
		t.Failure = FailureNone
		t.LastError = ""
	}
	t.UpdatedAt = now
	return t
}

// clone returns a copy that shares no slices with t.
func (t Task) clone() Task {
	t.Dependencies = slices.Clone(t.Dependencies)
	return t
}

// TaskExecution records a single dispatch attempt of a task. Attempt is the
// 1-based invocation number, or 0 when no capability could be resolved.
type TaskExecution struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"project_id"`
	TaskID     string    `json:"task_id"`
	Role       string    `json:"role"`
	Round      int       `json:"round"`
	Attempt    int       `json:"attempt"`
	Status     Status    `json:"status"`
	DurationMs int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	ExecutedAt time.Time `json:"executed_at"`
}
