package domain

import (
	"fmt"
	"strings"
)

// ValidationKind identifies which plan check failed.
type ValidationKind string

const (
	ValidationMissingDependency ValidationKind = "missing_dependency"
	ValidationCycle             ValidationKind = "cycle"
	ValidationDuplicateID       ValidationKind = "duplicate_id"
	ValidationInvalidTask       ValidationKind = "invalid_task"
)

// PlanValidationError is returned when a plan is rejected before execution.
type PlanValidationError struct {
	ProjectID string
	Kind      ValidationKind
	TaskID    string
	// Ref is the unresolved dependency id for missing_dependency.
	Ref string
	// Cycle is one witness path for cycle, first and last element equal.
	Cycle  []string
	Detail string
}

func (e *PlanValidationError) Error() string {
	switch e.Kind {
	case ValidationMissingDependency:
		return fmt.Sprintf("plan %s: task %q depends on unknown task %q", e.ProjectID, e.TaskID, e.Ref)
	case ValidationCycle:
		return fmt.Sprintf("plan %s: dependency cycle %s", e.ProjectID, strings.Join(e.Cycle, " -> "))
	case ValidationDuplicateID:
		return fmt.Sprintf("plan %s: duplicate task id %q", e.ProjectID, e.TaskID)
	default:
		return fmt.Sprintf("plan %s: invalid task %q: %s", e.ProjectID, e.TaskID, e.Detail)
	}
}

// UnknownCapabilityError is returned when no capability is registered for a role.
// Retrying cannot fix it, so it never consumes retry budget.
type UnknownCapabilityError struct {
	Role string
}

func (e *UnknownCapabilityError) Error() string {
	return fmt.Sprintf("no capability registered for role %q", e.Role)
}

// Permanent marks the error as non-retryable for the retry policy.
func (e *UnknownCapabilityError) Permanent() bool { return true }

// TransientExecutionError wraps an operational capability failure.
type TransientExecutionError struct {
	TaskID string
	Role   string
	Reason error
}

func (e *TransientExecutionError) Error() string {
	return fmt.Sprintf("task %s (%s) failed: %v", e.TaskID, e.Role, e.Reason)
}

func (e *TransientExecutionError) Unwrap() error { return e.Reason }

// PersistenceError is returned when the state backend fails a save or load.
type PersistenceError struct {
	ProjectID string
	Op        string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s project state %s: %v", e.Op, e.ProjectID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ProjectNotFoundError is returned when no state exists for a project ID.
type ProjectNotFoundError struct {
	ProjectID string
}

func (e *ProjectNotFoundError) Error() string {
	return fmt.Sprintf("project not found: %s", e.ProjectID)
}

// Permanent stops storage retries: a missing project will not appear by retrying.
func (e *ProjectNotFoundError) Permanent() bool { return true }

// AgentNotFoundError is returned when an agent ID or role is not in the catalog.
type AgentNotFoundError struct {
	Key string
}

func (e *AgentNotFoundError) Error() string {
	return fmt.Sprintf("agent not found: %s", e.Key)
}

// RunCancelledError is returned when a run stops because its context was cancelled.
type RunCancelledError struct {
	ProjectID string
	Round     int
	Err       error
}

func (e *RunCancelledError) Error() string {
	return fmt.Sprintf("project %s cancelled after round %d: %v", e.ProjectID, e.Round, e.Err)
}

func (e *RunCancelledError) Unwrap() error { return e.Err }

// StalledRunError is returned when a non-terminal project has nothing ready to dispatch.
type StalledRunError struct {
	ProjectID string
	Round     int
}

func (e *StalledRunError) Error() string {
	return fmt.Sprintf("project %s stalled in round %d: no task ready and project not terminal", e.ProjectID, e.Round)
}

// DecompositionError is returned when a planner cannot turn a requirement into a plan.
type DecompositionError struct {
	Reason string
	Err    error
}

func (e *DecompositionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decompose requirement: %s: %v", e.Reason, e.Err)
	}
	return "decompose requirement: " + e.Reason
}

func (e *DecompositionError) Unwrap() error { return e.Err }
