package domain

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"
)

// ProjectStatus is the overall status of a project.
type ProjectStatus string

const (
	// ProjectStatusCreated is reported for a seeded project that has never run.
	// It is never derived from task statuses.
	ProjectStatusCreated   ProjectStatus = "CREATED"
	ProjectStatusRunning   ProjectStatus = "RUNNING"
	ProjectStatusCompleted ProjectStatus = "COMPLETED"
	ProjectStatusFailed    ProjectStatus = "FAILED"
	ProjectStatusBlocked   ProjectStatus = "BLOCKED"
)

// IsTerminal returns true when the scheduler loop must stop.
func (s ProjectStatus) IsTerminal() bool {
	return s == ProjectStatusCompleted || s == ProjectStatusFailed || s == ProjectStatusBlocked
}

// DeriveStatus computes the overall project status from per-task statuses:
//
//	COMPLETED  every task is COMPLETED (vacuously true for no tasks)
//	RUNNING    some task is RUNNING, or is waiting with every dependency COMPLETED
//	FAILED     some task FAILED after exhausting its retry budget
//	BLOCKED    some task is still waiting but can never become ready
//	FAILED     otherwise: only COMPLETED tasks and non-retryable failures remain
func DeriveStatus(tasks []Task) ProjectStatus {
	status := make(map[string]Status, len(tasks))
	for _, t := range tasks {
		status[t.ID] = t.Status
	}

	allCompleted := true
	progress := false
	exhausted := false
	stuck := false
	for _, t := range tasks {
		switch {
		case t.Status == StatusCompleted:
			continue
		case t.Status == StatusRunning:
			progress = true
		case t.Status.Waiting():
			if depsCompleted(t, status) {
				progress = true
			} else {
				stuck = true
			}
		case t.Status == StatusFailed:
			if t.Failure != FailureUnrecoverable {
				exhausted = true
			}
		}
		allCompleted = false
	}

	switch {
	case allCompleted:
		return ProjectStatusCompleted
	case progress:
		return ProjectStatusRunning
	case exhausted:
		return ProjectStatusFailed
	case stuck:
		return ProjectStatusBlocked
	default:
		return ProjectStatusFailed
	}
}

func depsCompleted(t Task, status map[string]Status) bool {
	for _, dep := range t.Dependencies {
		if s, ok := status[dep]; !ok || s != StatusCompleted {
			return false
		}
	}
	return true
}

// ExecutionState is the mutable, persistable record of one project's run.
// All methods are safe for concurrent use. The overall status is recomputed
// inside every mutation, before the lock is released.
type ExecutionState struct {
	mu          sync.RWMutex
	projectID   string
	title       string
	description string
	order       []string
	tasks       map[string]Task
	retries     map[string]int
	status      ProjectStatus
	round       int
	createdAt   time.Time
	lastUpdated time.Time
}

// NewExecutionState seeds a state from a validated plan: every task PENDING
// with no retries consumed.
func NewExecutionState(p Plan, now time.Time) *ExecutionState {
	s := &ExecutionState{
		projectID:   p.ProjectID,
		title:       p.Title,
		description: p.Description,
		order:       make([]string, 0, len(p.Tasks)),
		tasks:       make(map[string]Task, len(p.Tasks)),
		retries:     make(map[string]int, len(p.Tasks)),
		createdAt:   p.CreatedAt,
		lastUpdated: now,
	}
	if s.createdAt.IsZero() {
		s.createdAt = now
	}
	for _, t := range p.Tasks {
		t = t.clone().Reset(true, now)
		s.order = append(s.order, t.ID)
		s.tasks[t.ID] = t
		s.retries[t.ID] = 0
	}
	s.recompute()
	return s
}

// Snapshot is the serialisable form of an ExecutionState.
type Snapshot struct {
	ProjectID     string         `json:"project_id"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	OverallStatus ProjectStatus  `json:"overall_status"`
	Round         int            `json:"round"`
	Tasks         []Task         `json:"tasks"`
	RetryCounts   map[string]int `json:"retry_counts"`
	CreatedAt     time.Time      `json:"created_at"`
	LastUpdated   time.Time      `json:"last_updated"`
}

// RestoreExecutionState rebuilds a state from a snapshot. The persisted
// overall status is ignored and derived again from the tasks.
func RestoreExecutionState(snap Snapshot) (*ExecutionState, error) {
	s := &ExecutionState{
		projectID:   snap.ProjectID,
		title:       snap.Title,
		description: snap.Description,
		order:       make([]string, 0, len(snap.Tasks)),
		tasks:       make(map[string]Task, len(snap.Tasks)),
		retries:     make(map[string]int, len(snap.Tasks)),
		round:       snap.Round,
		createdAt:   snap.CreatedAt,
		lastUpdated: snap.LastUpdated,
	}
	for _, t := range snap.Tasks {
		if !t.Status.Valid() {
			return nil, fmt.Errorf("restore %s: task %q has unknown status %q", snap.ProjectID, t.ID, t.Status)
		}
		if _, dup := s.tasks[t.ID]; dup {
			return nil, fmt.Errorf("restore %s: duplicate task %q", snap.ProjectID, t.ID)
		}
		if n, ok := snap.RetryCounts[t.ID]; ok && n > t.RetryCount {
			t.RetryCount = n
		}
		s.order = append(s.order, t.ID)
		s.tasks[t.ID] = t.clone()
		s.retries[t.ID] = t.RetryCount
	}
	s.recompute()
	return s, nil
}

// Snapshot returns a deep copy suitable for persistence.
func (s *ExecutionState) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		ProjectID:     s.projectID,
		Title:         s.title,
		Description:   s.description,
		OverallStatus: s.status,
		Round:         s.round,
		Tasks:         make([]Task, 0, len(s.order)),
		RetryCounts:   make(map[string]int, len(s.retries)),
		CreatedAt:     s.createdAt,
		LastUpdated:   s.lastUpdated,
	}
	for _, id := range s.order {
		snap.Tasks = append(snap.Tasks, s.tasks[id].clone())
	}
	for id, n := range s.retries {
		snap.RetryCounts[id] = n
	}
	return snap
}

func (s *ExecutionState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Snapshot())
}

func (s *ExecutionState) UnmarshalJSON(data []byte) error {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	restored, err := RestoreExecutionState(snap)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projectID = restored.projectID
	s.title = restored.title
	s.description = restored.description
	s.order = restored.order
	s.tasks = restored.tasks
	s.retries = restored.retries
	s.status = restored.status
	s.round = restored.round
	s.createdAt = restored.createdAt
	s.lastUpdated = restored.lastUpdated
	return nil
}

func (s *ExecutionState) ProjectID() string { return s.projectID }

func (s *ExecutionState) Title() string { return s.title }

func (s *ExecutionState) Description() string { return s.description }

func (s *ExecutionState) CreatedAt() time.Time { return s.createdAt }

// OverallStatus returns the derived project status.
func (s *ExecutionState) OverallStatus() ProjectStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *ExecutionState) LastUpdated() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdated
}

// Round returns the number of scheduler rounds started for this project.
func (s *ExecutionState) Round() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.round
}

func (s *ExecutionState) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Task returns the current snapshot of a task.
func (s *ExecutionState) Task(id string) (Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	return t.clone(), ok
}

// Tasks returns every task in plan order.
func (s *ExecutionState) Tasks() []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Task, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.tasks[id].clone())
	}
	return out
}

// RetryCount returns the retry attempts consumed by a task.
func (s *ExecutionState) RetryCount(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.retries[id]
}

// Apply replaces a task snapshot wholesale and recomputes the overall status.
func (s *ExecutionState) Apply(t Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[t.ID]; !ok {
		return fmt.Errorf("project %s: apply unknown task %q", s.projectID, t.ID)
	}
	s.put(t)
	s.recompute()
	return nil
}

// ReadyTasks returns, in plan order, the waiting tasks whose dependencies are
// all COMPLETED.
func (s *ExecutionState) ReadyTasks() []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := make(map[string]Status, len(s.tasks))
	for id, t := range s.tasks {
		status[id] = t.Status
	}
	var ready []Task
	for _, id := range s.order {
		t := s.tasks[id]
		if t.Status.Waiting() && depsCompleted(t, status) {
			ready = append(ready, t.clone())
		}
	}
	return ready
}

// BeginRound increments and returns the round counter.
func (s *ExecutionState) BeginRound(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.round++
	s.lastUpdated = now
	return s.round
}

// ResetRunning returns every RUNNING task to PENDING, keeping its retry
// count, and reports the ids that were reset. Used when a run is resumed:
// progress inside a capability invocation is never persisted.
func (s *ExecutionState) ResetRunning(now time.Time) []string {
	return s.resetWhere(func(t Task) bool { return t.Status == StatusRunning }, false, now)
}

// ResetFailed returns every terminally FAILED task to PENDING with a fresh
// retry budget and reports the ids that were reset.
func (s *ExecutionState) ResetFailed(now time.Time) []string {
	return s.resetWhere(func(t Task) bool { return t.Status == StatusFailed }, true, now)
}

func (s *ExecutionState) resetWhere(match func(Task) bool, clearRetries bool, now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, id := range s.order {
		t := s.tasks[id]
		if !match(t) {
			continue
		}
		s.put(t.Reset(clearRetries, now))
		ids = append(ids, id)
	}
	if len(ids) > 0 {
		s.recompute()
	}
	return ids
}

// Plan reconstructs the plan equivalent to this state.
func (s *ExecutionState) Plan() Plan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tasks := make([]Task, 0, len(s.order))
	for _, id := range s.order {
		tasks = append(tasks, s.tasks[id].clone())
	}
	return Plan{
		ProjectID:   s.projectID,
		Title:       s.title,
		Description: s.description,
		Tasks:       tasks,
		CreatedAt:   s.createdAt,
		UpdatedAt:   s.lastUpdated,
	}
}

// put stores t and keeps the retry map consistent. Caller holds the write lock.
func (s *ExecutionState) put(t Task) {
	s.tasks[t.ID] = t.clone()
	s.retries[t.ID] = t.RetryCount
	if t.UpdatedAt.After(s.lastUpdated) {
		s.lastUpdated = t.UpdatedAt
	}
}

// recompute derives the overall status. Caller holds the write lock.
func (s *ExecutionState) recompute() {
	tasks := make([]Task, 0, len(s.order))
	for _, id := range s.order {
		tasks = append(tasks, s.tasks[id])
	}
	s.status = DeriveStatus(tasks)
}

// TaskSummary is the per-task view exposed to delivery layers. Dependents
// lists the tasks that directly wait on this one.
type TaskSummary struct {
	ID           string   `json:"id"`
	Role         string   `json:"role"`
	Dependencies []string `json:"dependencies"`
	Dependents   []string `json:"dependents,omitempty"`
	Status       Status   `json:"status"`
	RetryCount   int      `json:"retry_count"`
	Description  string   `json:"description,omitempty"`
	Failure      Failure  `json:"failure,omitempty"`
	LastError    string   `json:"last_error,omitempty"`
}

// Summary is the read-only state surface consumed by delivery layers.
type Summary struct {
	ProjectID     string        `json:"project_id"`
	Title         string        `json:"title"`
	Description   string        `json:"description"`
	OverallStatus ProjectStatus `json:"overall_status"`
	Round         int           `json:"round"`
	CreatedAt     time.Time     `json:"created_at"`
	LastUpdated   time.Time     `json:"last_updated"`
	Tasks         []TaskSummary `json:"tasks"`
}

// Counts aggregates task statuses.
type Counts struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Retrying  int `json:"retrying"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Summary returns the delivery view of the state.
func (s *ExecutionState) Summary() Summary {
	snap := s.Snapshot()
	sum := Summary{
		ProjectID:     snap.ProjectID,
		Title:         snap.Title,
		Description:   snap.Description,
		OverallStatus: snap.OverallStatus,
		Round:         snap.Round,
		CreatedAt:     snap.CreatedAt,
		LastUpdated:   snap.LastUpdated,
		Tasks:         make([]TaskSummary, 0, len(snap.Tasks)),
	}
	// A project that never ran is reported as CREATED.
	if snap.Round == 0 && sum.OverallStatus == ProjectStatusRunning {
		sum.OverallStatus = ProjectStatusCreated
	}
	dependents := Plan{Tasks: snap.Tasks}.Dependents()
	for _, t := range snap.Tasks {
		sum.Tasks = append(sum.Tasks, TaskSummary{
			ID:           t.ID,
			Role:         t.Role,
			Dependencies: slices.Clone(t.Dependencies),
			Dependents:   dependents[t.ID],
			Status:       t.Status,
			RetryCount:   t.RetryCount,
			Description:  t.Description,
			Failure:      t.Failure,
			LastError:    t.LastError,
		})
	}
	return sum
}

// Counts tallies the per-task statuses of the summary.
func (s Summary) Counts() Counts {
	c := Counts{Total: len(s.Tasks)}
	for _, t := range s.Tasks {
		switch t.Status {
		case StatusPending:
			c.Pending++
		case StatusRunning:
			c.Running++
		case StatusRetrying:
			c.Retrying++
		case StatusCompleted:
			c.Completed++
		case StatusFailed:
			c.Failed++
		}
	}
	return c
}
