package domain

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// EventType names a state change published by the orchestrator.
type EventType string

const (
	EventTaskStarted     EventType = "task.started"
	EventTaskCompleted   EventType = "task.completed"
	EventTaskRetrying    EventType = "task.retrying"
	EventTaskFailed      EventType = "task.failed"
	EventTaskReset       EventType = "task.reset"
	EventRoundPersisted  EventType = "round.persisted"
	EventProjectFinished EventType = "project.finished"
)

// Event is one entry of a project's live update stream.
type Event struct {
	ID            string        `json:"id"`
	Type          EventType     `json:"type"`
	ProjectID     string        `json:"project_id"`
	Round         int           `json:"round"`
	TaskID        string        `json:"task_id,omitempty"`
	Role          string        `json:"role,omitempty"`
	TaskStatus    Status        `json:"task_status,omitempty"`
	RetryCount    int           `json:"retry_count,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	OverallStatus ProjectStatus `json:"overall_status"`
	At            time.Time     `json:"at"`
}

// NewEvent returns an event with a time-sortable id.
func NewEvent(typ EventType, projectID string, round int, overall ProjectStatus, at time.Time) Event {
	return Event{
		ID:            ulid.Make().String(),
		Type:          typ,
		ProjectID:     projectID,
		Round:         round,
		OverallStatus: overall,
		At:            at,
	}
}

// WithTask copies the task fields into the event.
func (e Event) WithTask(t Task) Event {
	e.TaskID = t.ID
	e.Role = t.Role
	e.TaskStatus = t.Status
	e.RetryCount = t.RetryCount
	e.Reason = t.LastError
	return e
}
