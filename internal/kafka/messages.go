package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ramiqadoumi/planflow/internal/domain"
)

const (
	// TopicCommands carries project commands for the runner, keyed by project id.
	TopicCommands = "projects.commands"
	// TopicEvents carries orchestrator events, keyed by project id.
	TopicEvents = "projects.events"
)

// CommandType is what the runner is asked to do with a project.
type CommandType string

const (
	CommandExecute CommandType = "execute"
	CommandResume  CommandType = "resume"
	CommandRetry   CommandType = "retry"
	CommandCancel  CommandType = "cancel"
)

// Valid reports whether t is a known command.
func (t CommandType) Valid() bool {
	switch t {
	case CommandExecute, CommandResume, CommandRetry, CommandCancel:
		return true
	}
	return false
}

// Command is the message published on TopicCommands.
type Command struct {
	ID        string      `json:"id"`
	Type      CommandType `json:"type"`
	ProjectID string      `json:"project_id"`
	Source    string      `json:"source"`
	IssuedAt  time.Time   `json:"issued_at"`
}

// NewCommand returns a command with a fresh id.
func NewCommand(typ CommandType, projectID, source string) Command {
	return Command{
		ID:        uuid.NewString(),
		Type:      typ,
		ProjectID: projectID,
		Source:    source,
		IssuedAt:  time.Now().UTC(),
	}
}

// DecodeCommand parses and checks a command message.
func DecodeCommand(data []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, fmt.Errorf("decode command: %w", err)
	}
	if !cmd.Type.Valid() {
		return Command{}, fmt.Errorf("decode command: unknown type %q", cmd.Type)
	}
	if cmd.ProjectID == "" {
		return Command{}, fmt.Errorf("decode command: missing project_id")
	}
	return cmd, nil
}

// DecodeEvent parses an event message.
func DecodeEvent(data []byte) (domain.Event, error) {
	var ev domain.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return domain.Event{}, fmt.Errorf("decode event: %w", err)
	}
	return ev, nil
}

// CommandPublisher sends project commands.
type CommandPublisher struct {
	producer Producer
}

func NewCommandPublisher(p Producer) *CommandPublisher {
	return &CommandPublisher{producer: p}
}

// Send publishes cmd keyed by project id, so every command for a project
// lands on the same partition in order.
func (p *CommandPublisher) Send(ctx context.Context, cmd Command) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	return p.producer.Publish(ctx, TopicCommands, cmd.ProjectID, data)
}

// EventPublisher publishes orchestrator events.
type EventPublisher struct {
	producer Producer
}

func NewEventPublisher(p Producer) *EventPublisher {
	return &EventPublisher{producer: p}
}

func (p *EventPublisher) Publish(ctx context.Context, ev domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return p.producer.Publish(ctx, TopicEvents, ev.ProjectID, data)
}
