package planner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ramiqadoumi/planflow/internal/domain"
)

// stage is one step of the fixed delivery template.
type stage struct {
	id, role, verb string
	deps           []string
}

var stages = []stage{
	{id: "architecture", role: "architecture", verb: "Design the architecture for"},
	{id: "backend", role: "backend", verb: "Implement the backend services for", deps: []string{"architecture"}},
	{id: "frontend", role: "frontend", verb: "Build the user interface for", deps: []string{"architecture"}},
	{id: "testing", role: "testing", verb: "Test end to end", deps: []string{"backend", "frontend"}},
}

// TemplatePlanner splits every requirement into the same four-stage plan. It
// is used when no decomposition endpoint is configured.
type TemplatePlanner struct {
	now func() time.Time
}

func NewTemplatePlanner() *TemplatePlanner {
	return &TemplatePlanner{now: func() time.Time { return time.Now().UTC() }}
}

func (p *TemplatePlanner) Decompose(_ context.Context, requirement string) (domain.Plan, error) {
	requirement = strings.TrimSpace(requirement)
	if requirement == "" {
		return domain.Plan{}, &domain.DecompositionError{Reason: "requirement is empty"}
	}

	now := p.now()
	tasks := make([]domain.Task, 0, len(stages))
	for _, s := range stages {
		tasks = append(tasks, domain.NewTask(s.id, s.role, s.deps, fmt.Sprintf("%s: %s", s.verb, requirement), now))
	}
	return domain.NewPlan(uuid.New().String(), title(requirement), requirement, tasks, now), nil
}

// title is the first line of the requirement, cut to 80 runes.
func title(requirement string) string {
	line, _, _ := strings.Cut(requirement, "\n")
	r := []rune(strings.TrimSpace(line))
	if len(r) > 80 {
		return string(r[:77]) + "..."
	}
	return string(r)
}
