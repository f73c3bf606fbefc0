package capability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ramiqadoumi/planflow/internal/domain"
)

// Default working times of the built-in simulated roles.
var defaultDelays = map[string]time.Duration{
	"architecture": 1200 * time.Millisecond,
	"backend":      1000 * time.Millisecond,
	"frontend":     800 * time.Millisecond,
	"testing":      600 * time.Millisecond,
}

// Simulated stands in for a real agent: it waits for a fixed delay and
// succeeds. FailFirst makes the first N invocations of every task fail, which
// exercises the retry path in demos and tests.
type Simulated struct {
	role      string
	delay     time.Duration
	failFirst int

	mu    sync.Mutex
	calls map[string]int
}

// NewSimulated creates a simulated capability for role.
func NewSimulated(role string, delay time.Duration, failFirst int) *Simulated {
	return &Simulated{
		role:      role,
		delay:     delay,
		failFirst: failFirst,
		calls:     make(map[string]int),
	}
}

func (s *Simulated) RoleName() string { return s.role }

func (s *Simulated) Run(ctx context.Context, task domain.Task) Result {
	s.mu.Lock()
	s.calls[task.ID]++
	n := s.calls[task.ID]
	s.mu.Unlock()

	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return Failure(fmt.Errorf("%s interrupted: %w", s.role, ctx.Err()))
		}
	}
	if n <= s.failFirst {
		return Failure(fmt.Errorf("%s: simulated failure %d/%d", s.role, n, s.failFirst))
	}
	return Success()
}

// Calls returns how often task id has been invoked.
func (s *Simulated) Calls(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[id]
}

// DefaultAgents is the catalog used when none is configured: one simulated
// agent per built-in role.
func DefaultAgents() []domain.Agent {
	agents := make([]domain.Agent, 0, len(defaultDelays))
	for _, role := range []string{"architecture", "backend", "frontend", "testing"} {
		agents = append(agents, domain.Agent{
			ID:          role,
			RoleName:    role,
			Kind:        domain.AgentKindSimulated,
			Description: "simulated " + role + " agent",
			Active:      true,
			Config:      map[string]string{"delay": defaultDelays[role].String()},
		})
	}
	return agents
}
