package capability

import (
	"context"
	"slices"
	"sync"

	"github.com/ramiqadoumi/planflow/internal/domain"
)

// Capability performs the work for one role. Implementations must be safe to
// invoke again for a task that may already have run: a resumed project
// re-dispatches tasks that were in flight when it stopped.
type Capability interface {
	RoleName() string
	Run(ctx context.Context, task domain.Task) Result
}

// Result is the two-case outcome of a capability invocation.
type Result struct {
	reason error
}

// Success reports that the task finished.
func Success() Result { return Result{} }

// Failure reports that the task did not finish. A nil reason is replaced with
// a generic one so that a Failure is never mistaken for a Success.
func Failure(reason error) Result {
	if reason == nil {
		reason = errUnspecified
	}
	return Result{reason: reason}
}

// OK is true for a Success.
func (r Result) OK() bool { return r.reason == nil }

// Err returns the failure reason, or nil for a Success.
func (r Result) Err() error { return r.reason }

// Func adapts a function to the Capability interface.
type Func struct {
	Role string
	Fn   func(ctx context.Context, task domain.Task) Result
}

func (f Func) RoleName() string { return f.Role }

func (f Func) Run(ctx context.Context, task domain.Task) Result { return f.Fn(ctx, task) }

// Registry maps role names to their capabilities.
type Registry struct {
	mu   sync.RWMutex
	caps map[string]Capability
}

// NewRegistry creates a Registry holding caps.
func NewRegistry(caps ...Capability) *Registry {
	r := &Registry{caps: make(map[string]Capability, len(caps))}
	for _, c := range caps {
		r.caps[c.RoleName()] = c
	}
	return r
}

// Register adds or replaces the capability for its role. Safe to call concurrently.
func (r *Registry) Register(c Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.caps[c.RoleName()] = c
}

// Unregister removes the capability for role, if any.
func (r *Registry) Unregister(role string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.caps, role)
}

// Lookup returns the capability for role. Role names match exactly.
// Returns UnknownCapabilityError if none is registered.
func (r *Registry) Lookup(role string) (Capability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.caps[role]
	if !ok {
		return nil, &domain.UnknownCapabilityError{Role: role}
	}
	return c, nil
}

// Roles returns the registered role names, sorted.
func (r *Registry) Roles() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roles := make([]string, 0, len(r.caps))
	for role := range r.caps {
		roles = append(roles, role)
	}
	slices.Sort(roles)
	return roles
}

type projectKey struct{}

// WithProject attaches the id of the project a task belongs to.
func WithProject(ctx context.Context, projectID string) context.Context {
	return context.WithValue(ctx, projectKey{}, projectID)
}

// ProjectFrom returns the project id attached by WithProject.
func ProjectFrom(ctx context.Context) string {
	id, _ := ctx.Value(projectKey{}).(string)
	return id
}
