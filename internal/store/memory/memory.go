// Package memory is an in-process Store used by tests and local runs.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/ramiqadoumi/planflow/internal/domain"
	"github.com/ramiqadoumi/planflow/internal/store"
)

// Store keeps snapshots in a map. Saved states are copied, so later
// mutations of the caller's ExecutionState are not visible until saved again.
type Store struct {
	mu    sync.RWMutex
	snaps map[string]domain.Snapshot
}

var _ store.ProjectStore = (*Store)(nil)

func New() *Store {
	return &Store{snaps: make(map[string]domain.Snapshot)}
}

func (s *Store) Save(_ context.Context, st *domain.ExecutionState) error {
	snap := st.Snapshot()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[snap.ProjectID] = snap
	return nil
}

// Put stores a raw snapshot, bypassing the orchestrator. Used to seed
// states that a crashed run would have left behind.
func (s *Store) Put(snap domain.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[snap.ProjectID] = snap
}

func (s *Store) Load(_ context.Context, projectID string) (*domain.ExecutionState, error) {
	s.mu.RLock()
	snap, ok := s.snaps[projectID]
	s.mu.RUnlock()
	if !ok {
		return nil, &domain.ProjectNotFoundError{ProjectID: projectID}
	}
	return domain.RestoreExecutionState(snap)
}

func (s *Store) Delete(_ context.Context, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snaps, projectID)
	return nil
}

func (s *Store) Exists(_ context.Context, projectID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.snaps[projectID]
	return ok, nil
}

// List returns the summaries of all projects, newest first.
func (s *Store) List(ctx context.Context) ([]domain.Summary, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.snaps))
	for id := range s.snaps {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	out := make([]domain.Summary, 0, len(ids))
	for _, id := range ids {
		st, err := s.Load(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, st.Summary())
	}
	slices.SortFunc(out, func(a, b domain.Summary) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ProjectID, b.ProjectID)
	})
	return out, nil
}
