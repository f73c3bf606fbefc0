package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ramiqadoumi/planflow/internal/domain"
	"github.com/ramiqadoumi/planflow/internal/store"
)

const indexKey = "project:index"

func stateKey(projectID string) string { return "project:state:" + projectID }

// ProjectStore keeps each project's snapshot as a JSON string and indexes the
// ids in a sorted set scored by creation time.
type ProjectStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ store.ProjectStore = (*ProjectStore)(nil)

// NewProjectStore returns a Redis-backed store. A zero ttl keeps snapshots
// until they are deleted.
func NewProjectStore(client *redis.Client, ttl time.Duration) *ProjectStore {
	return &ProjectStore{client: client, ttl: ttl}
}

func (s *ProjectStore) Save(ctx context.Context, st *domain.ExecutionState) error {
	snap := st.Snapshot()
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal project %s: %w", snap.ProjectID, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, stateKey(snap.ProjectID), data, s.ttl)
	pipe.ZAdd(ctx, indexKey, redis.Z{
		Score:  float64(snap.CreatedAt.UnixMilli()),
		Member: snap.ProjectID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis save project %s: %w", snap.ProjectID, err)
	}
	return nil
}

func (s *ProjectStore) Load(ctx context.Context, projectID string) (*domain.ExecutionState, error) {
	data, err := s.client.Get(ctx, stateKey(projectID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, &domain.ProjectNotFoundError{ProjectID: projectID}
		}
		return nil, fmt.Errorf("redis load project %s: %w", projectID, err)
	}
	return decode(data)
}

func (s *ProjectStore) Delete(ctx context.Context, projectID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, stateKey(projectID))
	pipe.ZRem(ctx, indexKey, projectID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis delete project %s: %w", projectID, err)
	}
	return nil
}

func (s *ProjectStore) Exists(ctx context.Context, projectID string) (bool, error) {
	n, err := s.client.Exists(ctx, stateKey(projectID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists project %s: %w", projectID, err)
	}
	return n == 1, nil
}

// List returns the indexed projects, newest first. Index entries whose
// snapshot expired are pruned.
func (s *ProjectStore) List(ctx context.Context) ([]domain.Summary, error) {
	ids, err := s.client.ZRevRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list projects: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = stateKey(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget projects: %w", err)
	}

	out := make([]domain.Summary, 0, len(ids))
	var expired []any
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		st, err := decode([]byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, st.Summary())
	}
	if len(expired) > 0 {
		s.client.ZRem(ctx, indexKey, expired...) //nolint:errcheck
	}
	return out, nil
}

func decode(data []byte) (*domain.ExecutionState, error) {
	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal project state: %w", err)
	}
	return domain.RestoreExecutionState(snap)
}
