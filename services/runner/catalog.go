package runner

import (
	"context"
	"log/slog"
	"time"

	"github.com/ramiqadoumi/planflow/internal/capability"
	"github.com/ramiqadoumi/planflow/internal/domain"
)

// AgentSource lists the agent catalog.
type AgentSource interface {
	List(ctx context.Context) ([]domain.Agent, error)
}

// Catalog keeps a capability registry in sync with the agent catalog.
// When the source is nil or empty the fallback agents are used.
type Catalog struct {
	source   AgentSource
	fallback []domain.Agent
	factory  *capability.Factory
	registry *capability.Registry
	logger   *slog.Logger
}

func NewCatalog(source AgentSource, fallback []domain.Agent, factory *capability.Factory, logger *slog.Logger) *Catalog {
	return &Catalog{
		source:   source,
		fallback: fallback,
		factory:  factory,
		registry: capability.NewRegistry(),
		logger:   logger,
	}
}

// Registry is the live registry; it is updated in place by Refresh.
func (c *Catalog) Registry() *capability.Registry { return c.registry }

// Refresh reloads the agents and syncs the registry.
func (c *Catalog) Refresh(ctx context.Context) error {
	agents := c.fallback
	if c.source != nil {
		listed, err := c.source.List(ctx)
		if err != nil {
			return err
		}
		if len(listed) > 0 {
			agents = listed
		}
	}
	if err := c.factory.Sync(c.registry, agents); err != nil {
		return err
	}
	c.logger.Debug("agent catalog refreshed", slog.Any("roles", c.registry.Roles()))
	return nil
}

// Watch refreshes every interval until ctx is done. Errors keep the previous
// registry.
func (c *Catalog) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil && ctx.Err() == nil {
				c.logger.Error("agent catalog refresh failed", slog.String("error", err.Error()))
			}
		}
	}
}
