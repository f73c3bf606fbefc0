// Package planner turns a natural-language requirement into a project plan.
package planner

import (
	"context"

	"github.com/ramiqadoumi/planflow/internal/domain"
)

// Planner decomposes a requirement into a plan. Failures are reported as
// *domain.DecompositionError. The returned plan is not validated.
type Planner interface {
	Decompose(ctx context.Context, requirement string) (domain.Plan, error)
}
