package rules

import (
	"context"

	"github.com/google/uuid"
)

// Repository stores DecisionRule versions. Implementations must never delete
// rows; deactivation is a status change.
type Repository interface {
	Insert(ctx context.Context, r *DecisionRule) error
	Update(ctx context.Context, r *DecisionRule) error
	GetByID(ctx context.Context, id uuid.UUID) (*DecisionRule, error)
	GetByCodeVersion(ctx context.Context, moduleCode, ruleCode string, version float64) (*DecisionRule, error)
	// SupersedeActive marks every active version of ruleCode in the module as
	// superseded and returns how many rows changed.
	SupersedeActive(ctx context.Context, moduleCode, ruleCode string) (int, error)
	ListActive(ctx context.Context, moduleCode string) ([]*DecisionRule, error)
	List(ctx context.Context, moduleCode string, activeOnly bool, limit, offset int) ([]*DecisionRule, int, error)
	ListAll(ctx context.Context) ([]*DecisionRule, error)
}
