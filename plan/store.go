package plan

import (
	"context"

	"github.com/xraph/cadence/types"
)

// Store persists plans. There is intentionally no update or delete: plan
// terms are immutable once created.
type Store interface {
	// CreatePlan assigns the next sequential ID to p and persists it.
	CreatePlan(ctx context.Context, p *Plan) error
	GetPlan(ctx context.Context, planID ID) (*Plan, error)
	ListPlans(ctx context.Context, opts ListOpts) ([]*Plan, error)
}

// ListOpts filters ListPlans. Results are ordered by ID ascending.
type ListOpts struct {
	Provider   types.Account
	Subscriber types.Account
	Limit      int
	Offset     int
}
