package charge

import (
	"context"

	"github.com/xraph/cadence/plan"
	"github.com/xraph/cadence/types"
)

// Store persists charge receipts. Receipts are append-only.
type Store interface {
	RecordCharges(ctx context.Context, charges []*Charge) error
	ListCharges(ctx context.Context, subscriber types.Account, planID plan.ID, opts ListOpts) ([]*Charge, error)
}

// ListOpts controls ListCharges. Results are ordered by cycle ascending.
type ListOpts struct {
	Kind   Kind
	Limit  int
	Offset int
}
