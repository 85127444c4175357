package store

import (
	"context"

	"github.com/xraph/cadence/charge"
	"github.com/xraph/cadence/plan"
	"github.com/xraph/cadence/subscription"
)

// Store is the unified storage interface for all Cadence entities.
type Store interface {
	plan.Store
	subscription.Store
	charge.Store

	// Migrate creates or upgrades the schema.
	Migrate(ctx context.Context) error
	// Ping checks connectivity.
	Ping(ctx context.Context) error
	// Close releases resources. Calls after Close fail with cadence.ErrStoreClosed.
	Close() error
}
