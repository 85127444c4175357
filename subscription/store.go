package subscription

import (
	"context"
	"time"

	"github.com/xraph/cadence/plan"
	"github.com/xraph/cadence/types"
)

// Store persists subscription records.
type Store interface {
	// GetSubscription returns the record for (subscriber, planID) or
	// cadence.ErrSubscriptionNotFound.
	GetSubscription(ctx context.Context, subscriber types.Account, planID plan.ID) (*Subscription, error)

	// SaveSubscription commits s. When prevVersion is zero the record is
	// inserted; otherwise it is updated only if the stored version still
	// equals prevVersion (cadence.ErrConflict if not). The caller bumps
	// s.Version before saving.
	SaveSubscription(ctx context.Context, s *Subscription, prevVersion uint64) error

	ListSubscriptions(ctx context.Context, opts ListOpts) ([]*Subscription, error)
}

// ListOpts filters ListSubscriptions.
//
// When DueBy is set only records whose NextDueAt is at or before it are
// returned, ordered by NextDueAt ascending; otherwise ordering is by
// creation time.
type ListOpts struct {
	Subscriber types.Account
	PlanID     plan.ID
	Status     Status
	DueBy      time.Time
	Limit      int
	Offset     int
}
