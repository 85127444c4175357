package subscription

import (
	"time"

	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/plan"
	"github.com/xraph/cadence/types"
)

// Status is the lifecycle state of a subscription.
type Status string

const (
	// StatusInactive is the implicit state of a key that never subscribed.
	StatusInactive Status = "inactive"
	// StatusActive is entered by a successful first charge and kept across renewals.
	StatusActive Status = "active"
	// StatusCanceled is terminal.
	StatusCanceled Status = "canceled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusInactive, StatusActive, StatusCanceled:
		return true
	}
	return false
}

// Key is the composite identity of a subscription.
type Key struct {
	Subscriber types.Account `json:"subscriber"`
	PlanID     plan.ID       `json:"plan_id"`
}

// String renders the key as "subscriber/plan".
func (k Key) String() string { return k.Subscriber.String() + "/" + k.PlanID.String() }

// Subscription is one subscriber's enrollment in one plan.
type Subscription struct {
	types.Entity
	ID           id.SubscriptionID `json:"id"`
	Subscriber   types.Account     `json:"subscriber"`
	PlanID       plan.ID           `json:"plan_id"`
	Status       Status            `json:"status"`
	NextDueAt    time.Time         `json:"next_due_at"`
	CyclesPaid   uint64            `json:"cycles_paid"`
	Version      uint64            `json:"version"`
	SubscribedAt *time.Time        `json:"subscribed_at,omitempty"`
	CanceledAt   *time.Time        `json:"canceled_at,omitempty"`
}

// Inactive returns the default record for a key that was never subscribed.
func Inactive(subscriber types.Account, planID plan.ID) *Subscription {
	return &Subscription{
		Subscriber: subscriber,
		PlanID:     planID,
		Status:     StatusInactive,
	}
}

// Key returns the subscription's composite key.
func (s *Subscription) Key() Key {
	return Key{Subscriber: s.Subscriber, PlanID: s.PlanID}
}

// IsActive reports whether the subscription is active. An overdue
// subscription is still active until it is renewed or canceled.
func (s *Subscription) IsActive() bool { return s.Status == StatusActive }

// IsOverdue reports whether an active subscription has a charge collectible at now.
func (s *Subscription) IsOverdue(now time.Time) bool {
	return s.IsActive() && !now.Before(s.NextDueAt)
}

// DueCycles returns how many periods are collectible at now, capped at
// maxCycles: floor((now - NextDueAt) / period) + 1, or zero when now is
// before NextDueAt.
func (s *Subscription) DueCycles(now time.Time, period time.Duration, maxCycles uint32) uint64 {
	if now.Before(s.NextDueAt) || period <= 0 {
		return 0
	}
	elapsed := now.Sub(s.NextDueAt)
	due := uint64(elapsed/period) + 1
	return min(due, uint64(maxCycles))
}

// Clone returns a copy that shares no pointers with s.
func (s *Subscription) Clone() *Subscription {
	c := *s
	if s.SubscribedAt != nil {
		t := *s.SubscribedAt
		c.SubscribedAt = &t
	}
	if s.CanceledAt != nil {
		t := *s.CanceledAt
		c.CanceledAt = &t
	}
	return &c
}

// Renewal reports the outcome of a successful renewal.
type Renewal struct {
	Subscriber     types.Account `json:"subscriber"`
	PlanID         plan.ID       `json:"plan_id"`
	Keeper         types.Account `json:"keeper"`
	Cycles         uint64        `json:"cycles"`
	ProviderAmount types.Amount  `json:"provider_amount"`
	KeeperReward   types.Amount  `json:"keeper_reward"`
	NextDueAt      time.Time     `json:"next_due_at"`
	CyclesPaid     uint64        `json:"cycles_paid"`
}
