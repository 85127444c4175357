// Package direct exposes the subscriber/provider pairing model on top of
// the plan-indexed engine.
//
// In the pairing model a subscriber subscribes directly to a provider with
// inline terms. The adapter publishes a plan reserved for that subscriber
// and subscribes to it in one call, so every engine guarantee carries over.
// A pairing is identified by (subscriber, provider); at most one pairing is
// active at a time.
package direct

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/plan"
	"github.com/xraph/cadence/subscription"
	"github.com/xraph/cadence/types"
)

// Engine is the subset of *cadence.Engine the adapter drives.
type Engine interface {
	CreatePlan(ctx context.Context, caller types.Account, terms plan.Terms) (plan.ID, error)
	ListPlans(ctx context.Context, opts plan.ListOpts) ([]*plan.Plan, error)
	Subscribe(ctx context.Context, subscriber types.Account, planID plan.ID) (*subscription.Subscription, error)
	Cancel(ctx context.Context, subscriber types.Account, planID plan.ID) (*subscription.Subscription, error)
	Status(ctx context.Context, subscriber types.Account, planID plan.ID) (subscription.Subscription, error)
}

// Adapter implements the pairing model.
type Adapter struct {
	engine   Engine
	operator types.Account
	logger   *slog.Logger
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) { a.logger = l }
}

// New creates an adapter that publishes pairing plans as operator. The
// engine must list operator in cadence.WithOperators.
func New(engine Engine, operator types.Account, opts ...Option) *Adapter {
	a := &Adapter{
		engine:   engine,
		operator: operator,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// CreateSubscription subscribes subscriber to provider on the given terms
// and collects the first payment. It returns the backing plan id.
func (a *Adapter) CreateSubscription(
	ctx context.Context,
	subscriber, provider types.Account,
	token types.Token,
	amount types.Amount,
	period time.Duration,
) (plan.ID, error) {
	if subscriber.IsZero() || provider.IsZero() {
		return 0, fmt.Errorf("%w: subscriber and provider are required", cadence.ErrInvalidInput)
	}

	plans, err := a.pairingPlans(ctx, subscriber, provider)
	if err != nil {
		return 0, err
	}

	var reusable plan.ID
	for _, p := range plans {
		st, err := a.engine.Status(ctx, subscriber, p.ID)
		if err != nil {
			return 0, err
		}
		switch {
		case st.IsActive():
			return 0, cadence.ErrAlreadySubscribed
		case reusable == 0 && st.Status == subscription.StatusInactive &&
			p.Token == token && p.Amount.Equal(amount) && p.Period == period:
			// A previous attempt published the plan but the first payment failed.
			reusable = p.ID
		}
	}

	planID := reusable
	if planID == 0 {
		planID, err = a.engine.CreatePlan(ctx, a.operator, plan.Terms{
			Provider:   provider,
			Subscriber: subscriber,
			Token:      token,
			Amount:     amount,
			Period:     period,
		})
		if err != nil {
			return 0, err
		}
	}

	if _, err := a.engine.Subscribe(ctx, subscriber, planID); err != nil {
		return 0, err
	}

	a.logger.Debug("pairing created",
		"subscriber", subscriber,
		"provider", provider,
		"plan_id", planID,
	)
	return planID, nil
}

// CancelSubscription cancels the active pairing between subscriber and
// provider.
func (a *Adapter) CancelSubscription(ctx context.Context, subscriber, provider types.Account) error {
	planID, err := a.ActivePlan(ctx, subscriber, provider)
	if err != nil {
		return err
	}
	_, err = a.engine.Cancel(ctx, subscriber, planID)
	return err
}

// IsActive reports whether subscriber has an active pairing with provider.
func (a *Adapter) IsActive(ctx context.Context, subscriber, provider types.Account) (bool, error) {
	_, err := a.ActivePlan(ctx, subscriber, provider)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, cadence.ErrNotActive):
		return false, nil
	}
	return false, err
}

// ActivePlan returns the plan backing the active pairing, or
// cadence.ErrNotActive.
func (a *Adapter) ActivePlan(ctx context.Context, subscriber, provider types.Account) (plan.ID, error) {
	plans, err := a.pairingPlans(ctx, subscriber, provider)
	if err != nil {
		return 0, err
	}
	for _, p := range plans {
		st, err := a.engine.Status(ctx, subscriber, p.ID)
		if err != nil {
			return 0, err
		}
		if st.IsActive() {
			return p.ID, nil
		}
	}
	return 0, cadence.ErrNotActive
}

func (a *Adapter) pairingPlans(ctx context.Context, subscriber, provider types.Account) ([]*plan.Plan, error) {
	return a.engine.ListPlans(ctx, plan.ListOpts{
		Provider:   provider,
		Subscriber: subscriber,
	})
}
