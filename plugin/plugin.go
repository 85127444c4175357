// Package plugin provides an extensible plugin system for Cadence.
// Plugins can hook into lifecycle events of plans and subscriptions.
package plugin

import (
	"context"

	"github.com/xraph/cadence/charge"
	"github.com/xraph/cadence/plan"
	"github.com/xraph/cadence/subscription"
	"github.com/xraph/cadence/transfer"
	"github.com/xraph/cadence/types"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts. The engine is passed untyped to
// avoid an import cycle; assert it to *cadence.Engine.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Plan hooks
// ──────────────────────────────────────────────────

// OnPlanCreated is called after a plan is registered.
type OnPlanCreated interface {
	Plugin
	OnPlanCreated(ctx context.Context, p *plan.Plan) error
}

// ──────────────────────────────────────────────────
// Subscription hooks
// ──────────────────────────────────────────────────

// OnSubscribed is called after a first charge is collected and the
// subscription committed as active.
type OnSubscribed interface {
	Plugin
	OnSubscribed(ctx context.Context, sub *subscription.Subscription, first *charge.Charge) error
}

// OnRenewed is called after one or more due cycles are collected.
type OnRenewed interface {
	Plugin
	OnRenewed(ctx context.Context, sub *subscription.Subscription, r *subscription.Renewal) error
}

// OnCanceled is called after a subscription is canceled.
type OnCanceled interface {
	Plugin
	OnCanceled(ctx context.Context, sub *subscription.Subscription) error
}

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

// PaymentFailure describes a charge attempt the transfer port rejected.
type PaymentFailure struct {
	Subscriber types.Account
	PlanID     plan.ID
	Kind       charge.Kind
	Cycles     uint64
	Legs       []transfer.Leg
	Err        error
}

// OnPaymentFailed is called when a subscribe or renew transfer fails.
// Subscription state is unchanged when this fires.
type OnPaymentFailed interface {
	Plugin
	OnPaymentFailed(ctx context.Context, f *PaymentFailure) error
}
