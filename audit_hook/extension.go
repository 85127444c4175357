// Package audithook bridges Cadence lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import any
// audit backend directly. Callers inject a RecorderFunc adapter at wiring
// time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/cadence/charge"
	"github.com/xraph/cadence/plan"
	"github.com/xraph/cadence/plugin"
	"github.com/xraph/cadence/subscription"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin          = (*Extension)(nil)
	_ plugin.OnPlanCreated   = (*Extension)(nil)
	_ plugin.OnSubscribed    = (*Extension)(nil)
	_ plugin.OnRenewed       = (*Extension)(nil)
	_ plugin.OnCanceled      = (*Extension)(nil)
	_ plugin.OnPaymentFailed = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a backend-neutral audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Cadence lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// OnPlanCreated implements plugin.OnPlanCreated.
func (e *Extension) OnPlanCreated(ctx context.Context, p *plan.Plan) error {
	return e.record(ctx, ActionPlanCreated, SeverityInfo, OutcomeSuccess,
		ResourcePlan, p.ID.String(), CategoryBilling, nil,
		"provider", p.Provider.String(),
		"token", p.Token.String(),
		"amount", p.Amount.String(),
		"period_seconds", p.PeriodSeconds(),
		"reward_bps", p.RewardBps,
	)
}

// OnSubscribed implements plugin.OnSubscribed.
func (e *Extension) OnSubscribed(ctx context.Context, sub *subscription.Subscription, first *charge.Charge) error {
	return e.record(ctx, ActionSubscribed, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, sub.ID.String(), CategorySubscription, nil,
		"subscriber", sub.Subscriber.String(),
		"plan_id", sub.PlanID.String(),
		"amount", first.Amount.String(),
		"next_due_at", sub.NextDueAt,
	)
}

// OnRenewed implements plugin.OnRenewed.
func (e *Extension) OnRenewed(ctx context.Context, sub *subscription.Subscription, r *subscription.Renewal) error {
	return e.record(ctx, ActionSubscriptionRenewed, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, sub.ID.String(), CategoryPayment, nil,
		"subscriber", sub.Subscriber.String(),
		"plan_id", sub.PlanID.String(),
		"keeper", r.Keeper.String(),
		"cycles", r.Cycles,
		"cycles_paid", r.CyclesPaid,
		"provider_amount", r.ProviderAmount.String(),
		"keeper_reward", r.KeeperReward.String(),
	)
}

// OnCanceled implements plugin.OnCanceled.
func (e *Extension) OnCanceled(ctx context.Context, sub *subscription.Subscription) error {
	return e.record(ctx, ActionSubscriptionCanceled, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, sub.ID.String(), CategorySubscription, nil,
		"subscriber", sub.Subscriber.String(),
		"plan_id", sub.PlanID.String(),
		"cycles_paid", sub.CyclesPaid,
	)
}

// OnPaymentFailed implements plugin.OnPaymentFailed.
func (e *Extension) OnPaymentFailed(ctx context.Context, f *plugin.PaymentFailure) error {
	return e.record(ctx, ActionPaymentFailed, SeverityWarning, OutcomeFailure,
		ResourceSubscription, "", CategoryPayment, f.Err,
		"subscriber", f.Subscriber.String(),
		"plan_id", f.PlanID.String(),
		"kind", string(f.Kind),
		"cycles", f.Cycles,
	)
}

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
