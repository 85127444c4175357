// Package observability provides a metrics extension for Cadence that records
// lifecycle event counts through a MetricFactory.
package observability

import (
	"context"
	"errors"

	"github.com/xraph/cadence/charge"
	"github.com/xraph/cadence/keeper"
	"github.com/xraph/cadence/plan"
	"github.com/xraph/cadence/plugin"
	"github.com/xraph/cadence/subscription"
	"github.com/xraph/cadence/transfer"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin          = (*MetricsExtension)(nil)
	_ plugin.OnInit          = (*MetricsExtension)(nil)
	_ plugin.OnPlanCreated   = (*MetricsExtension)(nil)
	_ plugin.OnSubscribed    = (*MetricsExtension)(nil)
	_ plugin.OnRenewed       = (*MetricsExtension)(nil)
	_ plugin.OnCanceled      = (*MetricsExtension)(nil)
	_ plugin.OnPaymentFailed = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a Cadence plugin to automatically track billing metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Plan metrics
	PlanCreated Counter

	// Subscription metrics
	Subscribed           Counter
	SubscriptionRenewed  Counter
	SubscriptionCanceled Counter
	CyclesCollected      Counter
	RenewalCycles        Histogram

	// Payment metrics
	PaymentFailed            Counter
	PaymentInsufficientFunds Counter
	PaymentInsufficientAllow Counter

	// Keeper metrics
	KeeperSweeps  Counter
	KeeperRenewed Counter
	KeeperFailed  Counter
	KeeperLatency Histogram
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		PlanCreated: factory.Counter("cadence.plan.created"),

		Subscribed:           factory.Counter("cadence.subscription.created"),
		SubscriptionRenewed:  factory.Counter("cadence.subscription.renewed"),
		SubscriptionCanceled: factory.Counter("cadence.subscription.canceled"),
		CyclesCollected:      factory.Counter("cadence.cycles.collected"),
		RenewalCycles:        factory.Histogram("cadence.renewal.cycles"),

		PaymentFailed:            factory.Counter("cadence.payment.failed"),
		PaymentInsufficientFunds: factory.Counter("cadence.payment.insufficient_balance"),
		PaymentInsufficientAllow: factory.Counter("cadence.payment.insufficient_allowance"),

		KeeperSweeps:  factory.Counter("cadence.keeper.sweeps"),
		KeeperRenewed: factory.Counter("cadence.keeper.renewed"),
		KeeperFailed:  factory.Counter("cadence.keeper.failed"),
		KeeperLatency: factory.Histogram("cadence.keeper.sweep.latency_ms"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// OnPlanCreated implements plugin.OnPlanCreated.
func (m *MetricsExtension) OnPlanCreated(_ context.Context, _ *plan.Plan) error {
	m.PlanCreated.Inc()
	return nil
}

// OnSubscribed implements plugin.OnSubscribed.
func (m *MetricsExtension) OnSubscribed(_ context.Context, _ *subscription.Subscription, _ *charge.Charge) error {
	m.Subscribed.Inc()
	m.CyclesCollected.Inc()
	return nil
}

// OnRenewed implements plugin.OnRenewed.
func (m *MetricsExtension) OnRenewed(_ context.Context, _ *subscription.Subscription, r *subscription.Renewal) error {
	m.SubscriptionRenewed.Inc()
	m.CyclesCollected.Add(float64(r.Cycles))
	m.RenewalCycles.Observe(float64(r.Cycles))
	return nil
}

// OnCanceled implements plugin.OnCanceled.
func (m *MetricsExtension) OnCanceled(_ context.Context, _ *subscription.Subscription) error {
	m.SubscriptionCanceled.Inc()
	return nil
}

// OnPaymentFailed implements plugin.OnPaymentFailed.
func (m *MetricsExtension) OnPaymentFailed(_ context.Context, f *plugin.PaymentFailure) error {
	m.PaymentFailed.Inc()
	switch {
	case errors.Is(f.Err, transfer.ErrInsufficientBalance):
		m.PaymentInsufficientFunds.Inc()
	case errors.Is(f.Err, transfer.ErrInsufficientAllowance):
		m.PaymentInsufficientAllow.Inc()
	}
	return nil
}

// RecordSweep records a keeper sweep. Pass it to keeper.WithSweepHook.
func (m *MetricsExtension) RecordSweep(_ context.Context, sw *keeper.Sweep) {
	m.KeeperSweeps.Inc()
	m.KeeperRenewed.Add(float64(sw.Renewed))
	m.KeeperFailed.Add(float64(sw.Failed))
	m.KeeperLatency.Observe(float64(sw.Elapsed.Milliseconds()))
}
