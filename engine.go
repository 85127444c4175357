package cadence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/xraph/cadence/charge"
	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/plan"
	"github.com/xraph/cadence/plugin"
	"github.com/xraph/cadence/store"
	"github.com/xraph/cadence/subscription"
	"github.com/xraph/cadence/transfer"
	"github.com/xraph/cadence/types"
)

// Engine is the subscription engine: plan registry, subscription ledger and
// renewal state machine over a Store and a transfer Port.
//
// Every public method runs under one engine-wide lock, so operations are
// totally ordered and the clock is read once per operation.
type Engine struct {
	mu        sync.Mutex
	store     store.Store
	port      transfer.Port
	plugins   *plugin.Registry
	logger    *slog.Logger
	clock     clock.PassiveClock
	operators map[types.Account]struct{}

	migrateOnStart bool
}

// New creates a new Engine.
func New(s store.Store, port transfer.Port, opts ...Option) *Engine {
	e := &Engine{
		store:          s,
		port:           port,
		plugins:        plugin.NewRegistry(),
		logger:         slog.Default(),
		clock:          clock.RealClock{},
		operators:      make(map[types.Account]struct{}),
		migrateOnStart: true,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithPluginTimeout bounds every plugin hook call.
func WithPluginTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.plugins.WithTimeout(d)
	}
}

// WithClock sets the time source. Tests pass a fake clock.
func WithClock(c clock.PassiveClock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithOperators allows the given accounts to publish plans on behalf of
// other providers.
func WithOperators(accounts ...types.Account) Option {
	return func(e *Engine) {
		for _, a := range accounts {
			e.operators[a] = struct{}{}
		}
	}
}

// WithMigrateOnStart controls whether Start migrates the store.
func WithMigrateOnStart(enabled bool) Option {
	return func(e *Engine) {
		e.migrateOnStart = enabled
	}
}

// Start migrates the store and initializes plugins.
func (e *Engine) Start(ctx context.Context) error {
	if e.migrateOnStart {
		if err := e.store.Migrate(ctx); err != nil {
			return fmt.Errorf("cadence: migrate: %w", err)
		}
	}

	e.plugins.EmitInit(ctx, e)

	e.logger.Info("cadence started",
		"plugins", e.plugins.Count(),
		"operators", len(e.operators),
	)

	return nil
}

// Stop notifies plugins and closes the store.
func (e *Engine) Stop(ctx context.Context) error {
	e.plugins.EmitShutdown(ctx)
	return e.store.Close()
}

// Store returns the underlying store.
func (e *Engine) Store() store.Store { return e.store }

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Logger returns the engine logger.
func (e *Engine) Logger() *slog.Logger { return e.logger }

// Now returns the engine's current time, truncated to whole seconds.
func (e *Engine) Now() time.Time {
	return e.clock.Now().UTC().Truncate(time.Second)
}

// exclusive runs fn under the engine lock. Hooks queued by fn fire after
// the lock is released so plugins may call back into the engine.
func (e *Engine) exclusive(fn func(queue func(func())) error) error {
	var hooks []func()

	err := func() error {
		e.mu.Lock()
		defer e.mu.Unlock()
		return fn(func(h func()) { hooks = append(hooks, h) })
	}()

	for _, h := range hooks {
		h()
	}
	return err
}

// ──────────────────────────────────────────────────
// Plan Registry
// ──────────────────────────────────────────────────

// CreatePlan publishes a plan and returns its sequential id. The provider
// defaults to caller; naming a different provider requires caller to be an
// operator.
func (e *Engine) CreatePlan(ctx context.Context, caller types.Account, terms plan.Terms) (plan.ID, error) {
	if caller.IsZero() {
		return 0, fmt.Errorf("%w: caller is empty", ErrInvalidInput)
	}
	if err := terms.Validate(); err != nil {
		return 0, err
	}

	provider := terms.Provider
	if provider.IsZero() {
		provider = caller
	} else if provider != caller && !e.isOperator(caller) {
		return 0, fmt.Errorf("%w: %s may not publish plans for %s", ErrUnauthorized, caller, provider)
	}

	var created *plan.Plan
	err := e.exclusive(func(queue func(func())) error {
		p := &plan.Plan{
			Entity:     types.NewEntity(e.Now()),
			Provider:   provider,
			Subscriber: terms.Subscriber,
			Token:      terms.Token,
			Amount:     terms.Amount,
			Period:     terms.Period,
			RewardBps:  terms.RewardBps,
			Metadata:   terms.Metadata,
		}
		p = p.Clone()

		if err := e.store.CreatePlan(ctx, p); err != nil {
			return err
		}
		created = p

		e.logger.Info("plan created",
			"plan_id", p.ID,
			"provider", p.Provider,
			"token", p.Token,
			"amount", p.Amount,
			"period", p.Period,
			"reward_bps", p.RewardBps,
		)
		queue(func() { e.plugins.EmitPlanCreated(ctx, created.Clone()) })
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created.ID, nil
}

// GetPlan retrieves a plan by id.
func (e *Engine) GetPlan(ctx context.Context, planID plan.ID) (*plan.Plan, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.store.GetPlan(ctx, planID)
}

// ListPlans lists plans ordered by id.
func (e *Engine) ListPlans(ctx context.Context, opts plan.ListOpts) ([]*plan.Plan, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.store.ListPlans(ctx, opts)
}

func (e *Engine) isOperator(a types.Account) bool {
	_, ok := e.operators[a]
	return ok
}

// ──────────────────────────────────────────────────
// Renewal Engine
// ──────────────────────────────────────────────────

// Subscribe enrolls subscriber in a plan and collects the first period's
// payment. The subscription is committed only if the payment lands.
func (e *Engine) Subscribe(ctx context.Context, subscriber types.Account, planID plan.ID) (*subscription.Subscription, error) {
	if subscriber.IsZero() {
		return nil, fmt.Errorf("%w: subscriber is empty", ErrInvalidInput)
	}

	var result *subscription.Subscription
	err := e.exclusive(func(queue func(func())) error {
		now := e.Now()

		p, err := e.store.GetPlan(ctx, planID)
		if err != nil {
			return err
		}
		if !p.Admits(subscriber) {
			return fmt.Errorf("%w: plan %s is reserved for another subscriber", ErrUnauthorized, planID)
		}

		cur, err := e.load(ctx, subscriber, planID)
		if err != nil {
			return err
		}
		switch cur.Status {
		case subscription.StatusActive:
			return ErrAlreadySubscribed
		case subscription.StatusCanceled:
			return ErrAlreadyTerminal
		}

		legs := appendLeg(nil, p.Token, subscriber, p.Provider, p.Amount)
		if err := e.collect(ctx, queue, subscriber, planID, charge.KindInitial, 1, legs); err != nil {
			return err
		}

		next := cur.Clone()
		next.Entity = types.NewEntity(now)
		next.ID = id.NewSubscriptionID()
		next.Status = subscription.StatusActive
		next.NextDueAt = now.Add(p.Period)
		next.CyclesPaid = 1
		next.Version = cur.Version + 1
		next.SubscribedAt = &now

		if err := e.commit(ctx, next, cur.Version, legs); err != nil {
			return err
		}

		first := &charge.Charge{
			ID:             id.NewChargeID(),
			Subscriber:     subscriber,
			PlanID:         planID,
			Cycle:          1,
			Kind:           charge.KindInitial,
			Token:          p.Token,
			Amount:         p.Amount,
			ProviderAmount: p.Amount,
			PeriodStart:    now,
			ChargedAt:      now,
		}
		e.recordCharges(ctx, first)

		e.logger.Info("subscribed",
			"subscription_id", next.ID,
			"subscriber", subscriber,
			"plan_id", planID,
			"amount", p.Amount,
			"next_due_at", next.NextDueAt,
		)

		result = next
		snapshot := next.Clone()
		queue(func() { e.plugins.EmitSubscribed(ctx, snapshot, first) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Renew collects every due cycle of an active subscription, up to
// maxCycles, in one atomic transfer. Each cycle pays the plan's reward
// share to keeper and the remainder to the provider.
//
// Renew is not idempotent: a repeated call either fails with ErrNotYetDue
// or collects cycles that have since come due.
func (e *Engine) Renew(ctx context.Context, keeper types.Account, planID plan.ID, subscriber types.Account, maxCycles uint32) (*subscription.Renewal, error) {
	if maxCycles == 0 {
		return nil, ErrInvalidCycles
	}
	if keeper.IsZero() || subscriber.IsZero() {
		return nil, fmt.Errorf("%w: keeper and subscriber are required", ErrInvalidInput)
	}

	var result *subscription.Renewal
	err := e.exclusive(func(queue func(func())) error {
		now := e.Now()

		p, err := e.store.GetPlan(ctx, planID)
		if err != nil {
			return err
		}

		cur, err := e.load(ctx, subscriber, planID)
		if err != nil {
			return err
		}
		if !cur.IsActive() {
			return ErrNotActive
		}
		if now.Before(cur.NextDueAt) {
			return fmt.Errorf("%w: next payment at %s", ErrNotYetDue, cur.NextDueAt.Format(time.RFC3339))
		}

		cycles := cur.DueCycles(now, p.Period, maxCycles)
		reward, share := p.Split()

		legs := make([]transfer.Leg, 0, 2*cycles)
		for range cycles {
			legs = appendLeg(legs, p.Token, subscriber, p.Provider, share)
			legs = appendLeg(legs, p.Token, subscriber, keeper, reward)
		}
		if err := e.collect(ctx, queue, subscriber, planID, charge.KindRenewal, cycles, legs); err != nil {
			return err
		}

		next := cur.Clone()
		next.Touch(now)
		next.NextDueAt = cur.NextDueAt.Add(time.Duration(cycles) * p.Period)
		next.CyclesPaid = cur.CyclesPaid + cycles
		next.Version = cur.Version + 1

		if err := e.commit(ctx, next, cur.Version, legs); err != nil {
			return err
		}

		receipts := make([]*charge.Charge, 0, cycles)
		for i := range cycles {
			receipts = append(receipts, &charge.Charge{
				ID:             id.NewChargeID(),
				Subscriber:     subscriber,
				PlanID:         planID,
				Cycle:          cur.CyclesPaid + i + 1,
				Kind:           charge.KindRenewal,
				Token:          p.Token,
				Amount:         p.Amount,
				ProviderAmount: share,
				KeeperReward:   reward,
				Keeper:         keeper,
				PeriodStart:    cur.NextDueAt.Add(time.Duration(i) * p.Period),
				ChargedAt:      now,
			})
		}
		e.recordCharges(ctx, receipts...)

		result = &subscription.Renewal{
			Subscriber:     subscriber,
			PlanID:         planID,
			Keeper:         keeper,
			Cycles:         cycles,
			ProviderAmount: share.Mul(cycles),
			KeeperReward:   reward.Mul(cycles),
			NextDueAt:      next.NextDueAt,
			CyclesPaid:     next.CyclesPaid,
		}

		e.logger.Info("subscription renewed",
			"subscriber", subscriber,
			"plan_id", planID,
			"keeper", keeper,
			"cycles", cycles,
			"cycles_paid", next.CyclesPaid,
			"next_due_at", next.NextDueAt,
		)

		snapshot, rn := next.Clone(), *result
		queue(func() { e.plugins.EmitRenewed(ctx, snapshot, &rn) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Cancel ends an active subscription immediately. No payment is taken and
// no unused time is refunded. Cancellation is permanent for the key.
func (e *Engine) Cancel(ctx context.Context, subscriber types.Account, planID plan.ID) (*subscription.Subscription, error) {
	var result *subscription.Subscription
	err := e.exclusive(func(queue func(func())) error {
		now := e.Now()

		if _, err := e.store.GetPlan(ctx, planID); err != nil {
			return err
		}

		cur, err := e.load(ctx, subscriber, planID)
		if err != nil {
			return err
		}
		switch cur.Status {
		case subscription.StatusInactive:
			return ErrNotActive
		case subscription.StatusCanceled:
			return ErrAlreadyTerminal
		}

		next := cur.Clone()
		next.Touch(now)
		next.Status = subscription.StatusCanceled
		next.CanceledAt = &now
		next.Version = cur.Version + 1

		if err := e.commit(ctx, next, cur.Version, nil); err != nil {
			return err
		}

		e.logger.Info("subscription canceled",
			"subscriber", subscriber,
			"plan_id", planID,
			"cycles_paid", next.CyclesPaid,
		)

		result = next
		snapshot := next.Clone()
		queue(func() { e.plugins.EmitCanceled(ctx, snapshot) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// Query Surface
// ──────────────────────────────────────────────────

// Status returns the subscription for (subscriber, planID). A key that was
// never subscribed reads as inactive with zero values. It fails only for an
// unknown plan.
func (e *Engine) Status(ctx context.Context, subscriber types.Account, planID plan.ID) (subscription.Subscription, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.store.GetPlan(ctx, planID); err != nil {
		return subscription.Subscription{}, err
	}
	sub, err := e.load(ctx, subscriber, planID)
	if err != nil {
		return subscription.Subscription{}, err
	}
	return *sub, nil
}

// IsActive reports whether the subscription is active, overdue or not.
func (e *Engine) IsActive(ctx context.Context, subscriber types.Account, planID plan.ID) (bool, error) {
	sub, err := e.Status(ctx, subscriber, planID)
	if err != nil {
		return false, err
	}
	return sub.IsActive(), nil
}

// ListDue returns active subscriptions with a collectible payment, oldest
// due first. A non-positive limit returns all of them.
func (e *Engine) ListDue(ctx context.Context, limit int) ([]*subscription.Subscription, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.store.ListSubscriptions(ctx, subscription.ListOpts{
		Status: subscription.StatusActive,
		DueBy:  e.Now(),
		Limit:  limit,
	})
}

// ListSubscriptions lists stored subscriptions.
func (e *Engine) ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.store.ListSubscriptions(ctx, opts)
}

// Charges returns the receipts collected for (subscriber, planID).
func (e *Engine) Charges(ctx context.Context, subscriber types.Account, planID plan.ID, opts charge.ListOpts) ([]*charge.Charge, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.store.GetPlan(ctx, planID); err != nil {
		return nil, err
	}
	return e.store.ListCharges(ctx, subscriber, planID, opts)
}

// ──────────────────────────────────────────────────
// Ledger helpers
// ──────────────────────────────────────────────────

// load reads the record for a key, defaulting to inactive.
func (e *Engine) load(ctx context.Context, subscriber types.Account, planID plan.ID) (*subscription.Subscription, error) {
	sub, err := e.store.GetSubscription(ctx, subscriber, planID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		return subscription.Inactive(subscriber, planID), nil
	}
	return sub, err
}

// collect submits legs to the port as one atomic transfer.
func (e *Engine) collect(ctx context.Context, queue func(func()), subscriber types.Account, planID plan.ID, kind charge.Kind, cycles uint64, legs []transfer.Leg) error {
	if len(legs) == 0 {
		return nil
	}

	if err := e.port.Transfer(ctx, legs...); err != nil {
		e.logger.Warn("payment failed",
			"subscriber", subscriber,
			"plan_id", planID,
			"kind", kind,
			"cycles", cycles,
			"error", err,
		)
		failure := &plugin.PaymentFailure{
			Subscriber: subscriber,
			PlanID:     planID,
			Kind:       kind,
			Cycles:     cycles,
			Legs:       legs,
			Err:        err,
		}
		queue(func() { e.plugins.EmitPaymentFailed(ctx, failure) })
		return fmt.Errorf("%w: %w", ErrPaymentFailed, err)
	}
	return nil
}

// commit saves sub. When legs were already transferred a failure is
// reported as ErrCommitFailed and the legs are logged for reconciliation.
func (e *Engine) commit(ctx context.Context, sub *subscription.Subscription, prevVersion uint64, legs []transfer.Leg) error {
	err := e.store.SaveSubscription(ctx, sub, prevVersion)
	if err == nil || len(legs) == 0 {
		return err
	}

	e.logger.Error("subscription commit failed after transfer",
		"subscriber", sub.Subscriber,
		"plan_id", sub.PlanID,
		"version", sub.Version,
		"legs", legStrings(legs),
		"error", err,
	)
	return fmt.Errorf("%w: %w", ErrCommitFailed, err)
}

// recordCharges stores receipts. Failures are logged; the payment and the
// subscription state are already committed.
func (e *Engine) recordCharges(ctx context.Context, charges ...*charge.Charge) {
	if err := e.store.RecordCharges(ctx, charges); err != nil {
		e.logger.Warn("failed to record charges",
			"count", len(charges),
			"error", err,
		)
	}
}

// appendLeg appends a leg unless it carries no value.
func appendLeg(legs []transfer.Leg, token types.Token, from, to types.Account, amount types.Amount) []transfer.Leg {
	if amount.IsZero() {
		return legs
	}
	return append(legs, transfer.Leg{Token: token, From: from, To: to, Amount: amount})
}

func legStrings(legs []transfer.Leg) []string {
	out := make([]string, len(legs))
	for i, l := range legs {
		out[i] = l.String()
	}
	return out
}
