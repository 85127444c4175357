package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/cadence/charge"
	"github.com/xraph/cadence/plan"
	"github.com/xraph/cadence/subscription"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// Hook implementations are discovered once at registration time.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit          []OnInit
	onShutdown      []OnShutdown
	onPlanCreated   []OnPlanCreated
	onSubscribed    []OnSubscribed
	onRenewed       []OnRenewed
	onCanceled      []OnCanceled
	onPaymentFailed []OnPaymentFailed
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnPlanCreated); ok {
		r.onPlanCreated = append(r.onPlanCreated, v)
	}
	if v, ok := p.(OnSubscribed); ok {
		r.onSubscribed = append(r.onSubscribed, v)
	}
	if v, ok := p.(OnRenewed); ok {
		r.onRenewed = append(r.onRenewed, v)
	}
	if v, ok := p.(OnCanceled); ok {
		r.onCanceled = append(r.onCanceled, v)
	}
	if v, ok := p.(OnPaymentFailed); ok {
		r.onPaymentFailed = append(r.onPaymentFailed, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

var hookTypes = []struct {
	typ  reflect.Type
	name string
}{
	{reflect.TypeFor[OnInit](), "OnInit"},
	{reflect.TypeFor[OnShutdown](), "OnShutdown"},
	{reflect.TypeFor[OnPlanCreated](), "OnPlanCreated"},
	{reflect.TypeFor[OnSubscribed](), "OnSubscribed"},
	{reflect.TypeFor[OnRenewed](), "OnRenewed"},
	{reflect.TypeFor[OnCanceled](), "OnCanceled"},
	{reflect.TypeFor[OnPaymentFailed](), "OnPaymentFailed"},
}

// implementedInterfaces lists the hook interfaces p implements.
func implementedInterfaces(p Plugin) []string {
	var names []string
	t := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if t.Implements(h.typ) {
			names = append(names, h.name)
		}
	}
	return names
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// emit runs call for every hook in hooks, logging failures.
func emit[H Plugin](r *Registry, ctx context.Context, hook string, hooks []H, call func(H) error) {
	for _, p := range hooks {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return call(p)
		}); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	emit(r, ctx, "OnInit", plugins, func(p OnInit) error {
		return p.OnInit(ctx, engine)
	})
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	emit(r, ctx, "OnShutdown", plugins, func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

// EmitPlanCreated emits a plan created event.
func (r *Registry) EmitPlanCreated(ctx context.Context, p *plan.Plan) {
	r.mu.RLock()
	plugins := r.onPlanCreated
	r.mu.RUnlock()

	emit(r, ctx, "OnPlanCreated", plugins, func(h OnPlanCreated) error {
		return h.OnPlanCreated(ctx, p)
	})
}

// EmitSubscribed emits a subscribed event.
func (r *Registry) EmitSubscribed(ctx context.Context, sub *subscription.Subscription, first *charge.Charge) {
	r.mu.RLock()
	plugins := r.onSubscribed
	r.mu.RUnlock()

	emit(r, ctx, "OnSubscribed", plugins, func(h OnSubscribed) error {
		return h.OnSubscribed(ctx, sub, first)
	})
}

// EmitRenewed emits a renewed event.
func (r *Registry) EmitRenewed(ctx context.Context, sub *subscription.Subscription, rn *subscription.Renewal) {
	r.mu.RLock()
	plugins := r.onRenewed
	r.mu.RUnlock()

	emit(r, ctx, "OnRenewed", plugins, func(h OnRenewed) error {
		return h.OnRenewed(ctx, sub, rn)
	})
}

// EmitCanceled emits a canceled event.
func (r *Registry) EmitCanceled(ctx context.Context, sub *subscription.Subscription) {
	r.mu.RLock()
	plugins := r.onCanceled
	r.mu.RUnlock()

	emit(r, ctx, "OnCanceled", plugins, func(h OnCanceled) error {
		return h.OnCanceled(ctx, sub)
	})
}

// EmitPaymentFailed emits a payment failed event.
func (r *Registry) EmitPaymentFailed(ctx context.Context, f *PaymentFailure) {
	r.mu.RLock()
	plugins := r.onPaymentFailed
	r.mu.RUnlock()

	emit(r, ctx, "OnPaymentFailed", plugins, func(h OnPaymentFailed) error {
		return h.OnPaymentFailed(ctx, f)
	})
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the billing pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
