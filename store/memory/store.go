// Package memory provides an in-memory Store. It is the default backend for
// tests and single-process deployments; nothing survives a restart.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/charge"
	"github.com/xraph/cadence/plan"
	"github.com/xraph/cadence/store"
	"github.com/xraph/cadence/subscription"
	"github.com/xraph/cadence/types"
)

var _ store.Store = (*Store)(nil)

type subKey struct {
	subscriber types.Account
	planID     plan.ID
}

type Store struct {
	mu     sync.RWMutex
	closed bool

	// Plan storage, indexed by ID-1.
	plans []*plan.Plan

	// Subscription storage
	subscriptions map[subKey]*subscription.Subscription

	// Charge receipts, in insertion order per key.
	charges map[subKey][]*charge.Charge
}

func New() *Store {
	return &Store{
		subscriptions: make(map[subKey]*subscription.Subscription),
		charges:       make(map[subKey][]*charge.Charge),
	}
}

// Plan Store implementation
func (s *Store) CreatePlan(_ context.Context, p *plan.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return cadence.ErrStoreClosed
	}
	p.ID = plan.ID(len(s.plans) + 1)
	s.plans = append(s.plans, p.Clone())
	return nil
}

func (s *Store) GetPlan(_ context.Context, planID plan.ID) (*plan.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, cadence.ErrStoreClosed
	}
	if planID == 0 || uint64(planID) > uint64(len(s.plans)) {
		return nil, cadence.ErrPlanNotFound
	}
	return s.plans[planID-1].Clone(), nil
}

func (s *Store) ListPlans(_ context.Context, opts plan.ListOpts) ([]*plan.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, cadence.ErrStoreClosed
	}
	result := make([]*plan.Plan, 0)
	for _, p := range s.plans {
		if opts.Provider != "" && p.Provider != opts.Provider {
			continue
		}
		if opts.Subscriber != "" && p.Subscriber != opts.Subscriber {
			continue
		}
		result = append(result, p.Clone())
	}
	return paginate(result, opts.Limit, opts.Offset), nil
}

// Subscription Store implementation
func (s *Store) GetSubscription(_ context.Context, subscriber types.Account, planID plan.ID) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, cadence.ErrStoreClosed
	}
	if sub, ok := s.subscriptions[subKey{subscriber, planID}]; ok {
		return sub.Clone(), nil
	}
	return nil, cadence.ErrSubscriptionNotFound
}

func (s *Store) SaveSubscription(_ context.Context, sub *subscription.Subscription, prevVersion uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return cadence.ErrStoreClosed
	}
	k := subKey{sub.Subscriber, sub.PlanID}
	existing, ok := s.subscriptions[k]
	switch {
	case prevVersion == 0 && ok:
		return cadence.ErrConflict
	case prevVersion != 0 && (!ok || existing.Version != prevVersion):
		return cadence.ErrConflict
	}
	s.subscriptions[k] = sub.Clone()
	return nil
}

func (s *Store) ListSubscriptions(_ context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, cadence.ErrStoreClosed
	}
	result := make([]*subscription.Subscription, 0)
	for _, sub := range s.subscriptions {
		if opts.Subscriber != "" && sub.Subscriber != opts.Subscriber {
			continue
		}
		if opts.PlanID != 0 && sub.PlanID != opts.PlanID {
			continue
		}
		if opts.Status != "" && sub.Status != opts.Status {
			continue
		}
		if !opts.DueBy.IsZero() && sub.NextDueAt.After(opts.DueBy) {
			continue
		}
		result = append(result, sub.Clone())
	}

	if !opts.DueBy.IsZero() {
		slices.SortFunc(result, func(a, b *subscription.Subscription) int {
			if c := a.NextDueAt.Compare(b.NextDueAt); c != 0 {
				return c
			}
			return compareKey(a, b)
		})
	} else {
		slices.SortFunc(result, func(a, b *subscription.Subscription) int {
			if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
				return c
			}
			return compareKey(a, b)
		})
	}
	return paginate(result, opts.Limit, opts.Offset), nil
}

// Charge Store implementation
func (s *Store) RecordCharges(_ context.Context, charges []*charge.Charge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return cadence.ErrStoreClosed
	}
	for _, c := range charges {
		k := subKey{c.Subscriber, c.PlanID}
		cp := *c
		s.charges[k] = append(s.charges[k], &cp)
	}
	return nil
}

func (s *Store) ListCharges(_ context.Context, subscriber types.Account, planID plan.ID, opts charge.ListOpts) ([]*charge.Charge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, cadence.ErrStoreClosed
	}
	result := make([]*charge.Charge, 0)
	for _, c := range s.charges[subKey{subscriber, planID}] {
		if opts.Kind != "" && c.Kind != opts.Kind {
			continue
		}
		cp := *c
		result = append(result, &cp)
	}
	slices.SortStableFunc(result, func(a, b *charge.Charge) int {
		switch {
		case a.Cycle < b.Cycle:
			return -1
		case a.Cycle > b.Cycle:
			return 1
		}
		return 0
	})
	return paginate(result, opts.Limit, opts.Offset), nil
}

// Core methods
func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return cadence.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

func compareKey(a, b *subscription.Subscription) int {
	if a.PlanID != b.PlanID {
		if a.PlanID < b.PlanID {
			return -1
		}
		return 1
	}
	switch {
	case a.Subscriber < b.Subscriber:
		return -1
	case a.Subscriber > b.Subscriber:
		return 1
	}
	return 0
}

func paginate[T any](items []T, limit, offset int) []T {
	start := min(max(offset, 0), len(items))
	end := len(items)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	return items[start:end]
}
