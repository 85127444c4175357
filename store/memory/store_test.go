package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/charge"
	"github.com/xraph/cadence/plan"
	"github.com/xraph/cadence/store/memory"
	"github.com/xraph/cadence/subscription"
	"github.com/xraph/cadence/types"
)

var t0 = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

func TestPlansAreNumberedSequentially(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	for i, provider := range []types.Account{"a", "b", "a"} {
		p := &plan.Plan{Provider: provider, Token: "T", Period: time.Hour}
		require.NoError(t, s.CreatePlan(ctx, p))
		assert.Equal(t, plan.ID(i+1), p.ID)
	}

	_, err := s.GetPlan(ctx, 0)
	require.ErrorIs(t, err, cadence.ErrPlanNotFound)
	_, err = s.GetPlan(ctx, 4)
	require.ErrorIs(t, err, cadence.ErrPlanNotFound)

	byA, err := s.ListPlans(ctx, plan.ListOpts{Provider: "a"})
	require.NoError(t, err)
	require.Len(t, byA, 2)
	assert.Equal(t, plan.ID(1), byA[0].ID)
	assert.Equal(t, plan.ID(3), byA[1].ID)

	page, err := s.ListPlans(ctx, plan.ListOpts{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, plan.ID(2), page[0].ID)
}

func TestSaveSubscriptionCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	sub := subscription.Inactive("alice", 1)
	sub.Status = subscription.StatusActive
	sub.Version = 1
	require.NoError(t, s.SaveSubscription(ctx, sub, 0))

	// A second insert for the same key conflicts.
	require.ErrorIs(t, s.SaveSubscription(ctx, sub, 0), cadence.ErrConflict)

	next := sub.Clone()
	next.Version = 2
	next.CyclesPaid = 2
	require.NoError(t, s.SaveSubscription(ctx, next, 1))

	stale := sub.Clone()
	stale.Version = 2
	require.ErrorIs(t, s.SaveSubscription(ctx, stale, 1), cadence.ErrConflict)

	got, err := s.GetSubscription(ctx, "alice", 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got.CyclesPaid)

	_, err = s.GetSubscription(ctx, "bob", 1)
	require.ErrorIs(t, err, cadence.ErrSubscriptionNotFound)
}

func TestReturnedSubscriptionsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	sub := subscription.Inactive("alice", 1)
	sub.Version = 1
	require.NoError(t, s.SaveSubscription(ctx, sub, 0))
	sub.CyclesPaid = 99

	got, err := s.GetSubscription(ctx, "alice", 1)
	require.NoError(t, err)
	got.CyclesPaid = 42

	again, err := s.GetSubscription(ctx, "alice", 1)
	require.NoError(t, err)
	assert.Zero(t, again.CyclesPaid)
}

func TestListSubscriptionsDueOrdering(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	save := func(who types.Account, status subscription.Status, due time.Time) {
		sub := subscription.Inactive(who, 1)
		sub.Status = status
		sub.NextDueAt = due
		sub.Version = 1
		require.NoError(t, s.SaveSubscription(ctx, sub, 0))
	}
	save("late", subscription.StatusActive, t0.Add(-2*time.Hour))
	save("later", subscription.StatusActive, t0.Add(-5*time.Hour))
	save("future", subscription.StatusActive, t0.Add(time.Hour))
	save("gone", subscription.StatusCanceled, t0.Add(-9*time.Hour))

	due, err := s.ListSubscriptions(ctx, subscription.ListOpts{
		Status: subscription.StatusActive,
		DueBy:  t0,
	})
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, types.Account("later"), due[0].Subscriber)
	assert.Equal(t, types.Account("late"), due[1].Subscriber)

	limited, err := s.ListSubscriptions(ctx, subscription.ListOpts{Status: subscription.StatusActive, DueBy: t0, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestChargesByCycle(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	require.NoError(t, s.RecordCharges(ctx, []*charge.Charge{
		{Subscriber: "alice", PlanID: 1, Cycle: 2, Kind: charge.KindRenewal},
		{Subscriber: "alice", PlanID: 1, Cycle: 1, Kind: charge.KindInitial},
		{Subscriber: "bob", PlanID: 1, Cycle: 1, Kind: charge.KindInitial},
	}))

	got, err := s.ListCharges(ctx, "alice", 1, charge.ListOpts{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(1), got[0].Cycle)
	assert.Equal(t, uint64(2), got[1].Cycle)

	initial, err := s.ListCharges(ctx, "alice", 1, charge.ListOpts{Kind: charge.KindInitial})
	require.NoError(t, err)
	assert.Len(t, initial, 1)
}

func TestClosedStore(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.Close())

	require.ErrorIs(t, s.Ping(ctx), cadence.ErrStoreClosed)
	_, err := s.GetPlan(ctx, 1)
	require.ErrorIs(t, err, cadence.ErrStoreClosed)
	require.ErrorIs(t, s.CreatePlan(ctx, &plan.Plan{}), cadence.ErrStoreClosed)
}
