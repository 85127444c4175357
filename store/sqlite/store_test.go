package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/plan"
	"github.com/xraph/cadence/subscription"
	"github.com/xraph/cadence/types"
)

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	drv := sqlitedriver.New()
	require.NoError(t, drv.Open(ctx, filepath.Join(t.TempDir(), "cadence.db")))
	db, err := grove.Open(drv)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := New(db)
	require.NoError(t, s.Migrate(ctx))
	return s
}

func testPlan(provider types.Account) *plan.Plan {
	return &plan.Plan{
		Entity:   types.NewEntity(t0),
		Provider: provider,
		Token:    "USDC",
		Amount:   types.NewAmount(100),
		Period:   30 * 24 * time.Hour,
	}
}

func activeSub(subscriber types.Account, planID plan.ID, due time.Time) *subscription.Subscription {
	at := t0
	return &subscription.Subscription{
		Entity:       types.NewEntity(t0),
		ID:           id.NewSubscriptionID(),
		Subscriber:   subscriber,
		PlanID:       planID,
		Status:       subscription.StatusActive,
		NextDueAt:    due,
		CyclesPaid:   1,
		Version:      1,
		SubscribedAt: &at,
	}
}

func TestCreatePlanAssignsSequentialIDs(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	for want := plan.ID(1); want <= 3; want++ {
		p := testPlan("provider")
		require.NoError(t, s.CreatePlan(ctx, p))
		assert.Equal(t, want, p.ID)
	}

	got, err := s.GetPlan(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, types.Account("provider"), got.Provider)
	assert.Equal(t, 30*24*time.Hour, got.Period)

	_, err = s.GetPlan(ctx, 99)
	assert.ErrorIs(t, err, cadence.ErrPlanNotFound)
}

func TestSaveSubscriptionRejectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	p := testPlan("provider")
	require.NoError(t, s.CreatePlan(ctx, p))

	sub := activeSub("alice", p.ID, t0.Add(time.Hour))
	require.NoError(t, s.SaveSubscription(ctx, sub, 0))

	// A second first-write for the same key loses.
	dup := activeSub("alice", p.ID, t0.Add(time.Hour))
	assert.ErrorIs(t, s.SaveSubscription(ctx, dup, 0), cadence.ErrConflict)

	renewed := sub.Clone()
	renewed.CyclesPaid = 2
	renewed.Version = 2
	require.NoError(t, s.SaveSubscription(ctx, renewed, 1))

	stale := sub.Clone()
	stale.Status = subscription.StatusCanceled
	stale.Version = 2
	assert.ErrorIs(t, s.SaveSubscription(ctx, stale, 1), cadence.ErrConflict)

	got, err := s.GetSubscription(ctx, "alice", p.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, got.Status)
	assert.Equal(t, uint64(2), got.Version)
	assert.Equal(t, uint64(2), got.CyclesPaid)
}

func TestListSubscriptionsDueByOrdersByNextDue(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	p := testPlan("provider")
	require.NoError(t, s.CreatePlan(ctx, p))

	require.NoError(t, s.SaveSubscription(ctx, activeSub("a", p.ID, t0.Add(3*time.Hour)), 0))
	require.NoError(t, s.SaveSubscription(ctx, activeSub("b", p.ID, t0.Add(2*time.Hour)), 0))
	require.NoError(t, s.SaveSubscription(ctx, activeSub("c", p.ID, t0.Add(time.Hour)), 0))

	due, err := s.ListSubscriptions(ctx, subscription.ListOpts{
		Status: subscription.StatusActive,
		DueBy:  t0.Add(2 * time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, types.Account("c"), due[0].Subscriber)
	assert.Equal(t, types.Account("b"), due[1].Subscriber)
	assert.True(t, due[1].NextDueAt.Equal(t0.Add(2*time.Hour)))

	paged, err := s.ListSubscriptions(ctx, subscription.ListOpts{
		DueBy:  t0.Add(3 * time.Hour),
		Limit:  1,
		Offset: 2,
	})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, types.Account("a"), paged[0].Subscriber)
}
