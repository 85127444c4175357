package keeper_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testclock "k8s.io/utils/clock/testing"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/keeper"
	"github.com/xraph/cadence/plan"
	"github.com/xraph/cadence/store/memory"
	"github.com/xraph/cadence/transfer/tokenbank"
	"github.com/xraph/cadence/types"
)

const (
	tok      types.Token   = "DAI"
	provider types.Account = "provider"
	bot      types.Account = "keeper-bot"
	spender  types.Account = "cadence"
	period                 = 24 * time.Hour
)

var (
	t0    = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	quiet = slog.New(slog.NewTextHandler(io.Discard, nil))
)

type fixture struct {
	engine *cadence.Engine
	bank   *tokenbank.Bank
	clock  *testclock.FakeClock
	planID plan.ID
}

func newFixture(t *testing.T, subscribers ...types.Account) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{bank: tokenbank.New(), clock: testclock.NewFakeClock(t0)}
	f.engine = cadence.New(memory.New(), f.bank.Port(spender),
		cadence.WithLogger(quiet),
		cadence.WithClock(f.clock),
	)

	var err error
	f.planID, err = f.engine.CreatePlan(ctx, provider, plan.Terms{
		Token:     tok,
		Amount:    types.NewAmount(1000),
		Period:    period,
		RewardBps: 100,
	})
	require.NoError(t, err)

	for _, s := range subscribers {
		f.bank.Mint(tok, s, types.NewAmount(5000))
		f.bank.Approve(tok, s, spender, types.NewAmount(5000))
		_, err := f.engine.Subscribe(ctx, s, f.planID)
		require.NoError(t, err)
	}
	return f
}

func TestSweepRenewsDueSubscriptions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "alice", "bob")

	w := keeper.New(f.engine, bot, keeper.WithLogger(quiet), keeper.WithClock(f.clock))

	sw, err := w.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, sw.Scanned)

	f.clock.Step(2 * period)
	sw, err = w.Sweep(ctx)
	require.NoError(t, err)

	assert.False(t, sw.ID.IsNil())
	assert.Equal(t, 2, sw.Scanned)
	assert.Equal(t, 2, sw.Renewed)
	assert.Equal(t, uint64(4), sw.Cycles)
	assert.True(t, types.NewAmount(40).Equal(sw.Reward))
	assert.True(t, types.NewAmount(40).Equal(f.bank.BalanceOf(tok, bot)))

	due, err := f.engine.ListDue(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestSweepContinuesPastFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "alice", "broke")

	// Revoke the allowance so broke's renewal fails.
	f.bank.Approve(tok, "broke", spender, types.Amount{})

	var hooked []*keeper.Sweep
	w := keeper.New(f.engine, bot,
		keeper.WithLogger(quiet),
		keeper.WithClock(f.clock),
		keeper.WithMaxCycles(1),
		keeper.WithSweepHook(func(_ context.Context, sw *keeper.Sweep) { hooked = append(hooked, sw) }),
	)

	f.clock.Step(period)
	sw, err := w.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sw.Renewed)
	assert.Equal(t, 1, sw.Failed)
	require.Len(t, hooked, 1)
	assert.Same(t, sw, hooked[0])

	st, err := f.engine.Status(ctx, "broke", f.planID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), st.CyclesPaid)
}

func TestSweepPassesOverFailingSubscriptions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a", "b")

	// c subscribes an hour later, so it sorts behind a and b once due.
	f.clock.Step(time.Hour)
	f.bank.Mint(tok, "c", types.NewAmount(5000))
	f.bank.Approve(tok, "c", spender, types.NewAmount(5000))
	_, err := f.engine.Subscribe(ctx, "c", f.planID)
	require.NoError(t, err)

	f.bank.Approve(tok, "a", spender, types.Amount{})
	f.bank.Approve(tok, "b", spender, types.Amount{})

	w := keeper.New(f.engine, bot,
		keeper.WithLogger(quiet),
		keeper.WithClock(f.clock),
		keeper.WithBatchSize(2),
		keeper.WithMaxCycles(1),
	)
	f.clock.Step(period)

	sw, err := w.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sw.Failed)
	assert.Zero(t, sw.Renewed)

	// a and b are backing off; the sweep reaches c.
	sw, err = w.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sw.Deferred)
	assert.Equal(t, 1, sw.Renewed)
	assert.Zero(t, sw.Failed)

	st, err := f.engine.Status(ctx, "c", f.planID)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), st.CyclesPaid)

	// After one interval a and b are retried, then back off for two.
	f.clock.Step(keeper.DefaultInterval)
	sw, err = w.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sw.Failed)

	f.clock.Step(keeper.DefaultInterval)
	sw, err = w.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sw.Deferred)
	assert.Zero(t, sw.Failed)

	// Restoring the allowance lets a renew once its backoff expires.
	f.bank.Approve(tok, "a", spender, types.NewAmount(5000))
	f.clock.Step(keeper.DefaultInterval)
	sw, err = w.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sw.Renewed)
	assert.Equal(t, 1, sw.Failed)
}

func TestSweepHonorsBatchSize(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a", "b", "c")
	w := keeper.New(f.engine, bot, keeper.WithLogger(quiet), keeper.WithClock(f.clock), keeper.WithBatchSize(2))

	f.clock.Step(period)
	sw, err := w.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sw.Scanned)

	sw, err = w.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sw.Scanned)
}

func TestWorkerLoop(t *testing.T) {
	f := newFixture(t, "alice")

	var (
		mu     sync.Mutex
		sweeps int
	)
	w := keeper.New(f.engine, bot,
		keeper.WithLogger(quiet),
		keeper.WithClock(f.clock),
		keeper.WithInterval(time.Hour),
		keeper.WithSweepHook(func(context.Context, *keeper.Sweep) {
			mu.Lock()
			sweeps++
			mu.Unlock()
		}),
	)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	f.clock.Step(period)

	assert.Eventually(t, func() bool {
		return types.NewAmount(10).Equal(f.bank.BalanceOf(tok, bot))
	}, 2*time.Second, 10*time.Millisecond)

	w.Stop()
	mu.Lock()
	assert.GreaterOrEqual(t, sweeps, 1)
	mu.Unlock()
}

func TestStartRequiresAccount(t *testing.T) {
	f := newFixture(t)
	w := keeper.New(f.engine, "", keeper.WithLogger(quiet), keeper.WithClock(f.clock))
	require.Error(t, w.Start(context.Background()))
}
