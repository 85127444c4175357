package extension

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/cadence/observability"
	"github.com/xraph/cadence/plan"
	"github.com/xraph/cadence/types"
)

func TestMergeWithDefaults(t *testing.T) {
	e := New()
	cfg := e.mergeWithDefaults(Config{Keeper: KeeperConfig{BatchSize: 7}})

	assert.Equal(t, "cadence", cfg.Spender)
	assert.Equal(t, 5*time.Second, cfg.PluginTimeout)
	assert.Equal(t, time.Minute, cfg.Keeper.Interval)
	assert.Equal(t, uint32(12), cfg.Keeper.MaxCycles)
	assert.Equal(t, 7, cfg.Keeper.BatchSize)
}

func TestMergeConfigurations(t *testing.T) {
	e := New()
	yaml := Config{
		Operators: []string{"ops"},
		Keeper:    KeeperConfig{Account: "from-yaml", Interval: 10 * time.Second},
	}
	programmatic := Config{
		DisableMigrate: true,
		Operators:      []string{"pairing"},
		Spender:        "vault",
		Keeper:         KeeperConfig{Enabled: true, Account: "from-code", Interval: time.Hour, MaxCycles: 3},
	}

	cfg := e.mergeConfigurations(yaml, programmatic)

	assert.True(t, cfg.DisableMigrate)
	assert.True(t, cfg.Keeper.Enabled)
	assert.Equal(t, []string{"ops", "pairing"}, cfg.Operators)
	assert.Equal(t, "vault", cfg.Spender)
	assert.Equal(t, "from-yaml", cfg.Keeper.Account)
	assert.Equal(t, 10*time.Second, cfg.Keeper.Interval)
	assert.Equal(t, uint32(3), cfg.Keeper.MaxCycles)
	assert.Equal(t, 100, cfg.Keeper.BatchSize)
}

func TestBuildWiresEngineAndKeeper(t *testing.T) {
	ctx := context.Background()
	factory := observability.NewPrometheusFactory()
	e := New(
		WithOperators("ops"),
		WithKeeper("bot"),
		WithMetrics(factory),
	)
	e.config = e.mergeWithDefaults(e.config)
	require.NoError(t, e.build())

	require.NotNil(t, e.Engine())
	require.NotNil(t, e.Keeper())
	require.NotNil(t, e.Bank())
	assert.Equal(t, types.Account("bot"), e.Keeper().Account())

	// Operators from config reach the engine.
	_, err := e.Engine().CreatePlan(ctx, "ops", plan.Terms{
		Provider: "merchant",
		Token:    "DAI",
		Period:   time.Hour,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, e.Engine().Plugins().Count())
}

func TestBuildRejectsKeeperWithoutAccount(t *testing.T) {
	e := New(WithKeeper(""))
	e.config = e.mergeWithDefaults(e.config)
	require.Error(t, e.build())
}
