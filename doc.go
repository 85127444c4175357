// Package cadence provides a recurring-payment subscription engine for Go
// applications.
//
// Providers publish plans (token, price, period, keeper reward), subscribers
// opt in, and a permissionless keeper advances due subscriptions by pulling
// payments on a fixed cadence. The engine guarantees:
//
//   - a provider is paid exactly once per elapsed period per active subscriber
//   - no payment is pulled before it is due
//   - cancellation is immediate and permanent
//   - a failed transfer never changes subscription state
//
// Cadence is a library. Funds move through a transfer.Port that you supply;
// the tokenbank package is an in-process implementation.
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/cadence"
//	    "github.com/xraph/cadence/store/postgres"
//	    "github.com/xraph/cadence/transfer/tokenbank"
//	)
//
//	bank := tokenbank.New()
//	engine := cadence.New(store, bank.Port("cadence"))
//	if err := engine.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Stop(ctx)
//
// # Core Concepts
//
// Plans are immutable once published and numbered from 1:
//
//	planID, err := engine.CreatePlan(ctx, provider, plan.Terms{
//	    Token:     "USDC",
//	    Amount:    types.MustParseUnits("9.99", 6),
//	    Period:    30 * 24 * time.Hour,
//	    RewardBps: 50,
//	})
//
// Subscribing collects the first period immediately:
//
//	sub, err := engine.Subscribe(ctx, subscriber, planID)
//
// Anyone may renew a due subscription and earn the plan's reward share.
// Missed periods are collected together, up to maxCycles:
//
//	renewal, err := engine.Renew(ctx, keeper, planID, subscriber, 12)
//
// The keeper package runs this loop in the background.
//
// # Amounts
//
// Amounts are arbitrary-precision non-negative integers in the token's
// smallest unit. Keeper rewards are floored; the provider receives the
// remainder, so a subscriber always pays exactly the plan amount per cycle.
package cadence
