package tokenbank_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/cadence/transfer"
	"github.com/xraph/cadence/transfer/tokenbank"
	"github.com/xraph/cadence/types"
)

const (
	tok     types.Token   = "USDC"
	alice   types.Account = "alice"
	bob     types.Account = "bob"
	carol   types.Account = "carol"
	spender types.Account = "engine"
)

func amt(v uint64) types.Amount { return types.NewAmount(v) }

func TestTransferMovesFundsAndConsumesAllowance(t *testing.T) {
	b := tokenbank.New()
	b.Mint(tok, alice, amt(100))
	b.Approve(tok, alice, spender, amt(60))

	err := b.Port(spender).Transfer(context.Background(),
		transfer.Leg{Token: tok, From: alice, To: bob, Amount: amt(40)},
		transfer.Leg{Token: tok, From: alice, To: carol, Amount: amt(10)},
	)
	require.NoError(t, err)

	assert.True(t, b.BalanceOf(tok, alice).Equal(amt(50)))
	assert.True(t, b.BalanceOf(tok, bob).Equal(amt(40)))
	assert.True(t, b.BalanceOf(tok, carol).Equal(amt(10)))
	assert.True(t, b.Allowance(tok, alice, spender).Equal(amt(10)))
}

func TestTransferIsAllOrNothing(t *testing.T) {
	tests := []struct {
		name    string
		balance uint64
		allow   uint64
		wantErr error
	}{
		{"aggregate exceeds balance", 50, 1000, transfer.ErrInsufficientBalance},
		{"aggregate exceeds allowance", 1000, 50, transfer.ErrInsufficientAllowance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := tokenbank.New()
			b.Mint(tok, alice, amt(tt.balance))
			b.Approve(tok, alice, spender, amt(tt.allow))

			// Each leg alone fits; together they do not.
			err := b.Port(spender).Transfer(context.Background(),
				transfer.Leg{Token: tok, From: alice, To: bob, Amount: amt(30)},
				transfer.Leg{Token: tok, From: alice, To: carol, Amount: amt(30)},
			)
			require.ErrorIs(t, err, tt.wantErr)

			assert.True(t, b.BalanceOf(tok, alice).Equal(amt(tt.balance)))
			assert.True(t, b.BalanceOf(tok, bob).IsZero())
			assert.True(t, b.BalanceOf(tok, carol).IsZero())
			assert.True(t, b.Allowance(tok, alice, spender).Equal(amt(tt.allow)))
		})
	}
}

func TestTransferRejectsInvalidLeg(t *testing.T) {
	b := tokenbank.New()
	err := b.Port(spender).Transfer(context.Background(), transfer.Leg{Token: tok, From: alice, Amount: amt(1)})
	require.ErrorIs(t, err, transfer.ErrInvalidLeg)
}

func TestTransferHonorsCanceledContext(t *testing.T) {
	b := tokenbank.New()
	b.Mint(tok, alice, amt(10))
	b.Approve(tok, alice, spender, amt(10))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Port(spender).Transfer(ctx, transfer.Leg{Token: tok, From: alice, To: bob, Amount: amt(1)})
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, b.BalanceOf(tok, alice).Equal(amt(10)))
}

func TestSpenderNeedsNoAllowanceForOwnFunds(t *testing.T) {
	b := tokenbank.New()
	b.Mint(tok, spender, amt(5))
	err := b.Port(spender).Transfer(context.Background(), transfer.Leg{Token: tok, From: spender, To: bob, Amount: amt(5)})
	require.NoError(t, err)
	assert.True(t, b.BalanceOf(tok, bob).Equal(amt(5)))
}
