// Package tokenbank is an in-process token ledger with balances and
// spending allowances. It implements transfer.Port for a fixed spender,
// mirroring how a token contract lets an approved operator pull funds.
package tokenbank

import (
	"context"
	"fmt"
	"sync"

	"github.com/xraph/cadence/transfer"
	"github.com/xraph/cadence/types"
)

type allowanceKey struct {
	token   types.Token
	owner   types.Account
	spender types.Account
}

type balanceKey struct {
	token types.Token
	owner types.Account
}

// Bank holds balances and allowances for any number of tokens.
type Bank struct {
	mu         sync.Mutex
	balances   map[balanceKey]types.Amount
	allowances map[allowanceKey]types.Amount
}

// New returns an empty bank.
func New() *Bank {
	return &Bank{
		balances:   make(map[balanceKey]types.Amount),
		allowances: make(map[allowanceKey]types.Amount),
	}
}

// Mint credits amount of token to owner.
func (b *Bank) Mint(token types.Token, owner types.Account, amount types.Amount) {
	b.mu.Lock()
	defer b.mu.Unlock()
	k := balanceKey{token, owner}
	b.balances[k] = b.balances[k].Add(amount)
}

// Approve sets the amount spender may pull from owner. It replaces any
// previous allowance.
func (b *Bank) Approve(token types.Token, owner, spender types.Account, amount types.Amount) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allowances[allowanceKey{token, owner, spender}] = amount
}

// BalanceOf returns owner's balance of token.
func (b *Bank) BalanceOf(token types.Token, owner types.Account) types.Amount {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[balanceKey{token, owner}]
}

// Allowance returns what spender may still pull from owner.
func (b *Bank) Allowance(token types.Token, owner, spender types.Account) types.Amount {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.allowances[allowanceKey{token, owner, spender}]
}

// Port returns a transfer.Port that pulls funds on behalf of spender.
func (b *Bank) Port(spender types.Account) transfer.Port {
	return &port{bank: b, spender: spender}
}

type port struct {
	bank    *Bank
	spender types.Account
}

func (p *port) Transfer(ctx context.Context, legs ...transfer.Leg) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.bank.transferFrom(p.spender, legs)
}

// transferFrom validates every leg against the aggregate debit per payer
// before applying any of them.
func (b *Bank) transferFrom(spender types.Account, legs []transfer.Leg) error {
	for _, l := range legs {
		if l.Token == "" || l.From == "" || l.To == "" {
			return fmt.Errorf("%w: %s", transfer.ErrInvalidLeg, l)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for token, byFrom := range transfer.Totals(legs) {
		for from, total := range byFrom {
			if bal := b.balances[balanceKey{token, from}]; bal.LessThan(total) {
				return fmt.Errorf("%w: %s holds %s of %s, needs %s",
					transfer.ErrInsufficientBalance, from, bal, token, total)
			}
			if from == spender {
				continue
			}
			if allow := b.allowances[allowanceKey{token, from, spender}]; allow.LessThan(total) {
				return fmt.Errorf("%w: %s allows %s of %s, needs %s",
					transfer.ErrInsufficientAllowance, from, allow, token, total)
			}
		}
	}

	for _, l := range legs {
		from := balanceKey{l.Token, l.From}
		to := balanceKey{l.Token, l.To}
		b.balances[from] = b.balances[from].Sub(l.Amount)
		b.balances[to] = b.balances[to].Add(l.Amount)
		if l.From != spender {
			ak := allowanceKey{l.Token, l.From, spender}
			b.allowances[ak] = b.allowances[ak].Sub(l.Amount)
		}
	}
	return nil
}
