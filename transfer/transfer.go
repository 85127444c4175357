// Package transfer defines the port through which the engine moves value.
//
// The engine never holds funds. Every charge is expressed as a set of legs,
// each pulling tokens from a payer to a payee, and handed to a Port in a
// single call. A Port must apply either all legs or none.
package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/cadence/types"
)

var (
	ErrInsufficientBalance   = errors.New("transfer: insufficient balance")
	ErrInsufficientAllowance = errors.New("transfer: insufficient allowance")
	ErrInvalidLeg            = errors.New("transfer: invalid leg")
)

// Leg moves Amount of Token from From to To.
type Leg struct {
	Token  types.Token   `json:"token"`
	From   types.Account `json:"from"`
	To     types.Account `json:"to"`
	Amount types.Amount  `json:"amount"`
}

func (l Leg) String() string {
	return fmt.Sprintf("%s %s->%s %s", l.Token, l.From, l.To, l.Amount)
}

// Port moves value between accounts.
type Port interface {
	// Transfer applies every leg atomically. On error no leg has been
	// applied.
	Transfer(ctx context.Context, legs ...Leg) error
}

// PortFunc adapts a function to Port.
type PortFunc func(ctx context.Context, legs ...Leg) error

func (f PortFunc) Transfer(ctx context.Context, legs ...Leg) error { return f(ctx, legs...) }

// Totals sums the legs per payer and token.
func Totals(legs []Leg) map[types.Token]map[types.Account]types.Amount {
	out := make(map[types.Token]map[types.Account]types.Amount)
	for _, l := range legs {
		byFrom, ok := out[l.Token]
		if !ok {
			byFrom = make(map[types.Account]types.Amount)
			out[l.Token] = byFrom
		}
		byFrom[l.From] = byFrom[l.From].Add(l.Amount)
	}
	return out
}
