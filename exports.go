package cadence

import (
	"github.com/xraph/cadence/plan"
	"github.com/xraph/cadence/subscription"
	"github.com/xraph/cadence/types"
)

// Re-export common types for convenience so users don't have to import the
// leaf packages for everyday calls.

type (
	Account = types.Account
	Token   = types.Token
	Amount  = types.Amount
	Entity  = types.Entity

	PlanID = plan.ID
	Terms  = plan.Terms
	Status = subscription.Status
)

// Re-export subscription states.
const (
	StatusInactive = subscription.StatusInactive
	StatusActive   = subscription.StatusActive
	StatusCanceled = subscription.StatusCanceled
)

// Re-export Amount constructors
var (
	NewAmount   = types.NewAmount
	ParseAmount = types.ParseAmount
	ParseUnits  = types.ParseUnits
	Sum         = types.Sum
)
