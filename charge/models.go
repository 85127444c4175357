// Package charge defines receipts for collected billing cycles.
package charge

import (
	"time"

	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/plan"
	"github.com/xraph/cadence/types"
)

// Kind distinguishes the first charge from keeper-driven renewals.
type Kind string

const (
	KindInitial Kind = "initial"
	KindRenewal Kind = "renewal"
)

// Charge is the receipt for one collected cycle. A renewal that catches up
// several cycles produces one Charge per cycle.
type Charge struct {
	ID             id.ChargeID   `json:"id"`
	Subscriber     types.Account `json:"subscriber"`
	PlanID         plan.ID       `json:"plan_id"`
	Cycle          uint64        `json:"cycle"`
	Kind           Kind          `json:"kind"`
	Token          types.Token   `json:"token"`
	Amount         types.Amount  `json:"amount"`
	ProviderAmount types.Amount  `json:"provider_amount"`
	KeeperReward   types.Amount  `json:"keeper_reward"`
	Keeper         types.Account `json:"keeper,omitempty"`
	PeriodStart    time.Time     `json:"period_start"`
	ChargedAt      time.Time     `json:"charged_at"`
}
