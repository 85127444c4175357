package postgres

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/cadence/charge"
	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/plan"
	"github.com/xraph/cadence/subscription"
	"github.com/xraph/cadence/types"
)

// ==================== Plan models ====================

type planModel struct {
	grove.BaseModel `grove:"table:cadence_plans"`

	ID            int64             `grove:"id,pk"`
	Provider      string            `grove:"provider"`
	Subscriber    string            `grove:"subscriber"`
	Token         string            `grove:"token"`
	Amount        string            `grove:"amount"`
	PeriodSeconds int64             `grove:"period_seconds"`
	RewardBps     int               `grove:"reward_bps"`
	Metadata      map[string]string `grove:"metadata,type:jsonb"`
	CreatedAt     time.Time         `grove:"created_at"`
	UpdatedAt     time.Time         `grove:"updated_at"`
}

func fromPlanModel(m *planModel) (*plan.Plan, error) {
	amount, err := types.ParseAmount(m.Amount)
	if err != nil {
		return nil, err
	}
	return &plan.Plan{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:         plan.ID(m.ID),
		Provider:   types.Account(m.Provider),
		Subscriber: types.Account(m.Subscriber),
		Token:      types.Token(m.Token),
		Amount:     amount,
		Period:     time.Duration(m.PeriodSeconds) * time.Second,
		RewardBps:  uint16(m.RewardBps),
		Metadata:   m.Metadata,
	}, nil
}

// ==================== Subscription models ====================

type subscriptionModel struct {
	grove.BaseModel `grove:"table:cadence_subscriptions"`

	ID           string     `grove:"id,pk"`
	Subscriber   string     `grove:"subscriber"`
	PlanID       int64      `grove:"plan_id"`
	Status       string     `grove:"status"`
	NextDueAt    int64      `grove:"next_due_at"`
	CyclesPaid   int64      `grove:"cycles_paid"`
	Version      int64      `grove:"version"`
	SubscribedAt *time.Time `grove:"subscribed_at"`
	CanceledAt   *time.Time `grove:"canceled_at"`
	CreatedAt    time.Time  `grove:"created_at"`
	UpdatedAt    time.Time  `grove:"updated_at"`
}

func toSubscriptionModel(s *subscription.Subscription) *subscriptionModel {
	return &subscriptionModel{
		ID:           s.ID.String(),
		Subscriber:   s.Subscriber.String(),
		PlanID:       int64(s.PlanID),
		Status:       string(s.Status),
		NextDueAt:    unixOrZero(s.NextDueAt),
		CyclesPaid:   int64(s.CyclesPaid),
		Version:      int64(s.Version),
		SubscribedAt: s.SubscribedAt,
		CanceledAt:   s.CanceledAt,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

func fromSubscriptionModel(m *subscriptionModel) (*subscription.Subscription, error) {
	subID, err := id.ParseSubscriptionID(m.ID)
	if err != nil {
		return nil, err
	}
	return &subscription.Subscription{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:           subID,
		Subscriber:   types.Account(m.Subscriber),
		PlanID:       plan.ID(m.PlanID),
		Status:       subscription.Status(m.Status),
		NextDueAt:    fromUnix(m.NextDueAt),
		CyclesPaid:   uint64(m.CyclesPaid),
		Version:      uint64(m.Version),
		SubscribedAt: m.SubscribedAt,
		CanceledAt:   m.CanceledAt,
	}, nil
}

// ==================== Charge models ====================

type chargeModel struct {
	grove.BaseModel `grove:"table:cadence_charges"`

	ID             string    `grove:"id,pk"`
	Subscriber     string    `grove:"subscriber"`
	PlanID         int64     `grove:"plan_id"`
	Cycle          int64     `grove:"cycle"`
	Kind           string    `grove:"kind"`
	Token          string    `grove:"token"`
	Amount         string    `grove:"amount"`
	ProviderAmount string    `grove:"provider_amount"`
	KeeperReward   string    `grove:"keeper_reward"`
	Keeper         string    `grove:"keeper"`
	PeriodStart    time.Time `grove:"period_start"`
	ChargedAt      time.Time `grove:"charged_at"`
}

func toChargeModel(c *charge.Charge) *chargeModel {
	return &chargeModel{
		ID:             c.ID.String(),
		Subscriber:     c.Subscriber.String(),
		PlanID:         int64(c.PlanID),
		Cycle:          int64(c.Cycle),
		Kind:           string(c.Kind),
		Token:          c.Token.String(),
		Amount:         c.Amount.String(),
		ProviderAmount: c.ProviderAmount.String(),
		KeeperReward:   c.KeeperReward.String(),
		Keeper:         c.Keeper.String(),
		PeriodStart:    c.PeriodStart,
		ChargedAt:      c.ChargedAt,
	}
}

func fromChargeModel(m *chargeModel) (*charge.Charge, error) {
	chgID, err := id.ParseChargeID(m.ID)
	if err != nil {
		return nil, err
	}
	var amounts [3]types.Amount
	for i, s := range []string{m.Amount, m.ProviderAmount, m.KeeperReward} {
		if amounts[i], err = types.ParseAmount(s); err != nil {
			return nil, err
		}
	}
	return &charge.Charge{
		ID:             chgID,
		Subscriber:     types.Account(m.Subscriber),
		PlanID:         plan.ID(m.PlanID),
		Cycle:          uint64(m.Cycle),
		Kind:           charge.Kind(m.Kind),
		Token:          types.Token(m.Token),
		Amount:         amounts[0],
		ProviderAmount: amounts[1],
		KeeperReward:   amounts[2],
		Keeper:         types.Account(m.Keeper),
		PeriodStart:    m.PeriodStart.UTC(),
		ChargedAt:      m.ChargedAt.UTC(),
	}, nil
}

// unixOrZero stores the zero time as 0 rather than year-1 seconds.
func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
