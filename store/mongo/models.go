package mongo

import (
	"fmt"
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

	ID            int64             `grove:"id,pk"          bson:"_id"`
	Provider      string            `grove:"provider"       bson:"provider"`
	Subscriber    string            `grove:"subscriber"     bson:"subscriber"`
	Token         string            `grove:"token"          bson:"token"`
	Amount        string            `grove:"amount"         bson:"amount"`
	PeriodSeconds int64             `grove:"period_seconds" bson:"period_seconds"`
	RewardBps     int               `grove:"reward_bps"     bson:"reward_bps"`
	Metadata      map[string]string `grove:"metadata"       bson:"metadata,omitempty"`
	CreatedAt     time.Time         `grove:"created_at"     bson:"created_at"`
	UpdatedAt     time.Time         `grove:"updated_at"     bson:"updated_at"`
}

func toPlanModel(p *plan.Plan) *planModel {
	return &planModel{
		ID:            int64(p.ID),
		Provider:      p.Provider.String(),
		Subscriber:    p.Subscriber.String(),
		Token:         p.Token.String(),
		Amount:        p.Amount.String(),
		PeriodSeconds: p.PeriodSeconds(),
		RewardBps:     int(p.RewardBps),
		Metadata:      p.Metadata,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func fromPlanModel(m *planModel) (*plan.Plan, error) {
	amount, err := types.ParseAmount(m.Amount)
	if err != nil {
		return nil, fmt.Errorf("cadence/mongo: plan %d amount: %w", m.ID, err)
	}
	return &plan.Plan{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
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

// counterModel backs sequential plan ids.
type counterModel struct {
	ID  string `bson:"_id"`
	Seq int64  `bson:"seq"`
}

// ==================== Subscription models ====================

type subscriptionModel struct {
	grove.BaseModel `grove:"table:cadence_subscriptions"`

	ID           string     `grove:"id,pk"         bson:"_id"`
	Subscriber   string     `grove:"subscriber"    bson:"subscriber"`
	PlanID       int64      `grove:"plan_id"       bson:"plan_id"`
	Status       string     `grove:"status"        bson:"status"`
	NextDueAt    time.Time  `grove:"next_due_at"   bson:"next_due_at"`
	CyclesPaid   int64      `grove:"cycles_paid"   bson:"cycles_paid"`
	Version      int64      `grove:"version"       bson:"version"`
	SubscribedAt *time.Time `grove:"subscribed_at" bson:"subscribed_at,omitempty"`
	CanceledAt   *time.Time `grove:"canceled_at"   bson:"canceled_at,omitempty"`
	CreatedAt    time.Time  `grove:"created_at"    bson:"created_at"`
	UpdatedAt    time.Time  `grove:"updated_at"    bson:"updated_at"`
}

func toSubscriptionModel(s *subscription.Subscription) *subscriptionModel {
	return &subscriptionModel{
		ID:           s.ID.String(),
		Subscriber:   s.Subscriber.String(),
		PlanID:       int64(s.PlanID),
		Status:       string(s.Status),
		NextDueAt:    s.NextDueAt,
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
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:           subID,
		Subscriber:   types.Account(m.Subscriber),
		PlanID:       plan.ID(m.PlanID),
		Status:       subscription.Status(m.Status),
		NextDueAt:    m.NextDueAt.UTC(),
		CyclesPaid:   uint64(m.CyclesPaid),
		Version:      uint64(m.Version),
		SubscribedAt: utcPtr(m.SubscribedAt),
		CanceledAt:   utcPtr(m.CanceledAt),
	}, nil
}

// ==================== Charge models ====================

type chargeModel struct {
	grove.BaseModel `grove:"table:cadence_charges"`

	ID             string    `grove:"id,pk"           bson:"_id"`
	Subscriber     string    `grove:"subscriber"      bson:"subscriber"`
	PlanID         int64     `grove:"plan_id"         bson:"plan_id"`
	Cycle          int64     `grove:"cycle"           bson:"cycle"`
	Kind           string    `grove:"kind"            bson:"kind"`
	Token          string    `grove:"token"           bson:"token"`
	Amount         string    `grove:"amount"          bson:"amount"`
	ProviderAmount string    `grove:"provider_amount" bson:"provider_amount"`
	KeeperReward   string    `grove:"keeper_reward"   bson:"keeper_reward"`
	Keeper         string    `grove:"keeper"          bson:"keeper,omitempty"`
	PeriodStart    time.Time `grove:"period_start"    bson:"period_start"`
	ChargedAt      time.Time `grove:"charged_at"      bson:"charged_at"`
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
			return nil, fmt.Errorf("cadence/mongo: charge %s amount: %w", m.ID, err)
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

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
