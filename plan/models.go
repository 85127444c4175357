package plan

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/xraph/cadence/types"
)

// MaxRewardBps is the largest keeper reward a plan may carry (100%).
const MaxRewardBps = types.BpsDenominator

// ErrInvalidTerms is wrapped by every terms validation failure.
var ErrInvalidTerms = errors.New("cadence: invalid plan terms")

// ID is a plan identifier. IDs are assigned sequentially starting at 1 and
// are never reused; zero is never a valid plan.
type ID uint64

// String implements fmt.Stringer.
func (i ID) String() string { return strconv.FormatUint(uint64(i), 10) }

// ParseID parses a base-10 plan id.
func ParseID(s string) (ID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil || v == 0 {
		return 0, fmt.Errorf("plan: invalid id %q", s)
	}
	return ID(v), nil
}

// Terms are the billing terms requested when publishing a plan.
type Terms struct {
	// Provider receives payments. Empty means the caller.
	Provider types.Account `json:"provider,omitempty"`
	// Subscriber, when set, restricts the plan to a single subscriber.
	Subscriber types.Account     `json:"subscriber,omitempty"`
	Token      types.Token       `json:"token"`
	Amount     types.Amount      `json:"amount"`
	Period     time.Duration     `json:"period"`
	RewardBps  uint16            `json:"reward_bps"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Validate checks the terms independently of who publishes them.
func (t Terms) Validate() error {
	switch {
	case t.Token.IsZero():
		return &TermsError{Field: "token", Message: "must not be empty"}
	case t.Period <= 0:
		return &TermsError{Field: "period", Message: "must be greater than zero"}
	case t.Period%time.Second != 0:
		return &TermsError{Field: "period", Message: "must be a whole number of seconds"}
	case t.RewardBps > MaxRewardBps:
		return &TermsError{Field: "reward_bps", Message: fmt.Sprintf("must be at most %d", MaxRewardBps)}
	}
	return nil
}

// TermsError describes which term was rejected. It matches ErrInvalidTerms.
type TermsError struct {
	Field   string
	Message string
}

func (e *TermsError) Error() string {
	return fmt.Sprintf("cadence: invalid plan terms: %s %s", e.Field, e.Message)
}

// Is reports ErrInvalidTerms as the error kind.
func (e *TermsError) Is(target error) bool { return target == ErrInvalidTerms }

// Plan is a published, immutable set of billing terms.
type Plan struct {
	types.Entity
	ID         ID                `json:"id"`
	Provider   types.Account     `json:"provider"`
	Subscriber types.Account     `json:"subscriber,omitempty"`
	Token      types.Token       `json:"token"`
	Amount     types.Amount      `json:"amount"`
	Period     time.Duration     `json:"period"`
	RewardBps  uint16            `json:"reward_bps"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Terms returns the plan's terms.
func (p *Plan) Terms() Terms {
	return Terms{
		Provider:   p.Provider,
		Subscriber: p.Subscriber,
		Token:      p.Token,
		Amount:     p.Amount,
		Period:     p.Period,
		RewardBps:  p.RewardBps,
		Metadata:   p.Metadata,
	}
}

// PeriodSeconds returns the billing period in whole seconds.
func (p *Plan) PeriodSeconds() int64 { return int64(p.Period / time.Second) }

// Split divides one cycle's price into the keeper's reward and the
// provider's share. The provider absorbs rounding: reward is floored.
func (p *Plan) Split() (reward, providerShare types.Amount) {
	return p.Amount.SplitBps(p.RewardBps)
}

// Admits reports whether the subscriber may enroll in this plan.
func (p *Plan) Admits(subscriber types.Account) bool {
	return p.Subscriber.IsZero() || p.Subscriber == subscriber
}

// Clone returns a deep copy so callers cannot mutate stored terms.
func (p *Plan) Clone() *Plan {
	c := *p
	if p.Metadata != nil {
		c.Metadata = make(map[string]string, len(p.Metadata))
		for k, v := range p.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
