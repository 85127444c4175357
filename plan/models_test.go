package plan

import (
	"errors"
	"testing"
	"time"

	"github.com/xraph/cadence/types"
)

func TestTermsValidate(t *testing.T) {
	valid := Terms{Token: "usdc", Amount: types.NewAmount(10), Period: 30 * 24 * time.Hour, RewardBps: 100}

	tests := []struct {
		name   string
		mutate func(*Terms)
		field  string
	}{
		{"valid", func(*Terms) {}, ""},
		{"zero period", func(t *Terms) { t.Period = 0 }, "period"},
		{"negative period", func(t *Terms) { t.Period = -time.Second }, "period"},
		{"sub-second period", func(t *Terms) { t.Period = 1500 * time.Millisecond }, "period"},
		{"reward above 100%", func(t *Terms) { t.RewardBps = 10001 }, "reward_bps"},
		{"reward exactly 100%", func(t *Terms) { t.RewardBps = 10000 }, ""},
		{"empty token", func(t *Terms) { t.Token = "" }, "token"},
		{"free plan", func(t *Terms) { t.Amount = types.Amount{} }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			terms := valid
			tt.mutate(&terms)
			err := terms.Validate()
			if tt.field == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidTerms) {
				t.Fatalf("expected ErrInvalidTerms, got %v", err)
			}
			var te *TermsError
			if !errors.As(err, &te) || te.Field != tt.field {
				t.Errorf("expected field %q, got %v", tt.field, err)
			}
		})
	}
}

func TestPlanSplit(t *testing.T) {
	p := &Plan{Amount: types.NewAmount(1000), RewardBps: 250}
	reward, share := p.Split()
	if reward.String() != "25" || share.String() != "975" {
		t.Errorf("got reward=%s share=%s", reward, share)
	}
}

func TestPlanAdmits(t *testing.T) {
	open := &Plan{}
	if !open.Admits("anyone") {
		t.Error("open plan should admit any subscriber")
	}
	restricted := &Plan{Subscriber: "alice"}
	if !restricted.Admits("alice") || restricted.Admits("bob") {
		t.Error("restricted plan should admit only its subscriber")
	}
}

func TestPlanCloneIsDeep(t *testing.T) {
	p := &Plan{ID: 1, Metadata: map[string]string{"tier": "pro"}}
	c := p.Clone()
	c.Metadata["tier"] = "free"
	if p.Metadata["tier"] != "pro" {
		t.Error("clone shares metadata with original")
	}
}

func TestParseID(t *testing.T) {
	if got, err := ParseID("42"); err != nil || got != 42 {
		t.Errorf("ParseID(42) = %v, %v", got, err)
	}
	for _, bad := range []string{"0", "-1", "x", ""} {
		if _, err := ParseID(bad); err == nil {
			t.Errorf("ParseID(%q): expected error", bad)
		}
	}
}
