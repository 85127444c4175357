package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/subscription"
)

func TestUnixOrZero(t *testing.T) {
	assert.Equal(t, int64(0), unixOrZero(time.Time{}))
	assert.True(t, fromUnix(0).IsZero())

	due := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
	assert.True(t, due.Equal(fromUnix(unixOrZero(due))))
}

func TestSubscriptionModelKeepsVersion(t *testing.T) {
	sub := &subscription.Subscription{
		ID:         id.NewSubscriptionID(),
		Subscriber: "alice",
		PlanID:     3,
		Status:     subscription.StatusActive,
		NextDueAt:  time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		CyclesPaid: 4,
		Version:    9,
	}

	got, err := fromSubscriptionModel(toSubscriptionModel(sub))
	require.NoError(t, err)
	assert.Equal(t, sub.Key(), got.Key())
	assert.Equal(t, uint64(9), got.Version)
	assert.Equal(t, uint64(4), got.CyclesPaid)
	assert.True(t, sub.NextDueAt.Equal(got.NextDueAt))
}

func TestChargeModelRejectsBadAmount(t *testing.T) {
	m := &chargeModel{ID: id.NewChargeID().String(), Amount: "ten", ProviderAmount: "0", KeeperReward: "0"}
	_, err := fromChargeModel(m)
	require.Error(t, err)
}

func TestMarshalMetadata(t *testing.T) {
	empty, err := marshalMetadata(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", empty)

	full, err := marshalMetadata(map[string]string{"tier": "gold"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"tier":"gold"}`, full)
}
