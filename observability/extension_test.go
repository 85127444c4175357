package observability_test

import (
	"context"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/cadence/charge"
	"github.com/xraph/cadence/keeper"
	"github.com/xraph/cadence/observability"
	"github.com/xraph/cadence/plan"
	"github.com/xraph/cadence/plugin"
	"github.com/xraph/cadence/subscription"
	"github.com/xraph/cadence/transfer"
)

func counterValue(t *testing.T, f *observability.PrometheusFactory, name string) float64 {
	t.Helper()
	c, ok := f.Counter(name).(prometheus.Counter)
	require.True(t, ok)
	return testutil.ToFloat64(c)
}

func TestLifecycleCounters(t *testing.T) {
	ctx := context.Background()
	f := observability.NewPrometheusFactory()
	m := observability.NewMetricsExtension(f)

	sub := &subscription.Subscription{}
	require.NoError(t, m.OnPlanCreated(ctx, &plan.Plan{}))
	require.NoError(t, m.OnSubscribed(ctx, sub, &charge.Charge{}))
	require.NoError(t, m.OnRenewed(ctx, sub, &subscription.Renewal{Cycles: 3}))
	require.NoError(t, m.OnCanceled(ctx, sub))

	assert.Equal(t, 1.0, counterValue(t, f, "cadence.plan.created"))
	assert.Equal(t, 1.0, counterValue(t, f, "cadence.subscription.created"))
	assert.Equal(t, 1.0, counterValue(t, f, "cadence.subscription.renewed"))
	assert.Equal(t, 1.0, counterValue(t, f, "cadence.subscription.canceled"))
	assert.Equal(t, 4.0, counterValue(t, f, "cadence.cycles.collected"))
}

func TestPaymentFailureReasons(t *testing.T) {
	ctx := context.Background()
	f := observability.NewPrometheusFactory()
	m := observability.NewMetricsExtension(f)

	for _, err := range []error{
		fmt.Errorf("%w: alice", transfer.ErrInsufficientBalance),
		fmt.Errorf("%w: alice", transfer.ErrInsufficientAllowance),
		fmt.Errorf("%w: bob", transfer.ErrInsufficientAllowance),
	} {
		require.NoError(t, m.OnPaymentFailed(ctx, &plugin.PaymentFailure{Err: err}))
	}

	assert.Equal(t, 3.0, counterValue(t, f, "cadence.payment.failed"))
	assert.Equal(t, 1.0, counterValue(t, f, "cadence.payment.insufficient_balance"))
	assert.Equal(t, 2.0, counterValue(t, f, "cadence.payment.insufficient_allowance"))
}

func TestRecordSweep(t *testing.T) {
	f := observability.NewPrometheusFactory()
	m := observability.NewMetricsExtension(f)

	m.RecordSweep(context.Background(), &keeper.Sweep{Renewed: 4, Failed: 1, Elapsed: 20 * time.Millisecond})

	assert.Equal(t, 1.0, counterValue(t, f, "cadence.keeper.sweeps"))
	assert.Equal(t, 4.0, counterValue(t, f, "cadence.keeper.renewed"))
	assert.Equal(t, 1.0, counterValue(t, f, "cadence.keeper.failed"))
}

func TestPrometheusExposition(t *testing.T) {
	f := observability.NewPrometheusFactory()
	m := observability.NewMetricsExtension(f)
	m.PlanCreated.Inc()

	// Asking for the same name twice must not re-register.
	assert.Same(t, f.Counter("cadence.plan.created"), f.Counter("cadence.plan.created"))

	srv := httptest.NewServer(f.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.True(t, strings.Contains(string(body), "cadence_plan_created_total 1"))
	assert.Contains(t, string(body), "cadence_keeper_sweep_latency_ms_bucket")
}
