package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagersAreIndependent(t *testing.T) {
	a := NewManager()
	b := NewManager()

	a.GetPrometheusMetrics().RecordLedgerOperation("stake", "success", time.Millisecond)
	a.GetPrometheusMetrics().RecordLedgerOperation("stake", "success", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(a.GetPrometheusMetrics().LedgerOperationsTotal.WithLabelValues("stake", "success")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.GetPrometheusMetrics().LedgerOperationsTotal.WithLabelValues("stake", "success")))
}

func TestGauges(t *testing.T) {
	m := NewManager()
	p := m.GetPrometheusMetrics()

	p.UpdateBurnRate(60)
	p.UpdateStakingTotals(1500, 24)
	p.RecordHashCacheLookup(true)
	p.RecordEventAppended("Staked", 7)
	m.UpdateSystemMetrics()

	assert.Equal(t, 60.0, testutil.ToFloat64(p.BurnRate))
	assert.Equal(t, 1500.0, testutil.ToFloat64(p.TotalStaked))
	assert.Equal(t, 24.0, testutil.ToFloat64(p.TotalBurned))
	assert.Equal(t, 7.0, testutil.ToFloat64(p.LatestEventSequence))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.HashCacheLookups.WithLabelValues("hit")))

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
