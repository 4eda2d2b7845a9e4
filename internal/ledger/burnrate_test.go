package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBurnRateSaturation(t *testing.T) {
	l, _ := newTestLedger(t)

	for _, p := range []uint64{101, 150, 1000, 1 << 40} {
		rate, err := l.UpdateEnvironmentalPressure(ctx, daoAddr, p)
		require.NoError(t, err)
		assert.Equal(t, uint64(100), rate, "pressure %d", p)
	}
	assert.Equal(t, uint64(100), l.BurnRate())
}

func TestBurnRateLinearUnderCap(t *testing.T) {
	l, _ := newTestLedger(t)
	base := l.BaseBurnRate()
	require.Equal(t, uint64(50), base)

	for p := uint64(0); p <= 100; p++ {
		rate, err := l.UpdateEnvironmentalPressure(ctx, daoAddr, p)
		require.NoError(t, err)
		assert.Equal(t, min(uint64(100), base+base*p/100), rate, "pressure %d", p)
	}

	rate, err := l.UpdateEnvironmentalPressure(ctx, daoAddr, 20)
	require.NoError(t, err)
	assert.Equal(t, uint64(60), rate)
}

func TestSetBaseBurnRate(t *testing.T) {
	l, _ := newTestLedger(t)

	_, err := l.UpdateEnvironmentalPressure(ctx, daoAddr, 50)
	require.NoError(t, err)
	assert.Equal(t, uint64(75), l.BurnRate())

	require.NoError(t, l.SetBaseBurnRate(ctx, daoAddr, 20))
	assert.Equal(t, uint64(20), l.BaseBurnRate())
	assert.Equal(t, uint64(30), l.BurnRate())

	err = l.SetBaseBurnRate(ctx, daoAddr, 101)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, uint64(20), l.BaseBurnRate())
}
