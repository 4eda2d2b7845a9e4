package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/govledger/internal/eventlog"
	"github.com/smartdevs17/govledger/internal/metrics"
	"github.com/smartdevs17/govledger/internal/models"
	"github.com/smartdevs17/govledger/pkg/utils"
)

const startTime = uint64(1_700_000_000)

var (
	alice   = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob     = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol   = common.HexToAddress("0x00000000000000000000000000000000000ca201")
	daoAddr = common.HexToAddress("0x0000000000000000000000000000000000000da0")
)

var ctx = context.Background()

func init() {
	utils.InitLogger("error", "text", "discard", "")
}

func newTestLedger(t *testing.T) (*Ledger, *ManualClock) {
	t.Helper()
	clock := NewManualClock(startTime)
	l, err := New(DefaultConfig(), eventlog.New(nil), clock, metrics.NewManager())
	require.NoError(t, err)
	return l, clock
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}

type rejectingStore struct{}

func (rejectingStore) SaveEvent(context.Context, *models.LedgerEvent) error {
	return errors.New("storage offline")
}

func TestConfigValidate(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		require.NoError(t, DefaultConfig().Validate())
	})

	t.Run("Tiers not ascending", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Tiers[2].MinStake = cfg.Tiers[1].MinStake
		assert.Error(t, cfg.Validate())
	})

	t.Run("First tier non-zero", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Tiers[0].MinStake = 1
		assert.Error(t, cfg.Validate())
	})

	t.Run("Base burn rate", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.BaseBurnRate = 101
		assert.Error(t, cfg.Validate())
	})
}

func TestFailedPersistenceLeavesStateUntouched(t *testing.T) {
	clock := NewManualClock(startTime)
	l, err := New(DefaultConfig(), eventlog.New(rejectingStore{}), clock, nil)
	require.NoError(t, err)

	_, err = l.Stake(ctx, alice, 1000)
	require.Error(t, err)
	assert.Equal(t, utils.ErrCodeDatabase, utils.ErrorCode(err))

	_, err = l.GetPosition(alice)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, uint64(0), l.StakingTotals().TotalStaked)
	assert.Equal(t, uint64(0), l.Events().Latest())
}

func TestEveryWriteEmitsOneEvent(t *testing.T) {
	l, clock := newTestLedger(t)

	_, err := l.UpdateEnvironmentalPressure(ctx, daoAddr, 10)
	require.NoError(t, err)
	_, err = l.Stake(ctx, alice, 100)
	require.NoError(t, err)
	_, err = l.Delegate(ctx, alice, bob)
	require.NoError(t, err)
	_, err = l.SaveGovernanceTemplate(ctx, alice, TemplateInput{Name: "alpha", LockDays: 3, Fee: 1, Rebate: 1})
	require.NoError(t, err)

	// rejected writes leave no trace
	_, err = l.Stake(ctx, alice, 0)
	require.Error(t, err)
	clock.Advance(time.Hour)
	err = l.Undelegate(ctx, alice)
	require.Error(t, err)

	events := l.Events().Since(0, 0)
	require.Len(t, events, 4)
	assert.Equal(t, models.EventBurnRateUpdated, events[0].Type)
	assert.Equal(t, models.EventStaked, events[1].Type)
	assert.Equal(t, models.EventDelegated, events[2].Type)
	assert.Equal(t, models.EventTemplateSaved, events[3].Type)
	assert.Equal(t, alice, events[1].Actor)
	assert.Equal(t, startTime, events[1].Timestamp)
}
