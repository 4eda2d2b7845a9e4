package ledger

import (
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/govledger/internal/eventlog"
	"github.com/smartdevs17/govledger/internal/models"
	"github.com/smartdevs17/govledger/pkg/utils"
)

func TestRestoreRebuildsState(t *testing.T) {
	l, clock := newTestLedger(t)

	_, err := l.UpdateEnvironmentalPressure(ctx, daoAddr, 40)
	require.NoError(t, err)
	require.NoError(t, l.ConfigureFees(ctx, daoAddr, carol))
	_, err = l.Stake(ctx, alice, 12000)
	require.NoError(t, err)
	_, err = l.Stake(ctx, bob, 800)
	require.NoError(t, err)
	_, err = l.Delegate(ctx, bob, alice)
	require.NoError(t, err)
	_, err = l.SaveGovernanceTemplate(ctx, alice, TemplateInput{Name: "replay", LockDays: 4, Fee: 3, Rebate: 1, Tags: []string{"r"}})
	require.NoError(t, err)
	require.NoError(t, l.ApplyThresholdPreset(ctx, alice, "Aggressive"))
	_, err = l.SubmitGovernanceProposal(ctx, alice, params(4, 30, 3600), "Raise quorum for season")
	require.NoError(t, err)
	idx, err := l.SubmitCommunityTemplate(ctx, carol, "crowd", params(2, 15, 600))
	require.NoError(t, err)
	require.NoError(t, l.VoteForTemplate(ctx, alice, idx))

	clock.Advance(days(90))
	_, err = l.Unstake(ctx, alice, 3000)
	require.NoError(t, err)
	require.NoError(t, l.Undelegate(ctx, bob))
	_, err = l.SaveGovernanceTemplate(ctx, alice, TemplateInput{Name: "replay", LockDays: 6, Fee: 2, Rebate: 1})
	require.NoError(t, err)
	_, err = l.ApplyTemplate(ctx, daoAddr, utils.TemplateID("replay"), 0)
	require.NoError(t, err)
	require.NoError(t, l.RevokeSignature(ctx, bob, common.Hash{0xaa}))
	_, err = l.ClaimRewards(ctx, carol, []int{0})
	require.NoError(t, err)

	events := l.Events().Since(0, 0)

	restored, err := New(DefaultConfig(), eventlog.New(nil), NewManualClock(0), nil)
	require.NoError(t, err)
	require.NoError(t, restored.Restore(ctx, events))

	assert.Equal(t, l.BurnRate(), restored.BurnRate())
	assert.Equal(t, l.StakingTotals(), restored.StakingTotals())
	for _, who := range []common.Address{alice, bob} {
		want, err := l.GetPosition(who)
		require.NoError(t, err)
		got, err := restored.GetPosition(who)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Equal(t, l.VotingPower(who), restored.VotingPower(who))
	}
	assert.Equal(t, l.GetGovernanceHistory(), restored.GetGovernanceHistory())
	assert.Equal(t, l.GetGovernedParameters(), restored.GetGovernedParameters())
	assert.Equal(t, l.UserRewards(carol), restored.UserRewards(carol))
	assert.True(t, restored.IsRevoked(common.Hash{0xaa}))

	want, err := l.ExportTemplateData(utils.TemplateID("replay"))
	require.NoError(t, err)
	got, err := restored.ExportTemplateData(utils.TemplateID("replay"))
	require.NoError(t, err)
	assert.Equal(t, want.DataHash, got.DataHash)

	// the restored log continues the sequence and clocks are restored
	assert.Equal(t, uint64(len(events)), restored.Events().Latest())
	assert.Equal(t, uint64(0), restored.now())
	_, err = restored.Stake(ctx, carol, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(len(events)+1), restored.Events().Latest())
}

// swapped returns copies of two consecutive events with their log order
// exchanged, the order a concurrent configuration change could commit in.
func swapped(first, second *models.LedgerEvent) []*models.LedgerEvent {
	a, b := *first, *second
	a.Sequence, b.Sequence = 2, 1
	return []*models.LedgerEvent{&b, &a}
}

func TestRestoreKeepsRecordedDerivedValues(t *testing.T) {
	t.Run("Template severity", func(t *testing.T) {
		l, _ := newTestLedger(t)
		_, err := l.SaveGovernanceTemplate(ctx, alice, TemplateInput{Name: "race", LockDays: 2, Fee: 4})
		require.NoError(t, err)
		require.NoError(t, l.ApplyThresholdPreset(ctx, alice, "Conservative"))

		want, err := l.ExportTemplateData(utils.TemplateID("race"))
		require.NoError(t, err)
		require.Equal(t, models.SeverityLow, want.Changes[0].Severity)

		events := l.Events().Since(0, 0)
		require.Len(t, events, 2)
		restored, err := New(DefaultConfig(), eventlog.New(nil), NewManualClock(0), nil)
		require.NoError(t, err)
		require.NoError(t, restored.Restore(ctx, swapped(events[0], events[1])))

		got, err := restored.ExportTemplateData(utils.TemplateID("race"))
		require.NoError(t, err)
		assert.Equal(t, models.SeverityLow, got.Changes[0].Severity)
		assert.Equal(t, want.DataHash, got.DataHash)
	})

	t.Run("Proposal severity", func(t *testing.T) {
		l, _ := newTestLedger(t)
		change, err := l.SubmitGovernanceProposal(ctx, alice, params(4, 22, 3600*24), "Nudge quorum upward")
		require.NoError(t, err)
		require.Equal(t, models.SeverityLow, change.Severity)
		require.NoError(t, l.ApplyThresholdPreset(ctx, alice, "Conservative"))

		events := l.Events().Since(0, 0)
		restored, err := New(DefaultConfig(), eventlog.New(nil), NewManualClock(0), nil)
		require.NoError(t, err)
		require.NoError(t, restored.Restore(ctx, swapped(events[0], events[1])))
		assert.Equal(t, l.GetGovernanceHistory(), restored.GetGovernanceHistory())
	})

	t.Run("Delegation lock", func(t *testing.T) {
		l, _ := newTestLedger(t)
		d, err := l.Delegate(ctx, bob, alice)
		require.NoError(t, err)
		require.NoError(t, l.SetDelegationLockPeriod(ctx, daoAddr, SecondsPerDay))

		events := l.Events().Since(0, 0)
		restored, err := New(DefaultConfig(), eventlog.New(nil), NewManualClock(0), nil)
		require.NoError(t, err)
		require.NoError(t, restored.Restore(ctx, swapped(events[0], events[1])))

		got, err := restored.GetDelegation(bob)
		require.NoError(t, err)
		assert.Equal(t, d.LockUntil, got.LockUntil)
		assert.Equal(t, uint64(SecondsPerDay), restored.GetGovernedParameters().DelegationLockPeriod)
	})
}

func TestDependentWritesWaitForConfiguration(t *testing.T) {
	l, _ := newTestLedger(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			preset := "Conservative"
			if i%2 == 0 {
				preset = "Aggressive"
			}
			assert.NoError(t, l.ApplyThresholdPreset(ctx, alice, preset))
		}(i)
		go func(i int) {
			defer wg.Done()
			_, err := l.SaveGovernanceTemplate(ctx, alice, TemplateInput{Name: "busy", LockDays: uint64(i%7 + 1), Fee: uint64(i % 9)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	restored, err := New(DefaultConfig(), eventlog.New(nil), NewManualClock(0), nil)
	require.NoError(t, err)
	require.NoError(t, restored.Restore(ctx, l.Events().Since(0, 0)))

	want, err := l.ExportTemplateData(utils.TemplateID("busy"))
	require.NoError(t, err)
	got, err := restored.ExportTemplateData(utils.TemplateID("busy"))
	require.NoError(t, err)
	assert.Equal(t, want.DataHash, got.DataHash)
}

func TestRestoreRejectsPopulatedLedger(t *testing.T) {
	l, _ := newTestLedger(t)
	_, err := l.Stake(ctx, alice, 1)
	require.NoError(t, err)
	assert.Error(t, l.Restore(ctx, l.Events().Since(0, 0)))
}

func TestRestoreReportsInconsistentLog(t *testing.T) {
	l, err := New(DefaultConfig(), nil, NewManualClock(startTime), nil)
	require.NoError(t, err)

	events := []*models.LedgerEvent{{
		Sequence:  1,
		Type:      models.EventUndelegated,
		Actor:     alice,
		Timestamp: startTime + uint64(time.Hour/time.Second),
		Data:      []byte(`{}`),
	}}
	err = l.Restore(ctx, events)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Replay failed")
	assert.Equal(t, uint64(0), l.Events().Latest())
}
