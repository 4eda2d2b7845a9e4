package ledger

import (
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/govledger/internal/models"
	"github.com/smartdevs17/govledger/pkg/utils"
)

func TestSaveTemplateVersionChain(t *testing.T) {
	l, clock := newTestLedger(t)
	id := utils.TemplateID("Stable")

	inputs := []TemplateInput{
		{Name: "Stable", LockDays: 7, Fee: 2, Rebate: 1, Category: models.CategoryEconomic, Tags: []string{"fees"}},
		{Name: "Stable", LockDays: 14, Fee: 3, Rebate: 1, Category: models.CategorySecurity, Tags: []string{"fees", "lock"}, Reason: "Longer lock after audit"},
		{Name: "Stable", LockDays: 14, Fee: 1, Rebate: 0, Category: models.CategoryEconomic},
	}
	for i, in := range inputs {
		v, err := l.SaveGovernanceTemplate(ctx, alice, in)
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), v)
		clock.Advance(time.Hour)
	}

	changes, err := l.TemplateChangeLogs(id)
	require.NoError(t, err)
	require.Len(t, changes, 3)

	assert.Equal(t, uint64(0), changes[0].OldLock)
	assert.Equal(t, uint64(0), changes[0].OldFee)
	assert.Equal(t, uint64(7*SecondsPerDay), changes[0].NewLock)
	for v := 1; v < len(changes); v++ {
		assert.Equal(t, uint64(v+1), changes[v].Version)
		assert.Equal(t, changes[v-1].NewLock, changes[v].OldLock)
		assert.Equal(t, changes[v-1].NewFee, changes[v].OldFee)
		assert.Equal(t, changes[v-1].NewRebate, changes[v].OldRebate)
	}

	tpl, err := l.GetTemplate(id)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), tpl.LatestVersion)
	assert.Equal(t, uint64(14*SecondsPerDay), tpl.LockPeriod)
	assert.Equal(t, uint64(1), tpl.Fee)
	assert.Equal(t, alice, tpl.CreatedBy)
	assert.Len(t, l.ListTemplates(), 1)

	stats, err := l.TemplateCategoryStats(id)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats.Economic)
	assert.Equal(t, uint64(1), stats.Security)
	assert.Equal(t, uint64(2), l.TagUsageCount("fees"))
	assert.Equal(t, uint64(1), l.TagUsageCount("lock"))
	assert.Equal(t, uint64(0), l.TagUsageCount("missing"))
}

func TestTemplateValidation(t *testing.T) {
	l, _ := newTestLedger(t)

	tests := []struct {
		name string
		in   TemplateInput
		msg  string
	}{
		{"empty name", TemplateInput{}, "Name required"},
		{"long name", TemplateInput{Name: strings.Repeat("x", 21)}, "Name too long"},
		{"short reason", TemplateInput{Name: "a", Reason: "short"}, "Reason too short"},
		{"too many tags", TemplateInput{Name: "a", Tags: []string{"1", "2", "3", "4", "5", "6"}}, "Too many tags"},
		{"duplicate tag", TemplateInput{Name: "a", Tags: []string{"x", "x"}}, "Duplicate tag"},
		{"long tag", TemplateInput{Name: "a", Tags: []string{strings.Repeat("t", 33)}}, "Tag too long"},
		{"non-printable tag", TemplateInput{Name: "a", Tags: []string{"bad\ttag"}}, "Invalid tag"},
		{"fee", TemplateInput{Name: "a", Fee: 101}, "Fee out of bounds"},
		{"rebate", TemplateInput{Name: "a", Rebate: 101}, "Rebate out of bounds"},
		{"category", TemplateInput{Name: "a", Category: models.Category(9)}, "Unknown category"},
		{"lock", TemplateInput{Name: "a", LockDays: 5000}, "Lock period out of bounds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.SaveGovernanceTemplate(ctx, alice, tt.in)
			require.ErrorIs(t, err, ErrValidation)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}

	// twenty characters and five tags are accepted
	v, err := l.SaveGovernanceTemplate(ctx, alice, TemplateInput{
		Name: strings.Repeat("n", 20),
		Tags: []string{"a", "b", "c", "d", "e"},
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)
	assert.Equal(t, uint64(1), l.Events().Latest())
}

func TestTemplateSeverity(t *testing.T) {
	l, _ := newTestLedger(t)
	id := utils.TemplateID("sev")

	save := func(lockDays, fee, rebate uint64) {
		_, err := l.SaveGovernanceTemplate(ctx, alice, TemplateInput{Name: "sev", LockDays: lockDays, Fee: fee, Rebate: rebate})
		require.NoError(t, err)
	}
	save(1, 1, 1)    // fee delta 1, lock delta 1 day
	save(1, 20, 1)   // fee delta 19
	save(10, 20, 1)  // lock delta 9 days
	save(10, 20, 11) // rebate delta 10

	changes, err := l.TemplateChangeLogs(id)
	require.NoError(t, err)
	assert.Equal(t, models.SeverityLow, changes[0].Severity)
	assert.Equal(t, models.SeverityCritical, changes[1].Severity)
	assert.Equal(t, models.SeverityHigh, changes[2].Severity)
	assert.Equal(t, models.SeverityCritical, changes[3].Severity)
}

func TestApplyTemplate(t *testing.T) {
	l, _ := newTestLedger(t)
	id := utils.TemplateID("apply")

	_, err := l.ApplyTemplate(ctx, daoAddr, id, 0)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = l.SaveGovernanceTemplate(ctx, alice, TemplateInput{Name: "apply", LockDays: 5, Fee: 4, Rebate: 2})
	require.NoError(t, err)
	_, err = l.SaveGovernanceTemplate(ctx, alice, TemplateInput{Name: "apply", LockDays: 9, Fee: 6, Rebate: 3})
	require.NoError(t, err)

	p, err := l.ApplyTemplate(ctx, daoAddr, id, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(5*SecondsPerDay), p.DelegationLockPeriod)
	assert.Equal(t, uint64(4), p.WithdrawalFee)
	assert.Equal(t, uint64(2), p.Rebate)

	p, err = l.ApplyTemplate(ctx, daoAddr, id, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), p.AppliedVersion)
	assert.Equal(t, uint64(9*SecondsPerDay), l.GetGovernedParameters().DelegationLockPeriod)

	_, err = l.ApplyTemplate(ctx, daoAddr, id, 3)
	assert.ErrorIs(t, err, ErrNotFound)

	// new delegations pick up the applied lock period
	d, err := l.Delegate(ctx, alice, bob)
	require.NoError(t, err)
	assert.Equal(t, startTime+9*SecondsPerDay, d.LockUntil)
}

func TestChangesByTimeRange(t *testing.T) {
	l, clock := newTestLedger(t)
	id := utils.TemplateID("range")

	var stamps []uint64
	for i := 0; i < 4; i++ {
		stamps = append(stamps, clock.Now())
		_, err := l.SaveGovernanceTemplate(ctx, alice, TemplateInput{Name: "range", Fee: uint64(i)})
		require.NoError(t, err)
		clock.Advance(time.Hour)
	}

	got, err := l.GetChangesByTimeRange(id, stamps[1], stamps[2])
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(2), got[0].Version)
	assert.Equal(t, uint64(3), got[1].Version)

	got, err = l.GetChangesByTimeRange(id, stamps[3]+1, stamps[3]+100)
	require.NoError(t, err)
	assert.Empty(t, got)

	// an inverted range matches nothing
	got, err = l.GetChangesByTimeRange(id, stamps[2], stamps[1])
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = l.GetChangesByTimeRange(common.Hash{}, 0, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCompareTemplates(t *testing.T) {
	l, _ := newTestLedger(t)

	_, err := l.SaveGovernanceTemplate(ctx, alice, TemplateInput{Name: "one", LockDays: 1, Fee: 1, Rebate: 0})
	require.NoError(t, err)
	_, err = l.SaveGovernanceTemplate(ctx, alice, TemplateInput{Name: "two", LockDays: 2, Fee: 5, Rebate: 3})
	require.NoError(t, err)
	_, err = l.SaveGovernanceTemplate(ctx, alice, TemplateInput{Name: "two", LockDays: 2, Fee: 6, Rebate: 3})
	require.NoError(t, err)

	cmp, err := l.CompareTemplates([]common.Hash{utils.TemplateID("one"), utils.TemplateID("two")})
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, cmp.Names)
	assert.Equal(t, []uint64{1, 2}, cmp.Versions)
	assert.Equal(t, [3]uint64{SecondsPerDay, 1, 0}, cmp.RecentParams[0])
	assert.Equal(t, uint64(6), cmp.RecentParams[1][1])

	_, err = l.CompareTemplates([]common.Hash{utils.TemplateID("nope")})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStatsMatchRecomputation(t *testing.T) {
	l, _ := newTestLedger(t)

	names := []string{"a", "b", "c"}
	tags := [][]string{{"x"}, {"x", "y"}, {"z"}, nil}
	for i := 0; i < 12; i++ {
		_, err := l.SaveGovernanceTemplate(ctx, alice, TemplateInput{
			Name:     names[i%len(names)],
			Fee:      uint64(i),
			Category: models.Category(i % models.CategoryCount),
			Tags:     tags[i%len(tags)],
		})
		require.NoError(t, err)
	}

	gotStats, gotTags := l.CurrentStats()
	wantStats, wantTags := l.RecomputeStats()
	assert.Equal(t, wantStats, gotStats)
	assert.Equal(t, wantTags, gotTags)
	assert.Equal(t, uint64(6), gotTags["x"])
}
