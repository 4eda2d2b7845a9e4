package ledger

import (
	"context"
	"math"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/govledger/internal/models"
	"github.com/smartdevs17/govledger/pkg/utils"
)

// mulDiv computes a*b*c/d without intermediate overflow, saturating at
// MaxUint64.
func mulDiv(a, b, c, d uint64) uint64 {
	if d == 0 {
		return 0
	}
	r := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	r.Mul(r, uint256.NewInt(c))
	r.Div(r, uint256.NewInt(d))
	if !r.IsUint64() {
		return math.MaxUint64
	}
	return r.Uint64()
}

// tierFor returns the highest tier whose minimum stake is at most amount
func (l *Ledger) tierFor(amount uint64) int {
	idx := 0
	for i, tier := range l.tiers {
		if tier.MinStake <= amount {
			idx = i
		}
	}
	return idx
}

// Tiers returns a copy of the tier table
func (l *Ledger) Tiers() []models.Tier {
	out := make([]models.Tier, len(l.tiers))
	copy(out, l.tiers)
	return out
}

// Stake adds amount to owner's position, creating it if needed. The tier
// never moves down on a stake.
func (l *Ledger) Stake(ctx context.Context, owner common.Address, amount uint64) (pos *models.StakePosition, err error) {
	defer l.track("stake", time.Now(), &err)

	if amount == 0 {
		return nil, utils.NewAppError(utils.ErrCodeInvalidAmount, "Stake amount must be positive")
	}

	l.stakeMu.Lock()
	defer l.stakeMu.Unlock()

	now := l.now()
	next := models.StakePosition{Owner: owner, StakeTimestamp: now}
	if cur, ok := l.positions[owner]; ok {
		next = *cur
	}
	if next.Amount > math.MaxUint64-amount || l.totalStaked > math.MaxUint64-amount {
		return nil, utils.NewAppError(utils.ErrCodeInvalidAmount, "Stake amount overflows position")
	}
	next.Amount += amount
	if t := l.tierFor(next.Amount); t > next.TierIndex {
		next.TierIndex = t
	}

	if err := l.emit(ctx, models.EventStaked, owner, now, &StakePayload{
		Amount:    amount,
		NewAmount: next.Amount,
		TierIndex: next.TierIndex,
	}); err != nil {
		return nil, err
	}

	l.positions[owner] = &next
	l.totalStaked += amount
	l.updateStakingGauges()

	l.logger.WithFields(logrus.Fields{
		"owner":  owner.Hex(),
		"amount": amount,
		"total":  next.Amount,
		"tier":   next.TierIndex,
	}).Info("Stake recorded")

	out := next
	return &out, nil
}

// CalculateRewards returns the reward accrued by owner's position at the
// position's current tier, truncated to whole units.
func (l *Ledger) CalculateRewards(owner common.Address) (uint64, error) {
	l.stakeMu.RLock()
	defer l.stakeMu.RUnlock()

	pos, ok := l.positions[owner]
	if !ok {
		return 0, notFound("No stake position", owner.Hex())
	}
	now := l.now()
	var elapsed uint64
	if now > pos.StakeTimestamp {
		elapsed = now - pos.StakeTimestamp
	}
	tier := l.tiers[pos.TierIndex]
	return mulDiv(pos.Amount, tier.RewardRateBps, elapsed, BpsDenominator*SecondsPerYear), nil
}

// Unstake withdraws part of owner's position. The fee is charged at the
// tier matching the withdrawn amount; withdrawing the whole position
// uses the position's tier and closes it.
func (l *Ledger) Unstake(ctx context.Context, owner common.Address, amount uint64) (*models.UnstakeResult, error) {
	if amount == 0 {
		return nil, utils.NewAppError(utils.ErrCodeInvalidAmount, "Unstake amount must be positive")
	}
	return l.unstake(ctx, owner, amount, false)
}

// UnstakeAll withdraws and closes owner's entire position
func (l *Ledger) UnstakeAll(ctx context.Context, owner common.Address) (*models.UnstakeResult, error) {
	return l.unstake(ctx, owner, 0, true)
}

func (l *Ledger) unstake(ctx context.Context, owner common.Address, amount uint64, full bool) (res *models.UnstakeResult, err error) {
	defer l.track("unstake", time.Now(), &err)

	l.stakeMu.Lock()
	defer l.stakeMu.Unlock()

	pos, ok := l.positions[owner]
	if !ok {
		return nil, notFound("No stake position", owner.Hex())
	}
	now := l.now()
	if now < pos.StakeTimestamp || now-pos.StakeTimestamp < l.tiers[pos.TierIndex].LockPeriod {
		return nil, utils.NewAppError(utils.ErrCodeLockActive, "Stake is still locked",
			owner.Hex())
	}
	if full {
		amount = pos.Amount
	}
	if amount > pos.Amount {
		return nil, utils.NewAppError(utils.ErrCodeInsufficientBalance, "Unstake amount exceeds position")
	}

	res = &models.UnstakeResult{Owner: owner, Amount: amount}
	if amount == pos.Amount {
		res.FeeTierIndex = pos.TierIndex
		res.Closed = true
	} else {
		res.FeeTierIndex = l.tierFor(amount)
		res.Remaining = pos.Amount - amount
		res.TierIndex = l.tierFor(res.Remaining)
	}
	res.Fee = mulDiv(amount, l.tiers[res.FeeTierIndex].FeeBps, 1, BpsDenominator)
	res.Burned = mulDiv(res.Fee, l.config.BurnShareBps, 1, BpsDenominator)
	res.ToCollector = res.Fee - res.Burned
	res.Returned = amount - res.Fee

	if err := l.emit(ctx, models.EventUnstaked, owner, now, &UnstakePayload{
		Amount:      amount,
		Full:        full,
		Fee:         res.Fee,
		Burned:      res.Burned,
		ToCollector: res.ToCollector,
		Returned:    res.Returned,
		Remaining:   res.Remaining,
		TierIndex:   res.TierIndex,
	}); err != nil {
		return nil, err
	}

	if res.Closed {
		delete(l.positions, owner)
	} else {
		pos.Amount = res.Remaining
		pos.TierIndex = res.TierIndex
	}
	l.totalStaked -= amount
	l.totalBurned += res.Burned
	l.collectorBalance += res.ToCollector
	l.updateStakingGauges()

	l.logger.WithFields(logrus.Fields{
		"owner":    owner.Hex(),
		"amount":   amount,
		"fee":      res.Fee,
		"returned": res.Returned,
		"closed":   res.Closed,
	}).Info("Stake withdrawn")
	return res, nil
}

// GetPosition returns owner's stake position
func (l *Ledger) GetPosition(owner common.Address) (*models.StakePosition, error) {
	l.stakeMu.RLock()
	defer l.stakeMu.RUnlock()

	pos, ok := l.positions[owner]
	if !ok {
		return nil, notFound("No stake position", owner.Hex())
	}
	out := *pos
	return &out, nil
}

// StakeOf returns owner's staked amount, or 0 without a position
func (l *Ledger) StakeOf(owner common.Address) uint64 {
	l.stakeMu.RLock()
	defer l.stakeMu.RUnlock()
	if pos, ok := l.positions[owner]; ok {
		return pos.Amount
	}
	return 0
}

// StakingTotals summarizes staking state
func (l *Ledger) StakingTotals() models.StakingTotals {
	l.stakeMu.RLock()
	defer l.stakeMu.RUnlock()
	return models.StakingTotals{
		TotalStaked:      l.totalStaked,
		TotalBurned:      l.totalBurned,
		CollectorBalance: l.collectorBalance,
		FeeCollector:     l.feeCollector,
		Positions:        len(l.positions),
	}
}

// ConfigureFees sets the address credited with the non-burned fee share
func (l *Ledger) ConfigureFees(ctx context.Context, actor, collector common.Address) (err error) {
	defer l.track("configure_fees", time.Now(), &err)

	if collector == (common.Address{}) {
		return validationError("Fee collector must not be the zero address")
	}

	l.stakeMu.Lock()
	defer l.stakeMu.Unlock()

	if err := l.emit(ctx, models.EventFeesConfigured, actor, l.now(), &FeesConfiguredPayload{
		Collector: collector,
	}); err != nil {
		return err
	}
	l.feeCollector = collector
	return nil
}

// updateStakingGauges must be called with stakeMu held
func (l *Ledger) updateStakingGauges() {
	if l.metrics != nil {
		l.metrics.GetPrometheusMetrics().UpdateStakingTotals(l.totalStaked, l.totalBurned)
	}
}
