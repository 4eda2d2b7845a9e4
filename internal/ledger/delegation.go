package ledger

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/govledger/internal/models"
	"github.com/smartdevs17/govledger/pkg/utils"
)

// Delegate points delegator's voting power at delegatee. An existing
// delegation is overwritten and its lock restarts.
func (l *Ledger) Delegate(ctx context.Context, delegator, delegatee common.Address) (d *models.Delegation, err error) {
	defer l.track("delegate", time.Now(), &err)
	return l.delegate(ctx, delegator, delegatee, nil)
}

// delegate records a delegation. A non-nil lockUntil replaces the value
// derived from the current lock period.
func (l *Ledger) delegate(ctx context.Context, delegator, delegatee common.Address, lockUntil *uint64) (*models.Delegation, error) {
	if delegatee == (common.Address{}) {
		return nil, validationError("Delegatee must not be the zero address")
	}

	l.delegMu.Lock()
	defer l.delegMu.Unlock()

	// held until the event is appended so a lock period change cannot be
	// logged between the read and this delegation
	l.paramsMu.RLock()
	defer l.paramsMu.RUnlock()

	now := l.now()
	rec := models.Delegation{
		Delegator: delegator,
		Delegatee: delegatee,
		Timestamp: now,
		LockUntil: now + l.params.DelegationLockPeriod,
	}
	if lockUntil != nil {
		rec.LockUntil = *lockUntil
	}
	if err := l.emit(ctx, models.EventDelegated, delegator, now, &DelegatePayload{
		Delegatee: delegatee,
		LockUntil: rec.LockUntil,
	}); err != nil {
		return nil, err
	}

	l.delegations[delegator] = &rec
	l.delegationHistory[delegator] = append(l.delegationHistory[delegator], rec)

	l.logger.WithFields(logrus.Fields{
		"delegator":  delegator.Hex(),
		"delegatee":  delegatee.Hex(),
		"lock_until": rec.LockUntil,
	}).Info("Delegation recorded")

	out := rec
	return &out, nil
}

// Undelegate clears delegator's delegation once its lock has elapsed
func (l *Ledger) Undelegate(ctx context.Context, delegator common.Address) (err error) {
	defer l.track("undelegate", time.Now(), &err)

	l.delegMu.Lock()
	defer l.delegMu.Unlock()

	rec, ok := l.delegations[delegator]
	if !ok {
		return notFound("No active delegation", delegator.Hex())
	}
	now := l.now()
	if now < rec.LockUntil {
		return utils.NewAppError(utils.ErrCodeDelegationLocked, "Delegation is still locked",
			delegator.Hex())
	}

	if err := l.emit(ctx, models.EventUndelegated, delegator, now, &UndelegatePayload{
		Previous: rec.Delegatee,
	}); err != nil {
		return err
	}
	delete(l.delegations, delegator)
	return nil
}

// SetDelegationLockPeriod changes the lock applied to new delegations.
// Existing lockUntil values are untouched.
func (l *Ledger) SetDelegationLockPeriod(ctx context.Context, actor common.Address, seconds uint64) (err error) {
	defer l.track("set_delegation_lock", time.Now(), &err)

	if seconds > l.config.MaxLockDays*SecondsPerDay {
		return validationError("Delegation lock period out of bounds")
	}

	l.paramsMu.Lock()
	defer l.paramsMu.Unlock()

	if err := l.emit(ctx, models.EventDelegationLockSet, actor, l.now(), &DelegationLockPayload{
		LockPeriod: seconds,
	}); err != nil {
		return err
	}
	l.params.DelegationLockPeriod = seconds
	return nil
}

// Delegates returns the address holding addr's voting power
func (l *Ledger) Delegates(addr common.Address) common.Address {
	l.delegMu.RLock()
	defer l.delegMu.RUnlock()
	if rec, ok := l.delegations[addr]; ok {
		return rec.Delegatee
	}
	return addr
}

// GetDelegation returns delegator's active delegation
func (l *Ledger) GetDelegation(delegator common.Address) (*models.Delegation, error) {
	l.delegMu.RLock()
	defer l.delegMu.RUnlock()
	rec, ok := l.delegations[delegator]
	if !ok {
		return nil, notFound("No active delegation", delegator.Hex())
	}
	out := *rec
	return &out, nil
}

// DelegationHistory returns every delegation delegator has made, oldest
// first
func (l *Ledger) DelegationHistory(delegator common.Address) []models.Delegation {
	l.delegMu.RLock()
	defer l.delegMu.RUnlock()
	hist := l.delegationHistory[delegator]
	out := make([]models.Delegation, len(hist))
	copy(out, hist)
	return out
}

// VotingPower is addr's own stake, unless delegated away, plus the stake
// of every address delegating to it.
func (l *Ledger) VotingPower(addr common.Address) uint64 {
	l.delegMu.RLock()
	defer l.delegMu.RUnlock()
	l.stakeMu.RLock()
	defer l.stakeMu.RUnlock()

	var power uint64
	if rec, ok := l.delegations[addr]; !ok || rec.Delegatee == addr {
		power += l.stakeAmountLocked(addr)
	}
	for delegator, rec := range l.delegations {
		if delegator != addr && rec.Delegatee == addr {
			power += l.stakeAmountLocked(delegator)
		}
	}
	return power
}

func (l *Ledger) stakeAmountLocked(addr common.Address) uint64 {
	if pos, ok := l.positions[addr]; ok {
		return pos.Amount
	}
	return 0
}

// GetGovernedParameters returns the live template-governed parameters
func (l *Ledger) GetGovernedParameters() models.GovernedParameters {
	l.paramsMu.RLock()
	defer l.paramsMu.RUnlock()
	return l.params
}
