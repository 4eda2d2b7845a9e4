package models

import "github.com/ethereum/go-ethereum/common"

// Tier is one row of the staking tier table. Rates are basis points,
// LockPeriod is seconds.
type Tier struct {
	MinStake      uint64 `json:"min_stake" mapstructure:"min_stake"`
	RewardRateBps uint64 `json:"reward_rate_bps" mapstructure:"reward_rate_bps"`
	FeeBps        uint64 `json:"fee_bps" mapstructure:"fee_bps"`
	LockPeriod    uint64 `json:"lock_period" mapstructure:"lock_period"`
}

// StakePosition is an owner's staked balance
type StakePosition struct {
	Owner          common.Address `json:"owner"`
	Amount         uint64         `json:"amount"`
	TierIndex      int            `json:"tier_index"`
	StakeTimestamp uint64         `json:"stake_timestamp"`
}

// UnstakeResult describes the settlement of a withdrawal
type UnstakeResult struct {
	Owner        common.Address `json:"owner"`
	Amount       uint64         `json:"amount"`
	FeeTierIndex int            `json:"fee_tier_index"`
	Fee          uint64         `json:"fee"`
	Burned       uint64         `json:"burned"`
	ToCollector  uint64         `json:"to_collector"`
	Returned     uint64         `json:"returned"`
	Remaining    uint64         `json:"remaining"`
	TierIndex    int            `json:"tier_index"`
	Closed       bool           `json:"closed"`
}

// StakingTotals summarizes staking state
type StakingTotals struct {
	TotalStaked      uint64         `json:"total_staked"`
	TotalBurned      uint64         `json:"total_burned"`
	CollectorBalance uint64         `json:"collector_balance"`
	FeeCollector     common.Address `json:"fee_collector"`
	Positions        int            `json:"positions"`
}

// Delegation records who an address delegates its voting power to
type Delegation struct {
	Delegator common.Address `json:"delegator"`
	Delegatee common.Address `json:"delegatee"`
	Timestamp uint64         `json:"timestamp"`
	LockUntil uint64         `json:"lock_until"`
}

// GovernedParameters are the values a template application mutates
type GovernedParameters struct {
	DelegationLockPeriod uint64      `json:"delegation_lock_period"`
	WithdrawalFee        uint64      `json:"withdrawal_fee"`
	Rebate               uint64      `json:"rebate"`
	AppliedTemplate      common.Hash `json:"applied_template"`
	AppliedVersion       uint64      `json:"applied_version"`
}
