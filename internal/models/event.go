package models

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
)

// EventType names a ledger state transition
type EventType string

const (
	EventBurnRateUpdated            EventType = "BurnRateUpdated"
	EventBaseBurnRateSet            EventType = "BaseBurnRateSet"
	EventStaked                     EventType = "Staked"
	EventUnstaked                   EventType = "Unstaked"
	EventFeesConfigured             EventType = "FeesConfigured"
	EventDelegated                  EventType = "Delegated"
	EventUndelegated                EventType = "Undelegated"
	EventDelegationLockSet          EventType = "DelegationLockSet"
	EventProposalCreated            EventType = "ProposalCreated"
	EventTemplateSaved              EventType = "TemplateSaved"
	EventMutationApplied            EventType = "MutationApplied"
	EventAlertThresholdsSet         EventType = "AlertThresholdsSet"
	EventSignatureRevoked           EventType = "SignatureRevoked"
	EventCommunityTemplateSubmitted EventType = "CommunityTemplateSubmitted"
	EventTemplateRewarded           EventType = "TemplateRewarded"
	EventRewardsClaimed             EventType = "RewardsClaimed"
)

// LedgerEvent is one entry of the append-only event log. Data holds the
// JSON-encoded operation inputs needed to replay the transition.
type LedgerEvent struct {
	Sequence  uint64          `json:"sequence" db:"sequence"`
	ID        string          `json:"id" db:"id"`
	Type      EventType       `json:"type" db:"type"`
	Actor     common.Address  `json:"actor" db:"actor"`
	Timestamp uint64          `json:"timestamp" db:"timestamp"`
	Data      json.RawMessage `json:"data" db:"data"`
}

// EventFilter for querying events
type EventFilter struct {
	AfterSequence uint64          `json:"after_sequence,omitempty"`
	Type          *EventType      `json:"type,omitempty"`
	Actor         *common.Address `json:"actor,omitempty"`
	FromTime      *uint64         `json:"from_time,omitempty"`
	ToTime        *uint64         `json:"to_time,omitempty"`
	Limit         int             `json:"limit,omitempty"`
	Offset        int             `json:"offset,omitempty"`
}

// Matches reports whether ev satisfies every set field of the filter.
// Limit and Offset are ignored.
func (f *EventFilter) Matches(ev *LedgerEvent) bool {
	if ev.Sequence <= f.AfterSequence {
		return false
	}
	if f.Type != nil && ev.Type != *f.Type {
		return false
	}
	if f.Actor != nil && ev.Actor != *f.Actor {
		return false
	}
	if f.FromTime != nil && ev.Timestamp < *f.FromTime {
		return false
	}
	if f.ToTime != nil && ev.Timestamp > *f.ToTime {
		return false
	}
	return true
}
