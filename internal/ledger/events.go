package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartdevs17/govledger/internal/models"
	"github.com/smartdevs17/govledger/pkg/utils"
)

// Event payloads. Each carries the operation inputs needed for replay
// plus the resulting values listeners care about.

type BurnRatePayload struct {
	Pressure uint64 `json:"pressure"`
	Rate     uint64 `json:"rate"`
}

type BaseBurnRatePayload struct {
	Rate uint64 `json:"rate"`
}

type StakePayload struct {
	Amount    uint64 `json:"amount"`
	NewAmount uint64 `json:"new_amount"`
	TierIndex int    `json:"tier_index"`
}

type UnstakePayload struct {
	Amount      uint64 `json:"amount"`
	Full        bool   `json:"full"`
	Fee         uint64 `json:"fee"`
	Burned      uint64 `json:"burned"`
	ToCollector uint64 `json:"to_collector"`
	Returned    uint64 `json:"returned"`
	Remaining   uint64 `json:"remaining"`
	TierIndex   int    `json:"tier_index"`
}

type FeesConfiguredPayload struct {
	Collector common.Address `json:"collector"`
}

type DelegatePayload struct {
	Delegatee common.Address `json:"delegatee"`
	LockUntil uint64         `json:"lock_until"`
}

type UndelegatePayload struct {
	Previous common.Address `json:"previous"`
}

type DelegationLockPayload struct {
	LockPeriod uint64 `json:"lock_period"`
}

type ProposalPayload struct {
	Params   models.GovernanceParams `json:"params"`
	Old      models.GovernanceParams `json:"old"`
	Reason   string                  `json:"reason"`
	Severity models.Severity         `json:"severity"`
}

type TemplateSavedPayload struct {
	TemplateID common.Hash     `json:"template_id"`
	Input      TemplateInput   `json:"input"`
	Version    uint64          `json:"version"`
	Severity   models.Severity `json:"severity"`
}

type MutationAppliedPayload struct {
	TemplateID common.Hash `json:"template_id"`
	Version    uint64      `json:"version"`
	LockPeriod uint64      `json:"lock_period"`
	Fee        uint64      `json:"fee"`
	Rebate     uint64      `json:"rebate"`
}

type AlertThresholdsPayload struct {
	Threshold models.AlertThreshold `json:"threshold"`
	Preset    string                `json:"preset,omitempty"`
}

type SignatureRevokedPayload struct {
	SignatureHash  common.Hash `json:"signature_hash"`
	AlreadyRevoked bool        `json:"already_revoked"`
}

type CommunitySubmittedPayload struct {
	Index  uint64                  `json:"index"`
	Name   string                  `json:"name"`
	Params models.GovernanceParams `json:"params"`
}

type TemplateRewardedPayload struct {
	Index           uint64         `json:"index"`
	Submitter       common.Address `json:"submitter"`
	SubmitterReward uint64         `json:"submitter_reward"`
	VoterReward     uint64         `json:"voter_reward"`
}

type RewardsClaimedPayload struct {
	Indices []int  `json:"indices"`
	Amount  uint64 `json:"amount"`
}

// Restore rebuilds state by re-executing each event's inputs at the
// event's timestamp. Values an event derived from other components' state
// (delegation lock ends, severities) are taken from the event. Nothing is
// re-persisted. The ledger must be fresh and must not serve other calls
// until Restore returns.
func (l *Ledger) Restore(ctx context.Context, events []*models.LedgerEvent) error {
	if l.events.Latest() != 0 {
		return utils.NewAppError(utils.ErrCodeInternal, "Restore requires an empty ledger")
	}

	prev := l.clock.Load()
	l.replaying.Store(true)
	defer func() {
		l.clock.Store(prev)
		l.replaying.Store(false)
	}()

	for _, ev := range events {
		l.clock.Store(&clockBox{fixedClock(ev.Timestamp)})
		if err := l.replay(ctx, ev); err != nil {
			return utils.NewAppError(utils.ErrCodeInternal, "Replay failed",
				fmt.Sprintf("event %d (%s): %v", ev.Sequence, ev.Type, err))
		}
	}
	if err := l.events.Load(events); err != nil {
		return err
	}
	l.logger.WithField("events", len(events)).Info("Ledger state restored")
	return nil
}

func decode[T any](ev *models.LedgerEvent) (*T, error) {
	var p T
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (l *Ledger) replay(ctx context.Context, ev *models.LedgerEvent) error {
	switch ev.Type {
	case models.EventBurnRateUpdated:
		p, err := decode[BurnRatePayload](ev)
		if err != nil {
			return err
		}
		_, err = l.UpdateEnvironmentalPressure(ctx, ev.Actor, p.Pressure)
		return err
	case models.EventBaseBurnRateSet:
		p, err := decode[BaseBurnRatePayload](ev)
		if err != nil {
			return err
		}
		return l.SetBaseBurnRate(ctx, ev.Actor, p.Rate)
	case models.EventStaked:
		p, err := decode[StakePayload](ev)
		if err != nil {
			return err
		}
		_, err = l.Stake(ctx, ev.Actor, p.Amount)
		return err
	case models.EventUnstaked:
		p, err := decode[UnstakePayload](ev)
		if err != nil {
			return err
		}
		if p.Full {
			_, err = l.UnstakeAll(ctx, ev.Actor)
		} else {
			_, err = l.Unstake(ctx, ev.Actor, p.Amount)
		}
		return err
	case models.EventFeesConfigured:
		p, err := decode[FeesConfiguredPayload](ev)
		if err != nil {
			return err
		}
		return l.ConfigureFees(ctx, ev.Actor, p.Collector)
	case models.EventDelegated:
		p, err := decode[DelegatePayload](ev)
		if err != nil {
			return err
		}
		_, err = l.delegate(ctx, ev.Actor, p.Delegatee, &p.LockUntil)
		return err
	case models.EventUndelegated:
		return l.Undelegate(ctx, ev.Actor)
	case models.EventDelegationLockSet:
		p, err := decode[DelegationLockPayload](ev)
		if err != nil {
			return err
		}
		return l.SetDelegationLockPeriod(ctx, ev.Actor, p.LockPeriod)
	case models.EventProposalCreated:
		p, err := decode[ProposalPayload](ev)
		if err != nil {
			return err
		}
		_, err = l.submitProposal(ctx, ev.Actor, p.Params, p.Reason, &p.Severity)
		return err
	case models.EventTemplateSaved:
		p, err := decode[TemplateSavedPayload](ev)
		if err != nil {
			return err
		}
		_, err = l.saveTemplate(ctx, ev.Actor, p.Input, &p.Severity)
		return err
	case models.EventMutationApplied:
		p, err := decode[MutationAppliedPayload](ev)
		if err != nil {
			return err
		}
		_, err = l.ApplyTemplate(ctx, ev.Actor, p.TemplateID, p.Version)
		return err
	case models.EventAlertThresholdsSet:
		p, err := decode[AlertThresholdsPayload](ev)
		if err != nil {
			return err
		}
		return l.setAlertThresholds(ctx, ev.Actor, p.Threshold, p.Preset)
	case models.EventSignatureRevoked:
		p, err := decode[SignatureRevokedPayload](ev)
		if err != nil {
			return err
		}
		return l.RevokeSignature(ctx, ev.Actor, p.SignatureHash)
	case models.EventCommunityTemplateSubmitted:
		p, err := decode[CommunitySubmittedPayload](ev)
		if err != nil {
			return err
		}
		_, err = l.SubmitCommunityTemplate(ctx, ev.Actor, p.Name, p.Params)
		return err
	case models.EventTemplateRewarded:
		p, err := decode[TemplateRewardedPayload](ev)
		if err != nil {
			return err
		}
		return l.VoteForTemplate(ctx, ev.Actor, p.Index)
	case models.EventRewardsClaimed:
		p, err := decode[RewardsClaimedPayload](ev)
		if err != nil {
			return err
		}
		_, err = l.ClaimRewards(ctx, ev.Actor, p.Indices)
		return err
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
}
