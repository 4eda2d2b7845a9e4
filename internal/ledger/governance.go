package ledger

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/govledger/internal/models"
	"github.com/smartdevs17/govledger/pkg/utils"
)

const (
	maxMinDurationDays = 365
	maxDelaySeconds    = 365 * SecondsPerDay
)

func validateGovernanceParams(p models.GovernanceParams) error {
	if p.MinDuration == 0 || p.MinDuration > maxMinDurationDays {
		return validationError("Minimum duration out of bounds", fmt.Sprintf("%d", p.MinDuration))
	}
	if p.QuorumPct == 0 || p.QuorumPct > 100 {
		return validationError("Quorum must be between 1 and 100", fmt.Sprintf("%d", p.QuorumPct))
	}
	if p.DelaySeconds > maxDelaySeconds {
		return validationError("Execution delay out of bounds", fmt.Sprintf("%d", p.DelaySeconds))
	}
	return nil
}

func (l *Ledger) validateReason(reason string) error {
	if reason != "" && utf8.RuneCountInString(reason) < l.config.MinReasonLength {
		return validationError("Reason too short")
	}
	return nil
}

// SubmitGovernanceProposal replaces the governance parameters as one unit.
// It is rejected while the timelock following the previous change is
// active. Accepted proposals apply immediately.
func (l *Ledger) SubmitGovernanceProposal(ctx context.Context, proposer common.Address, params models.GovernanceParams, reason string) (change *models.GovernanceChange, err error) {
	defer l.track("submit_proposal", time.Now(), &err)
	return l.submitProposal(ctx, proposer, params, reason, nil)
}

// submitProposal applies a proposal. A non-nil severity replaces the
// classification against the proposer's current thresholds.
func (l *Ledger) submitProposal(ctx context.Context, proposer common.Address, params models.GovernanceParams, reason string, recorded *models.Severity) (*models.GovernanceChange, error) {
	if err := validateGovernanceParams(params); err != nil {
		return nil, err
	}
	if err := l.validateReason(reason); err != nil {
		return nil, err
	}

	l.govMu.Lock()
	defer l.govMu.Unlock()

	now := l.now()
	interval := uint64(l.config.TimelockInterval / time.Second)
	if l.hasChanged && (now < l.lastChange || now-l.lastChange < interval) {
		return nil, utils.NewAppError(utils.ErrCodeTimelockActive, "Timelock active",
			fmt.Sprintf("next change allowed at %d", l.lastChange+interval))
	}

	l.alertMu.RLock()
	defer l.alertMu.RUnlock()

	old := l.governance
	severity := ClassifySeverity(governanceDelta(old, params), l.effectiveThresholdsLocked(proposer))
	if recorded != nil {
		severity = *recorded
	}
	rec := models.GovernanceChange{
		Timestamp: now,
		Proposer:  proposer,
		Old:       old,
		New:       params,
		Reason:    reason,
		Severity:  severity,
	}

	if err := l.emit(ctx, models.EventProposalCreated, proposer, now, &ProposalPayload{
		Params:   params,
		Old:      old,
		Reason:   reason,
		Severity: severity,
	}); err != nil {
		return nil, err
	}

	l.governance = params
	l.lastChange = now
	l.hasChanged = true
	l.history = append(l.history, rec)

	if l.metrics != nil {
		l.metrics.GetPrometheusMetrics().RecordParameterChange("governance", severity.String())
	}
	l.logger.WithFields(logrus.Fields{
		"proposer":     proposer.Hex(),
		"min_duration": params.MinDuration,
		"quorum":       params.QuorumPct,
		"delay":        params.DelaySeconds,
		"severity":     severity.String(),
	}).Info("Governance parameters changed")

	out := rec
	return &out, nil
}

// GetGovernanceParameters returns the current governance parameters
func (l *Ledger) GetGovernanceParameters() models.GovernanceParams {
	l.govMu.RLock()
	defer l.govMu.RUnlock()
	return l.governance
}

// GetGovernanceHistory returns all applied changes, oldest first
func (l *Ledger) GetGovernanceHistory() []models.GovernanceChange {
	l.govMu.RLock()
	defer l.govMu.RUnlock()
	out := make([]models.GovernanceChange, len(l.history))
	copy(out, l.history)
	return out
}

// NextChangeAllowedAt returns the earliest time a proposal can succeed
func (l *Ledger) NextChangeAllowedAt() uint64 {
	l.govMu.RLock()
	defer l.govMu.RUnlock()
	if !l.hasChanged {
		return 0
	}
	return l.lastChange + uint64(l.config.TimelockInterval/time.Second)
}

// GovernanceAlerts reclassifies history with user's effective thresholds
// and returns the entries graded above LOW.
func (l *Ledger) GovernanceAlerts(user common.Address) []models.GovernanceAlert {
	l.govMu.RLock()
	defer l.govMu.RUnlock()

	thresholds := l.effectiveThresholds(user)
	var alerts []models.GovernanceAlert
	for i, change := range l.history {
		sev := ClassifySeverity(governanceDelta(change.Old, change.New), thresholds)
		if sev == models.SeverityLow {
			continue
		}
		alerts = append(alerts, models.GovernanceAlert{Index: i, Severity: sev, Change: change})
	}
	return alerts
}
