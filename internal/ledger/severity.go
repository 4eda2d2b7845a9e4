package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartdevs17/govledger/internal/models"
)

// ChangeDelta is the magnitude of a parameter change in threshold units
type ChangeDelta struct {
	DurationDays  uint64
	PercentPoints uint64
	DelaySeconds  uint64
}

// SeverityRule maps one delta field to the severity it raises once the
// field reaches its threshold.
type SeverityRule struct {
	Field    string
	Severity models.Severity
}

// SeverityRules is the escalation table. A threshold of zero disables the
// corresponding field.
var SeverityRules = []SeverityRule{
	{Field: "percent", Severity: models.SeverityCritical},
	{Field: "duration", Severity: models.SeverityHigh},
	{Field: "delay", Severity: models.SeverityMedium},
}

var thresholdPresets = []models.ThresholdPreset{
	{Name: "Conservative", MinDurationDelta: 1, QuorumDelta: 2, DelayDelta: 3600},
	{Name: "Balanced", MinDurationDelta: 3, QuorumDelta: 5, DelayDelta: 6 * 3600},
	{Name: "Aggressive", MinDurationDelta: 5, QuorumDelta: 10, DelayDelta: 24 * 3600},
}

// ClassifySeverity grades delta against thresholds, returning the highest
// severity whose field threshold is reached.
func ClassifySeverity(delta ChangeDelta, thresholds models.AlertThreshold) models.Severity {
	sev := models.SeverityLow
	for _, rule := range SeverityRules {
		var value, limit uint64
		switch rule.Field {
		case "percent":
			value, limit = delta.PercentPoints, thresholds.QuorumDelta
		case "duration":
			value, limit = delta.DurationDays, thresholds.MinDurationDelta
		case "delay":
			value, limit = delta.DelaySeconds, thresholds.DelayDelta
		}
		if limit > 0 && value >= limit && rule.Severity > sev {
			sev = rule.Severity
		}
	}
	return sev
}

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}

func governanceDelta(old, next models.GovernanceParams) ChangeDelta {
	return ChangeDelta{
		DurationDays:  absDiff(old.MinDuration, next.MinDuration),
		PercentPoints: absDiff(old.QuorumPct, next.QuorumPct),
		DelaySeconds:  absDiff(old.DelaySeconds, next.DelaySeconds),
	}
}

func templateDelta(oldLock, newLock, oldFee, newFee, oldRebate, newRebate uint64) ChangeDelta {
	return ChangeDelta{
		DurationDays:  absDiff(oldLock, newLock) / SecondsPerDay,
		PercentPoints: max(absDiff(oldFee, newFee), absDiff(oldRebate, newRebate)),
	}
}

// effectiveThresholds returns user's thresholds if enabled, otherwise the
// configured defaults.
func (l *Ledger) effectiveThresholds(user common.Address) models.AlertThreshold {
	l.alertMu.RLock()
	defer l.alertMu.RUnlock()
	return l.effectiveThresholdsLocked(user)
}

// effectiveThresholdsLocked requires alertMu.
func (l *Ledger) effectiveThresholdsLocked(user common.Address) models.AlertThreshold {
	if t, ok := l.thresholds[user]; ok && t.Enabled {
		return t
	}
	return l.config.DefaultThresholds
}

// SetAlertThresholds stores a per-user severity override
func (l *Ledger) SetAlertThresholds(ctx context.Context, user common.Address, threshold models.AlertThreshold) (err error) {
	defer l.track("set_alert_thresholds", time.Now(), &err)
	return l.setAlertThresholds(ctx, user, threshold, "")
}

// ApplyThresholdPreset stores the named preset as user's enabled override
func (l *Ledger) ApplyThresholdPreset(ctx context.Context, user common.Address, name string) (err error) {
	defer l.track("apply_threshold_preset", time.Now(), &err)

	for _, p := range thresholdPresets {
		if strings.EqualFold(p.Name, name) {
			return l.setAlertThresholds(ctx, user, p.Threshold(), p.Name)
		}
	}
	return notFound("Unknown threshold preset", name)
}

func (l *Ledger) setAlertThresholds(ctx context.Context, user common.Address, threshold models.AlertThreshold, preset string) error {
	if threshold.QuorumDelta > 100 {
		return validationError("Quorum delta must be at most 100")
	}

	l.alertMu.Lock()
	defer l.alertMu.Unlock()

	if err := l.emit(ctx, models.EventAlertThresholdsSet, user, l.now(), &AlertThresholdsPayload{
		Threshold: threshold,
		Preset:    preset,
	}); err != nil {
		return err
	}
	l.thresholds[user] = threshold
	return nil
}

// UserThresholds returns user's stored override and whether one exists
func (l *Ledger) UserThresholds(user common.Address) (models.AlertThreshold, bool) {
	l.alertMu.RLock()
	defer l.alertMu.RUnlock()
	t, ok := l.thresholds[user]
	return t, ok
}

// GetAvailableTemplates returns the built-in threshold presets
func (l *Ledger) GetAvailableTemplates() []models.ThresholdPreset {
	out := make([]models.ThresholdPreset, len(thresholdPresets))
	copy(out, thresholdPresets)
	return out
}
