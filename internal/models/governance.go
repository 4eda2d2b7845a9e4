package models

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Severity grades how disruptive a parameter change is
type Severity uint8

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = []string{"LOW", "MEDIUM", "HIGH", "CRITICAL"}

func (s Severity) String() string {
	if int(s) < len(severityNames) {
		return severityNames[s]
	}
	return fmt.Sprintf("Severity(%d)", uint8(s))
}

func (s Severity) MarshalText() ([]byte, error) {
	if int(s) >= len(severityNames) {
		return nil, fmt.Errorf("invalid severity %d", uint8(s))
	}
	return []byte(severityNames[s]), nil
}

func (s *Severity) UnmarshalText(text []byte) error {
	v, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseSeverity accepts a severity name in any case
func ParseSeverity(name string) (Severity, error) {
	for i, n := range severityNames {
		if strings.EqualFold(n, name) {
			return Severity(i), nil
		}
	}
	return SeverityLow, fmt.Errorf("unknown severity %q", name)
}

// GovernanceParams is the timelocked governance parameter set
type GovernanceParams struct {
	MinDuration  uint64 `json:"min_duration"`
	QuorumPct    uint64 `json:"quorum_pct"`
	DelaySeconds uint64 `json:"delay_seconds"`
}

// GovernanceChange is one applied proposal
type GovernanceChange struct {
	Timestamp uint64           `json:"timestamp"`
	Proposer  common.Address   `json:"proposer"`
	Old       GovernanceParams `json:"old"`
	New       GovernanceParams `json:"new"`
	Reason    string           `json:"reason"`
	Severity  Severity         `json:"severity"`
}

// GovernanceAlert is a history entry that crossed a user's thresholds
type GovernanceAlert struct {
	Index    int              `json:"index"`
	Severity Severity         `json:"severity"`
	Change   GovernanceChange `json:"change"`
}

// AlertThreshold is a per-user set of severity thresholds. MinDurationDelta
// is days, QuorumDelta percentage points, DelayDelta seconds.
type AlertThreshold struct {
	MinDurationDelta uint64 `json:"min_duration_delta" mapstructure:"min_duration_delta"`
	QuorumDelta      uint64 `json:"quorum_delta" mapstructure:"quorum_delta"`
	DelayDelta       uint64 `json:"delay_delta" mapstructure:"delay_delta"`
	Enabled          bool   `json:"enabled" mapstructure:"enabled"`
}

// ThresholdPreset is a named, ready-made AlertThreshold
type ThresholdPreset struct {
	Name             string `json:"name"`
	MinDurationDelta uint64 `json:"min_duration_delta"`
	QuorumDelta      uint64 `json:"quorum_delta"`
	DelayDelta       uint64 `json:"delay_delta"`
}

// Threshold converts the preset to an enabled AlertThreshold
func (p ThresholdPreset) Threshold() AlertThreshold {
	return AlertThreshold{
		MinDurationDelta: p.MinDurationDelta,
		QuorumDelta:      p.QuorumDelta,
		DelayDelta:       p.DelayDelta,
		Enabled:          true,
	}
}
