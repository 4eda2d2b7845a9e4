package models

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Category classifies a governance template
type Category uint8

const (
	CategoryOptimization Category = iota
	CategorySecurity
	CategoryGovernance
	CategoryEconomic
	CategoryCommunity
)

// CategoryCount is the number of defined categories
const CategoryCount = 5

var categoryNames = []string{"OPTIMIZATION", "SECURITY", "GOVERNANCE", "ECONOMIC", "COMMUNITY"}

func (c Category) Valid() bool { return int(c) < CategoryCount }

func (c Category) String() string {
	if c.Valid() {
		return categoryNames[c]
	}
	return fmt.Sprintf("Category(%d)", uint8(c))
}

func (c Category) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid category %d", uint8(c))
	}
	return []byte(categoryNames[c]), nil
}

func (c *Category) UnmarshalText(text []byte) error {
	v, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// ParseCategory accepts a category name in any case
func ParseCategory(name string) (Category, error) {
	for i, n := range categoryNames {
		if strings.EqualFold(n, name) {
			return Category(i), nil
		}
	}
	return 0, fmt.Errorf("unknown category %q", name)
}

// Template is the current state of a named template
type Template struct {
	ID            common.Hash    `json:"id"`
	Name          string         `json:"name"`
	LatestVersion uint64         `json:"latest_version"`
	LockPeriod    uint64         `json:"lock_period"`
	Fee           uint64         `json:"fee"`
	Rebate        uint64         `json:"rebate"`
	Category      Category       `json:"category"`
	Tags          []string       `json:"tags"`
	CreatedBy     common.Address `json:"created_by"`
	CreatedAt     uint64         `json:"created_at"`
	UpdatedAt     uint64         `json:"updated_at"`
}

// ChangeLogEntry records one template version. Field order is part of the
// canonical export encoding.
type ChangeLogEntry struct {
	Version    uint64         `json:"version"`
	Timestamp  uint64         `json:"timestamp"`
	ModifiedBy common.Address `json:"modified_by"`
	OldLock    uint64         `json:"old_lock"`
	NewLock    uint64         `json:"new_lock"`
	OldFee     uint64         `json:"old_fee"`
	NewFee     uint64         `json:"new_fee"`
	OldRebate  uint64         `json:"old_rebate"`
	NewRebate  uint64         `json:"new_rebate"`
	Category   Category       `json:"category"`
	Tags       []string       `json:"tags"`
	Reason     string         `json:"reason"`
	Severity   Severity       `json:"severity"`
}

// CategoryStats counts a template's versions per category
type CategoryStats struct {
	Optimization uint64 `json:"optimization"`
	Security     uint64 `json:"security"`
	Governance   uint64 `json:"governance"`
	Economic     uint64 `json:"economic"`
	Community    uint64 `json:"community"`
}

// Add increments the counter for c
func (s *CategoryStats) Add(c Category) {
	switch c {
	case CategoryOptimization:
		s.Optimization++
	case CategorySecurity:
		s.Security++
	case CategoryGovernance:
		s.Governance++
	case CategoryEconomic:
		s.Economic++
	case CategoryCommunity:
		s.Community++
	}
}

// TemplateExport is the full export of one template
type TemplateExport struct {
	ID            common.Hash      `json:"id"`
	Name          string           `json:"name"`
	LatestVersion uint64           `json:"latest_version"`
	Changes       []ChangeLogEntry `json:"changes"`
	TopTags       []string         `json:"top_tags"`
	CategoryStats CategoryStats    `json:"category_stats"`
	DataHash      common.Hash      `json:"data_hash"`
}

// BatchExport holds parallel sequences for several templates
type BatchExport struct {
	IDs        []common.Hash      `json:"ids"`
	Names      []string           `json:"names"`
	Versions   []uint64           `json:"versions"`
	AllChanges [][]ChangeLogEntry `json:"all_changes"`
}

// TemplateComparison is a side-by-side view of template parameters.
// RecentParams rows are (lockPeriod, fee, rebate).
type TemplateComparison struct {
	Names        []string    `json:"names"`
	Versions     []uint64    `json:"versions"`
	RecentParams [][3]uint64 `json:"recent_params"`
}

// SignedExport is an export payload submitted together with its signature
type SignedExport struct {
	TemplateID    common.Hash      `json:"template_id"`
	Name          string           `json:"name"`
	LatestVersion uint64           `json:"latest_version"`
	Changes       []ChangeLogEntry `json:"changes"`
	ValidUntil    uint64           `json:"valid_until"`
	Signature     hexutil.Bytes    `json:"signature"`
}

// ExportSignature is the outcome of a successful verification
type ExportSignature struct {
	TemplateID    common.Hash    `json:"template_id"`
	DataHash      common.Hash    `json:"data_hash"`
	MessageHash   common.Hash    `json:"message_hash"`
	SignatureHash common.Hash    `json:"signature_hash"`
	Signer        common.Address `json:"signer"`
	ValidUntil    uint64         `json:"valid_until"`
}

// BatchVerifyResult holds per-entry verification outcomes
type BatchVerifyResult struct {
	IsValid []bool           `json:"is_valid"`
	Signers []common.Address `json:"signers"`
	Errors  []string         `json:"errors"`
}

// CommunityTemplate is a user-submitted governance parameter proposal
type CommunityTemplate struct {
	Index        uint64         `json:"index"`
	Name         string         `json:"name"`
	Submitter    common.Address `json:"submitter"`
	MinDuration  uint64         `json:"min_duration"`
	QuorumPct    uint64         `json:"quorum_pct"`
	DelaySeconds uint64         `json:"delay_seconds"`
	Votes        uint64         `json:"votes"`
	SubmittedAt  uint64         `json:"submitted_at"`
}

// RewardEntry is a claimable reward credited to a user
type RewardEntry struct {
	TemplateIndex uint64 `json:"template_index"`
	Amount        uint64 `json:"amount"`
	Timestamp     uint64 `json:"timestamp"`
	Claimed       bool   `json:"claimed"`
}
