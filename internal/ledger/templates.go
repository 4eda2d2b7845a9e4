package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/asaskevich/govalidator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/govledger/internal/models"
	"github.com/smartdevs17/govledger/pkg/utils"
)

// TemplateInput is the request to save a new template version
type TemplateInput struct {
	Name     string          `json:"name"`
	LockDays uint64          `json:"lock_days"`
	Fee      uint64          `json:"fee"`
	Rebate   uint64          `json:"rebate"`
	Reason   string          `json:"reason"`
	Category models.Category `json:"category"`
	Tags     []string        `json:"tags"`
}

type templateRecord struct {
	template models.Template
	changes  []models.ChangeLogEntry
}

func copyChanges(in []models.ChangeLogEntry) []models.ChangeLogEntry {
	out := make([]models.ChangeLogEntry, len(in))
	for i, c := range in {
		out[i] = c
		if c.Tags != nil {
			out[i].Tags = append([]string(nil), c.Tags...)
		}
	}
	return out
}

func (r *templateRecord) snapshot() models.Template {
	t := r.template
	t.Tags = append([]string(nil), r.template.Tags...)
	return t
}

func (l *Ledger) validateTemplateInput(in *TemplateInput) error {
	n := utf8.RuneCountInString(in.Name)
	if n == 0 {
		return validationError("Name required")
	}
	if n > l.config.MaxNameLength {
		return validationError("Name too long")
	}
	if in.LockDays > l.config.MaxLockDays {
		return validationError("Lock period out of bounds", fmt.Sprintf("%d days", in.LockDays))
	}
	if in.Fee > 100 {
		return validationError("Fee out of bounds")
	}
	if in.Rebate > 100 {
		return validationError("Rebate out of bounds")
	}
	if !in.Category.Valid() {
		return validationError("Unknown category")
	}
	if len(in.Tags) > l.config.MaxTags {
		return validationError("Too many tags")
	}
	seen := make(map[string]struct{}, len(in.Tags))
	for _, tag := range in.Tags {
		if tag == "" || !govalidator.IsPrintableASCII(tag) {
			return validationError("Invalid tag", tag)
		}
		if len(tag) > l.config.MaxTagLength {
			return validationError("Tag too long", tag)
		}
		if _, dup := seen[tag]; dup {
			return validationError("Duplicate tag", tag)
		}
		seen[tag] = struct{}{}
	}
	return l.validateReason(in.Reason)
}

// SaveGovernanceTemplate records a new version of the named template and
// returns its version number.
func (l *Ledger) SaveGovernanceTemplate(ctx context.Context, actor common.Address, in TemplateInput) (version uint64, err error) {
	defer l.track("save_template", time.Now(), &err)
	return l.saveTemplate(ctx, actor, in, nil)
}

// saveTemplate appends a template version. A non-nil severity replaces the
// classification against the actor's current thresholds.
func (l *Ledger) saveTemplate(ctx context.Context, actor common.Address, in TemplateInput, recorded *models.Severity) (uint64, error) {
	if err := l.validateTemplateInput(&in); err != nil {
		return 0, err
	}
	id := utils.TemplateID(in.Name)

	l.tplMu.Lock()
	defer l.tplMu.Unlock()
	l.alertMu.RLock()
	defer l.alertMu.RUnlock()

	now := l.now()
	rec, exists := l.templates[id]
	var prev models.Template
	if exists {
		prev = rec.template
	}

	entry := models.ChangeLogEntry{
		Version:    prev.LatestVersion + 1,
		Timestamp:  now,
		ModifiedBy: actor,
		OldLock:    prev.LockPeriod,
		NewLock:    in.LockDays * SecondsPerDay,
		OldFee:     prev.Fee,
		NewFee:     in.Fee,
		OldRebate:  prev.Rebate,
		NewRebate:  in.Rebate,
		Category:   in.Category,
		Tags:       append([]string(nil), in.Tags...),
		Reason:     in.Reason,
	}
	entry.Severity = ClassifySeverity(
		templateDelta(entry.OldLock, entry.NewLock, entry.OldFee, entry.NewFee, entry.OldRebate, entry.NewRebate),
		l.effectiveThresholdsLocked(actor),
	)
	if recorded != nil {
		entry.Severity = *recorded
	}

	if err := l.emit(ctx, models.EventTemplateSaved, actor, now, &TemplateSavedPayload{
		TemplateID: id,
		Input:      in,
		Version:    entry.Version,
		Severity:   entry.Severity,
	}); err != nil {
		return 0, err
	}

	if !exists {
		rec = &templateRecord{template: models.Template{
			ID:        id,
			Name:      in.Name,
			CreatedBy: actor,
			CreatedAt: now,
		}}
		l.templates[id] = rec
		l.templateOrder = append(l.templateOrder, id)
		l.categoryStats[id] = &models.CategoryStats{}
	}
	rec.changes = append(rec.changes, entry)
	rec.template.LatestVersion = entry.Version
	rec.template.LockPeriod = entry.NewLock
	rec.template.Fee = entry.NewFee
	rec.template.Rebate = entry.NewRebate
	rec.template.Category = entry.Category
	rec.template.Tags = entry.Tags
	rec.template.UpdatedAt = now

	l.categoryStats[id].Add(entry.Category)
	for _, tag := range entry.Tags {
		l.tagUsage[tag]++
	}

	if l.metrics != nil {
		p := l.metrics.GetPrometheusMetrics()
		p.UpdateTemplateCount(len(l.templates))
		p.RecordParameterChange("template", entry.Severity.String())
	}
	l.logger.WithFields(logrus.Fields{
		"template": in.Name,
		"version":  entry.Version,
		"category": entry.Category.String(),
		"severity": entry.Severity.String(),
	}).Info("Template version saved")

	return entry.Version, nil
}

// ApplyTemplate copies a template version's parameters into the live
// governed parameters. Version 0 applies the latest version.
func (l *Ledger) ApplyTemplate(ctx context.Context, actor common.Address, id common.Hash, version uint64) (params *models.GovernedParameters, err error) {
	defer l.track("apply_template", time.Now(), &err)

	entry, err := l.GetTemplateVersion(id, version)
	if err != nil {
		return nil, err
	}

	l.paramsMu.Lock()
	defer l.paramsMu.Unlock()

	if err := l.emit(ctx, models.EventMutationApplied, actor, l.now(), &MutationAppliedPayload{
		TemplateID: id,
		Version:    entry.Version,
		LockPeriod: entry.NewLock,
		Fee:        entry.NewFee,
		Rebate:     entry.NewRebate,
	}); err != nil {
		return nil, err
	}

	l.params = models.GovernedParameters{
		DelegationLockPeriod: entry.NewLock,
		WithdrawalFee:        entry.NewFee,
		Rebate:               entry.NewRebate,
		AppliedTemplate:      id,
		AppliedVersion:       entry.Version,
	}
	out := l.params
	return &out, nil
}

// GetTemplate returns the current state of a template
func (l *Ledger) GetTemplate(id common.Hash) (*models.Template, error) {
	l.tplMu.RLock()
	defer l.tplMu.RUnlock()
	rec, ok := l.templates[id]
	if !ok {
		return nil, notFound("Template not found", id.Hex())
	}
	t := rec.snapshot()
	return &t, nil
}

// ListTemplates returns all templates in creation order
func (l *Ledger) ListTemplates() []models.Template {
	l.tplMu.RLock()
	defer l.tplMu.RUnlock()
	out := make([]models.Template, 0, len(l.templateOrder))
	for _, id := range l.templateOrder {
		out = append(out, l.templates[id].snapshot())
	}
	return out
}

// GetTemplateVersion returns one change log entry. Version 0 selects the
// latest.
func (l *Ledger) GetTemplateVersion(id common.Hash, version uint64) (*models.ChangeLogEntry, error) {
	l.tplMu.RLock()
	defer l.tplMu.RUnlock()
	rec, ok := l.templates[id]
	if !ok {
		return nil, notFound("Template not found", id.Hex())
	}
	if version == 0 {
		version = rec.template.LatestVersion
	}
	if version > rec.template.LatestVersion {
		return nil, notFound("Template version not found", fmt.Sprintf("%s v%d", id.Hex(), version))
	}
	entry := copyChanges(rec.changes[version-1 : version])[0]
	return &entry, nil
}

// TemplateChangeLogs returns a template's full change log in version order
func (l *Ledger) TemplateChangeLogs(id common.Hash) ([]models.ChangeLogEntry, error) {
	l.tplMu.RLock()
	defer l.tplMu.RUnlock()
	rec, ok := l.templates[id]
	if !ok {
		return nil, notFound("Template not found", id.Hex())
	}
	return copyChanges(rec.changes), nil
}

// GetChangesByTimeRange returns entries with start <= timestamp <= end. An
// inverted range matches nothing.
func (l *Ledger) GetChangesByTimeRange(id common.Hash, start, end uint64) ([]models.ChangeLogEntry, error) {
	l.tplMu.RLock()
	defer l.tplMu.RUnlock()
	rec, ok := l.templates[id]
	if !ok {
		return nil, notFound("Template not found", id.Hex())
	}
	var out []models.ChangeLogEntry
	for _, c := range rec.changes {
		if c.Timestamp >= start && c.Timestamp <= end {
			out = append(out, c)
		}
	}
	return copyChanges(out), nil
}

// CompareTemplates returns names, versions and current parameters of the
// given templates side by side.
func (l *Ledger) CompareTemplates(ids []common.Hash) (*models.TemplateComparison, error) {
	l.tplMu.RLock()
	defer l.tplMu.RUnlock()

	cmp := &models.TemplateComparison{
		Names:        make([]string, 0, len(ids)),
		Versions:     make([]uint64, 0, len(ids)),
		RecentParams: make([][3]uint64, 0, len(ids)),
	}
	for _, id := range ids {
		rec, ok := l.templates[id]
		if !ok {
			return nil, notFound("Template not found", id.Hex())
		}
		t := rec.template
		cmp.Names = append(cmp.Names, t.Name)
		cmp.Versions = append(cmp.Versions, t.LatestVersion)
		cmp.RecentParams = append(cmp.RecentParams, [3]uint64{t.LockPeriod, t.Fee, t.Rebate})
	}
	return cmp, nil
}

// TemplateCategoryStats returns per-category version counts for a template
func (l *Ledger) TemplateCategoryStats(id common.Hash) (models.CategoryStats, error) {
	l.tplMu.RLock()
	defer l.tplMu.RUnlock()
	stats, ok := l.categoryStats[id]
	if !ok {
		return models.CategoryStats{}, notFound("Template not found", id.Hex())
	}
	return *stats, nil
}

// TagUsageCount returns how many change log entries carry tag
func (l *Ledger) TagUsageCount(tag string) uint64 {
	l.tplMu.RLock()
	defer l.tplMu.RUnlock()
	return l.tagUsage[tag]
}

// topTagsLocked ranks the tags used by rec by global usage, then name
func (l *Ledger) topTagsLocked(rec *templateRecord, n int) []string {
	seen := make(map[string]struct{})
	var tags []string
	for _, c := range rec.changes {
		for _, tag := range c.Tags {
			if _, ok := seen[tag]; !ok {
				seen[tag] = struct{}{}
				tags = append(tags, tag)
			}
		}
	}
	sort.Slice(tags, func(i, j int) bool {
		ci, cj := l.tagUsage[tags[i]], l.tagUsage[tags[j]]
		if ci != cj {
			return ci > cj
		}
		return tags[i] < tags[j]
	})
	if len(tags) > n {
		tags = tags[:n]
	}
	return tags
}

// RecomputeStats rebuilds category stats and tag usage from the change
// logs. The result always equals the incrementally maintained values.
func (l *Ledger) RecomputeStats() (map[common.Hash]models.CategoryStats, map[string]uint64) {
	l.tplMu.RLock()
	defer l.tplMu.RUnlock()

	stats := make(map[common.Hash]models.CategoryStats, len(l.templates))
	tags := make(map[string]uint64)
	for id, rec := range l.templates {
		var s models.CategoryStats
		for _, c := range rec.changes {
			s.Add(c.Category)
			for _, tag := range c.Tags {
				tags[tag]++
			}
		}
		stats[id] = s
	}
	return stats, tags
}

// CurrentStats returns the incrementally maintained aggregates
func (l *Ledger) CurrentStats() (map[common.Hash]models.CategoryStats, map[string]uint64) {
	l.tplMu.RLock()
	defer l.tplMu.RUnlock()

	stats := make(map[common.Hash]models.CategoryStats, len(l.categoryStats))
	for id, s := range l.categoryStats {
		stats[id] = *s
	}
	tags := make(map[string]uint64, len(l.tagUsage))
	for tag, n := range l.tagUsage {
		tags[tag] = n
	}
	return stats, tags
}
