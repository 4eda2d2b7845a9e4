// File: internal/monitor/filter.go
package monitor

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/smartdevs17/govledger/internal/models"
)

// FilterCriteria defines which events a handler receives. Empty fields match everything.
type FilterCriteria struct {
	EventTypes  []models.EventType `json:"event_types,omitempty"`
	Actors      []common.Address   `json:"actors,omitempty"`
	MinSeverity *models.Severity   `json:"min_severity,omitempty"`
}

// Matches checks if a parsed event satisfies the criteria. Events without a
// severity never satisfy a MinSeverity constraint.
func (c *FilterCriteria) Matches(ev *ParsedEvent) bool {
	if c == nil {
		return true
	}

	if len(c.EventTypes) > 0 {
		found := false
		for _, t := range c.EventTypes {
			if ev.Event.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(c.Actors) > 0 {
		found := false
		for _, a := range c.Actors {
			if ev.Event.Actor == a {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if c.MinSeverity != nil {
		if ev.Severity == nil || *ev.Severity < *c.MinSeverity {
			return false
		}
	}
	return true
}
