// File: internal/monitor/parser.go
package monitor

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/smartdevs17/govledger/internal/models"
	"github.com/smartdevs17/govledger/pkg/utils"
)

// ParsedEvent contains a ledger event with its decoded payload
type ParsedEvent struct {
	Event     *models.LedgerEvent
	Severity  *models.Severity
	Arguments map[string]interface{}
}

// ParseEvent decodes the event payload generically. Payloads carrying a
// top-level "severity" field (proposals, template saves) expose it.
func ParseEvent(ev *models.LedgerEvent) (*ParsedEvent, error) {
	parsed := &ParsedEvent{Event: ev, Arguments: map[string]interface{}{}}
	if len(ev.Data) == 0 {
		return parsed, nil
	}
	if err := json.Unmarshal(ev.Data, &parsed.Arguments); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Failed to decode event data",
			fmt.Sprintf("sequence %d: %v", ev.Sequence, err))
	}

	if raw, ok := parsed.Arguments["severity"].(string); ok {
		sev, err := models.ParseSeverity(raw)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeValidation, "Unknown severity in event data", raw)
		}
		parsed.Severity = &sev
	}
	return parsed, nil
}

// Summary renders a one-line human readable description
func (p *ParsedEvent) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s by %s", p.Event.Sequence, p.Event.Type, p.Event.Actor.Hex())
	if p.Severity != nil {
		fmt.Fprintf(&b, " [%s]", p.Severity)
	}

	keys := make([]string, 0, len(p.Arguments))
	for k, v := range p.Arguments {
		switch v.(type) {
		case string, float64, bool:
			if k != "severity" {
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, formatArgument(p.Arguments[k]))
	}
	return b.String()
}

func formatArgument(v interface{}) interface{} {
	// JSON numbers decode as float64; print integers without exponent
	if f, ok := v.(float64); ok && f >= 0 && f == float64(uint64(f)) {
		return uint64(f)
	}
	return v
}
