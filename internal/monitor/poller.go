// File: internal/monitor/poller.go
package monitor

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// pollLoop drains the log on every tick until the context is cancelled
func (em *EventMonitor) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(em.config.PollInterval)
	defer ticker.Stop()

	for {
		em.drain(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (em *EventMonitor) drain(ctx context.Context) {
	for ctx.Err() == nil {
		n := em.PollOnce(ctx)
		if n < em.config.BatchSize {
			return
		}
	}
}

// PollOnce processes at most one batch after the cursor and returns how
// many events it consumed
func (em *EventMonitor) PollOnce(ctx context.Context) int {
	em.pollMu.Lock()
	defer em.pollMu.Unlock()

	em.mu.Lock()
	cursor := em.cursor
	handlers := append([]*registeredHandler(nil), em.handlers...)
	now := time.Now()
	em.stats.TotalPolls++
	em.stats.LastPollTime = &now
	em.mu.Unlock()

	events := em.source.Since(cursor, em.config.BatchSize)
	for _, ev := range events {
		if ctx.Err() != nil {
			break
		}

		parsed, err := ParseEvent(ev)
		if err != nil {
			em.recordError(&em.stats.ParseErrors, err)
		} else {
			for _, h := range handlers {
				if !h.criteria.Matches(parsed) {
					continue
				}
				em.mu.Lock()
				em.stats.HandlerCalls++
				em.mu.Unlock()
				if err := h.fn(ctx, parsed); err != nil {
					em.logger.WithFields(logrus.Fields{
						"handler":  h.name,
						"sequence": ev.Sequence,
						"error":    err,
					}).Warn("Event handler failed")
					em.recordError(&em.stats.HandlerErrors, err)
				}
			}
		}

		em.mu.Lock()
		em.cursor = ev.Sequence
		em.stats.EventsProcessed++
		em.mu.Unlock()
		cursor = ev.Sequence
	}

	if len(events) > 0 {
		em.logger.WithFields(logrus.Fields{
			"events": len(events),
			"cursor": cursor,
		}).Debug("Processed event batch")
	}
	return len(events)
}

// recordError bumps counter and remembers err as the last error
func (em *EventMonitor) recordError(counter *uint64, err error) {
	em.mu.Lock()
	defer em.mu.Unlock()
	*counter++
	msg := err.Error()
	now := time.Now()
	em.stats.LastError = &msg
	em.stats.LastErrorTime = &now
}
