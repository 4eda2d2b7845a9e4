package eventlog

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/govledger/internal/models"
	"github.com/smartdevs17/govledger/pkg/utils"
)

// SubscriberQueueSize is the default buffer of a subscription channel
const SubscriberQueueSize = 64

type SubscriberID int

// Store persists events before they become visible in the log
type Store interface {
	SaveEvent(ctx context.Context, event *models.LedgerEvent) error
}

type subscriber struct {
	ch      chan *models.LedgerEvent
	dropped uint64
}

// Log is an ordered, append-only event log. Sequence numbers start at 1
// and have no gaps. Subscribers receive events without blocking Append;
// a subscriber whose buffer is full misses the event and is expected to
// catch up with Since.
type Log struct {
	mu          sync.RWMutex
	events      []*models.LedgerEvent
	store       Store
	subscribers map[SubscriberID]*subscriber
	lastSubID   SubscriberID
	closed      bool
	logger      *logrus.Entry
}

// New creates a log. store may be nil for an in-memory log.
func New(store Store) *Log {
	return &Log{
		store:       store,
		subscribers: make(map[SubscriberID]*subscriber),
		logger:      utils.ComponentLogger("event_log"),
	}
}

// Load seeds an empty log with previously persisted events.
func (l *Log) Load(events []*models.LedgerEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.events) > 0 {
		return utils.NewAppError(utils.ErrCodeInternal, "Event log already populated")
	}
	for i, ev := range events {
		if ev.Sequence != uint64(i+1) {
			return utils.NewAppError(utils.ErrCodeDatabase, "Event sequence gap",
				fmt.Sprintf("expected sequence %d, got %d", i+1, ev.Sequence))
		}
	}
	l.events = append(l.events, events...)
	l.logger.WithField("events", len(events)).Info("Event log loaded")
	return nil
}

// Append assigns the next sequence number, persists the event and then
// publishes it. Nothing is published if persistence fails.
func (l *Log) Append(ctx context.Context, event *models.LedgerEvent) (*models.LedgerEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, utils.NewAppError(utils.ErrCodeInternal, "Event log closed")
	}

	ev := *event
	ev.Sequence = uint64(len(l.events)) + 1
	if ev.ID == "" {
		ev.ID = utils.GenerateID()
	}

	if l.store != nil {
		if err := l.store.SaveEvent(ctx, &ev); err != nil {
			return nil, utils.WrapError(utils.ErrCodeDatabase, "Failed to persist event", err)
		}
	}

	l.events = append(l.events, &ev)

	for id, sub := range l.subscribers {
		select {
		case sub.ch <- &ev:
		default:
			sub.dropped++
			l.logger.WithFields(logrus.Fields{
				"subscriber": id,
				"sequence":   ev.Sequence,
			}).Debug("Subscriber queue full, event dropped")
		}
	}

	return &ev, nil
}

// Since returns up to limit events with a sequence greater than cursor.
// A non-positive limit returns all of them.
func (l *Log) Since(cursor uint64, limit int) []*models.LedgerEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if cursor >= uint64(len(l.events)) {
		return nil
	}
	tail := l.events[cursor:]
	if limit > 0 && len(tail) > limit {
		tail = tail[:limit]
	}
	out := make([]*models.LedgerEvent, len(tail))
	copy(out, tail)
	return out
}

// Query returns events matching the filter
func (l *Log) Query(filter models.EventFilter) []*models.LedgerEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*models.LedgerEvent
	skipped := 0
	for _, ev := range l.events {
		if !filter.Matches(ev) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		out = append(out, ev)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out
}

// Latest returns the sequence of the newest event, or 0 when empty
func (l *Log) Latest() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.events))
}

// Subscribe registers a channel that receives every appended event
func (l *Log) Subscribe(buffer int) (SubscriberID, <-chan *models.LedgerEvent) {
	if buffer <= 0 {
		buffer = SubscriberQueueSize
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lastSubID++
	sub := &subscriber{ch: make(chan *models.LedgerEvent, buffer)}
	if l.closed {
		close(sub.ch)
		return l.lastSubID, sub.ch
	}
	l.subscribers[l.lastSubID] = sub
	return l.lastSubID, sub.ch
}

// Unsubscribe removes a subscriber and closes its channel
func (l *Log) Unsubscribe(id SubscriberID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if sub, ok := l.subscribers[id]; ok {
		close(sub.ch)
		delete(l.subscribers, id)
	}
}

// Dropped returns how many events a subscriber has missed
func (l *Log) Dropped(id SubscriberID) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if sub, ok := l.subscribers[id]; ok {
		return sub.dropped
	}
	return 0
}

// Close rejects further appends and closes all subscriber channels
func (l *Log) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	l.closed = true
	for id, sub := range l.subscribers {
		close(sub.ch)
		delete(l.subscribers, id)
	}
}
