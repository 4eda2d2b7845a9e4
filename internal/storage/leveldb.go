package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/smartdevs17/govledger/internal/models"
	"github.com/smartdevs17/govledger/pkg/utils"
)

const eventKeyPrefix = "event:"

// LevelDBStorage keeps the event log in an embedded LevelDB, one key per
// sequence number. Zero-padded keys make iteration order sequence order.
type LevelDBStorage struct {
	mu     sync.Mutex
	conn   *leveldb.DB
	config *StorageConfig
	logger *logrus.Logger
}

// NewLevelDBStorage creates a LevelDB storage rooted at the connection string path
func NewLevelDBStorage(config *StorageConfig) *LevelDBStorage {
	return &LevelDBStorage{
		config: config,
		logger: utils.GetLogger(),
	}
}

func eventKey(sequence uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", eventKeyPrefix, sequence))
}

// Connect opens (or creates) the database directory
func (l *LevelDBStorage) Connect() error {
	db, err := leveldb.OpenFile(l.config.ConnectionString, nil)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open LevelDB", err.Error())
	}
	l.conn = db
	l.logger.WithField("path", l.config.ConnectionString).Info("LevelDB opened")
	return nil
}

// Close safely closes the LevelDB connection
func (l *LevelDBStorage) Close() error {
	if l.conn == nil {
		return nil
	}
	err := l.conn.Close()
	l.conn = nil
	return err
}

// Ping verifies the database is open
func (l *LevelDBStorage) Ping() error {
	if l.conn == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	_, err := l.conn.GetProperty("leveldb.num-files-at-level0")
	return err
}

// Migrate is a no-op; the key layout carries no schema.
func (l *LevelDBStorage) Migrate() error {
	return l.Ping()
}

// SaveEvent stores the event under its sequence key. Sequences are never overwritten.
func (l *LevelDBStorage) SaveEvent(ctx context.Context, event *models.LedgerEvent) error {
	if l.conn == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	value, err := json.Marshal(event)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to encode event", err.Error())
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := eventKey(event.Sequence)
	exists, err := l.conn.Has(key, nil)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to check event", err.Error())
	}
	if exists {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save event",
			fmt.Sprintf("sequence %d already stored", event.Sequence))
	}
	if err := l.conn.Put(key, value, nil); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save event", err.Error())
	}
	return nil
}

// scan walks events after filter.AfterSequence in order until fn returns false.
func (l *LevelDBStorage) scan(filter models.EventFilter, fn func(*models.LedgerEvent) bool) error {
	if l.conn == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	r := util.BytesPrefix([]byte(eventKeyPrefix))
	r.Start = eventKey(filter.AfterSequence + 1)

	iter := l.conn.NewIterator(r, nil)
	defer iter.Release()
	for iter.Next() {
		var event models.LedgerEvent
		if err := json.Unmarshal(iter.Value(), &event); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to decode event", err.Error())
		}
		if !filter.Matches(&event) {
			continue
		}
		if !fn(&event) {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to iterate events", err.Error())
	}
	return nil
}

// GetEvents retrieves events matching filter in sequence order
func (l *LevelDBStorage) GetEvents(ctx context.Context, filter models.EventFilter) ([]*models.LedgerEvent, error) {
	var events []*models.LedgerEvent
	skipped := 0
	err := l.scan(filter, func(ev *models.LedgerEvent) bool {
		if skipped < filter.Offset {
			skipped++
			return true
		}
		events = append(events, ev)
		return filter.Limit <= 0 || len(events) < filter.Limit
	})
	return events, err
}

// GetEventCount returns the count of events matching filter
func (l *LevelDBStorage) GetEventCount(ctx context.Context, filter models.EventFilter) (int64, error) {
	var count int64
	err := l.scan(filter, func(*models.LedgerEvent) bool {
		count++
		return true
	})
	return count, err
}

// GetLatestSequence returns the highest stored sequence, 0 when empty
func (l *LevelDBStorage) GetLatestSequence(ctx context.Context) (uint64, error) {
	if l.conn == nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	iter := l.conn.NewIterator(util.BytesPrefix([]byte(eventKeyPrefix)), nil)
	defer iter.Release()
	if !iter.Last() {
		return 0, iter.Error()
	}
	seq, err := strconv.ParseUint(strings.TrimPrefix(string(iter.Key()), eventKeyPrefix), 10, 64)
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Malformed event key", string(iter.Key()))
	}
	return seq, nil
}

// GetStorageStats returns storage statistics
func (l *LevelDBStorage) GetStorageStats() (*StorageStats, error) {
	stats := &StorageStats{EventsByType: make(map[string]int64)}
	err := l.scan(models.EventFilter{}, func(ev *models.LedgerEvent) bool {
		stats.TotalEvents++
		stats.EventsByType[string(ev.Type)]++
		stats.LatestSequence = ev.Sequence
		ts := ev.Timestamp
		if stats.OldestEvent == nil || ts < *stats.OldestEvent {
			stats.OldestEvent = &ts
		}
		if stats.LatestEvent == nil || ts > *stats.LatestEvent {
			latest := ts
			stats.LatestEvent = &latest
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	sizes, err := l.conn.SizeOf([]util.Range{*util.BytesPrefix([]byte(eventKeyPrefix))})
	if err == nil {
		stats.DatabaseSize = sizes.Sum()
	}
	return stats, nil
}

// GetHealth reports LevelDB availability
func (l *LevelDBStorage) GetHealth() *StorageHealth {
	return &StorageHealth{
		StorageType: "LevelDB",
		Healthy:     l.Ping() == nil,
		Details:     map[string]string{"path": l.config.ConnectionString},
		LastPing:    time.Now(),
	}
}
