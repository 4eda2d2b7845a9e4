// File: internal/storage/storage.go
package storage

import (
	"context"
	"time"

	"github.com/smartdevs17/govledger/internal/models"
)

// Storage defines the interface for durable ledger event storage
type Storage interface {
	// Connection management
	Connect() error
	Close() error
	Ping() error
	Migrate() error

	// Event operations
	SaveEvent(ctx context.Context, event *models.LedgerEvent) error
	GetEvents(ctx context.Context, filter models.EventFilter) ([]*models.LedgerEvent, error)
	GetEventCount(ctx context.Context, filter models.EventFilter) (int64, error)
	GetLatestSequence(ctx context.Context) (uint64, error)

	// Statistics and monitoring
	GetStorageStats() (*StorageStats, error)
	GetHealth() *StorageHealth
}

// StorageStats provides storage statistics
type StorageStats struct {
	TotalEvents    int64            `json:"total_events"`
	EventsByType   map[string]int64 `json:"events_by_type"`
	LatestSequence uint64           `json:"latest_sequence"`
	OldestEvent    *uint64          `json:"oldest_event,omitempty"`
	LatestEvent    *uint64          `json:"latest_event,omitempty"`
	DatabaseSize   int64            `json:"database_size_bytes"`
}

// StorageHealth reports backend reachability
type StorageHealth struct {
	StorageType string            `json:"storage_type"`
	Healthy     bool              `json:"healthy"`
	Details     map[string]string `json:"details,omitempty"`
	LastPing    time.Time         `json:"last_ping"`
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type             string        `json:"type"`
	ConnectionString string        `json:"connection_string"`
	MaxConnections   int           `json:"max_connections"`
	MaxIdleTime      time.Duration `json:"max_idle_time"`
	BatchSize        int           `json:"batch_size"`
}

// LoadAll reads the whole log in pages of batchSize, in sequence order.
func LoadAll(ctx context.Context, store Storage, batchSize int) ([]*models.LedgerEvent, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	var (
		all    []*models.LedgerEvent
		cursor uint64
	)
	for {
		page, err := store.GetEvents(ctx, models.EventFilter{AfterSequence: cursor, Limit: batchSize})
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < batchSize {
			return all, nil
		}
		cursor = page[len(page)-1].Sequence
	}
}
