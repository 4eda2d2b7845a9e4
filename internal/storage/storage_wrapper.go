package storage

import (
	"context"
	"time"

	"github.com/smartdevs17/govledger/internal/metrics"
	"github.com/smartdevs17/govledger/internal/models"
)

// StorageWithMetrics wraps a storage implementation with metrics
type StorageWithMetrics struct {
	Storage
	metricsManager *metrics.Manager
}

// NewStorageWithMetrics creates a storage wrapper with metrics
func NewStorageWithMetrics(storage Storage, metricsManager *metrics.Manager) *StorageWithMetrics {
	return &StorageWithMetrics{
		Storage:        storage,
		metricsManager: metricsManager,
	}
}

func (s *StorageWithMetrics) record(operation string, start time.Time, err error) {
	if s.metricsManager == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metricsManager.GetPrometheusMetrics().RecordDatabaseOperation(operation, "ledger_events", status, time.Since(start))
}

// SaveEvent saves an event and records metrics
func (s *StorageWithMetrics) SaveEvent(ctx context.Context, event *models.LedgerEvent) error {
	start := time.Now()
	err := s.Storage.SaveEvent(ctx, event)
	s.record("insert", start, err)
	return err
}

// GetEvents queries events and records metrics
func (s *StorageWithMetrics) GetEvents(ctx context.Context, filter models.EventFilter) ([]*models.LedgerEvent, error) {
	start := time.Now()
	events, err := s.Storage.GetEvents(ctx, filter)
	s.record("select", start, err)
	return events, err
}
