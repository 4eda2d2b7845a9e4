// File: internal/monitor/monitor.go
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/govledger/internal/metrics"
	"github.com/smartdevs17/govledger/internal/models"
	"github.com/smartdevs17/govledger/pkg/utils"
)

// EventSource is the cursor-readable side of the ledger event log
type EventSource interface {
	Since(cursor uint64, limit int) []*models.LedgerEvent
	Latest() uint64
}

// Handler consumes one matching event. Errors are counted and logged; the
// cursor still advances past the event.
type Handler func(ctx context.Context, ev *ParsedEvent) error

type registeredHandler struct {
	name     string
	criteria *FilterCriteria
	fn       Handler
}

// MonitorConfig holds monitor configuration
type MonitorConfig struct {
	PollInterval  time.Duration `json:"poll_interval"`
	BatchSize     int           `json:"batch_size"`
	StartSequence uint64        `json:"start_sequence"`
	MaxLag        uint64        `json:"max_lag"`
}

// MonitorStats provides monitoring statistics
type MonitorStats struct {
	StartTime       time.Time     `json:"start_time"`
	Uptime          time.Duration `json:"uptime"`
	IsRunning       bool          `json:"is_running"`
	Cursor          uint64        `json:"cursor"`
	LatestSequence  uint64        `json:"latest_sequence"`
	TotalPolls      uint64        `json:"total_polls"`
	EventsProcessed uint64        `json:"events_processed"`
	HandlerCalls    uint64        `json:"handler_calls"`
	HandlerErrors   uint64        `json:"handler_errors"`
	ParseErrors     uint64        `json:"parse_errors"`
	LastPollTime    *time.Time    `json:"last_poll_time,omitempty"`
	LastError       *string       `json:"last_error,omitempty"`
	LastErrorTime   *time.Time    `json:"last_error_time,omitempty"`
}

// HealthStatus provides health information
type HealthStatus struct {
	Healthy bool     `json:"healthy"`
	Lag     uint64   `json:"lag"`
	Issues  []string `json:"issues,omitempty"`
}

// EventMonitor follows the ledger event log with a cursor and dispatches
// new events to registered handlers
type EventMonitor struct {
	source         EventSource
	config         *MonitorConfig
	logger         *logrus.Entry
	metricsManager *metrics.Manager

	// pollMu serializes batches so an event is never handed out twice
	pollMu sync.Mutex

	mu       sync.RWMutex
	running  bool
	cursor   uint64
	handlers []*registeredHandler
	cancel   context.CancelFunc
	done     chan struct{}
	stats    MonitorStats
}

// NewEventMonitor creates a new event monitor
func NewEventMonitor(source EventSource, config *MonitorConfig, metricsManager *metrics.Manager) *EventMonitor {
	cfg := *config
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MaxLag == 0 {
		cfg.MaxLag = uint64(cfg.BatchSize) * 10
	}
	return &EventMonitor{
		source:         source,
		config:         &cfg,
		logger:         utils.ComponentLogger("monitor"),
		metricsManager: metricsManager,
		cursor:         cfg.StartSequence,
		stats:          MonitorStats{StartTime: time.Now()},
	}
}

// AddHandler registers fn for events matching criteria (nil matches all)
func (em *EventMonitor) AddHandler(name string, criteria *FilterCriteria, fn Handler) {
	em.mu.Lock()
	defer em.mu.Unlock()
	em.handlers = append(em.handlers, &registeredHandler{name: name, criteria: criteria, fn: fn})
	em.logger.WithField("handler", name).Debug("Handler registered")
}

// Start starts the polling loop
func (em *EventMonitor) Start(ctx context.Context) error {
	em.mu.Lock()
	defer em.mu.Unlock()

	if em.running {
		return utils.NewAppError(utils.ErrCodeInternal, "Monitor already running", "")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	em.cancel = cancel
	em.done = make(chan struct{})
	em.running = true
	em.stats.StartTime = time.Now()

	go em.pollLoop(loopCtx, em.done)

	em.logger.WithFields(logrus.Fields{
		"cursor":        em.cursor,
		"poll_interval": em.config.PollInterval,
		"handlers":      len(em.handlers),
	}).Info("Event monitor started")
	return nil
}

// Stop stops the polling loop and waits for the in-flight batch to finish
func (em *EventMonitor) Stop() error {
	em.mu.Lock()
	if !em.running {
		em.mu.Unlock()
		return nil
	}
	em.running = false
	em.cancel()
	done := em.done
	em.mu.Unlock()

	<-done
	em.logger.Info("Event monitor stopped")
	return nil
}

// IsRunning returns whether the monitor is running
func (em *EventMonitor) IsRunning() bool {
	em.mu.RLock()
	defer em.mu.RUnlock()
	return em.running
}

// Cursor returns the sequence of the last event handed to handlers
func (em *EventMonitor) Cursor() uint64 {
	em.mu.RLock()
	defer em.mu.RUnlock()
	return em.cursor
}

// GetStats returns a snapshot of monitor statistics
func (em *EventMonitor) GetStats() *MonitorStats {
	em.mu.RLock()
	defer em.mu.RUnlock()

	stats := em.stats
	stats.IsRunning = em.running
	stats.Cursor = em.cursor
	stats.LatestSequence = em.source.Latest()
	if em.running {
		stats.Uptime = time.Since(stats.StartTime)
	}
	return &stats
}

// GetHealth reports whether the monitor is running and keeping up
func (em *EventMonitor) GetHealth() *HealthStatus {
	stats := em.GetStats()
	health := &HealthStatus{Healthy: true}
	if stats.LatestSequence > stats.Cursor {
		health.Lag = stats.LatestSequence - stats.Cursor
	}
	if !stats.IsRunning {
		health.Healthy = false
		health.Issues = append(health.Issues, "monitor not running")
	}
	if health.Lag > em.config.MaxLag {
		health.Healthy = false
		health.Issues = append(health.Issues, "monitor lagging behind event log")
	}
	if em.metricsManager != nil {
		em.metricsManager.GetPrometheusMetrics().UpdateComponentHealth("monitor", health.Healthy)
	}
	return health
}
