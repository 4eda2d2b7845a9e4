// File: internal/notification/notification.go
package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/govledger/internal/metrics"
	"github.com/smartdevs17/govledger/internal/models"
	"github.com/smartdevs17/govledger/internal/monitor"
	"github.com/smartdevs17/govledger/pkg/utils"
)

// Channel delivers a notification to one destination
type Channel interface {
	ID() string
	Type() models.NotificationType
	Send(ctx context.Context, n *models.Notification) error
}

// ManagerConfig holds notification manager configuration
type ManagerConfig struct {
	MinSeverity models.Severity `json:"min_severity"`
	MaxRetries  int             `json:"max_retries"`
	RetryDelay  time.Duration   `json:"retry_delay"`
	MaxDelay    time.Duration   `json:"max_delay"`
}

// NotificationStats provides notification statistics
type NotificationStats struct {
	TotalNotificationsSent   uint64            `json:"total_notifications_sent"`
	TotalNotificationsFailed uint64            `json:"total_notifications_failed"`
	TotalSkipped             uint64            `json:"total_skipped"`
	SentByChannel            map[string]uint64 `json:"sent_by_channel"`
	ActiveChannels           int               `json:"active_channels"`
	LastError                *string           `json:"last_error,omitempty"`
	LastErrorTime            *time.Time        `json:"last_error_time,omitempty"`
}

// NotificationHealth reports manager state
type NotificationHealth struct {
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// Manager turns ledger events at or above a severity into notifications
// and fans them out to every channel
type Manager struct {
	config         *ManagerConfig
	logger         *logrus.Entry
	metricsManager *metrics.Manager

	mu       sync.RWMutex
	running  bool
	channels map[string]Channel
	order    []string
	stats    NotificationStats
}

// NewManager creates a new notification manager
func NewManager(config *ManagerConfig, metricsManager *metrics.Manager) *Manager {
	cfg := *config
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	return &Manager{
		config:         &cfg,
		logger:         utils.ComponentLogger("notification"),
		metricsManager: metricsManager,
		channels:       make(map[string]Channel),
		stats:          NotificationStats{SentByChannel: make(map[string]uint64)},
	}
}

// Start marks the manager as accepting events
func (nm *Manager) Start(ctx context.Context) error {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	if nm.running {
		return utils.NewAppError(utils.ErrCodeInternal, "Notification manager already running", "")
	}
	nm.running = true
	nm.logger.WithField("channels", len(nm.channels)).Info("Notification manager started")
	return nil
}

// Stop stops the notification manager
func (nm *Manager) Stop() error {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	if !nm.running {
		return nil
	}
	nm.running = false
	nm.logger.Info("Notification manager stopped")
	return nil
}

// AddChannel registers a channel, replacing one with the same id
func (nm *Manager) AddChannel(ch Channel) {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	if _, exists := nm.channels[ch.ID()]; !exists {
		nm.order = append(nm.order, ch.ID())
	}
	nm.channels[ch.ID()] = ch
	nm.logger.WithFields(logrus.Fields{
		"channel_id": ch.ID(),
		"type":       ch.Type(),
	}).Info("Notification channel added")
}

// RemoveChannel removes a notification channel
func (nm *Manager) RemoveChannel(id string) {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	if _, exists := nm.channels[id]; !exists {
		return
	}
	delete(nm.channels, id)
	for i, cid := range nm.order {
		if cid == id {
			nm.order = append(nm.order[:i], nm.order[i+1:]...)
			break
		}
	}
	nm.logger.WithField("channel_id", id).Info("Notification channel removed")
}

// GetChannels returns channels in registration order
func (nm *Manager) GetChannels() []Channel {
	nm.mu.RLock()
	defer nm.mu.RUnlock()

	channels := make([]Channel, 0, len(nm.order))
	for _, id := range nm.order {
		channels = append(channels, nm.channels[id])
	}
	return channels
}

// Criteria returns the monitor filter matching events this manager alerts on
func (nm *Manager) Criteria() *monitor.FilterCriteria {
	threshold := nm.config.MinSeverity
	return &monitor.FilterCriteria{MinSeverity: &threshold}
}

// HandleEvent is a monitor.Handler. Events below the minimum severity are
// ignored; others are sent to every channel.
func (nm *Manager) HandleEvent(ctx context.Context, ev *monitor.ParsedEvent) error {
	if ev.Severity == nil || *ev.Severity < nm.config.MinSeverity {
		nm.mu.Lock()
		nm.stats.TotalSkipped++
		nm.mu.Unlock()
		return nil
	}
	if !nm.IsRunning() {
		return utils.NewAppError(utils.ErrCodeNotification, "Notification manager not running", "")
	}
	return nm.Dispatch(ctx, NewNotification(ev))
}

// NewNotification builds an alert for a parsed event
func NewNotification(ev *monitor.ParsedEvent) *models.Notification {
	severity := models.SeverityLow
	if ev.Severity != nil {
		severity = *ev.Severity
	}
	return &models.Notification{
		ID:            utils.GenerateID(),
		EventSequence: ev.Event.Sequence,
		EventType:     ev.Event.Type,
		Severity:      severity,
		Actor:         ev.Event.Actor.Hex(),
		Title:         fmt.Sprintf("%s governance change", severity),
		Message:       ev.Summary(),
		Data:          ev.Arguments,
		Status:        models.NotificationPending,
		CreatedAt:     time.Now(),
	}
}

// Dispatch sends n to every channel with retries and returns the joined
// failures. Each channel gets its own copy of the notification.
func (nm *Manager) Dispatch(ctx context.Context, n *models.Notification) error {
	var errs []error
	for _, ch := range nm.GetChannels() {
		copied := *n
		if err := nm.sendWithRetry(ctx, ch, &copied); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ch.ID(), err))
		}
	}
	return errors.Join(errs...)
}

func (nm *Manager) sendWithRetry(ctx context.Context, ch Channel, n *models.Notification) error {
	start := time.Now()
	maxAttempts := nm.config.MaxRetries + 1

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			delay := nm.calculateRetryDelay(attempt)
			nm.logger.WithFields(logrus.Fields{
				"channel_id":   ch.ID(),
				"attempt":      attempt,
				"max_attempts": maxAttempts,
				"retry_delay":  delay.String(),
			}).Warn("Retrying notification")

			select {
			case <-time.After(delay):
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				err = ctx.Err()
				break
			}
		}

		n.Attempts = attempt
		if err = ch.Send(ctx, n); err == nil {
			break
		}
	}

	nm.recordResult(ch, n, start, err)
	return err
}

// calculateRetryDelay doubles the base delay per attempt, capped at MaxDelay
func (nm *Manager) calculateRetryDelay(attempt int) time.Duration {
	delay := nm.config.RetryDelay << uint(attempt-2)
	if delay > nm.config.MaxDelay || delay < 0 {
		delay = nm.config.MaxDelay
	}
	return delay
}

func (nm *Manager) recordResult(ch Channel, n *models.Notification, start time.Time, err error) {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	severity := n.Severity.String()
	if err != nil {
		n.Status = models.NotificationFailed
		msg := err.Error()
		n.Error = &msg
		now := time.Now()
		nm.stats.TotalNotificationsFailed++
		nm.stats.LastError = &msg
		nm.stats.LastErrorTime = &now
		if nm.metricsManager != nil {
			nm.metricsManager.GetPrometheusMetrics().RecordNotificationFailure(string(ch.Type()), severity)
		}
		nm.logger.WithFields(logrus.Fields{
			"notification_id": n.ID,
			"channel_id":      ch.ID(),
			"attempts":        n.Attempts,
			"error":           err,
		}).Error("Notification failed")
		return
	}

	now := time.Now()
	n.Status = models.NotificationSent
	n.SentAt = &now
	nm.stats.TotalNotificationsSent++
	nm.stats.SentByChannel[ch.ID()]++
	if nm.metricsManager != nil {
		nm.metricsManager.GetPrometheusMetrics().RecordNotificationSent(string(ch.Type()), severity, time.Since(start))
	}
}

// IsRunning reports whether the manager accepts events
func (nm *Manager) IsRunning() bool {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	return nm.running
}

// GetStats returns a snapshot of notification statistics
func (nm *Manager) GetStats() *NotificationStats {
	nm.mu.RLock()
	defer nm.mu.RUnlock()

	stats := nm.stats
	stats.ActiveChannels = len(nm.channels)
	stats.SentByChannel = make(map[string]uint64, len(nm.stats.SentByChannel))
	for k, v := range nm.stats.SentByChannel {
		stats.SentByChannel[k] = v
	}
	return &stats
}

// GetHealth reports manager state and the last delivery error
func (nm *Manager) GetHealth() *NotificationHealth {
	nm.mu.RLock()
	defer nm.mu.RUnlock()

	health := &NotificationHealth{Healthy: nm.running}
	if nm.stats.LastError != nil {
		health.Error = *nm.stats.LastError
	}
	if nm.metricsManager != nil {
		nm.metricsManager.GetPrometheusMetrics().UpdateComponentHealth("notification", health.Healthy)
	}
	return health
}
