// File: internal/notification/logger.go
package notification

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/govledger/internal/models"
	"github.com/smartdevs17/govledger/pkg/utils"
)

// LogChannel writes alerts to the application log. Level follows severity.
type LogChannel struct {
	id     string
	logger *logrus.Entry
}

// NewLogChannel creates a log channel writing through the shared logger
func NewLogChannel(id string) *LogChannel {
	return &LogChannel{
		id:     id,
		logger: utils.ComponentLogger("alerts"),
	}
}

func (lc *LogChannel) ID() string                    { return lc.id }
func (lc *LogChannel) Type() models.NotificationType { return models.NotificationTypeLog }

// Send logs the notification
func (lc *LogChannel) Send(ctx context.Context, n *models.Notification) error {
	entry := lc.logger.WithFields(logrus.Fields{
		"notification_id": n.ID,
		"sequence":        n.EventSequence,
		"event_type":      n.EventType,
		"severity":        n.Severity.String(),
		"actor":           n.Actor,
	})
	entry.Log(levelFor(n.Severity), n.Title+": "+n.Message)
	return nil
}

func levelFor(s models.Severity) logrus.Level {
	switch s {
	case models.SeverityCritical:
		return logrus.ErrorLevel
	case models.SeverityHigh:
		return logrus.WarnLevel
	case models.SeverityMedium:
		return logrus.InfoLevel
	default:
		return logrus.DebugLevel
	}
}
