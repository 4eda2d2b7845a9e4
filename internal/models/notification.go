package models

import (
	"time"
)

// NotificationType defines the type of notification channel
type NotificationType string

const (
	NotificationTypeWebhook NotificationType = "webhook"
	NotificationTypeLog     NotificationType = "log"
)

// NotificationStatus tracks delivery of one notification to one channel
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

// Notification is a governance alert derived from a ledger event
type Notification struct {
	ID            string                 `json:"id"`
	EventSequence uint64                 `json:"event_sequence"`
	EventType     EventType              `json:"event_type"`
	Severity      Severity               `json:"severity"`
	Actor         string                 `json:"actor"`
	Title         string                 `json:"title"`
	Message       string                 `json:"message"`
	Data          map[string]interface{} `json:"data,omitempty"`
	Status        NotificationStatus     `json:"status"`
	Attempts      int                    `json:"attempts"`
	CreatedAt     time.Time              `json:"created_at"`
	SentAt        *time.Time             `json:"sent_at,omitempty"`
	Error         *string                `json:"error,omitempty"`
}
