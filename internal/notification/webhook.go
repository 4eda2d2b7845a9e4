// File: internal/notification/webhook.go
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/smartdevs17/govledger/internal/models"
	"github.com/smartdevs17/govledger/pkg/utils"
)

// WebhookConfig defines webhook configuration
type WebhookConfig struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	Timeout time.Duration     `json:"timeout"`
}

// WebhookPayload defines the webhook payload structure
type WebhookPayload struct {
	Notification *models.Notification `json:"notification"`
	Timestamp    time.Time            `json:"timestamp"`
	Source       string               `json:"source"`
	Type         string               `json:"type"`
	Version      string               `json:"version"`
}

// WebhookChannel posts alerts as JSON to an HTTP endpoint
type WebhookChannel struct {
	id         string
	config     WebhookConfig
	httpClient *http.Client
}

// NewWebhookChannel validates config and creates a webhook channel
func NewWebhookChannel(id string, config WebhookConfig) (*WebhookChannel, error) {
	if err := ValidateWebhookConfig(&config); err != nil {
		return nil, err
	}
	return &WebhookChannel{
		id:     id,
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}, nil
}

func (wc *WebhookChannel) ID() string                    { return wc.id }
func (wc *WebhookChannel) Type() models.NotificationType { return models.NotificationTypeWebhook }

// Send delivers a single request; retries are the manager's job
func (wc *WebhookChannel) Send(ctx context.Context, n *models.Notification) error {
	payload := &WebhookPayload{
		Notification: n,
		Timestamp:    time.Now().UTC(),
		Source:       "govledger",
		Type:         "governance_alert",
		Version:      "1.0",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeInternal, "Failed to marshal webhook payload", err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, wc.config.Method, wc.config.URL, bytes.NewReader(body))
	if err != nil {
		return utils.NewAppError(utils.ErrCodeInternal, "Failed to create webhook request", err.Error())
	}
	wc.setRequestHeaders(req, n)

	resp, err := wc.httpClient.Do(req)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeNotification, "Failed to send webhook", err.Error())
	}
	defer resp.Body.Close()

	// Read response body (limited to prevent memory issues)
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return utils.NewAppError(utils.ErrCodeNotification,
			"Webhook returned non-success status",
			fmt.Sprintf("status: %d, body: %s", resp.StatusCode, snippet))
	}
	return nil
}

// setRequestHeaders sets HTTP request headers
func (wc *WebhookChannel) setRequestHeaders(req *http.Request, n *models.Notification) {
	for key, value := range wc.config.Headers {
		req.Header.Set(key, value)
	}

	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", "govledger/1.0")
	}

	req.Header.Set("X-Timestamp", fmt.Sprintf("%d", time.Now().Unix()))
	req.Header.Set("X-Request-ID", n.ID)
	req.Header.Set("X-Alert-Severity", n.Severity.String())
}

// ValidateWebhookConfig validates webhook configuration and fills defaults
func ValidateWebhookConfig(config *WebhookConfig) error {
	if config.URL == "" {
		return utils.NewAppError(utils.ErrCodeValidation, "Webhook URL is required", "")
	}
	if config.Method == "" {
		config.Method = http.MethodPost
	}
	if config.Headers == nil {
		config.Headers = make(map[string]string)
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	return nil
}
