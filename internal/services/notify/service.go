// -----------------------------------------------------------------------
// Notify service - fire-and-forget webhook notifications
//
// Delivery failures are swallowed: a run never fails because a webhook
// failed. Auth notifications are rate limited with a persisted cooldown
// so a broken credential doesn't spam the hook every tick.
// -----------------------------------------------------------------------

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venator/internal/common"
	"github.com/ternarybob/venator/internal/interfaces"
	"github.com/ternarybob/venator/internal/models"
)

const (
	webhookURLKey      = "webhook_url"
	authCooldownPrefix = "auth_notify_last:"

	payloadSource = "venator"
)

// Service posts event notifications to a user-configured webhook.
type Service struct {
	config *common.WebhookConfig
	kv     interfaces.KeyValueStorage
	clock  interfaces.Clock
	logger arbor.ILogger
	client *http.Client
}

// NewService creates a webhook notifier.
func NewService(config *common.WebhookConfig, kv interfaces.KeyValueStorage, clock interfaces.Clock, logger arbor.ILogger) *Service {
	return &Service{
		config: config,
		kv:     kv,
		clock:  clock,
		logger: logger,
		client: &http.Client{Timeout: config.Timeout},
	}
}

var _ interfaces.Notifier = (*Service)(nil)

// SetWebhookURL persists the destination webhook. Empty clears it.
func (s *Service) SetWebhookURL(ctx context.Context, url string) error {
	if url == "" {
		return s.kv.Delete(ctx, webhookURLKey)
	}
	if err := s.kv.Set(ctx, webhookURLKey, url); err != nil {
		return err
	}
	s.logger.Info().Msg("Webhook URL saved")
	return nil
}

// WebhookURL returns the configured webhook, or empty when unset.
func (s *Service) WebhookURL(ctx context.Context) (string, error) {
	return s.kv.Get(ctx, webhookURLKey)
}

// Notify delivers an event to the webhook. No-op when no webhook is
// configured; errors are logged and swallowed.
func (s *Service) Notify(ctx context.Context, event models.EventType, payload models.NotificationPayload) {
	url, err := s.kv.Get(ctx, webhookURLKey)
	if err != nil || url == "" {
		return
	}

	if event == models.EventAuthExpired && !s.authCooldownElapsed(ctx, event) {
		s.logger.Debug().Str("event", string(event)).Msg("Skipping auth notification (cooldown active)")
		return
	}

	body := map[string]interface{}{
		"type":      string(event),
		"timestamp": s.clock.Now().Format(time.RFC3339),
		"source":    payloadSource,
		"data": map[string]interface{}{
			"message": eventMessage(event, payload),
			"details": payload,
		},
	}

	if err := s.post(ctx, url, body); err != nil {
		s.logger.Warn().Err(err).Str("event", string(event)).Msg("Webhook delivery failed")
		return
	}

	if event == models.EventAuthExpired {
		s.markAuthSent(ctx, event)
	}
	s.logger.Debug().Str("event", string(event)).Msg("Webhook notification sent")
}

// Test sends a test event and reports delivery success, for the webhook
// settings API.
func (s *Service) Test(ctx context.Context) error {
	url, err := s.kv.Get(ctx, webhookURLKey)
	if err != nil {
		return err
	}
	if url == "" {
		return fmt.Errorf("no webhook URL configured")
	}

	body := map[string]interface{}{
		"type":      string(models.EventTest),
		"timestamp": s.clock.Now().Format(time.RFC3339),
		"source":    payloadSource,
		"data": map[string]interface{}{
			"message": eventMessage(models.EventTest, nil),
		},
	}
	return s.post(ctx, url, body)
}

func (s *Service) post(ctx context.Context, url string, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

func (s *Service) authCooldownElapsed(ctx context.Context, event models.EventType) bool {
	last, err := s.kv.Get(ctx, authCooldownPrefix+string(event))
	if err != nil || last == "" {
		return true
	}
	lastSent, err := time.Parse(time.RFC3339, last)
	if err != nil {
		return true
	}
	return s.clock.Now().Sub(lastSent) >= s.config.AuthCooldown
}

func (s *Service) markAuthSent(ctx context.Context, event models.EventType) {
	key := authCooldownPrefix + string(event)
	if err := s.kv.Set(ctx, key, s.clock.Now().Format(time.RFC3339)); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to persist auth notification cooldown")
	}
}

// eventMessage renders the human-readable summary line for an event.
func eventMessage(event models.EventType, payload models.NotificationPayload) string {
	get := func(key string) string {
		if payload == nil {
			return ""
		}
		if v, ok := payload[key]; ok {
			return fmt.Sprintf("%v", v)
		}
		return ""
	}

	switch event {
	case models.EventRunStarted:
		return fmt.Sprintf("🚀 Scheduled scrape started for %s", get("source"))
	case models.EventRunCompleted:
		return fmt.Sprintf("✅ Scrape completed for %s: %s profiles scraped", get("source"), orZero(get("profiles")))
	case models.EventRunFailed:
		return fmt.Sprintf("❌ Scrape FAILED for %s: %s", get("source"), orUnknown(get("error")))
	case models.EventUnitFailed:
		return fmt.Sprintf("❌ Search %q failed for %s: %s", get("search"), get("source"), orUnknown(get("error")))
	case models.EventAuthExpired:
		return "🔑 GOOGLE AUTH REQUIRED - Re-authentication required"
	case models.EventError:
		return fmt.Sprintf("🚨 ERROR: %s", orUnknown(get("error")))
	case models.EventTest:
		return "🧪 Test notification from Venator - webhook is working!"
	default:
		return fmt.Sprintf("Notification: %s", event)
	}
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown error"
	}
	return s
}
