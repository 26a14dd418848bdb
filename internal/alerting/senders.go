package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/vendaflow/sdr-platform/internal/model"
)

const senderTimeout = 10 * time.Second

// Sender delivers a pre-built alert to one notification channel.
type Sender interface {
	Name() string
	Send(ctx context.Context, alert *model.Alert) error
}

// SlackSender posts alerts to a Slack-compatible incoming webhook using the
// structured block layout.
type SlackSender struct {
	webhookURL string
	httpClient *http.Client
}

// NewSlackSender creates a Slack sender for the given webhook URL.
func NewSlackSender(webhookURL string) *SlackSender {
	return &SlackSender{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: senderTimeout},
	}
}

// Name returns the channel name.
func (s *SlackSender) Name() string {
	return "slack"
}

var severityEmoji = map[model.Severity]string{
	model.SeverityInfo:     ":information_source:",
	model.SeverityWarning:  ":warning:",
	model.SeverityError:    ":x:",
	model.SeverityCritical: ":rotating_light:",
}

// Send posts the alert as Slack blocks.
func (s *SlackSender) Send(ctx context.Context, alert *model.Alert) error {
	if s.webhookURL == "" {
		return errors.New("slack webhook not configured")
	}

	emoji := severityEmoji[alert.Severity]
	fields := []map[string]any{
		{"type": "mrkdwn", "text": fmt.Sprintf("*Severity:*\n%s", alert.Severity)},
	}
	if alert.Integration != "" {
		fields = append(fields, map[string]any{
			"type": "mrkdwn", "text": fmt.Sprintf("*Integration:*\n%s", alert.Integration),
		})
	}
	if alert.Endpoint != "" {
		fields = append(fields, map[string]any{
			"type": "mrkdwn", "text": fmt.Sprintf("*Endpoint:*\n%s", alert.Endpoint),
		})
	}

	payload := map[string]any{
		"blocks": []map[string]any{
			{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("%s %s", emoji, alert.Title),
				},
			},
			{
				"type": "section",
				"text": map[string]any{"type": "mrkdwn", "text": alert.Message},
			},
			{
				"type":   "section",
				"fields": fields,
			},
		},
	}

	return s.post(ctx, s.webhookURL, payload)
}

func (s *SlackSender) post(ctx context.Context, url string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("slack returned status %d", resp.StatusCode)
	}
	return nil
}

// WebhookSender posts alerts as plain JSON to a generic webhook.
type WebhookSender struct {
	url        string
	httpClient *http.Client
}

// NewWebhookSender creates a generic webhook sender.
func NewWebhookSender(url string) *WebhookSender {
	return &WebhookSender{
		url:        url,
		httpClient: &http.Client{Timeout: senderTimeout},
	}
}

// Name returns the channel name.
func (w *WebhookSender) Name() string {
	return "webhook"
}

// Send posts the alert JSON to the webhook.
func (w *WebhookSender) Send(ctx context.Context, alert *model.Alert) error {
	if w.url == "" {
		return errors.New("alert webhook not configured")
	}

	data, err := json.Marshal(alert)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// EmailSender is a configuration-gated placeholder. No SMTP transport is
// wired yet; it never accepts an alert, so delivery accounting falls through
// to the other channels.
type EmailSender struct {
	to string
}

// NewEmailSender creates the email placeholder sender.
func NewEmailSender(to string) *EmailSender {
	return &EmailSender{to: to}
}

// Name returns the channel name.
func (e *EmailSender) Name() string {
	return "email"
}

// Send always fails: unconfigured senders report so, configured ones report
// the missing transport.
func (e *EmailSender) Send(ctx context.Context, alert *model.Alert) error {
	if e.to == "" {
		return errors.New("email recipient not configured")
	}
	return errors.New("email transport not implemented")
}
