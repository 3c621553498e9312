package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// AlertConfig holds alerting configuration.
type AlertConfig struct {
	// WebhookURL is a webhook endpoint (Slack, Discord, or custom)
	WebhookURL string
	// WebhookType determines the payload format: "slack", "discord", or "generic"
	WebhookType string
	// Enabled controls whether alerts are sent
	Enabled bool
	// MinFailuresBeforeAlert is the consecutive-failure threshold per feed
	MinFailuresBeforeAlert int
	// Timeout for HTTP requests
	Timeout time.Duration
}

// NewAlertConfig builds a config for the given webhook. An empty URL
// disables alerting. When no type is given it is inferred from the URL.
func NewAlertConfig(webhookURL, webhookType string, minFailures int) AlertConfig {
	cfg := AlertConfig{
		WebhookURL:             webhookURL,
		WebhookType:            webhookType,
		MinFailuresBeforeAlert: minFailures,
		Timeout:                10 * time.Second,
	}

	cfg.Enabled = cfg.WebhookURL != ""
	if cfg.MinFailuresBeforeAlert < 1 {
		cfg.MinFailuresBeforeAlert = 1
	}

	if cfg.WebhookType == "" {
		if strings.Contains(cfg.WebhookURL, "slack.com") {
			cfg.WebhookType = "slack"
		} else if strings.Contains(cfg.WebhookURL, "discord.com") {
			cfg.WebhookType = "discord"
		} else {
			cfg.WebhookType = "generic"
		}
	}

	return cfg
}

// Alerter sends feed failure alerts to a configured webhook.
type Alerter struct {
	cfg    AlertConfig
	log    *logrus.Entry
	client *http.Client
}

// NewAlerter creates a new alerter instance.
func NewAlerter(cfg AlertConfig, log *logrus.Entry) *Alerter {
	return &Alerter{
		cfg: cfg,
		log: log,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// FeedAlert describes a failing price feed.
type FeedAlert struct {
	Feed                string
	SubFeed             string
	Kind                string
	Error               string
	ConsecutiveFailures int
	Timestamp           time.Time
}

// SendFeedAlert reports a feed update failure. Alerts below the configured
// consecutive-failure threshold are dropped silently.
func (a *Alerter) SendFeedAlert(ctx context.Context, alert FeedAlert) error {
	if !a.cfg.Enabled {
		return nil
	}

	if alert.ConsecutiveFailures < a.cfg.MinFailuresBeforeAlert {
		a.log.WithFields(logrus.Fields{
			"feed":     alert.Feed,
			"failures": alert.ConsecutiveFailures,
		}).Debug("failure count below alert threshold, skipping")
		return nil
	}

	var payload []byte
	var err error

	switch a.cfg.WebhookType {
	case "slack":
		payload, err = a.buildSlackPayload(alert)
	case "discord":
		payload, err = a.buildDiscordPayload(alert)
	default:
		payload, err = a.buildGenericPayload(alert)
	}

	if err != nil {
		return fmt.Errorf("build payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	a.log.WithField("feed", alert.Feed).Info("sent feed failure alert")
	return nil
}

func (a *Alerter) buildSlackPayload(alert FeedAlert) ([]byte, error) {
	emoji := ":warning:"
	if alert.Kind == "invalid_token" {
		emoji = ":x:"
	}

	payload := map[string]interface{}{
		"blocks": []map[string]interface{}{
			{
				"type": "header",
				"text": map[string]string{
					"type": "plain_text",
					"text": fmt.Sprintf("%s Price Feed Alert: %s", emoji, alert.Feed),
				},
			},
			{
				"type": "section",
				"fields": []map[string]string{
					{"type": "mrkdwn", "text": fmt.Sprintf("*Sub-feed:*\n%s", alert.SubFeed)},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Kind:*\n%s", alert.Kind)},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Consecutive failures:*\n%d", alert.ConsecutiveFailures)},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Timestamp:*\n%s", alert.Timestamp.Format(time.RFC3339))},
				},
			},
			{
				"type": "section",
				"text": map[string]string{
					"type": "mrkdwn",
					"text": fmt.Sprintf("*Error:*\n%s", alert.Error),
				},
			},
		},
	}

	return json.Marshal(payload)
}

func (a *Alerter) buildDiscordPayload(alert FeedAlert) ([]byte, error) {
	color := 16776960 // Yellow
	if alert.Kind == "invalid_token" {
		color = 16711680 // Red
	}

	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{
			{
				"title":       fmt.Sprintf("Price Feed Alert: %s", alert.Feed),
				"description": alert.Error,
				"color":       color,
				"fields": []map[string]interface{}{
					{"name": "Sub-feed", "value": alert.SubFeed, "inline": true},
					{"name": "Kind", "value": alert.Kind, "inline": true},
					{"name": "Consecutive failures", "value": fmt.Sprintf("%d", alert.ConsecutiveFailures), "inline": true},
				},
				"timestamp": alert.Timestamp.Format(time.RFC3339),
			},
		},
	}

	return json.Marshal(payload)
}

func (a *Alerter) buildGenericPayload(alert FeedAlert) ([]byte, error) {
	payload := map[string]interface{}{
		"alert_type":           "price_feed_failure",
		"feed":                 alert.Feed,
		"sub_feed":             alert.SubFeed,
		"kind":                 alert.Kind,
		"error":                alert.Error,
		"consecutive_failures": alert.ConsecutiveFailures,
		"timestamp":            alert.Timestamp.Format(time.RFC3339),
	}

	return json.Marshal(payload)
}
