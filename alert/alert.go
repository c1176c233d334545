package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Event is a critical out-of-band notification, e.g. illegal content found.
type Event struct {
	Type      string `json:"type"`
	VideoID   string `json:"video_id"`
	CreatorID string `json:"creator_id"`
	Timestamp string `json:"timestamp"`
}

const EventIllegalContent = "ILLEGAL_CONTENT"

// Notifier dispatches critical alerts to operators.
type Notifier interface {
	NotifyCritical(ctx context.Context, event Event) error
}

// WebhookNotifier posts alerts to a Slack-style incoming webhook. With no
// URL configured it logs and drops the alert instead of failing the caller.
type WebhookNotifier struct {
	url    string
	client *http.Client
	log    *logrus.Logger
}

func NewWebhookNotifier(url string, log *logrus.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}
}

func (n *WebhookNotifier) NotifyCritical(ctx context.Context, event Event) error {
	n.log.WithFields(logrus.Fields{
		"type":       event.Type,
		"video_id":   event.VideoID,
		"creator_id": event.CreatorID,
	}).Error("CRITICAL ALERT")

	if n.url == "" {
		return nil
	}

	payload := map[string]interface{}{
		"text": fmt.Sprintf("CRITICAL: %s detected", event.Type),
		"attachments": []map[string]interface{}{
			{
				"color": "danger",
				"fields": []map[string]interface{}{
					{"title": "Video ID", "value": event.VideoID, "short": true},
					{"title": "Creator ID", "value": event.CreatorID, "short": true},
					{"title": "Timestamp", "value": event.Timestamp, "short": false},
				},
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("alert webhook failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("alert webhook returned %d", resp.StatusCode)
	}
	return nil
}
