// Package slack pages on-call staff about urgent queued alerts via a Slack
// incoming webhook.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/linnemanlabs/triaged/internal/alert"
)

const (
	maxRationaleLen = 3000
	httpTimeout     = 10 * time.Second
)

// Notifier posts high and critical alerts to a Slack webhook. It implements
// alert.Notifier.
type Notifier struct {
	webhookURL string
	client     *http.Client
}

// New creates a new Slack notifier. If webhookURL is empty, Notify is a no-op.
func New(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
	}
}

// Enabled reports whether a webhook is configured.
func (n *Notifier) Enabled() bool { return n.webhookURL != "" }

// Notify posts e to the configured webhook. Entries below high priority are
// skipped, as is everything when no webhook URL is configured.
func (n *Notifier) Notify(ctx context.Context, e *alert.Entry) error {
	if n.webhookURL == "" || !pages(e.Priority) {
		return nil
	}

	body, err := json.Marshal(buildMessage(e))
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func pages(priority string) bool {
	switch strings.ToLower(strings.TrimSpace(priority)) {
	case "high", "critical":
		return true
	}
	return false
}

func buildMessage(e *alert.Entry) map[string]any {
	return map[string]any{
		"blocks": []map[string]any{
			headerBlock(e),
			{"type": "divider"},
			fieldsBlock(e),
			{"type": "divider"},
			rationaleBlock(e),
			{"type": "divider"},
			contextBlock(e),
		},
	}
}

func headerBlock(e *alert.Entry) map[string]any {
	text := fmt.Sprintf("%s Patient needs attention: %s", priorityEmoji(e.Priority), displayName(e))

	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": text,
		},
	}
}

func fieldsBlock(e *alert.Entry) map[string]any {
	fields := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Priority:* %s", e.Priority),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Emergency index:* %d", e.Score),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Patient:* %s", e.PatientID),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Queued:* %s", e.Timestamp),
		},
	}

	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func rationaleBlock(e *alert.Entry) map[string]any {
	text := truncate(e.Rationale, maxRationaleLen)
	if text == "" {
		text = "_No rationale given._"
	}

	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Rationale*\n\n%s", text),
		},
	}
}

func contextBlock(e *alert.Entry) map[string]any {
	elements := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("triaged • patient %s • see /alerts for the full queue", e.PatientID),
		},
	}

	return map[string]any{
		"type":     "context",
		"elements": elements,
	}
}

func displayName(e *alert.Entry) string {
	if name := strings.TrimSpace(e.Name); name != "" && name != alert.Unknown {
		return name
	}
	return e.PatientID
}

func priorityEmoji(priority string) string {
	switch strings.ToLower(strings.TrimSpace(priority)) {
	case "critical":
		return "\U0001f534" // red circle
	case "high":
		return "\U0001f7e0" // orange circle
	case "medium":
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e2" // green circle
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
