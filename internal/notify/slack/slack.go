// Package slack alerts field staff about urgent reports via Slack incoming webhooks.
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

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/citycare/internal/report"
	"github.com/linnemanlabs/citycare/internal/triage"
)

const (
	maxReasonLen = 3000
	maxTitleLen  = 150
	httpTimeout  = 10 * time.Second
)

// Notifier posts urgent-report events to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
	logger     log.Logger
}

// New creates a new Slack notifier. If webhookURL is empty, NotifyUrgent is a no-op.
func New(webhookURL string, logger log.Logger) *Notifier {
	if logger == nil {
		logger = log.Nop()
	}
	return &Notifier{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout:   httpTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

// NotifyUrgent posts ev to the configured Slack webhook.
// If no webhook URL is configured, it returns nil immediately.
func (n *Notifier) NotifyUrgent(ctx context.Context, ev triage.UrgentEvent) error {
	if n.webhookURL == "" {
		return nil
	}

	body, err := json.Marshal(buildMessage(ev))
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
	n.logger.Info(ctx, "urgent report notification sent", "report_id", ev.ReportID, "priority", ev.Priority)
	return nil
}

func buildMessage(ev triage.UrgentEvent) map[string]any {
	return map[string]any{
		"text": fallbackText(ev),
		"blocks": []map[string]any{
			headerBlock(ev),
			fieldsBlock(ev),
			reasonBlock(ev),
			{"type": "divider"},
			contextBlock(ev),
		},
	}
}

// fallbackText is shown in push notifications, which do not render blocks.
func fallbackText(ev triage.UrgentEvent) string {
	return fmt.Sprintf("Urgent report (priority %d): %s", ev.Priority, truncate(ev.Title, maxTitleLen))
}

func headerBlock(ev triage.UrgentEvent) map[string]any {
	title := truncate(strings.TrimSpace(ev.Title), maxTitleLen)
	if title == "" {
		title = "Untitled report"
	}
	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": fmt.Sprintf("%s Priority %d: %s", priorityEmoji(ev.Priority), ev.Priority, title),
		},
	}
}

func fieldsBlock(ev triage.UrgentEvent) map[string]any {
	fields := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Category:* %s", categoryLabel(ev.Category)),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Confidence:* %s", orDash(ev.Confidence)),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Report:* `%s`", orDash(ev.ReportID)),
		},
	}
	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func reasonBlock(ev triage.UrgentEvent) map[string]any {
	text := truncate(ev.Reason, maxReasonLen)
	if text == "" {
		text = "_No reason given._"
	}
	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Why it is urgent*\n\n%s", text),
		},
	}
}

func contextBlock(ev triage.UrgentEvent) map[string]any {
	ts := ev.ScoredAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return map[string]any{
		"type": "context",
		"elements": []map[string]any{
			{
				"type": "mrkdwn",
				"text": fmt.Sprintf("citycare • scored %s", ts.UTC().Format("2006-01-02 15:04 UTC")),
			},
		},
	}
}

func priorityEmoji(p int) string {
	if p >= 5 {
		return "\U0001f534" // red circle
	}
	return "\U0001f7e0" // orange circle
}

func categoryLabel(c string) string {
	if cat, ok := report.ParseCategory(c); ok {
		return string(cat)
	}
	return orDash(c)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
