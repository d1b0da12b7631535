package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/banshee-data/dwell.report/internal/config"
	"github.com/banshee-data/dwell.report/internal/httputil"
	"github.com/banshee-data/dwell.report/internal/monitoring"
	"github.com/banshee-data/dwell.report/internal/timeutil"
	"github.com/banshee-data/dwell.report/internal/vision/behavior"
)

const initialBackoff = 500 * time.Millisecond

// retryableStatus marks responses worth retrying. Anything else from the
// receiver is treated as a permanent rejection of this payload.
var retryableStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// WebhookChannel POSTs events to a single receiver URL with exponential
// backoff on transport errors and retryable statuses. Settings are
// snapshotted at construction.
type WebhookChannel struct {
	client     httputil.HTTPClient
	clock      timeutil.Clock
	url        string
	headers    map[string]string
	maxRetries int
	logf       func(format string, v ...interface{})
}

// NewWebhookChannel builds a channel from the webhook section of the
// tuning file. A nil client gets a real one using the configured timeout;
// a nil clock gets the real clock.
func NewWebhookChannel(cfg *config.WebhookConfig, client httputil.HTTPClient, clock timeutil.Clock) *WebhookChannel {
	if client == nil {
		client = httputil.NewClientWithTimeout(cfg.GetTimeout())
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &WebhookChannel{
		client:     client,
		clock:      clock,
		url:        cfg.GetURL(),
		headers:    cfg.GetHeaders(),
		maxRetries: cfg.GetMaxRetries(),
		logf:       monitoring.Scoped("webhook"),
	}
}

func (c *WebhookChannel) Name() string { return "webhook" }

// Deliver POSTs payload, retrying up to maxRetries times with doubling
// backoff starting at 500ms. Non-retryable statuses fail immediately.
func (c *WebhookChannel) Deliver(ctx context.Context, ev behavior.Event, payload []byte) error {
	attempts := c.maxRetries + 1
	backoff := initialBackoff
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			c.clock.Sleep(backoff)
			backoff *= 2
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		status, err := c.post(ctx, payload)
		if err != nil {
			lastErr = err
			c.logf("Attempt %d/%d for event %s: %v", attempt, attempts, ev.EventID, err)
			continue
		}
		if status >= 200 && status < 300 {
			return nil
		}
		if !retryableStatus[status] {
			return fmt.Errorf("receiver returned status %d", status)
		}
		lastErr = fmt.Errorf("receiver returned status %d", status)
		c.logf("Attempt %d/%d for event %s: status %d", attempt, attempts, ev.EventID, status)
	}
	return fmt.Errorf("delivery failed after %d attempts: %w", attempts, lastErr)
}

func (c *WebhookChannel) post(ctx context.Context, payload []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	for name, value := range c.headers {
		req.Header.Set(name, value)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp.StatusCode, nil
}
