package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultWebhookMethod  = http.MethodPost
	defaultWebhookTimeout = 5 * time.Second
)

type WebhookChannel struct {
	client *http.Client
	logger *zap.Logger
}

func NewWebhookChannel(client *http.Client, logger *zap.Logger) *WebhookChannel {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookChannel{client: client, logger: logger.Named("webhook")}
}

func (c *WebhookChannel) Name() string {
	return "webhook"
}

func (c *WebhookChannel) SendText(ctx context.Context, userID, sessionID, text string, cfg map[string]interface{}) error {
	url := strings.TrimSpace(toString(cfg["url"]))
	if url == "" {
		return fmt.Errorf("channel webhook requires config.url")
	}

	method := strings.ToUpper(strings.TrimSpace(toString(cfg["method"])))
	if method == "" {
		method = defaultWebhookMethod
	}

	payload := map[string]interface{}{
		"user_id":    userID,
		"session_id": sessionID,
		"text":       text,
		"sent_at":    time.Now().UTC().Format(time.RFC3339Nano),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload failed: %w", err)
	}

	timeout := toDurationSeconds(cfg["timeout_seconds"], defaultWebhookTimeout)
	requestCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range toStringMap(cfg["headers"]) {
		if strings.TrimSpace(key) == "" || strings.TrimSpace(value) == "" {
			continue
		}
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	c.logger.Debug("webhook delivered", zap.String("method", method), zap.Int("status", resp.StatusCode))
	return nil
}
