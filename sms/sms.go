// Package sms delivers one-time codes through a text-message gateway.
// Delivery failure is never fatal to the operation that requested it; the
// caller reports it as a side-channel flag.
package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"fishmarket/config"
)

type Sender interface {
	Send(ctx context.Context, to, body string) error
}

// NewFromConfig returns an HTTPSender when a gateway URL is configured and
// a LogSender otherwise, so local development works without a provider.
func NewFromConfig(cfg *config.SMSConfig) Sender {
	if cfg.GatewayURL == "" {
		return &LogSender{}
	}
	return &HTTPSender{
		gatewayURL: cfg.GatewayURL,
		apiKey:     cfg.APIKey,
		from:       cfg.From,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// HTTPSender posts messages to a JSON SMS gateway.
type HTTPSender struct {
	gatewayURL string
	apiKey     string
	from       string
	client     *http.Client
}

func (s *HTTPSender) Send(ctx context.Context, to, body string) error {
	payload, err := json.Marshal(map[string]string{
		"to":   to,
		"from": s.from,
		"body": body,
	})
	if err != nil {
		return fmt.Errorf("marshal sms payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.gatewayURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("sms gateway returned %d", resp.StatusCode)
	}
	return nil
}

// LogSender writes the message to the log instead of sending it.
type LogSender struct{}

func (s *LogSender) Send(_ context.Context, to, body string) error {
	slog.Info("sms (log only)", "to", to, "body", body)
	return nil
}
