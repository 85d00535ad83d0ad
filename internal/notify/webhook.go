package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

type WebhookOptions struct {
	URLs          []string
	Timeout       time.Duration
	SkipTLSVerify bool
	Logger        *slog.Logger
}

// WebhookSender posts notifications as JSON to every configured URL.
type WebhookSender struct {
	urls   []string
	client *http.Client
	logger *slog.Logger
}

type webhookPayload struct {
	Rule        string    `json:"rule"`
	Status      string    `json:"status"`
	EvaluatedAt time.Time `json:"evaluated_at"`
	Clauses     []Clause  `json:"clauses"`
}

func NewWebhookSender(opts WebhookOptions) *WebhookSender {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: opts.SkipTLSVerify}, // #nosec G402
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookSender{
		urls:   opts.URLs,
		client: &http.Client{Timeout: timeout, Transport: transport},
		logger: logger.With("component", "webhook_sender"),
	}
}

// Send delivers n to all URLs. Delivery continues past failing receivers and
// the failures are reported together.
func (s *WebhookSender) Send(ctx context.Context, n Notification) error {
	if len(s.urls) == 0 {
		return nil
	}
	body, err := json.Marshal(webhookPayload{
		Rule:        n.Rule,
		Status:      string(n.Status),
		EvaluatedAt: n.EvaluatedAt,
		Clauses:     n.Clauses,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	var errs []string
	for _, url := range s.urls {
		if err := s.post(ctx, url, body); err != nil {
			errs = append(errs, err.Error())
			continue
		}
		s.logger.Debug("notification delivered", "url", url, "status", n.Status)
	}
	if len(errs) > 0 {
		return fmt.Errorf("webhook delivery failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (s *WebhookSender) post(ctx context.Context, url string, body []byte) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: %v", url, err)
	}
	request.Header.Set("Content-Type", "application/json")
	response, err := s.client.Do(request)
	if err != nil {
		return fmt.Errorf("%s: %v", url, err)
	}
	responseBody, readErr := io.ReadAll(response.Body)
	_ = response.Body.Close()
	if response.StatusCode >= http.StatusOK && response.StatusCode < http.StatusMultipleChoices {
		return nil
	}
	if readErr != nil {
		return fmt.Errorf("%s: status %d (body read error: %v)", url, response.StatusCode, readErr)
	}
	trimmed := strings.TrimSpace(string(responseBody))
	if trimmed == "" {
		trimmed = response.Status
	}
	return fmt.Errorf("%s: status %d (%s)", url, response.StatusCode, trimmed)
}
