// Package impl provides the HTTP webhook sender.
package impl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jensmonne/RSS-webhook/internal/webhook"
)

// maxErrorBody caps how much of an error response is kept for logs.
const maxErrorBody = 512

type Sender struct {
	client    *http.Client
	userAgent string
}

func NewSender(timeout time.Duration, userAgent string) *Sender {
	return &Sender{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// Send posts the notification payload as JSON. Non-2xx responses come back
// as *webhook.StatusError so callers can classify them.
func (s *Sender) Send(ctx context.Context, notification webhook.Notification) error {
	body, err := json.Marshal(notification.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, notification.Target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.userAgent)
	if notification.RequestID != "" {
		req.Header.Set("X-Request-Id", notification.RequestID)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &webhook.StatusError{
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(snippet)),
	}
}
