// Package webhook builds and delivers per-item notifications to HTTP
// endpoints.
package webhook

import (
	"context"
	"fmt"
	"net/http"
)

// Notification is one delivery: a JSON-serializable payload for a single new
// item, addressed to the feed's webhook target. The request ID correlates
// every attempt of the delivery in logs and on the wire.
type Notification struct {
	Feed      string
	Target    string
	RequestID string
	Payload   interface{}
}

type Sender interface {
	Send(ctx context.Context, notification Notification) error
}

// StatusError reports a non-2xx webhook response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("webhook returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("webhook returned status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether another attempt could still succeed. Rate
// limiting and server errors are transient; other client errors mean the
// request itself is rejected.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}
