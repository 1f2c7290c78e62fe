// Package mock provides a scriptable Sender for tests.
package mock

import (
	"context"
	"sync"

	"github.com/jensmonne/RSS-webhook/internal/webhook"
)

// Sender records accepted notifications. Queued errors are returned first,
// one per Send call; once the queue is drained Send succeeds, or keeps
// failing with the error given to FailAlways.
type Sender struct {
	mu    sync.Mutex
	sent  []webhook.Notification
	queue []error
	err   error
	calls int
}

func NewSender() *Sender {
	return &Sender{}
}

// FailNext queues errors for upcoming Send calls. A nil entry means that
// call succeeds.
func (s *Sender) FailNext(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, errs...)
}

// FailAlways makes every Send fail with err once the queue is drained.
// Passing nil restores success.
func (s *Sender) FailAlways(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *Sender) Send(ctx context.Context, notification webhook.Notification) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.queue) > 0 {
		err := s.queue[0]
		s.queue = s.queue[1:]
		if err != nil {
			return err
		}
	} else if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, notification)
	return nil
}

// Sent returns a copy of the notifications accepted so far.
func (s *Sender) Sent() []webhook.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]webhook.Notification, len(s.sent))
	copy(out, s.sent)
	return out
}

// Calls reports how many times Send was invoked, including failures.
func (s *Sender) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
