// Package trigger produces per-feed poll ticks.
package trigger

import (
	"context"
	"time"
)

// Event is one poll tick for a feed.
type Event struct {
	Feed      string
	Timestamp time.Time
}

// Trigger emits poll events until its context is cancelled. Emission is
// non-blocking: a tick that arrives while the watcher is still in a cycle
// is dropped, not queued.
type Trigger interface {
	Start(ctx context.Context, feed string) (<-chan Event, error)
	Stop() error
}
