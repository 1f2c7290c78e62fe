package trigger

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// maxStartupDelay caps the random stagger before the first tick.
const maxStartupDelay = 5 * time.Second

// Interval ticks at a fixed period. The first tick fires after a random
// delay of at most min(interval, maxStartupDelay) so feeds starting
// together do not poll in lockstep.
type Interval struct {
	interval time.Duration
	events   chan Event
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewInterval(interval time.Duration) *Interval {
	return &Interval{interval: interval}
}

func (t *Interval) Start(ctx context.Context, feed string) (<-chan Event, error) {
	if t.interval <= 0 {
		return nil, fmt.Errorf("interval must be positive")
	}

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.events = make(chan Event, 1)
	t.done = make(chan struct{})

	go func() {
		defer close(t.done)
		defer close(t.events)

		startup := t.interval
		if startup > maxStartupDelay {
			startup = maxStartupDelay
		}
		timer := time.NewTimer(time.Duration(rand.Int63n(int64(startup))))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		t.emit(feed)

		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.emit(feed)
			}
		}
	}()

	return t.events, nil
}

func (t *Interval) emit(feed string) {
	select {
	case t.events <- Event{Feed: feed, Timestamp: time.Now().UTC()}:
	default:
	}
}

func (t *Interval) Stop() error {
	if t.cancel != nil {
		t.cancel()
		<-t.done
	}
	return nil
}
