package trigger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Cron fires on a cron schedule, for feeds polled at calendar times rather
// than fixed intervals. Schedules may carry a CRON_TZ= prefix; otherwise
// they run in the local timezone.
type Cron struct {
	schedule string
	cron     *cron.Cron
	events   chan Event
	stopOnce sync.Once
}

func NewCron(schedule string) *Cron {
	return &Cron{schedule: schedule}
}

func (c *Cron) Start(ctx context.Context, feed string) (<-chan Event, error) {
	if c.schedule == "" {
		return nil, fmt.Errorf("cron schedule is required")
	}

	c.events = make(chan Event, 1)
	c.cron = cron.New()
	_, err := c.cron.AddFunc(c.schedule, func() {
		select {
		case c.events <- Event{Feed: feed, Timestamp: time.Now().UTC()}:
		default:
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid schedule: %w", err)
	}

	c.cron.Start()

	go func() {
		<-ctx.Done()
		_ = c.Stop()
	}()

	return c.events, nil
}

func (c *Cron) Stop() error {
	c.stopOnce.Do(func() {
		if c.cron != nil {
			<-c.cron.Stop().Done()
		}
		if c.events != nil {
			close(c.events)
		}
	})
	return nil
}
