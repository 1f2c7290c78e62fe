package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jensmonne/RSS-webhook/internal/config"
	"github.com/jensmonne/RSS-webhook/internal/core"
	"github.com/jensmonne/RSS-webhook/internal/dedup"
	"github.com/jensmonne/RSS-webhook/internal/feed"
	"github.com/jensmonne/RSS-webhook/internal/filter"
	"github.com/jensmonne/RSS-webhook/internal/metrics"
	"github.com/jensmonne/RSS-webhook/internal/seen"
	"github.com/jensmonne/RSS-webhook/internal/trigger"
	"github.com/jensmonne/RSS-webhook/internal/webhook"
)

// consecutiveFailureEscalation is how many fetch failures in a row raise the
// log level from warn to error.
const consecutiveFailureEscalation = 3

// watcher polls one feed. It owns the feed's seen store exclusively; nothing
// here is shared with other watchers.
type watcher struct {
	feed       config.Feed
	trigger    trigger.Trigger
	fetcher    feed.Fetcher
	store      seen.Store
	dispatcher *webhook.Dispatcher
	filter     *filter.Filter
	format     string
	backfill   int
	pacing     time.Duration
	status     *statusFile
	logger     *slog.Logger

	failures int
}

func (w *watcher) run(ctx context.Context, events <-chan trigger.Event) {
	defer func() {
		if w.store.Dirty() {
			if err := w.store.Persist(); err != nil {
				w.logger.Error("final state persist failed", "error", err)
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			w.logger.Debug("trigger fired", "time", event.Timestamp)
			status := w.cycle(ctx)
			w.report(status)
		}
	}
}

// cycle runs one poll: fetch, diff against the store, deliver what is new,
// commit outcomes, persist. Every failure in here is scoped to this feed and
// this cycle.
func (w *watcher) cycle(ctx context.Context) core.CycleStatus {
	cycleID := fmt.Sprintf("cycle-%d", time.Now().UnixNano())
	logger := w.logger.With("cycle_id", cycleID)
	ctx = core.WithLogger(ctx, logger)
	ctx = core.WithFeedName(ctx, w.feed.Name)
	ctx = core.WithCycleID(ctx, cycleID)

	tracer := otel.Tracer("rsswebhook/runner")
	ctx, span := tracer.Start(ctx, "feed.poll_cycle")
	span.SetAttributes(
		attribute.String("feed", w.feed.Name),
		attribute.String("cycle.id", cycleID),
	)
	defer span.End()

	status := core.CycleStatus{Feed: w.feed.Name, StartedAt: time.Now().UTC()}

	fetchStart := time.Now()
	result, err := w.fetcher.Fetch(ctx, w.feed.URL)
	metrics.FetchDuration.WithLabelValues(w.feed.Name).Observe(time.Since(fetchStart).Seconds())
	if err != nil {
		w.failures++
		metrics.FetchErrors.WithLabelValues(w.feed.Name).Inc()
		metrics.PollCycles.WithLabelValues(w.feed.Name, "fetch_error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		attrs := []any{"error", err, "consecutive", w.failures}
		if w.failures >= consecutiveFailureEscalation {
			logger.Error("feed fetch failed", attrs...)
		} else {
			logger.Warn("feed fetch failed", attrs...)
		}

		status.Err = err.Error()
		w.finish(logger, &status)
		return status
	}
	w.failures = 0

	if result.NotModified {
		metrics.PollCycles.WithLabelValues(w.feed.Name, "not_modified").Inc()
		span.SetStatus(codes.Ok, "")
		logger.Debug("feed not modified")
		status.NotModified = true
		w.finish(logger, &status)
		return status
	}
	status.Fetched = len(result.Items)

	candidates := dedup.Diff(result.Items, w.store)
	status.New = len(candidates)

	deliver := candidates
	if w.store.Len() == 0 && len(candidates) > 0 {
		var skip []core.Item
		deliver, skip = splitBackfill(candidates, w.backfill)
		for _, item := range skip {
			w.store.Mark(item.ID, time.Now().UTC())
		}
		if len(skip) > 0 {
			logger.Info("first run, backfilling newest items", "delivering", len(deliver), "marked", len(skip))
		}
	}

	dispatched := 0
	for _, item := range deliver {
		if ctx.Err() != nil {
			break
		}
		if w.filter != nil {
			keep, err := w.filter.Match(item)
			if err != nil {
				logger.Warn("filter evaluation failed, delivering item", "item_id", item.ID, "error", err)
			} else if !keep {
				logger.Debug("filter dropped item", "item_id", item.ID)
				w.store.Mark(item.ID, time.Now().UTC())
				continue
			}
		}

		if dispatched > 0 && w.pacing > 0 {
			if pause(ctx, w.pacing) != nil {
				break
			}
		}

		notification := webhook.Notification{
			Feed:      w.feed.Name,
			Target:    w.feed.Webhook,
			RequestID: uuid.NewString(),
			Payload:   w.payload(result, item),
		}
		err := w.dispatcher.Deliver(ctx, notification)
		dispatched++
		switch {
		case err == nil:
			status.Delivered++
			metrics.NotificationsSent.WithLabelValues(w.feed.Name).Inc()
			logger.Info("notification delivered",
				"item_id", item.ID,
				"title", item.Title,
				"request_id", notification.RequestID,
			)
			w.store.Mark(item.ID, time.Now().UTC())
		case ctx.Err() != nil:
			// Shutdown mid-delivery. The item stays unmarked so the next
			// start delivers it again.
			logger.Info("delivery interrupted", "item_id", item.ID)
		default:
			status.Abandoned++
			metrics.NotificationsAbandoned.WithLabelValues(w.feed.Name).Inc()
			logger.Warn("notification abandoned",
				"item_id", item.ID,
				"request_id", notification.RequestID,
				"error", err,
			)
			w.store.Mark(item.ID, time.Now().UTC())
		}
	}

	metrics.PollCycles.WithLabelValues(w.feed.Name, "ok").Inc()
	span.SetStatus(codes.Ok, "")
	w.finish(logger, &status)

	if status.New > 0 {
		logger.Info("cycle complete",
			"fetched", status.Fetched,
			"new", status.New,
			"delivered", status.Delivered,
			"abandoned", status.Abandoned,
		)
	} else {
		logger.Debug("cycle complete", "fetched", status.Fetched)
	}
	return status
}

// finish persists outcome state and stamps the status. Persist failures are
// recoverable: the store stays dirty and the next cycle tries again.
func (w *watcher) finish(logger *slog.Logger, status *core.CycleStatus) {
	if err := w.store.Persist(); err != nil {
		metrics.PersistErrors.WithLabelValues(w.feed.Name).Inc()
		logger.Error("state persist failed", "error", err)
	}
	metrics.SeenRecords.WithLabelValues(w.feed.Name).Set(float64(w.store.Len()))
	status.FinishedAt = time.Now().UTC()
}

func (w *watcher) report(status core.CycleStatus) {
	if w.status == nil {
		return
	}
	if err := w.status.Update(status); err != nil {
		w.logger.Warn("status file write failed", "error", err)
	}
}

func (w *watcher) payload(result *feed.Result, item core.Item) interface{} {
	info := webhook.FeedInfo{
		Name:     w.feed.Name,
		URL:      w.feed.URL,
		Title:    result.Title,
		Username: w.feed.Username,
		Color:    w.feed.Color,
	}
	if w.format == config.FormatJSON {
		return webhook.NewJSONPayload(info, item, time.Now().UTC())
	}
	return webhook.NewDiscordPayload(info, item)
}

// splitBackfill keeps the newest n candidates for delivery, oldest of that
// group first, and returns the rest to be marked seen silently. Feeds list
// newest entries first, so the head of the batch is the newest.
func splitBackfill(items []core.Item, n int) (deliver, skip []core.Item) {
	if n <= 0 {
		return nil, items
	}
	if len(items) > n {
		skip = items[n:]
		items = items[:n]
	}
	deliver = make([]core.Item, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		deliver = append(deliver, items[i])
	}
	return deliver, skip
}

func pause(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
