// Package runner owns the per-feed watchers: it assembles one watcher per
// configured feed and runs their poll cycles until stopped.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jensmonne/RSS-webhook/internal/config"
	"github.com/jensmonne/RSS-webhook/internal/core"
	"github.com/jensmonne/RSS-webhook/internal/feed"
	feedimpl "github.com/jensmonne/RSS-webhook/internal/feed/impl"
	"github.com/jensmonne/RSS-webhook/internal/filter"
	"github.com/jensmonne/RSS-webhook/internal/retry"
	"github.com/jensmonne/RSS-webhook/internal/seen"
	"github.com/jensmonne/RSS-webhook/internal/trigger"
	"github.com/jensmonne/RSS-webhook/internal/webhook"
	webhookimpl "github.com/jensmonne/RSS-webhook/internal/webhook/impl"
)

// DefaultShutdownGrace bounds how long Stop waits for watchers to settle.
const DefaultShutdownGrace = 10 * time.Second

type Runner struct {
	logger   *slog.Logger
	watchers []*watcher
	grace    time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Options carries the injectable pieces of a Runner. Nil Fetcher or Sender
// means the HTTP implementations are built from the document defaults.
type Options struct {
	Logger        *slog.Logger
	Fetcher       feed.Fetcher
	Sender        webhook.Sender
	ShutdownGrace time.Duration
}

// New assembles a watcher per configured feed. It creates the state
// directory and fails when it is not writable, so a misconfigured deployment
// dies at startup instead of silently losing state later.
func New(doc *config.Document, opts Options) (*Runner, error) {
	if doc == nil {
		return nil, fmt.Errorf("config document is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	stateDir := doc.State.Dir
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	probe := filepath.Join(stateDir, ".probe")
	if err := os.WriteFile(probe, nil, 0o644); err != nil {
		return nil, fmt.Errorf("state directory is not writable: %w", err)
	}
	_ = os.Remove(probe)

	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = feedimpl.NewFetcher(doc.Defaults.Timeout.Std(), doc.Defaults.UserAgent)
	}
	sender := opts.Sender
	if sender == nil {
		sender = webhookimpl.NewSender(doc.Defaults.Timeout.Std(), doc.Defaults.UserAgent)
	}
	grace := opts.ShutdownGrace
	if grace <= 0 {
		grace = DefaultShutdownGrace
	}

	status := newStatusFile(filepath.Join(stateDir, "status.json"))

	r := &Runner{logger: logger, grace: grace}
	for _, f := range doc.Feeds {
		w, err := newWatcher(doc, f, fetcher, sender, status, logger)
		if err != nil {
			return nil, fmt.Errorf("feed %q: %w", f.Name, err)
		}
		r.watchers = append(r.watchers, w)
	}
	return r, nil
}

func newWatcher(doc *config.Document, f config.Feed, fetcher feed.Fetcher, sender webhook.Sender, status *statusFile, logger *slog.Logger) (*watcher, error) {
	feedLogger := logger.With("feed", f.Name)

	store, err := seen.NewFileStore(doc.State.Dir, f.URL, doc.State.Retention, feedLogger)
	if err != nil {
		return nil, err
	}

	var trig trigger.Trigger
	if f.Schedule != "" {
		trig = trigger.NewCron(f.Schedule)
	} else {
		trig = trigger.NewInterval(doc.IntervalFor(f))
	}

	var rule *filter.Filter
	if f.Filter != "" {
		rule, err = filter.Compile(f.Filter)
		if err != nil {
			return nil, err
		}
	}

	policy := doc.RetryFor(f)
	dispatcher := webhook.NewDispatcher(sender, retry.Config{
		Attempts:  policy.Attempts,
		BaseDelay: policy.BaseDelay.Std(),
		MaxDelay:  policy.MaxDelay.Std(),
		Jitter:    policy.Jitter.Std(),
	})

	return &watcher{
		feed:       f,
		trigger:    trig,
		fetcher:    fetcher,
		store:      store,
		dispatcher: dispatcher,
		filter:     rule,
		format:     doc.FormatFor(f),
		backfill:   doc.Backfill(),
		pacing:     doc.Pacing(),
		status:     status,
		logger:     feedLogger,
	}, nil
}

// Start launches every watcher on its own trigger. It returns once all
// triggers are running; cycles then happen in the background until the
// context is cancelled or Stop is called.
func (r *Runner) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	for i, w := range r.watchers {
		events, err := w.trigger.Start(runCtx, w.feed.Name)
		if err != nil {
			cancel()
			for _, started := range r.watchers[:i] {
				_ = started.trigger.Stop()
			}
			return fmt.Errorf("start trigger for feed %q: %w", w.feed.Name, err)
		}
		r.wg.Add(1)
		go func(w *watcher, events <-chan trigger.Event) {
			defer r.wg.Done()
			w.run(runCtx, events)
		}(w, events)
	}

	r.logger.Info("runner started", "feeds", len(r.watchers))
	return nil
}

// Stop cancels all watchers, stops their triggers, and waits up to the
// shutdown grace for in-flight cycles to settle and persist.
func (r *Runner) Stop() error {
	if r.cancel != nil {
		r.cancel()
	}
	for _, w := range r.watchers {
		if err := w.trigger.Stop(); err != nil {
			r.logger.Warn("trigger stop failed", "feed", w.feed.Name, "error", err)
		}
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.logger.Info("runner stopped")
		return nil
	case <-time.After(r.grace):
		return fmt.Errorf("watchers still running after %s", r.grace)
	}
}

// RunOnce polls every feed a single time, in configuration order, and
// reports what each cycle did. Deliveries and persistence behave exactly as
// in the daemon loop.
func (r *Runner) RunOnce(ctx context.Context) []core.CycleStatus {
	statuses := make([]core.CycleStatus, 0, len(r.watchers))
	for _, w := range r.watchers {
		if ctx.Err() != nil {
			break
		}
		status := w.cycle(ctx)
		w.report(status)
		statuses = append(statuses, status)
	}
	return statuses
}
