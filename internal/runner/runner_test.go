package runner

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jensmonne/RSS-webhook/internal/config"
	"github.com/jensmonne/RSS-webhook/internal/core"
	"github.com/jensmonne/RSS-webhook/internal/feed"
	feedmock "github.com/jensmonne/RSS-webhook/internal/feed/mock"
	"github.com/jensmonne/RSS-webhook/internal/seen"
	"github.com/jensmonne/RSS-webhook/internal/webhook"
	webhookmock "github.com/jensmonne/RSS-webhook/internal/webhook/mock"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDoc(t *testing.T, feeds ...config.Feed) *config.Document {
	t.Helper()
	backfill := 3
	pacing := config.Duration(0)
	return &config.Document{
		State: config.StateConfig{Dir: t.TempDir(), Retention: 100},
		Defaults: config.Defaults{
			Interval:  config.Duration(time.Minute),
			Timeout:   config.Duration(5 * time.Second),
			UserAgent: "rsswebhook/test",
			Backfill:  &backfill,
			Pacing:    &pacing,
		},
		Retry: config.RetryConfig{
			Attempts:  2,
			BaseDelay: config.Duration(time.Millisecond),
			MaxDelay:  config.Duration(2 * time.Millisecond),
			Jitter:    config.Duration(time.Millisecond),
		},
		Feeds: feeds,
	}
}

func testFeed(name, url, hook string) config.Feed {
	return config.Feed{Name: name, URL: url, Webhook: hook}
}

func testItem(id, title string) core.Item {
	return core.Item{ID: id, Title: title, Link: "https://example.com/" + id}
}

func embedTitle(t *testing.T, notification webhook.Notification) string {
	t.Helper()
	payload, ok := notification.Payload.(webhook.DiscordPayload)
	if !ok {
		t.Fatalf("expected a DiscordPayload, got %T", notification.Payload)
	}
	if len(payload.Embeds) != 1 {
		t.Fatalf("expected 1 embed, got %d", len(payload.Embeds))
	}
	return payload.Embeds[0].Title
}

func TestCycleDeliversOnlyNewItems(t *testing.T) {
	const feedURL = "https://example.com/feed.xml"
	doc := testDoc(t, testFeed("news", feedURL, "https://hooks.example.com/1"))

	fetcher := feedmock.NewFetcher()
	fetcher.Enqueue(feedURL, &feed.Result{Title: "Example", Items: []core.Item{
		testItem("a", "A"), testItem("b", "B"), testItem("c", "C"),
	}})
	fetcher.Enqueue(feedURL, &feed.Result{Title: "Example", Items: []core.Item{
		testItem("b", "B"), testItem("c", "C"), testItem("d", "D"),
	}})
	sender := webhookmock.NewSender()

	r, err := New(doc, Options{Logger: testLogger(), Fetcher: fetcher, Sender: sender})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w := r.watchers[0]
	ctx := context.Background()

	status := w.cycle(ctx)
	if status.Delivered != 3 {
		t.Fatalf("expected 3 deliveries on first run, got %d", status.Delivered)
	}
	sent := sender.Sent()
	// First run backfills oldest-first, so document order reverses.
	wantOrder := []string{"C", "B", "A"}
	for i, want := range wantOrder {
		if got := embedTitle(t, sent[i]); got != want {
			t.Fatalf("delivery %d: expected title %q, got %q", i, want, got)
		}
	}

	statePath := filepath.Join(doc.State.Dir, seen.FileName(feedURL))
	if _, err := os.Stat(statePath); err != nil {
		t.Fatalf("expected state file after first cycle: %v", err)
	}

	status = w.cycle(ctx)
	if status.New != 1 || status.Delivered != 1 {
		t.Fatalf("expected exactly the new item delivered, got new=%d delivered=%d", status.New, status.Delivered)
	}
	sent = sender.Sent()
	if len(sent) != 4 {
		t.Fatalf("expected 4 total deliveries, got %d", len(sent))
	}
	if got := embedTitle(t, sent[3]); got != "D" {
		t.Fatalf("expected the new item D, got %q", got)
	}

	// Re-polling the same document delivers nothing.
	status = w.cycle(ctx)
	if status.New != 0 || len(sender.Sent()) != 4 {
		t.Fatalf("expected an idempotent cycle, got new=%d total=%d", status.New, len(sender.Sent()))
	}
}

func TestCycleBackfillLimitsFirstRun(t *testing.T) {
	const feedURL = "https://example.com/busy.xml"
	doc := testDoc(t, testFeed("busy", feedURL, "https://hooks.example.com/2"))

	fetcher := feedmock.NewFetcher()
	fetcher.Enqueue(feedURL, &feed.Result{Title: "Busy", Items: []core.Item{
		testItem("n1", "N1"), testItem("n2", "N2"), testItem("n3", "N3"),
		testItem("n4", "N4"), testItem("n5", "N5"),
	}})
	sender := webhookmock.NewSender()

	r, err := New(doc, Options{Logger: testLogger(), Fetcher: fetcher, Sender: sender})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w := r.watchers[0]

	status := w.cycle(context.Background())
	if status.Delivered != 3 {
		t.Fatalf("expected backfill to deliver 3, got %d", status.Delivered)
	}
	sent := sender.Sent()
	wantOrder := []string{"N3", "N2", "N1"}
	for i, want := range wantOrder {
		if got := embedTitle(t, sent[i]); got != want {
			t.Fatalf("delivery %d: expected %q, got %q", i, want, got)
		}
	}

	// The older items were marked without notification.
	status = w.cycle(context.Background())
	if status.New != 0 || len(sender.Sent()) != 3 {
		t.Fatalf("expected no further deliveries, got new=%d total=%d", status.New, len(sender.Sent()))
	}
}

func TestCycleMarksAbandonedItemsSeen(t *testing.T) {
	const feedURL = "https://example.com/flaky.xml"
	doc := testDoc(t, testFeed("flaky", feedURL, "https://hooks.example.com/3"))

	fetcher := feedmock.NewFetcher()
	fetcher.Enqueue(feedURL, &feed.Result{Title: "Flaky", Items: []core.Item{testItem("x", "X")}})
	sender := webhookmock.NewSender()
	sender.FailAlways(&webhook.StatusError{StatusCode: 500})

	r, err := New(doc, Options{Logger: testLogger(), Fetcher: fetcher, Sender: sender})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w := r.watchers[0]

	status := w.cycle(context.Background())
	if status.Abandoned != 1 || status.Delivered != 0 {
		t.Fatalf("expected 1 abandoned delivery, got delivered=%d abandoned=%d", status.Delivered, status.Abandoned)
	}
	if sender.Calls() != 2 {
		t.Fatalf("expected the full attempt budget of 2, got %d calls", sender.Calls())
	}

	// The item was committed seen, so recovery of the target changes nothing.
	sender.FailAlways(nil)
	status = w.cycle(context.Background())
	if status.New != 0 || sender.Calls() != 2 {
		t.Fatalf("expected the abandoned item to stay seen, got new=%d calls=%d", status.New, sender.Calls())
	}
}

type failingPersistStore struct {
	seen.Store
}

func (f *failingPersistStore) Persist() error {
	return errors.New("disk full")
}

func TestCycleRedeliversWhenStateWasNeverPersisted(t *testing.T) {
	const feedURL = "https://example.com/crashy.xml"
	doc := testDoc(t, testFeed("crashy", feedURL, "https://hooks.example.com/4"))

	fetcher := feedmock.NewFetcher()
	fetcher.Enqueue(feedURL, &feed.Result{Title: "Crashy", Items: []core.Item{testItem("p", "P")}})
	sender := webhookmock.NewSender()

	r, err := New(doc, Options{Logger: testLogger(), Fetcher: fetcher, Sender: sender})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w := r.watchers[0]
	w.store = &failingPersistStore{Store: w.store}

	status := w.cycle(context.Background())
	if status.Delivered != 1 {
		t.Fatalf("expected 1 delivery, got %d", status.Delivered)
	}

	// Simulate a crash before any successful persist: a rebuilt watcher finds
	// no state on disk and delivers the item again.
	r2, err := New(doc, Options{Logger: testLogger(), Fetcher: fetcher, Sender: sender})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	status = r2.watchers[0].cycle(context.Background())
	if status.Delivered != 1 {
		t.Fatalf("expected redelivery after state loss, got %d", status.Delivered)
	}
	if len(sender.Sent()) != 2 {
		t.Fatalf("expected 2 total deliveries, got %d", len(sender.Sent()))
	}

	// This time the persist succeeded, so a third watcher stays quiet.
	r3, err := New(doc, Options{Logger: testLogger(), Fetcher: fetcher, Sender: sender})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	status = r3.watchers[0].cycle(context.Background())
	if status.Delivered != 0 || len(sender.Sent()) != 2 {
		t.Fatalf("expected no redelivery after persist, got delivered=%d total=%d", status.Delivered, len(sender.Sent()))
	}
}

func TestCycleAppliesFilter(t *testing.T) {
	const feedURL = "https://example.com/filtered.xml"
	f := testFeed("filtered", feedURL, "https://hooks.example.com/5")
	f.Filter = `title.value contains "release"`
	doc := testDoc(t, f)

	fetcher := feedmock.NewFetcher()
	fetcher.Enqueue(feedURL, &feed.Result{Title: "Filtered", Items: []core.Item{
		testItem("r1", "release 1.0"), testItem("c1", "weekly chatter"),
	}})
	sender := webhookmock.NewSender()

	r, err := New(doc, Options{Logger: testLogger(), Fetcher: fetcher, Sender: sender})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w := r.watchers[0]

	status := w.cycle(context.Background())
	if status.Delivered != 1 {
		t.Fatalf("expected only the matching item delivered, got %d", status.Delivered)
	}
	if got := embedTitle(t, sender.Sent()[0]); got != "release 1.0" {
		t.Fatalf("expected the release item, got %q", got)
	}

	// The dropped item was marked seen, not left for the next cycle.
	status = w.cycle(context.Background())
	if status.New != 0 || len(sender.Sent()) != 1 {
		t.Fatalf("expected filtered item to stay seen, got new=%d total=%d", status.New, len(sender.Sent()))
	}
}

func TestCycleNotModifiedIsNoOp(t *testing.T) {
	const feedURL = "https://example.com/unchanged.xml"
	doc := testDoc(t, testFeed("unchanged", feedURL, "https://hooks.example.com/6"))

	fetcher := feedmock.NewFetcher()
	fetcher.Enqueue(feedURL, &feed.Result{NotModified: true})
	sender := webhookmock.NewSender()

	r, err := New(doc, Options{Logger: testLogger(), Fetcher: fetcher, Sender: sender})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w := r.watchers[0]

	status := w.cycle(context.Background())
	if !status.NotModified {
		t.Fatal("expected a not-modified cycle")
	}
	if status.Fetched != 0 || status.Delivered != 0 {
		t.Fatalf("expected an empty cycle, got fetched=%d delivered=%d", status.Fetched, status.Delivered)
	}
	if len(sender.Sent()) != 0 {
		t.Fatalf("expected no deliveries, got %d", len(sender.Sent()))
	}
	if w.store.Len() != 0 {
		t.Fatalf("expected the store untouched, got %d records", w.store.Len())
	}
}

func TestCycleKeepsGoingAfterFetchErrors(t *testing.T) {
	const feedURL = "https://example.com/down.xml"
	doc := testDoc(t, testFeed("down", feedURL, "https://hooks.example.com/7"))

	fetcher := feedmock.NewFetcher()
	fetcher.Fail(feedURL, errors.New("connection refused"))
	sender := webhookmock.NewSender()

	r, err := New(doc, Options{Logger: testLogger(), Fetcher: fetcher, Sender: sender})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w := r.watchers[0]

	status := w.cycle(context.Background())
	if status.Err == "" {
		t.Fatal("expected the cycle to report the fetch error")
	}
	if w.failures != 1 {
		t.Fatalf("expected 1 consecutive failure, got %d", w.failures)
	}

	// Recovery resets the failure count and the feed keeps working.
	fetcher.Fail(feedURL, nil)
	fetcher.Enqueue(feedURL, &feed.Result{Title: "Down", Items: []core.Item{testItem("u", "U")}})
	status = w.cycle(context.Background())
	if status.Err != "" || status.Delivered != 1 {
		t.Fatalf("expected recovery, got err=%q delivered=%d", status.Err, status.Delivered)
	}
	if w.failures != 0 {
		t.Fatalf("expected failure count reset, got %d", w.failures)
	}
}

func TestRunOnceCoversEveryFeed(t *testing.T) {
	const (
		url1 = "https://example.com/one.xml"
		url2 = "https://example.com/two.xml"
	)
	doc := testDoc(t,
		testFeed("one", url1, "https://hooks.example.com/8"),
		testFeed("two", url2, "https://hooks.example.com/9"),
	)

	fetcher := feedmock.NewFetcher()
	fetcher.Enqueue(url1, &feed.Result{Title: "One", Items: []core.Item{testItem("o1", "O1")}})
	fetcher.Enqueue(url2, &feed.Result{Title: "Two", Items: []core.Item{testItem("t1", "T1")}})
	sender := webhookmock.NewSender()

	r, err := New(doc, Options{Logger: testLogger(), Fetcher: fetcher, Sender: sender})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	statuses := r.RunOnce(context.Background())
	if len(statuses) != 2 {
		t.Fatalf("expected 2 cycle statuses, got %d", len(statuses))
	}
	for _, status := range statuses {
		if status.Delivered != 1 {
			t.Fatalf("feed %q: expected 1 delivery, got %d", status.Feed, status.Delivered)
		}
	}

	raw, err := os.ReadFile(filepath.Join(doc.State.Dir, "status.json"))
	if err != nil {
		t.Fatalf("expected status.json: %v", err)
	}
	var image statusImage
	if err := json.Unmarshal(raw, &image); err != nil {
		t.Fatalf("status.json is not valid JSON: %v", err)
	}
	if len(image.Feeds) != 2 {
		t.Fatalf("expected both feeds in status.json, got %d", len(image.Feeds))
	}
	if _, ok := image.Feeds["one"]; !ok {
		t.Fatal("expected feed 'one' in status.json")
	}
}

func TestStartDeliversOnTrigger(t *testing.T) {
	const feedURL = "https://example.com/live.xml"
	f := testFeed("live", feedURL, "https://hooks.example.com/10")
	f.Interval = config.Duration(30 * time.Millisecond)
	doc := testDoc(t, f)

	fetcher := feedmock.NewFetcher()
	fetcher.Enqueue(feedURL, &feed.Result{Title: "Live", Items: []core.Item{testItem("l1", "L1")}})
	sender := webhookmock.NewSender()

	r, err := New(doc, Options{Logger: testLogger(), Fetcher: fetcher, Sender: sender, ShutdownGrace: 2 * time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for len(sender.Sent()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no delivery within 3s of starting")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := r.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	statePath := filepath.Join(doc.State.Dir, seen.FileName(feedURL))
	if _, err := os.Stat(statePath); err != nil {
		t.Fatalf("expected state persisted after Stop: %v", err)
	}
}

func TestNewRejectsUnwritableStateDir(t *testing.T) {
	tmp := t.TempDir()
	blocker := filepath.Join(tmp, "occupied")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}

	doc := testDoc(t, testFeed("feed", "https://example.com/feed.xml", "https://hooks.example.com/11"))
	doc.State.Dir = filepath.Join(blocker, "state")

	if _, err := New(doc, Options{Logger: testLogger(), Fetcher: feedmock.NewFetcher(), Sender: webhookmock.NewSender()}); err == nil {
		t.Fatal("expected an error for an unusable state directory")
	}
}

func TestSplitBackfill(t *testing.T) {
	items := []core.Item{testItem("1", "1"), testItem("2", "2"), testItem("3", "3"), testItem("4", "4")}

	deliver, skip := splitBackfill(items, 3)
	if len(deliver) != 3 || len(skip) != 1 {
		t.Fatalf("expected 3 delivered and 1 skipped, got %d and %d", len(deliver), len(skip))
	}
	if deliver[0].ID != "3" || deliver[2].ID != "1" {
		t.Fatalf("expected newest group reversed, got %v", deliver)
	}
	if skip[0].ID != "4" {
		t.Fatalf("expected the oldest item skipped, got %v", skip)
	}

	deliver, skip = splitBackfill(items[:2], 3)
	if len(deliver) != 2 || len(skip) != 0 {
		t.Fatalf("expected all items delivered when under the limit, got %d and %d", len(deliver), len(skip))
	}

	deliver, skip = splitBackfill(items, 0)
	if len(deliver) != 0 || len(skip) != 4 {
		t.Fatalf("expected everything skipped with a zero backfill, got %d and %d", len(deliver), len(skip))
	}
}

func TestStatusFileAccumulatesFeeds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	status := newStatusFile(path)

	if err := status.Update(core.CycleStatus{Feed: "alpha", Delivered: 2}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := status.Update(core.CycleStatus{Feed: "beta", Delivered: 1}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read status: %v", err)
	}
	var image statusImage
	if err := json.Unmarshal(raw, &image); err != nil {
		t.Fatalf("unmarshal status: %v", err)
	}
	if len(image.Feeds) != 2 {
		t.Fatalf("expected both feeds recorded, got %d", len(image.Feeds))
	}
	if image.Feeds["alpha"].Delivered != 2 {
		t.Fatalf("expected alpha's last cycle kept, got %+v", image.Feeds["alpha"])
	}
	if image.UpdatedAt.IsZero() {
		t.Fatal("expected an update timestamp")
	}
}
