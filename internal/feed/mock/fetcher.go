// Package mock provides a scriptable feed.Fetcher for tests.
package mock

import (
	"context"
	"sync"

	"github.com/jensmonne/RSS-webhook/internal/feed"
)

// Fetcher serves queued results per URL. The last queued result repeats once
// the queue drains, so a test can script successive cycles.
type Fetcher struct {
	mu      sync.Mutex
	results map[string][]*feed.Result
	errs    map[string]error
	calls   map[string]int
}

func NewFetcher() *Fetcher {
	return &Fetcher{
		results: map[string][]*feed.Result{},
		errs:    map[string]error{},
		calls:   map[string]int{},
	}
}

// Enqueue appends a result for successive fetches of url.
func (f *Fetcher) Enqueue(url string, result *feed.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[url] = append(f.results[url], result)
}

// Fail makes every fetch of url return err until cleared with a nil err.
func (f *Fetcher) Fail(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errs, url)
		return
	}
	f.errs[url] = err
}

// Calls reports how many times url has been fetched.
func (f *Fetcher) Calls(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func (f *Fetcher) Fetch(ctx context.Context, feedURL string) (*feed.Result, error) {
	_ = ctx
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[feedURL]++
	if err, ok := f.errs[feedURL]; ok {
		return nil, err
	}
	queue := f.results[feedURL]
	if len(queue) == 0 {
		return &feed.Result{}, nil
	}
	result := queue[0]
	if len(queue) > 1 {
		f.results[feedURL] = queue[1:]
	}
	return result, nil
}
