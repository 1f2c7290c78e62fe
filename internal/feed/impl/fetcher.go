package impl

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/jensmonne/RSS-webhook/internal/core"
	"github.com/jensmonne/RSS-webhook/internal/feed"
	"github.com/jensmonne/RSS-webhook/internal/retry"
)

// maxBodyBytes caps feed documents before parsing.
const maxBodyBytes = 10 << 20

// Fetcher retrieves feeds over HTTP with gofeed parsing. It remembers
// ETag/Last-Modified validators per URL and issues conditional requests so
// unchanged feeds cost a 304 instead of a full document.
type Fetcher struct {
	client    *http.Client
	parser    *gofeed.Parser
	userAgent string

	mu         sync.Mutex
	validators map[string]validator
}

type validator struct {
	etag         string
	lastModified string
}

func NewFetcher(timeout time.Duration, userAgent string) *Fetcher {
	return &Fetcher{
		client:     &http.Client{Timeout: timeout},
		parser:     gofeed.NewParser(),
		userAgent:  userAgent,
		validators: map[string]validator{},
	}
}

func (f *Fetcher) Fetch(ctx context.Context, feedURL string) (*feed.Result, error) {
	var result *feed.Result
	err := retry.Do(ctx, retry.Config{Attempts: 3, BaseDelay: 200 * time.Millisecond}, func() error {
		fetched, err := f.fetchOnce(ctx, feedURL)
		if err != nil {
			return err
		}
		result = fetched
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, feedURL string) (*feed.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")

	f.mu.Lock()
	cached := f.validators[feedURL]
	f.mu.Unlock()
	if cached.etag != "" {
		req.Header.Set("If-None-Match", cached.etag)
	}
	if cached.lastModified != "" {
		req.Header.Set("If-Modified-Since", cached.lastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return &feed.Result{NotModified: true}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("get feed: unexpected status %d", resp.StatusCode)
		// Client errors other than rate limiting won't clear within a cycle.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, retry.Permanent(err)
		}
		return nil, err
	}

	parsed, err := f.parser.Parse(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	f.remember(feedURL, resp.Header.Get("ETag"), resp.Header.Get("Last-Modified"))

	result := &feed.Result{
		Title: parsed.Title,
		Items: make([]core.Item, 0, len(parsed.Items)),
	}
	for _, entry := range parsed.Items {
		item := core.Item{
			ID:          entry.GUID,
			Title:       entry.Title,
			Link:        entry.Link,
			Description: entry.Description,
		}
		if item.Description == "" {
			item.Description = entry.Content
		}
		if entry.Author != nil {
			item.Author = entry.Author.Name
		}
		if item.ID == "" {
			item.ID = deriveID(entry.Link, entry.Title)
		}
		if entry.PublishedParsed != nil {
			item.Published = *entry.PublishedParsed
		} else if entry.UpdatedParsed != nil {
			item.Published = *entry.UpdatedParsed
		}
		result.Items = append(result.Items, item)
	}
	return result, nil
}

func (f *Fetcher) remember(feedURL, etag, lastModified string) {
	f.mu.Lock()
	if etag == "" && lastModified == "" {
		delete(f.validators, feedURL)
	} else {
		f.validators[feedURL] = validator{etag: etag, lastModified: lastModified}
	}
	f.mu.Unlock()
}

// deriveID keeps identity stable for feeds that publish no GUID.
func deriveID(link, title string) string {
	sum := sha256.Sum256([]byte(link + "\n" + title))
	return hex.EncodeToString(sum[:])
}
