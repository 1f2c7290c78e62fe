// Package feed fetches RSS/Atom documents and normalizes their entries.
package feed

import (
	"context"

	"github.com/jensmonne/RSS-webhook/internal/core"
)

// Result is one successful fetch of a feed document.
type Result struct {
	// Title is the feed-level title, surfaced in notification payloads.
	Title string
	// Items preserve the order of the feed document.
	Items []core.Item
	// NotModified reports a 304 answer to a conditional request. Items is
	// empty and the cycle is a clean no-op.
	NotModified bool
}

// Fetcher fetches and parses RSS/Atom feeds. Implementations normalize both
// formats into core.Items and keep item identity stable across fetches.
type Fetcher interface {
	Fetch(ctx context.Context, feedURL string) (*Result, error)
}
