package core

import (
	"time"
)

// Item is a single feed entry as produced by a fetch, in feed document order.
// ID is the feed-native GUID when present, otherwise an identifier derived
// from the entry's link and title so that re-fetches of the same entry
// produce the same ID.
type Item struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	Description string    `json:"description,omitempty"`
	Author      string    `json:"author,omitempty"`
	Published   time.Time `json:"published,omitempty"`
}

// HasPublished reports whether the entry carried a usable publication time.
func (i Item) HasPublished() bool {
	return !i.Published.IsZero()
}

// CycleStatus summarizes one poll cycle of one feed, for status reporting.
type CycleStatus struct {
	Feed        string    `json:"feed"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Fetched     int       `json:"fetched"`
	New         int       `json:"new"`
	Delivered   int       `json:"delivered"`
	Abandoned   int       `json:"abandoned"`
	NotModified bool      `json:"not_modified,omitempty"`
	Err         string    `json:"error,omitempty"`
}
