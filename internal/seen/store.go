// Package seen persists per-feed item identity so restarts do not renotify.
package seen

import "time"

// Record is one remembered item.
type Record struct {
	ItemID string    `json:"item_id"`
	SeenAt time.Time `json:"seen_at"`
}

// Store tracks item ids whose notifications were delivered or abandoned.
// A store belongs to a single feed watcher and is not safe for concurrent
// use; persistence is an explicit step so a cycle costs at most one write.
type Store interface {
	Contains(id string) bool
	Mark(id string, seenAt time.Time)
	Persist() error
	Len() int
	Dirty() bool
}
