// Package dedup separates newly published items from already-notified ones.
package dedup

import "github.com/jensmonne/RSS-webhook/internal/core"

// Lookup is the read side of a seen store.
type Lookup interface {
	Contains(id string) bool
}

// Diff returns the items absent from store, preserving input order.
// Duplicate ids within one batch collapse to their first occurrence. Diff
// never mutates the store: items are marked seen only after their delivery
// outcome is known, so a crash in between causes redelivery, not loss.
func Diff(items []core.Item, store Lookup) []core.Item {
	fresh := make([]core.Item, 0, len(items))
	inBatch := make(map[string]bool, len(items))
	for _, item := range items {
		if item.ID == "" || inBatch[item.ID] {
			continue
		}
		inBatch[item.ID] = true
		if store.Contains(item.ID) {
			continue
		}
		fresh = append(fresh, item)
	}
	return fresh
}
