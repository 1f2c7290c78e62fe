package dedup

import (
	"testing"

	"github.com/jensmonne/RSS-webhook/internal/core"
)

type fakeLookup map[string]bool

func (f fakeLookup) Contains(id string) bool { return f[id] }

func ids(items []core.Item) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.ID
	}
	return out
}

func itemsFor(idList ...string) []core.Item {
	out := make([]core.Item, len(idList))
	for i, id := range idList {
		out[i] = core.Item{ID: id}
	}
	return out
}

func TestDiffSkipsCommittedItems(t *testing.T) {
	store := fakeLookup{"b": true}
	got := Diff(itemsFor("a", "b", "c"), store)
	want := []string{"a", "c"}
	if len(got) != len(want) {
		t.Fatalf("Diff() returned %v, want %v", ids(got), want)
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("Diff()[%d] = %q, want %q", i, got[i].ID, id)
		}
	}
}

func TestDiffPreservesFeedOrder(t *testing.T) {
	got := Diff(itemsFor("x", "y", "z"), fakeLookup{})
	for i, id := range []string{"x", "y", "z"} {
		if got[i].ID != id {
			t.Fatalf("order broken at %d: got %v", i, ids(got))
		}
	}
}

func TestDiffIsIdempotent(t *testing.T) {
	store := fakeLookup{"a": true}
	batch := itemsFor("a", "b")
	first := Diff(batch, store)
	second := Diff(batch, store)
	if len(first) != 1 || len(second) != 1 || first[0].ID != second[0].ID {
		t.Fatalf("Diff not idempotent: first %v, second %v", ids(first), ids(second))
	}
}

func TestDiffCollapsesBatchDuplicates(t *testing.T) {
	batch := []core.Item{
		{ID: "a", Title: "first"},
		{ID: "a", Title: "second"},
		{ID: "b"},
	}
	got := Diff(batch, fakeLookup{})
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2 (%v)", len(got), ids(got))
	}
	if got[0].Title != "first" {
		t.Errorf("duplicate collapsed to %q, want first occurrence", got[0].Title)
	}
}

func TestDiffDropsItemsWithoutID(t *testing.T) {
	got := Diff([]core.Item{{ID: ""}, {ID: "a"}}, fakeLookup{})
	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("Diff() = %v, want just [a]", ids(got))
	}
}

func TestDiffEmptyBatch(t *testing.T) {
	if got := Diff(nil, fakeLookup{}); len(got) != 0 {
		t.Fatalf("Diff(nil) = %v, want empty", ids(got))
	}
}
