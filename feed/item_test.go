package feed

import (
	"fmt"
	"testing"
	"time"
)

func items(ids ...string) []Item {
	out := make([]Item, len(ids))
	for i, id := range ids {
		out[i] = Item{ID: id, Title: "video " + id}
	}
	return out
}

func TestMerge_CheapOrderFirst(t *testing.T) {
	cheap := items("a", "b", "c")
	bulk := items("d", "e")

	got := Merge(cheap, bulk, 30)
	want := []string{"a", "b", "c", "d", "e"}
	if len(got) != len(want) {
		t.Fatalf("Merge() len = %d, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("Merge()[%d] = %s, want %s", i, got[i].ID, id)
		}
	}
}

func TestMerge_DedupKeepsFirstOccurrence(t *testing.T) {
	cheap := []Item{
		{ID: "a", Published: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)},
		{ID: "b"},
	}
	// Same video seen by both sources; the cheap copy carries the date.
	bulk := items("b", "a", "c")

	got := Merge(cheap, bulk, 30)
	if len(got) != 3 {
		t.Fatalf("Merge() len = %d, want 3", len(got))
	}
	if got[0].ID != "a" || got[1].ID != "b" || got[2].ID != "c" {
		t.Errorf("Merge() order = %v", IDs(got))
	}
	if got[0].Published.IsZero() {
		t.Error("Merge() dropped the cheap-source copy of a duplicate")
	}
}

func TestMerge_Cap(t *testing.T) {
	var cheap, bulk []Item
	for i := 0; i < 15; i++ {
		cheap = append(cheap, Item{ID: fmt.Sprintf("c%d", i)})
	}
	for i := 0; i < 25; i++ {
		bulk = append(bulk, Item{ID: fmt.Sprintf("b%d", i)})
	}

	got := Merge(cheap, bulk, 30)
	if len(got) != 30 {
		t.Errorf("Merge() len = %d, want 30", len(got))
	}
}

func TestMerge_SkipsEmptyIDs(t *testing.T) {
	got := Merge([]Item{{ID: ""}, {ID: "a"}}, []Item{{ID: ""}}, 30)
	if len(got) != 1 || got[0].ID != "a" {
		t.Errorf("Merge() = %v, want [a]", IDs(got))
	}
}

// TestMerge_LengthInvariant checks |merge(A,B)| = min(cap, |A|+|B|-k) for
// sequences sharing k IDs, with no duplicates in the result.
func TestMerge_LengthInvariant(t *testing.T) {
	tests := []struct {
		name         string
		cheap, bulk  int
		shared       int
		wantLen      int
	}{
		{"disjoint", 10, 10, 0, 20},
		{"overlap", 15, 20, 5, 30},
		{"all shared", 5, 5, 5, 5},
		{"over cap", 15, 30, 0, 30},
		{"both empty", 0, 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cheap, bulk []Item
			for i := 0; i < tt.cheap; i++ {
				cheap = append(cheap, Item{ID: fmt.Sprintf("s%d", i)})
			}
			for i := 0; i < tt.shared; i++ {
				bulk = append(bulk, Item{ID: fmt.Sprintf("s%d", i)})
			}
			for i := 0; i < tt.bulk-tt.shared; i++ {
				bulk = append(bulk, Item{ID: fmt.Sprintf("u%d", i)})
			}

			got := Merge(cheap, bulk, 30)
			if len(got) != tt.wantLen {
				t.Errorf("Merge() len = %d, want %d", len(got), tt.wantLen)
			}

			seen := map[string]bool{}
			for _, it := range got {
				if seen[it.ID] {
					t.Errorf("Merge() contains duplicate %s", it.ID)
				}
				seen[it.ID] = true
			}
		})
	}
}
