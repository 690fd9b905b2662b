// Package feed builds the capped, deduplicated list of recent videos for a
// channel by combining the channel RSS feed with the uploads playlist.
package feed

import "time"

// Caps on the two sources. The RSS feed serves the most recent 15 videos
// for free; the playlist page covers positions 16-30 of the authoritative
// ordering, so together they approximate "most recent 30" without paying
// quota for videos the feed already listed.
const (
	CheapLimit = 15
	MergeCap   = 30
)

// Item identifies one video from either source. Two items with the same ID
// are the same video regardless of which source produced them.
type Item struct {
	ID    string
	Title string
	// Published is the zero time when the source carried no usable date.
	Published time.Time
}

// Merge concatenates cheap-source items then bulk items, drops duplicates
// by ID keeping the first occurrence, and truncates to cap. Items without
// an ID are discarded.
func Merge(cheap, bulk []Item, cap int) []Item {
	merged := make([]Item, 0, cap)
	seen := make(map[string]struct{}, cap)

	for _, list := range [][]Item{cheap, bulk} {
		for _, it := range list {
			if it.ID == "" {
				continue
			}
			if _, dup := seen[it.ID]; dup {
				continue
			}
			if len(merged) >= cap {
				return merged
			}
			seen[it.ID] = struct{}{}
			merged = append(merged, it)
		}
	}
	return merged
}

// IDs returns the item IDs in order.
func IDs(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}
