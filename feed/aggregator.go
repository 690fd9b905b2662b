package feed

import (
	"context"
	"errors"
	"log/slog"

	"chantrack/youtube"
)

// CheapSource enumerates recent videos without spending quota. Satisfied
// by *RSSSource.
type CheapSource interface {
	Recent(ctx context.Context, channelID string, limit int) []Item
}

// BulkSource enumerates videos through the quota-billed API. Satisfied by
// *youtube.Client.
type BulkSource interface {
	UploadsPage(ctx context.Context, playlistID string, max int64) ([]string, error)
	RecentShortIDs(ctx context.Context, channelID string, max int64) ([]string, error)
}

// Aggregator combines the cheap RSS source with a bulk API source into one
// deduplicated, capped item list per channel.
type Aggregator struct {
	cheap  CheapSource
	logger *slog.Logger
}

// NewAggregator creates an aggregator over the given cheap source.
func NewAggregator(cheap CheapSource, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{cheap: cheap, logger: logger}
}

// Collect builds the merged item set for a channel. The bulk source is
// passed per call because API clients are constructed per allocated
// credential.
//
// Failure semantics: a failed RSS fetch yields no cheap items; a failed
// bulk fetch (retries exhausted or fatal) yields no bulk items. Both empty
// is a valid outcome — the caller decides whether the channel is unusable.
// A structurally missing uploads playlist switches to the shorts
// enumeration strategy instead of failing.
func (a *Aggregator) Collect(ctx context.Context, bulk BulkSource, channelID, uploadsPlaylistID string) ([]Item, error) {
	cheap := a.cheap.Recent(ctx, channelID, CheapLimit)

	bulkItems, err := a.fetchBulk(ctx, bulk, channelID, uploadsPlaylistID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		a.logger.Warn("bulk enumeration unavailable, using feed items only",
			"channel_id", channelID, "error", err)
		bulkItems = nil
	}

	merged := Merge(cheap, bulkItems, MergeCap)
	a.logger.Debug("merged item set",
		"channel_id", channelID,
		"cheap", len(cheap), "bulk", len(bulkItems), "merged", len(merged))
	return merged, nil
}

// fetchBulk enumerates videos via the uploads playlist, skipping the first
// CheapLimit positions the feed already covers. Channels without an uploads
// playlist fall back to the activity log filtered to shorts.
func (a *Aggregator) fetchBulk(ctx context.Context, bulk BulkSource, channelID, uploadsPlaylistID string) ([]Item, error) {
	var ids []string
	var err error

	if uploadsPlaylistID != "" {
		ids, err = bulk.UploadsPage(ctx, uploadsPlaylistID, MergeCap)
		if err == nil {
			// Positions 1-15 are the RSS source's job; paying for them
			// again would double-bill the quota.
			if len(ids) > CheapLimit {
				ids = ids[CheapLimit:]
			} else {
				ids = nil
			}
		}
	} else {
		err = youtube.ErrNoUploads
	}

	if errors.Is(err, youtube.ErrNoUploads) {
		a.logger.Info("no uploads playlist, trying shorts enumeration",
			"channel_id", channelID)
		ids, err = bulk.RecentShortIDs(ctx, channelID, MergeCap)
	}
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(ids))
	for _, id := range ids {
		items = append(items, Item{ID: id})
	}
	return items, nil
}
