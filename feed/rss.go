package feed

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

const rssFeedURLTemplate = "https://www.youtube.com/feeds/videos.xml?channel_id=%s"

// RSSSource fetches recent videos from a channel's RSS feed. The feed needs
// no authentication and costs no quota, but only serves the 15 most recent
// entries. It is strictly best-effort: every failure degrades to an empty
// result, never an error.
type RSSSource struct {
	parser      *gofeed.Parser
	logger      *slog.Logger
	urlTemplate string
}

// NewRSSSource creates an RSS source with the given fetch timeout.
func NewRSSSource(timeout time.Duration, logger *slog.Logger) *RSSSource {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: timeout}

	return &RSSSource{parser: parser, logger: logger, urlTemplate: rssFeedURLTemplate}
}

// Recent returns up to limit recent videos for the channel, newest first.
func (s *RSSSource) Recent(ctx context.Context, channelID string, limit int) []Item {
	feedURL := fmt.Sprintf(s.urlTemplate, channelID)

	parsed, err := s.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		s.logger.Warn("rss fetch failed, continuing without feed",
			"channel_id", channelID, "error", err)
		return nil
	}

	items := make([]Item, 0, limit)
	for _, entry := range parsed.Items {
		if len(items) >= limit {
			break
		}

		id := videoIDFromEntry(entry)
		if id == "" {
			continue
		}

		it := Item{ID: id, Title: entry.Title}
		if entry.PublishedParsed != nil {
			it.Published = entry.PublishedParsed.UTC()
		}
		items = append(items, it)
	}
	return items
}

// videoIDFromEntry extracts the video ID from the yt extension namespace,
// falling back to the Atom entry ID ("yt:video:VIDEOID").
func videoIDFromEntry(entry *gofeed.Item) string {
	if ns, ok := entry.Extensions["yt"]; ok {
		if ext, ok := ns["videoId"]; ok && len(ext) > 0 && ext[0].Value != "" {
			return ext[0].Value
		}
	}
	if idx := strings.LastIndex(entry.GUID, ":"); idx >= 0 {
		return entry.GUID[idx+1:]
	}
	return entry.GUID
}
