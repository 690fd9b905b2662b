// Package youtube provides the Data API v3 calls used by the metrics
// collector: channel statistics, uploads enumeration, bulk video stats, and
// handle resolution.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"chantrack/retry"
)

// Quota costs in provider units, per call.
const (
	CostChannelsList   = 1
	CostPlaylistItems  = 1
	CostVideosList     = 1
	CostActivitiesList = 1

	// CostPerChannel is the standard spend for one channel collection:
	// channels.list + playlistItems.list + videos.list.
	CostPerChannel = CostChannelsList + CostPlaylistItems + CostVideosList
	// CostShortsFallback is the extra spend when enumeration falls back to
	// the activity log: activities.list plus the videos.list call backing
	// the duration filter.
	CostShortsFallback = CostActivitiesList + CostVideosList
	// CostChannelBudget is the worst-case reservation for one channel. A
	// credential allocated with this much remaining cannot be driven past
	// its total even when the shorts fallback fires.
	CostChannelBudget = CostPerChannel + CostShortsFallback
	// CostResolveHandle is the extra budget when the channel ID must be
	// resolved from a handle first.
	CostResolveHandle = CostChannelsList
)

// Sentinel errors.
var (
	// ErrChannelNotFound indicates the channel does not exist or is hidden.
	ErrChannelNotFound = errors.New("youtube: channel not found")
	// ErrNoUploads indicates the channel has no uploads playlist. This is a
	// structural condition, not a failure: shorts-only channels trigger the
	// alternate enumeration strategy.
	ErrNoUploads = errors.New("youtube: uploads playlist not available")
	// ErrHandleNotFound indicates no channel matched the given handle.
	ErrHandleNotFound = errors.New("youtube: handle not found")
)

// APIError wraps a Data API failure with the operation that produced it.
type APIError struct {
	Op  string
	Err error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("youtube: %s: %v", e.Op, e.Err)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// ChannelInfo holds the channel-level fields the collector records.
type ChannelInfo struct {
	ID                string
	Title             string
	Handle            string
	Country           string
	Subscribers       int64
	VideoCount        int64
	TotalViews        int64
	CreatedAt         time.Time
	UploadsPlaylistID string
}

// VideoStats holds per-video statistics from a bulk videos.list call.
// Published is the zero time when the API omitted a usable timestamp.
type VideoStats struct {
	ID         string
	Views      int64
	Published  time.Time
	CategoryID string
	Duration   time.Duration
	// Thumbnail is the best available image URL, highest resolution first,
	// empty when the video carries none.
	Thumbnail string
}

// Client wraps a Data API service built for a single API key. A client is
// constructed per channel, after key allocation, and tracks the quota units
// its calls consumed so the ledger can be debited with actual usage.
type Client struct {
	svc      *youtube.Service
	retryCfg retry.Config
	logger   *slog.Logger
	units    int
}

// NewClient builds a client authenticated with the given API key.
func NewClient(ctx context.Context, apiKey string, retryCfg retry.Config, logger *slog.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("youtube: api key required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	svc, err := youtube.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("youtube: create service: %w", err)
	}
	return &Client{svc: svc, retryCfg: retryCfg, logger: logger}, nil
}

// UnitsUsed returns the quota units consumed by this client so far.
// Failed calls are counted too, since the provider can charge on error.
func (c *Client) UnitsUsed() int {
	return c.units
}

// ChannelInfo fetches snippet, statistics, and the uploads playlist ID for
// a channel.
func (c *Client) ChannelInfo(ctx context.Context, channelID string) (*ChannelInfo, error) {
	var info *ChannelInfo

	err := retry.Do(ctx, c.retryCfg, Classify, func(ctx context.Context) error {
		call := c.svc.Channels.List([]string{"snippet", "statistics", "contentDetails"}).
			Id(channelID).
			Context(ctx)

		c.units += CostChannelsList
		resp, err := call.Do()
		if err != nil {
			return err
		}
		if len(resp.Items) == 0 {
			return ErrChannelNotFound
		}

		ch := resp.Items[0]
		info = &ChannelInfo{ID: channelID}
		if ch.Snippet != nil {
			info.Title = ch.Snippet.Title
			info.Handle = ch.Snippet.CustomUrl
			info.Country = strings.TrimSpace(ch.Snippet.Country)
			if t, err := time.Parse(time.RFC3339, ch.Snippet.PublishedAt); err == nil {
				info.CreatedAt = t
			}
		}
		if ch.Statistics != nil {
			info.Subscribers = int64(ch.Statistics.SubscriberCount)
			info.VideoCount = int64(ch.Statistics.VideoCount)
			info.TotalViews = int64(ch.Statistics.ViewCount)
		}
		if ch.ContentDetails != nil && ch.ContentDetails.RelatedPlaylists != nil {
			info.UploadsPlaylistID = ch.ContentDetails.RelatedPlaylists.Uploads
		}
		return nil
	})
	if err != nil {
		return nil, &APIError{Op: "channels.list", Err: err}
	}
	return info, nil
}

// ResolveHandle resolves a channel handle ("@name" or bare) to a channel ID
// via channels.list forHandle, which costs a single unit.
func (c *Client) ResolveHandle(ctx context.Context, handle string) (string, error) {
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	if handle == "" {
		return "", &APIError{Op: "channels.list forHandle", Err: ErrHandleNotFound}
	}

	var channelID string
	err := retry.Do(ctx, c.retryCfg, Classify, func(ctx context.Context) error {
		call := c.svc.Channels.List([]string{"id"}).
			ForHandle(handle).
			MaxResults(1).
			Context(ctx)

		c.units += CostChannelsList
		resp, err := call.Do()
		if err != nil {
			return err
		}
		if len(resp.Items) == 0 {
			return ErrHandleNotFound
		}
		channelID = resp.Items[0].Id
		return nil
	})
	if err != nil {
		return "", &APIError{Op: "channels.list forHandle", Err: err}
	}

	c.logger.Debug("resolved handle", "handle", handle, "channel_id", channelID)
	return channelID, nil
}

// UploadsPage fetches one page of video IDs from the uploads playlist in
// playlist order (newest first), up to max. A structurally missing playlist
// maps to ErrNoUploads so the caller can switch enumeration strategy.
func (c *Client) UploadsPage(ctx context.Context, playlistID string, max int64) ([]string, error) {
	var ids []string

	err := retry.Do(ctx, c.retryCfg, Classify, func(ctx context.Context) error {
		call := c.svc.PlaylistItems.List([]string{"contentDetails"}).
			PlaylistId(playlistID).
			MaxResults(max).
			Context(ctx)

		c.units += CostPlaylistItems
		resp, err := call.Do()
		if err != nil {
			if isNotFound(err) {
				return ErrNoUploads
			}
			return err
		}

		ids = ids[:0]
		for _, item := range resp.Items {
			if item.ContentDetails != nil && item.ContentDetails.VideoId != "" {
				ids = append(ids, item.ContentDetails.VideoId)
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNoUploads) {
			return nil, ErrNoUploads
		}
		return nil, &APIError{Op: "playlistItems.list", Err: err}
	}
	return ids, nil
}

// RecentShortIDs enumerates recent uploads for channels without an uploads
// playlist: the activity log provides candidate IDs, then a bulk stats call
// keeps only videos of 60 seconds or less.
func (c *Client) RecentShortIDs(ctx context.Context, channelID string, max int64) ([]string, error) {
	var candidates []string

	err := retry.Do(ctx, c.retryCfg, Classify, func(ctx context.Context) error {
		call := c.svc.Activities.List([]string{"contentDetails"}).
			ChannelId(channelID).
			MaxResults(max).
			Context(ctx)

		c.units += CostActivitiesList
		resp, err := call.Do()
		if err != nil {
			return err
		}

		candidates = candidates[:0]
		for _, item := range resp.Items {
			if item.ContentDetails != nil && item.ContentDetails.Upload != nil {
				candidates = append(candidates, item.ContentDetails.Upload.VideoId)
			}
		}
		return nil
	})
	if err != nil {
		return nil, &APIError{Op: "activities.list", Err: err}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	stats, err := c.VideoStats(ctx, candidates)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, id := range candidates {
		if s, ok := stats[id]; ok && s.Duration > 0 && s.Duration <= 60*time.Second {
			ids = append(ids, id)
		}
	}
	c.logger.Debug("shorts fallback enumeration",
		"channel_id", channelID, "candidates", len(candidates), "shorts", len(ids))
	return ids, nil
}

// VideoStats fetches statistics, snippet, and duration for up to 50 videos
// in one call.
func (c *Client) VideoStats(ctx context.Context, ids []string) (map[string]VideoStats, error) {
	if len(ids) == 0 {
		return map[string]VideoStats{}, nil
	}

	stats := make(map[string]VideoStats, len(ids))
	err := retry.Do(ctx, c.retryCfg, Classify, func(ctx context.Context) error {
		call := c.svc.Videos.List([]string{"statistics", "snippet", "contentDetails"}).
			Id(ids...).
			Context(ctx)

		c.units += CostVideosList
		resp, err := call.Do()
		if err != nil {
			return err
		}

		clear(stats)
		for _, v := range resp.Items {
			s := VideoStats{ID: v.Id}
			if v.Statistics != nil {
				s.Views = int64(v.Statistics.ViewCount)
			}
			if v.Snippet != nil {
				s.CategoryID = v.Snippet.CategoryId
				s.Thumbnail = bestThumbnail(v.Snippet.Thumbnails)
				if t, err := time.Parse(time.RFC3339, v.Snippet.PublishedAt); err == nil {
					s.Published = t
				}
			}
			if v.ContentDetails != nil {
				if d, err := ParseDuration(v.ContentDetails.Duration); err == nil {
					s.Duration = d
				}
			}
			stats[v.Id] = s
		}
		return nil
	})
	if err != nil {
		return nil, &APIError{Op: "videos.list", Err: err}
	}
	return stats, nil
}

// bestThumbnail picks the highest-resolution thumbnail available.
func bestThumbnail(t *youtube.ThumbnailDetails) string {
	if t == nil {
		return ""
	}
	for _, th := range []*youtube.Thumbnail{t.Maxres, t.High, t.Medium, t.Default} {
		if th != nil && th.Url != "" {
			return th.Url
		}
	}
	return ""
}

// isNotFound reports whether err is a structural 404 from the API.
func isNotFound(err error) bool {
	var ge *googleapi.Error
	return errors.As(err, &ge) && ge.Code == 404
}
