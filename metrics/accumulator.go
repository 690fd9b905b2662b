// Package metrics derives windowed view statistics and activity spans from
// a merged item set and its bulk-fetched per-video stats.
package metrics

import (
	"time"

	"chantrack/feed"
	"chantrack/youtube"
)

// SpanPolicy selects how the operation span is computed. Observed versions
// of this dataset disagree, so the choice is explicit configuration rather
// than a silent default baked into the math.
type SpanPolicy string

const (
	// SpanActivity measures last upload minus first upload.
	SpanActivity SpanPolicy = "activity"
	// SpanAge measures collection time minus first upload.
	SpanAge SpanPolicy = "age"
)

// MediaStyle selects what the five media slots carry.
type MediaStyle string

const (
	// MediaLinks fills slots with watch-page URLs.
	MediaLinks MediaStyle = "links"
	// MediaThumbnails fills slots with the best available thumbnail URL.
	MediaThumbnails MediaStyle = "thumbnails"
)

// MediaSlots is the fixed number of representative media references.
const MediaSlots = 5

// UncategorizedLabel is recorded when no item resolves a category code.
const UncategorizedLabel = "uncategorized"

const watchURLPrefix = "https://www.youtube.com/watch?v="

// Record is the per-channel output of one collection pass. Immutable after
// construction; fields that could not be computed hold zero values rather
// than being omitted.
type Record struct {
	ChannelID string
	Name      string
	Handle    string
	Country   string
	// Category is the category code of the first merged item carrying one,
	// or UncategorizedLabel. Mapping codes to display names is
	// configuration and happens outside the pipeline.
	Category string

	Subscribers int64
	VideoCount  int64
	TotalViews  int64

	// Top-N view sums over the merged ordering.
	Views5  int64
	Views10 int64
	Views20 int64
	Views30 int64

	// Cumulative day windows relative to the collection instant. A
	// three-day-old video counts in all three buckets.
	Views5d  int64
	Views10d int64
	Views15d int64
	Count5d  int
	Count10d int

	FirstUpload   time.Time
	LatestUpload  time.Time
	OperationDays int

	// Media holds exactly MediaSlots references, padded with empty strings.
	Media [MediaSlots]string

	CollectedAt time.Time
}

// Input bundles everything one accumulation needs.
type Input struct {
	Channel *youtube.ChannelInfo
	Items   []feed.Item
	// Stats is the bulk per-video lookup. Items absent from it are dropped
	// before windowing, a known approximation since the bulk call can
	// return fewer videos than were requested.
	Stats map[string]youtube.VideoStats
	Now   time.Time
	Span  SpanPolicy
	Media MediaStyle
}

// Accumulate computes the full metrics record for one channel.
func Accumulate(in Input) Record {
	rec := Record{
		Category:    UncategorizedLabel,
		CollectedAt: in.Now,
	}
	if in.Channel != nil {
		rec.ChannelID = in.Channel.ID
		rec.Name = in.Channel.Title
		rec.Handle = in.Channel.Handle
		rec.Country = in.Channel.Country
		rec.Subscribers = in.Channel.Subscribers
		rec.VideoCount = in.Channel.VideoCount
		rec.TotalViews = in.Channel.TotalViews
	}

	accumulateTopWindows(&rec, in)
	accumulateDayWindows(&rec, in)
	accumulateSpan(&rec, in)
	rec.Category = representativeCategory(in)
	rec.Media = mediaReferences(in)

	return rec
}

// accumulateTopWindows sums views over the first N present items for each N.
// Items absent from the stats lookup are dropped before windowing, so a
// later present item slides forward into the window.
func accumulateTopWindows(rec *Record, in Input) {
	n := 0
	for _, it := range in.Items {
		s, ok := in.Stats[it.ID]
		if !ok {
			continue
		}
		if n < 5 {
			rec.Views5 += s.Views
		}
		if n < 10 {
			rec.Views10 += s.Views
		}
		if n < 20 {
			rec.Views20 += s.Views
		}
		if n < 30 {
			rec.Views30 += s.Views
		}
		n++
	}
}

// accumulateDayWindows fills the cumulative published-within-N-days buckets.
func accumulateDayWindows(rec *Record, in Input) {
	for _, it := range in.Items {
		s, ok := in.Stats[it.ID]
		if !ok || s.Published.IsZero() {
			continue
		}

		daysAgo := int(in.Now.Sub(s.Published).Hours() / 24)
		if daysAgo < 0 {
			daysAgo = 0
		}

		if daysAgo <= 5 {
			rec.Views5d += s.Views
			rec.Count5d++
		}
		if daysAgo <= 10 {
			rec.Views10d += s.Views
			rec.Count10d++
		}
		if daysAgo <= 15 {
			rec.Views15d += s.Views
		}
	}
}

// accumulateSpan derives first/last upload timestamps and the operation
// span in days. With no dated item, the channel creation date stands in for
// both ends.
func accumulateSpan(rec *Record, in Input) {
	var first, last time.Time
	for _, it := range in.Items {
		s, ok := in.Stats[it.ID]
		if !ok || s.Published.IsZero() {
			continue
		}
		if first.IsZero() || s.Published.Before(first) {
			first = s.Published
		}
		if last.IsZero() || s.Published.After(last) {
			last = s.Published
		}
	}

	if first.IsZero() && in.Channel != nil && !in.Channel.CreatedAt.IsZero() {
		first = in.Channel.CreatedAt
		last = in.Channel.CreatedAt
	}
	if first.IsZero() {
		return
	}

	rec.FirstUpload = first
	rec.LatestUpload = last

	end := last
	if in.Span == SpanAge {
		end = in.Now
	}
	days := int(end.Sub(first).Hours() / 24)
	if days < 0 {
		days = 0
	}
	rec.OperationDays = days
}

// representativeCategory returns the category code of the first merged item
// that resolves one.
func representativeCategory(in Input) string {
	for _, it := range in.Items {
		if s, ok := in.Stats[it.ID]; ok && s.CategoryID != "" {
			return s.CategoryID
		}
	}
	return UncategorizedLabel
}

// mediaReferences fills the fixed media slots from the head of the merged
// set, padding with empty strings.
func mediaReferences(in Input) [MediaSlots]string {
	var out [MediaSlots]string
	for i := 0; i < MediaSlots && i < len(in.Items); i++ {
		it := in.Items[i]
		switch in.Media {
		case MediaThumbnails:
			if s, ok := in.Stats[it.ID]; ok {
				out[i] = s.Thumbnail
			}
		default:
			out[i] = watchURLPrefix + it.ID
		}
	}
	return out
}
