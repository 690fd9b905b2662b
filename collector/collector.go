// Package collector drives a collection run: roster in, per-channel API
// calls under quota control, metrics records out.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"chantrack/config"
	"chantrack/feed"
	"chantrack/metrics"
	"chantrack/quota"
	"chantrack/storage"
	"chantrack/youtube"
)

// APIClient is the per-credential API surface the collector needs. Satisfied
// by *youtube.Client; it embeds the aggregator's bulk enumeration methods.
type APIClient interface {
	feed.BulkSource
	ChannelInfo(ctx context.Context, channelID string) (*youtube.ChannelInfo, error)
	ResolveHandle(ctx context.Context, handle string) (string, error)
	VideoStats(ctx context.Context, ids []string) (map[string]youtube.VideoStats, error)
	UnitsUsed() int
}

// ClientFactory builds an API client for an allocated credential.
type ClientFactory func(ctx context.Context, apiKey string) (APIClient, error)

// Summary reports the outcome of one run.
type Summary struct {
	RunID     string
	Processed int
	Succeeded int
	Failed    int
	// Skipped counts rows passed over for quota exhaustion or an
	// unresolvable identity, without an API failure.
	Skipped   int
	QuotaUsed int
	Elapsed   time.Duration
}

// Collector owns the sequential run loop. Channels are processed one at a
// time; the quota ledger assumes a single writer.
type Collector struct {
	cfg        *config.Config
	store      storage.Store
	aggregator *feed.Aggregator
	newClient  ClientFactory
	logger     *slog.Logger
	limiter    *rate.Limiter
	sleep      func(time.Duration)
}

// New creates a collector. A nil factory builds real API clients.
func New(cfg *config.Config, store storage.Store, newClient ClientFactory, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	if newClient == nil {
		retryCfg := cfg.RetryConfig()
		newClient = func(ctx context.Context, apiKey string) (APIClient, error) {
			return youtube.NewClient(ctx, apiKey, retryCfg, logger)
		}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.Pace > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.Pace), 1)
	}

	rss := feed.NewRSSSource(cfg.RSSTimeout, logger)
	return &Collector{
		cfg:        cfg,
		store:      store,
		aggregator: feed.NewAggregator(rss, logger),
		newClient:  newClient,
		logger:     logger,
		limiter:    limiter,
		sleep:      time.Sleep,
	}
}

// Run executes one collection pass over the configured row range.
func (c *Collector) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	summary := &Summary{RunID: uuid.NewString()}
	logger := c.logger.With("run_id", summary.RunID)

	rows, err := c.loadRows(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		logger.Info("no roster rows in range, nothing to do")
		summary.Elapsed = time.Since(start)
		return summary, nil
	}

	creds, err := c.store.Credentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("collector: load credentials: %w", err)
	}
	ledger, err := quota.NewLedger(creds)
	if err != nil {
		return nil, fmt.Errorf("collector: %w", err)
	}
	allocator := quota.NewAllocator(ledger, c.cfg.RowStart)

	logger.Info("run starting",
		"rows", len(rows),
		"row_start", rows[0].Row, "row_end", rows[len(rows)-1].Row,
		"quota", ledger.String())

	var batch []storage.RecordRow
	for i, row := range rows {
		if err := c.limiter.Wait(ctx); err != nil {
			return summary, err
		}

		outcome := c.processRow(ctx, allocator, ledger, row, logger)
		summary.Processed++
		switch {
		case outcome.err == nil && outcome.record != nil:
			summary.Succeeded++
			batch = append(batch, storage.RecordRow{Row: row.Row, Record: *outcome.record})
		case outcome.skipped:
			summary.Skipped++
		default:
			summary.Failed++
			if ctx.Err() != nil {
				c.finish(ctx, ledger, batch, summary, start, logger)
				return summary, ctx.Err()
			}
		}

		if len(batch) >= c.cfg.BatchSize {
			if err := c.store.WriteBatch(ctx, batch); err != nil {
				// The sink failed, but the API units are already spent;
				// flush the ledger so the debits survive.
				c.finish(ctx, ledger, nil, summary, start, logger)
				return summary, fmt.Errorf("collector: write batch: %w", err)
			}
			batch = batch[:0]
		}

		if (i+1)%c.cfg.QuotaSyncEvery == 0 {
			if err := c.store.FlushQuota(ctx, ledger.Snapshot()); err != nil {
				logger.Warn("quota flush failed", "error", err)
			}
			logger.Info("checkpoint",
				"processed", summary.Processed,
				"succeeded", summary.Succeeded,
				"failed", summary.Failed,
				"skipped", summary.Skipped,
				"quota", ledger.String())
			c.sleep(c.cfg.SyncPause)
		}
	}

	c.finish(ctx, ledger, batch, summary, start, logger)
	return summary, nil
}

type rowOutcome struct {
	record  *metrics.Record
	skipped bool
	err     error
}

// processRow collects one channel. A returned error with skipped=false is a
// per-row failure; the run continues.
func (c *Collector) processRow(ctx context.Context, allocator *quota.Allocator, ledger *quota.Ledger, row storage.ChannelRow, logger *slog.Logger) rowOutcome {
	logger = logger.With("row", row.Row)

	ident, err := resolveIdentity(row)
	if err != nil {
		logger.Warn("row has no usable channel identity", "error", err)
		return rowOutcome{skipped: true, err: err}
	}

	// Reserve the worst-case path up front; the shorts fallback costs more
	// than the standard playlist enumeration.
	required := youtube.CostChannelBudget
	if ident.needsLookup() {
		required += youtube.CostResolveHandle
	}

	cred, err := allocator.Allocate(row.Row, required)
	if err != nil {
		if errors.Is(err, quota.ErrQuotaExhausted) {
			logger.Warn("skipping row, quota exhausted", "required", required)
			return rowOutcome{skipped: true, err: err}
		}
		return rowOutcome{err: err}
	}
	logger = logger.With("credential", cred.Name)

	client, err := c.newClient(ctx, cred.Key)
	if err != nil {
		return rowOutcome{err: fmt.Errorf("build client: %w", err)}
	}
	defer func() {
		ledger.Debit(cred.Name, client.UnitsUsed())
	}()

	channelID := ident.channelID
	if channelID == "" {
		channelID, err = client.ResolveHandle(ctx, ident.handle)
		if err != nil {
			ledger.RecordError(cred.Name)
			logger.Warn("handle resolution failed", "handle", ident.handle, "error", err)
			return rowOutcome{err: err}
		}
		if err := c.store.SaveChannelID(ctx, row.Row, channelID); err != nil {
			logger.Warn("could not persist resolved channel id", "error", err)
		}
	}

	info, err := client.ChannelInfo(ctx, channelID)
	if err != nil {
		ledger.RecordError(cred.Name)
		logger.Warn("channel lookup failed", "channel_id", channelID, "error", err)
		return rowOutcome{err: err}
	}

	items, err := c.aggregator.Collect(ctx, client, channelID, info.UploadsPlaylistID)
	if err != nil {
		ledger.RecordError(cred.Name)
		return rowOutcome{err: err}
	}

	stats, err := client.VideoStats(ctx, feed.IDs(items))
	if err != nil {
		ledger.RecordError(cred.Name)
		logger.Warn("bulk stats failed", "channel_id", channelID, "error", err)
		return rowOutcome{err: err}
	}

	rec := metrics.Accumulate(metrics.Input{
		Channel: info,
		Items:   items,
		Stats:   stats,
		Now:     time.Now().UTC(),
		Span:    metrics.SpanPolicy(c.cfg.SpanPolicy),
		Media:   metrics.MediaStyle(c.cfg.MediaStyle),
	})

	logger.Debug("collected channel",
		"channel_id", channelID,
		"items", len(items),
		"units", client.UnitsUsed())
	return rowOutcome{record: &rec}
}

// loadRows reads the roster and applies the configured row range.
func (c *Collector) loadRows(ctx context.Context) ([]storage.ChannelRow, error) {
	all, err := c.store.Channels(ctx)
	if err != nil {
		return nil, fmt.Errorf("collector: load roster: %w", err)
	}

	var rows []storage.ChannelRow
	for _, r := range all {
		if r.Row < c.cfg.RowStart {
			continue
		}
		if c.cfg.RowEnd != 0 && r.Row > c.cfg.RowEnd {
			continue
		}
		rows = append(rows, r)
	}
	return rows, nil
}

// finish flushes any buffered records and the final quota snapshot.
func (c *Collector) finish(ctx context.Context, ledger *quota.Ledger, batch []storage.RecordRow, summary *Summary, start time.Time, logger *slog.Logger) {
	if len(batch) > 0 {
		if err := c.store.WriteBatch(ctx, batch); err != nil {
			logger.Error("final batch write failed", "records", len(batch), "error", err)
		}
	}
	if err := c.store.FlushQuota(ctx, ledger.Snapshot()); err != nil {
		logger.Error("final quota flush failed", "error", err)
	}

	for _, u := range ledger.Snapshot() {
		summary.QuotaUsed += u.SessionUsed
	}
	summary.Elapsed = time.Since(start)

	logger.Info("run finished",
		"processed", summary.Processed,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"quota_used", summary.QuotaUsed,
		"elapsed", summary.Elapsed.Round(time.Millisecond))
}
