// Package chantrack provides a library for collecting YouTube channel
// metrics at scale under API quota constraints.
//
// It reads a channel roster from a SQLite database, enumerates each
// channel's recent videos by combining the free RSS feed with the Data API
// uploads playlist, fetches per-video statistics in bulk, and writes
// windowed view metrics back to the database.
//
// Overview
//
// A collection run is driven by the collector package:
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//	store, err := storage.Open(cfg.DBPath, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer store.Close()
//
//	c := collector.New(cfg, store, nil, logger)
//	summary, err := c.Run(ctx)
//
// Quota Management
//
// API keys live in the credential table with a daily unit allowance. The
// quota package assigns each roster row a key deterministically by row
// position, falls back to any key with enough remaining quota, and skips
// the row when every key is spent. Actual consumption, including failed
// calls, is debited and flushed back to the database at checkpoints.
//
// Configuration
//
// chantrack loads settings from multiple sources:
//
//   1. Environment variables (highest priority)
//   2. Config file (chantrack.json or ~/.config/chantrack/chantrack.json)
//   3. Default values (lowest priority)
//
// Environment variables:
//
//   - CHANTRACK_DB: Path to the SQLite database
//   - CHANTRACK_ROWS: Row range to process, e.g. "2-50"
//   - CHANTRACK_BATCH_SIZE: Records buffered before a write flush
//   - CHANTRACK_QUOTA_SYNC_EVERY: Rows between quota checkpoints
//   - CHANTRACK_MAX_RETRIES: Maximum attempts per API call
//   - CHANTRACK_BASE_DELAY: Base backoff for transient failures
//   - CHANTRACK_RATE_LIMIT_BASE: Base backoff when rate limited
//   - CHANTRACK_MAX_BACKOFF: Cap on any single backoff wait
//   - CHANTRACK_PACE: Minimum interval between channel collections
//   - CHANTRACK_SPAN_POLICY: Operation span formula, "activity" or "age"
//   - CHANTRACK_MEDIA_STYLE: Media slot contents, "links" or "thumbnails"
//
// Error Handling
//
// All operations return errors that implement standard Go error handling:
//
//	if errors.Is(err, chantrack.ErrQuotaExhausted) {
//		fmt.Println("all keys spent, row skipped")
//	}
//
//	var apiErr *chantrack.APIError
//	if errors.As(err, &apiErr) {
//		fmt.Printf("%s failed: %v\n", apiErr.Op, apiErr.Err)
//	}
//
// Advanced Usage
//
// For more control, use the sub-packages directly:
//
//   - quota: Credential ledger and deterministic key allocation
//   - feed: RSS plus playlist enumeration and merging
//   - youtube: Data API calls with retry and error classification
//   - metrics: Windowed view statistics and activity spans
//   - storage: SQLite persistence
//   - retry: Exponential backoff retry logic
//   - config: Configuration management
package chantrack
