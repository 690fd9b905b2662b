// Package storage persists the channel roster, API credentials, collected
// metrics, and quota usage in a local SQLite database.
package storage

import (
	"context"
	"errors"
	"fmt"

	"chantrack/metrics"
	"chantrack/quota"
)

// Sentinel errors for common storage conditions.
var (
	// ErrNotFound indicates the requested row was not found.
	ErrNotFound = errors.New("storage: not found")
	// ErrInvalidInput indicates invalid or malformed input was provided.
	ErrInvalidInput = errors.New("storage: invalid input")
	// ErrNoActiveCredentials indicates the credential table holds no active
	// rows. Fatal for the run: nothing can be collected without a key.
	ErrNoActiveCredentials = errors.New("storage: no active credentials")
)

// StorageError wraps storage errors with operation and entity context.
// Use errors.As() to extract it:
//
//	var storErr *storage.StorageError
//	if errors.As(err, &storErr) {
//		fmt.Printf("failed to %s %s: %v\n", storErr.Op, storErr.Entity, storErr.Err)
//	}
type StorageError struct {
	// Op is the operation that failed ("read", "write", "flush").
	Op string
	// Entity is the entity type ("channel", "credential", "metrics").
	Entity string
	// Err is the underlying error.
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Entity, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ChannelRow is one roster entry. Manual columns (category1, category2,
// memo, keyword, note, template) live alongside these in the channels table
// but are never read or written by the collector — that is the write mask.
type ChannelRow struct {
	// Row is the stable roster position and the work-item ordinal.
	Row int
	// Name is the last recorded channel name.
	Name string
	// URL is the channel page URL entered by the operator.
	URL string
	// Handle is the channel handle, if the operator filled it in.
	Handle string
	// ChannelID is the resolved channel ID from a prior run, or empty.
	ChannelID string
}

// RecordRow pairs a metrics record with its roster position for upsert.
type RecordRow struct {
	Row    int
	Record metrics.Record
}

// Store is the tabular collaborator surface the collector needs: roster in,
// credentials in, metrics and quota usage out.
type Store interface {
	// Channels returns the full roster in row order.
	Channels(ctx context.Context) ([]ChannelRow, error)
	// SaveChannelID persists a freshly resolved channel ID so re-runs skip
	// resolution.
	SaveChannelID(ctx context.Context, row int, channelID string) error
	// Credentials returns active credentials in table order.
	Credentials(ctx context.Context) ([]quota.Credential, error)
	// WriteBatch upserts metrics records by roster position. Idempotent:
	// overlapping batches from a resumed run are safe.
	WriteBatch(ctx context.Context, rows []RecordRow) error
	// FlushQuota writes ledger usage back to the credential table.
	FlushQuota(ctx context.Context, usages []quota.Usage) error
}
