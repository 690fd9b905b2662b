package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"chantrack/quota"
)

// SQLiteStore implements Store over a local SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens or creates the database at path and bootstraps the schema.
func Open(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open db: %w", err)
	}
	// WAL keeps readers usable while the collector writes batches.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: set wal mode: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS channels (
		rownum INTEGER PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		handle TEXT NOT NULL DEFAULT '',
		channel_id TEXT NOT NULL DEFAULT '',
		-- Operator-maintained columns. The collector never touches these.
		category1 TEXT NOT NULL DEFAULT '',
		category2 TEXT NOT NULL DEFAULT '',
		memo TEXT NOT NULL DEFAULT '',
		keyword TEXT NOT NULL DEFAULT '',
		note TEXT NOT NULL DEFAULT '',
		template TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE IF NOT EXISTS credentials (
		name TEXT PRIMARY KEY,
		api_key TEXT NOT NULL,
		total_quota INTEGER NOT NULL DEFAULT 10000,
		used_quota INTEGER NOT NULL DEFAULT 0,
		active INTEGER NOT NULL DEFAULT 1,
		usage_percent REAL NOT NULL DEFAULT 0,
		session_used INTEGER NOT NULL DEFAULT 0,
		last_used DATETIME
	);
	CREATE TABLE IF NOT EXISTS channel_metrics (
		rownum INTEGER PRIMARY KEY REFERENCES channels(rownum),
		channel_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		handle TEXT NOT NULL DEFAULT '',
		country TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		subscribers INTEGER NOT NULL DEFAULT 0,
		video_count INTEGER NOT NULL DEFAULT 0,
		total_views INTEGER NOT NULL DEFAULT 0,
		views_5 INTEGER NOT NULL DEFAULT 0,
		views_10 INTEGER NOT NULL DEFAULT 0,
		views_20 INTEGER NOT NULL DEFAULT 0,
		views_30 INTEGER NOT NULL DEFAULT 0,
		views_5d INTEGER NOT NULL DEFAULT 0,
		views_10d INTEGER NOT NULL DEFAULT 0,
		views_15d INTEGER NOT NULL DEFAULT 0,
		count_5d INTEGER NOT NULL DEFAULT 0,
		count_10d INTEGER NOT NULL DEFAULT 0,
		first_upload DATETIME,
		latest_upload DATETIME,
		operation_days INTEGER NOT NULL DEFAULT 0,
		media_1 TEXT NOT NULL DEFAULT '',
		media_2 TEXT NOT NULL DEFAULT '',
		media_3 TEXT NOT NULL DEFAULT '',
		media_4 TEXT NOT NULL DEFAULT '',
		media_5 TEXT NOT NULL DEFAULT '',
		collected_at DATETIME
	);`

	_, err := s.db.Exec(schema)
	return err
}

// Channels returns the full roster in row order.
func (s *SQLiteStore) Channels(ctx context.Context) ([]ChannelRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT rownum, name, url, handle, channel_id FROM channels ORDER BY rownum`)
	if err != nil {
		return nil, &StorageError{Op: "read", Entity: "channel", Err: err}
	}
	defer rows.Close()

	var out []ChannelRow
	for rows.Next() {
		var c ChannelRow
		if err := rows.Scan(&c.Row, &c.Name, &c.URL, &c.Handle, &c.ChannelID); err != nil {
			return nil, &StorageError{Op: "read", Entity: "channel", Err: err}
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "read", Entity: "channel", Err: err}
	}
	return out, nil
}

// SaveChannelID persists a resolved channel ID for a roster row.
func (s *SQLiteStore) SaveChannelID(ctx context.Context, row int, channelID string) error {
	if channelID == "" {
		return &StorageError{Op: "write", Entity: "channel", Err: ErrInvalidInput}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE channels SET channel_id = ? WHERE rownum = ?`, channelID, row)
	if err != nil {
		return &StorageError{Op: "write", Entity: "channel", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &StorageError{Op: "write", Entity: "channel", Err: ErrNotFound}
	}
	return nil
}

// Credentials returns active credentials in table order.
func (s *SQLiteStore) Credentials(ctx context.Context) ([]quota.Credential, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, api_key, total_quota, used_quota FROM credentials
		 WHERE active = 1 ORDER BY name`)
	if err != nil {
		return nil, &StorageError{Op: "read", Entity: "credential", Err: err}
	}
	defer rows.Close()

	var out []quota.Credential
	for rows.Next() {
		var c quota.Credential
		if err := rows.Scan(&c.Name, &c.Key, &c.Total, &c.Used); err != nil {
			return nil, &StorageError{Op: "read", Entity: "credential", Err: err}
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "read", Entity: "credential", Err: err}
	}
	if len(out) == 0 {
		return nil, ErrNoActiveCredentials
	}
	return out, nil
}

// WriteBatch upserts metrics records by roster position in one transaction.
// Only computed columns are written; the operator-maintained columns in the
// channels table are never part of the statement.
func (s *SQLiteStore) WriteBatch(ctx context.Context, batch []RecordRow) error {
	if len(batch) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &StorageError{Op: "write", Entity: "metrics", Err: err}
	}
	defer tx.Rollback()

	upsert := `
	INSERT INTO channel_metrics (
		rownum, channel_id, name, handle, country, category,
		subscribers, video_count, total_views,
		views_5, views_10, views_20, views_30,
		views_5d, views_10d, views_15d, count_5d, count_10d,
		first_upload, latest_upload, operation_days,
		media_1, media_2, media_3, media_4, media_5, collected_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(rownum) DO UPDATE SET
		channel_id = excluded.channel_id,
		name = excluded.name,
		handle = excluded.handle,
		country = excluded.country,
		category = excluded.category,
		subscribers = excluded.subscribers,
		video_count = excluded.video_count,
		total_views = excluded.total_views,
		views_5 = excluded.views_5,
		views_10 = excluded.views_10,
		views_20 = excluded.views_20,
		views_30 = excluded.views_30,
		views_5d = excluded.views_5d,
		views_10d = excluded.views_10d,
		views_15d = excluded.views_15d,
		count_5d = excluded.count_5d,
		count_10d = excluded.count_10d,
		first_upload = excluded.first_upload,
		latest_upload = excluded.latest_upload,
		operation_days = excluded.operation_days,
		media_1 = excluded.media_1,
		media_2 = excluded.media_2,
		media_3 = excluded.media_3,
		media_4 = excluded.media_4,
		media_5 = excluded.media_5,
		collected_at = excluded.collected_at`

	for _, rr := range batch {
		rec := rr.Record
		_, err := tx.ExecContext(ctx, upsert,
			rr.Row, rec.ChannelID, rec.Name, rec.Handle, rec.Country, rec.Category,
			rec.Subscribers, rec.VideoCount, rec.TotalViews,
			rec.Views5, rec.Views10, rec.Views20, rec.Views30,
			rec.Views5d, rec.Views10d, rec.Views15d, rec.Count5d, rec.Count10d,
			nullTime(rec.FirstUpload), nullTime(rec.LatestUpload), rec.OperationDays,
			rec.Media[0], rec.Media[1], rec.Media[2], rec.Media[3], rec.Media[4],
			rec.CollectedAt,
		)
		if err != nil {
			return &StorageError{Op: "write", Entity: "metrics", Err: err}
		}

		// Refresh the roster's computed identity fields too.
		_, err = tx.ExecContext(ctx,
			`UPDATE channels SET name = ?, handle = ?, channel_id = ? WHERE rownum = ?`,
			rec.Name, rec.Handle, rec.ChannelID, rr.Row)
		if err != nil {
			return &StorageError{Op: "write", Entity: "channel", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &StorageError{Op: "write", Entity: "metrics", Err: err}
	}

	s.logger.Debug("wrote metrics batch", "records", len(batch))
	return nil
}

// FlushQuota writes ledger usage back to the credential table. Last-used
// timestamps are only set for credentials exercised this session.
func (s *SQLiteStore) FlushQuota(ctx context.Context, usages []quota.Usage) error {
	if len(usages) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &StorageError{Op: "flush", Entity: "credential", Err: err}
	}
	defer tx.Rollback()

	for _, u := range usages {
		if u.LastUsed.IsZero() {
			_, err = tx.ExecContext(ctx,
				`UPDATE credentials SET used_quota = ?, usage_percent = ?, session_used = ?
				 WHERE name = ?`,
				u.Used, round2(u.UsagePercent), u.SessionUsed, u.Name)
		} else {
			_, err = tx.ExecContext(ctx,
				`UPDATE credentials SET used_quota = ?, usage_percent = ?, session_used = ?,
				 last_used = ? WHERE name = ?`,
				u.Used, round2(u.UsagePercent), u.SessionUsed, u.LastUsed, u.Name)
		}
		if err != nil {
			return &StorageError{Op: "flush", Entity: "credential", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &StorageError{Op: "flush", Entity: "credential", Err: err}
	}
	return nil
}

// AddChannel inserts a roster row. Used by the CLI and tests to seed data.
func (s *SQLiteStore) AddChannel(ctx context.Context, c ChannelRow) error {
	if c.URL == "" && c.Handle == "" && c.ChannelID == "" {
		return &StorageError{Op: "write", Entity: "channel", Err: ErrInvalidInput}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO channels (rownum, name, url, handle, channel_id) VALUES (?, ?, ?, ?, ?)`,
		c.Row, c.Name, c.URL, c.Handle, c.ChannelID)
	if err != nil {
		return &StorageError{Op: "write", Entity: "channel", Err: err}
	}
	return nil
}

// AddCredential inserts a credential row. Used by the CLI and tests.
func (s *SQLiteStore) AddCredential(ctx context.Context, c quota.Credential, active bool) error {
	if c.Name == "" || c.Key == "" {
		return &StorageError{Op: "write", Entity: "credential", Err: ErrInvalidInput}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO credentials (name, api_key, total_quota, used_quota, active)
		 VALUES (?, ?, ?, ?, ?)`,
		c.Name, c.Key, c.Total, c.Used, boolInt(active))
	if err != nil {
		return &StorageError{Op: "write", Entity: "credential", Err: err}
	}
	return nil
}

// MetricsFor reads back the stored record for one roster row.
func (s *SQLiteStore) MetricsFor(ctx context.Context, row int) (*RecordRow, error) {
	var rr RecordRow
	var first, latest sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT rownum, channel_id, name, handle, country, category,
		       subscribers, video_count, total_views,
		       views_5, views_10, views_20, views_30,
		       views_5d, views_10d, views_15d, count_5d, count_10d,
		       first_upload, latest_upload, operation_days,
		       media_1, media_2, media_3, media_4, media_5, collected_at
		FROM channel_metrics WHERE rownum = ?`, row).Scan(
		&rr.Row, &rr.Record.ChannelID, &rr.Record.Name, &rr.Record.Handle,
		&rr.Record.Country, &rr.Record.Category,
		&rr.Record.Subscribers, &rr.Record.VideoCount, &rr.Record.TotalViews,
		&rr.Record.Views5, &rr.Record.Views10, &rr.Record.Views20, &rr.Record.Views30,
		&rr.Record.Views5d, &rr.Record.Views10d, &rr.Record.Views15d,
		&rr.Record.Count5d, &rr.Record.Count10d,
		&first, &latest, &rr.Record.OperationDays,
		&rr.Record.Media[0], &rr.Record.Media[1], &rr.Record.Media[2],
		&rr.Record.Media[3], &rr.Record.Media[4], &rr.Record.CollectedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &StorageError{Op: "read", Entity: "metrics", Err: err}
	}
	if first.Valid {
		rr.Record.FirstUpload = first.Time
	}
	if latest.Valid {
		rr.Record.LatestUpload = latest.Time
	}
	return &rr, nil
}

// QuotaStatus reads the credential table for status reporting, including
// inactive rows.
func (s *SQLiteStore) QuotaStatus(ctx context.Context) ([]quota.Usage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, used_quota, total_quota - used_quota, usage_percent, session_used, last_used
		 FROM credentials ORDER BY name`)
	if err != nil {
		return nil, &StorageError{Op: "read", Entity: "credential", Err: err}
	}
	defer rows.Close()

	var out []quota.Usage
	for rows.Next() {
		var u quota.Usage
		var lastUsed sql.NullTime
		if err := rows.Scan(&u.Name, &u.Used, &u.Remaining, &u.UsagePercent,
			&u.SessionUsed, &lastUsed); err != nil {
			return nil, &StorageError{Op: "read", Entity: "credential", Err: err}
		}
		if lastUsed.Valid {
			u.LastUsed = lastUsed.Time
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
