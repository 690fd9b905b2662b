package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"chantrack/config"
	"chantrack/feed"
	"chantrack/quota"
	"chantrack/storage"
	"chantrack/youtube"
)

// fakeStore is an in-memory storage.Store recording every write.
type fakeStore struct {
	channels []storage.ChannelRow
	creds    []quota.Credential
	batchErr error

	savedIDs map[int]string
	batches  [][]storage.RecordRow
	flushes  [][]quota.Usage
}

func newFakeStore() *fakeStore {
	return &fakeStore{savedIDs: map[int]string{}}
}

func (s *fakeStore) Channels(ctx context.Context) ([]storage.ChannelRow, error) {
	return s.channels, nil
}

func (s *fakeStore) SaveChannelID(ctx context.Context, row int, channelID string) error {
	s.savedIDs[row] = channelID
	return nil
}

func (s *fakeStore) Credentials(ctx context.Context) ([]quota.Credential, error) {
	return s.creds, nil
}

func (s *fakeStore) WriteBatch(ctx context.Context, rows []storage.RecordRow) error {
	if s.batchErr != nil {
		return s.batchErr
	}
	batch := make([]storage.RecordRow, len(rows))
	copy(batch, rows)
	s.batches = append(s.batches, batch)
	return nil
}

func (s *fakeStore) FlushQuota(ctx context.Context, usages []quota.Usage) error {
	s.flushes = append(s.flushes, usages)
	return nil
}

func (s *fakeStore) written() int {
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

// fakeCheap serves canned feed items per channel, standing in for RSS.
type fakeCheap struct {
	items map[string][]feed.Item
}

func (f *fakeCheap) Recent(ctx context.Context, channelID string, limit int) []feed.Item {
	items := f.items[channelID]
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}

// fakeClient serves canned responses and counts simulated quota units the
// way the real client does.
type fakeClient struct {
	channels map[string]*youtube.ChannelInfo
	handles  map[string]string
	uploads  map[string][]string
	shorts   map[string][]string
	stats    map[string]youtube.VideoStats
	units    int
}

func (c *fakeClient) ChannelInfo(ctx context.Context, channelID string) (*youtube.ChannelInfo, error) {
	c.units += youtube.CostChannelsList
	info, ok := c.channels[channelID]
	if !ok {
		return nil, &youtube.APIError{Op: "channels.list", Err: youtube.ErrChannelNotFound}
	}
	return info, nil
}

func (c *fakeClient) ResolveHandle(ctx context.Context, handle string) (string, error) {
	c.units += youtube.CostChannelsList
	id, ok := c.handles[handle]
	if !ok {
		return "", &youtube.APIError{Op: "channels.list forHandle", Err: youtube.ErrHandleNotFound}
	}
	return id, nil
}

func (c *fakeClient) UploadsPage(ctx context.Context, playlistID string, max int64) ([]string, error) {
	c.units += youtube.CostPlaylistItems
	ids, ok := c.uploads[playlistID]
	if !ok {
		return nil, youtube.ErrNoUploads
	}
	return ids, nil
}

func (c *fakeClient) RecentShortIDs(ctx context.Context, channelID string, max int64) ([]string, error) {
	c.units += youtube.CostActivitiesList
	ids := c.shorts[channelID]
	if len(ids) > 0 {
		// The duration filter behind the real call bills a videos.list.
		c.units += youtube.CostVideosList
	}
	return ids, nil
}

func (c *fakeClient) VideoStats(ctx context.Context, ids []string) (map[string]youtube.VideoStats, error) {
	if len(ids) == 0 {
		return map[string]youtube.VideoStats{}, nil
	}
	c.units += youtube.CostVideosList
	out := make(map[string]youtube.VideoStats, len(ids))
	for _, id := range ids {
		if s, ok := c.stats[id]; ok {
			out[id] = s
		}
	}
	return out, nil
}

func (c *fakeClient) UnitsUsed() int { return c.units }

// seedWorld builds a client and matching cheap source with channels UC01
// through UC30, each serving one recent video through the feed.
func seedWorld() (*fakeClient, *fakeCheap) {
	now := time.Now().UTC()
	client := &fakeClient{
		channels: map[string]*youtube.ChannelInfo{},
		handles:  map[string]string{},
		uploads:  map[string][]string{},
		shorts:   map[string][]string{},
		stats:    map[string]youtube.VideoStats{},
	}
	cheap := &fakeCheap{items: map[string][]feed.Item{}}

	for i := 1; i <= 30; i++ {
		id := fmt.Sprintf("UC%02d", i)
		playlist := fmt.Sprintf("UU%02d", i)
		vid := fmt.Sprintf("vid-%02d", i)

		client.channels[id] = &youtube.ChannelInfo{
			ID: id, Title: fmt.Sprintf("Channel %d", i),
			Subscribers: 100, UploadsPlaylistID: playlist,
		}
		client.uploads[playlist] = []string{vid}
		client.stats[vid] = youtube.VideoStats{
			ID: vid, Views: int64(i * 10), Published: now.AddDate(0, 0, -1),
		}
		cheap.items[id] = []feed.Item{{ID: vid}}
	}
	return client, cheap
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Pace = 0
	cfg.SyncPause = 0
	return cfg
}

// testCollector wires a collector with fakes and no pacing. The factory
// resets the shared client's unit counter, mimicking a fresh client per
// allocation.
func testCollector(t *testing.T, cfg *config.Config, store *fakeStore, client *fakeClient, cheap *fakeCheap) *Collector {
	t.Helper()
	factory := func(ctx context.Context, apiKey string) (APIClient, error) {
		client.units = 0
		return client, nil
	}
	logger := slog.New(slog.DiscardHandler)
	c := New(cfg, store, factory, logger)
	c.aggregator = feed.NewAggregator(cheap, logger)
	c.sleep = func(time.Duration) {}
	return c
}

func TestRun_CollectsRange(t *testing.T) {
	store := newFakeStore()
	store.creds = []quota.Credential{{Name: "key-a", Key: "ka", Total: 10000}}
	for i := 1; i <= 5; i++ {
		store.channels = append(store.channels,
			storage.ChannelRow{Row: i, ChannelID: fmt.Sprintf("UC%02d", i)})
	}

	cfg := testConfig()
	cfg.RowStart, cfg.RowEnd = 2, 4
	client, cheap := seedWorld()
	c := testCollector(t, cfg, store, client, cheap)

	summary, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if summary.Processed != 3 || summary.Succeeded != 3 {
		t.Errorf("summary = %+v, want 3 processed, 3 succeeded", summary)
	}
	if store.written() != 3 {
		t.Errorf("wrote %d records, want 3", store.written())
	}
	if summary.RunID == "" {
		t.Error("summary missing run id")
	}

	// The final quota flush reflects the session's spend.
	if len(store.flushes) == 0 {
		t.Fatal("no quota flush recorded")
	}
	last := store.flushes[len(store.flushes)-1]
	if last[0].SessionUsed == 0 {
		t.Error("quota flush shows no session usage")
	}
	if summary.QuotaUsed != last[0].SessionUsed {
		t.Errorf("summary.QuotaUsed = %d, flush shows %d", summary.QuotaUsed, last[0].SessionUsed)
	}
}

func TestRun_RecordContent(t *testing.T) {
	store := newFakeStore()
	store.creds = []quota.Credential{{Name: "key-a", Key: "ka", Total: 10000}}
	store.channels = []storage.ChannelRow{{Row: 1, ChannelID: "UC01"}}

	client, cheap := seedWorld()
	c := testCollector(t, testConfig(), store, client, cheap)
	if _, err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if store.written() != 1 {
		t.Fatalf("wrote %d records, want 1", store.written())
	}
	rec := store.batches[0][0].Record
	if rec.ChannelID != "UC01" || rec.Name != "Channel 1" {
		t.Errorf("record identity = %q/%q", rec.ChannelID, rec.Name)
	}
	if rec.Views5 != 10 || rec.Count5d != 1 {
		t.Errorf("record windows: Views5=%d Count5d=%d, want 10 and 1", rec.Views5, rec.Count5d)
	}
	if rec.CollectedAt.IsZero() {
		t.Error("record missing collection timestamp")
	}
}

func TestRun_ResolvesHandle(t *testing.T) {
	store := newFakeStore()
	store.creds = []quota.Credential{{Name: "key-a", Key: "ka", Total: 10000}}
	store.channels = []storage.ChannelRow{{Row: 1, Handle: "@first"}}

	client, cheap := seedWorld()
	client.handles["@first"] = "UC01"

	c := testCollector(t, testConfig(), store, client, cheap)
	summary, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if summary.Succeeded != 1 {
		t.Fatalf("summary = %+v, want 1 succeeded", summary)
	}
	if store.savedIDs[1] != "UC01" {
		t.Errorf("resolved id not persisted: %v", store.savedIDs)
	}
}

func TestRun_SkipsUnresolvableRow(t *testing.T) {
	store := newFakeStore()
	store.creds = []quota.Credential{{Name: "key-a", Key: "ka", Total: 10000}}
	store.channels = []storage.ChannelRow{
		{Row: 1, Name: "blank row"},
		{Row: 2, ChannelID: "UC02"},
	}

	client, cheap := seedWorld()
	c := testCollector(t, testConfig(), store, client, cheap)
	summary, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if summary.Skipped != 1 || summary.Succeeded != 1 {
		t.Errorf("summary = %+v, want 1 skipped, 1 succeeded", summary)
	}
}

func TestRun_QuotaExhaustionSkips(t *testing.T) {
	store := newFakeStore()
	// Enough reservation headroom for exactly one channel.
	store.creds = []quota.Credential{{Name: "key-a", Key: "ka", Total: youtube.CostChannelBudget}}
	store.channels = []storage.ChannelRow{
		{Row: 1, ChannelID: "UC01"},
		{Row: 2, ChannelID: "UC02"},
		{Row: 3, ChannelID: "UC03"},
	}

	client, cheap := seedWorld()
	c := testCollector(t, testConfig(), store, client, cheap)
	summary, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if summary.Succeeded != 1 {
		t.Errorf("succeeded = %d, want 1", summary.Succeeded)
	}
	if summary.Skipped != 2 {
		t.Errorf("skipped = %d, want 2", summary.Skipped)
	}
}

func TestRun_ChannelNotFoundIsPerRowFailure(t *testing.T) {
	store := newFakeStore()
	store.creds = []quota.Credential{{Name: "key-a", Key: "ka", Total: 10000}}
	store.channels = []storage.ChannelRow{
		{Row: 1, ChannelID: "UCmissing"},
		{Row: 2, ChannelID: "UC02"},
	}

	client, cheap := seedWorld()
	c := testCollector(t, testConfig(), store, client, cheap)
	summary, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if summary.Failed != 1 || summary.Succeeded != 1 {
		t.Errorf("summary = %+v, want 1 failed, 1 succeeded", summary)
	}

	// The failed lookup still consumed a unit and must be debited.
	last := store.flushes[len(store.flushes)-1]
	if last[0].SessionUsed <= youtube.CostPerChannel {
		t.Errorf("SessionUsed = %d, want the failed call's unit included", last[0].SessionUsed)
	}
}

func TestRun_ShortsFallbackStaysWithinBudget(t *testing.T) {
	store := newFakeStore()
	store.creds = []quota.Credential{{Name: "key-a", Key: "ka", Total: youtube.CostChannelBudget}}
	store.channels = []storage.ChannelRow{{Row: 1, ChannelID: "UCshorts"}}

	client, cheap := seedWorld()
	// The uploads playlist 404s, so enumeration pays for the playlist probe
	// and then goes through the activity log. This is the worst-case path.
	client.channels["UCshorts"] = &youtube.ChannelInfo{
		ID: "UCshorts", Title: "Shorts Only", UploadsPlaylistID: "UUgone",
	}
	client.shorts["UCshorts"] = []string{"short-1"}
	client.stats["short-1"] = youtube.VideoStats{
		ID: "short-1", Views: 7, Published: time.Now().UTC().AddDate(0, 0, -1),
	}

	c := testCollector(t, testConfig(), store, client, cheap)
	summary, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if summary.Succeeded != 1 {
		t.Fatalf("summary = %+v, want 1 succeeded", summary)
	}

	// The fallback path spends the full budget and not a unit more; the
	// credential must never be driven past its total.
	last := store.flushes[len(store.flushes)-1]
	if last[0].SessionUsed != youtube.CostChannelBudget {
		t.Errorf("SessionUsed = %d, want %d", last[0].SessionUsed, youtube.CostChannelBudget)
	}
	if last[0].Used > youtube.CostChannelBudget {
		t.Errorf("Used = %d, exceeds total %d", last[0].Used, youtube.CostChannelBudget)
	}
}

func TestRun_BatchFailureStillFlushesQuota(t *testing.T) {
	store := newFakeStore()
	store.batchErr = errors.New("disk full")
	store.creds = []quota.Credential{{Name: "key-a", Key: "ka", Total: 10000}}
	store.channels = []storage.ChannelRow{{Row: 1, ChannelID: "UC01"}}

	cfg := testConfig()
	cfg.BatchSize = 1
	client, cheap := seedWorld()
	c := testCollector(t, cfg, store, client, cheap)

	if _, err := c.Run(context.Background()); err == nil {
		t.Fatal("Run() expected error from failing sink")
	}

	// The API units were spent regardless; the ledger flush must survive
	// the sink failure.
	if len(store.flushes) == 0 {
		t.Fatal("no quota flush after batch failure")
	}
	last := store.flushes[len(store.flushes)-1]
	if last[0].SessionUsed == 0 {
		t.Error("quota flush shows no session usage")
	}
}

func TestRun_NoCredentialsAborts(t *testing.T) {
	store := newFakeStore()
	store.channels = []storage.ChannelRow{{Row: 1, ChannelID: "UC01"}}

	client, cheap := seedWorld()
	c := testCollector(t, testConfig(), store, client, cheap)
	if _, err := c.Run(context.Background()); !errors.Is(err, quota.ErrNoCredentials) {
		t.Errorf("Run() error = %v, want ErrNoCredentials", err)
	}
}

func TestRun_BatchCadence(t *testing.T) {
	store := newFakeStore()
	store.creds = []quota.Credential{{Name: "key-a", Key: "ka", Total: 10000}}
	for i := 1; i <= 5; i++ {
		store.channels = append(store.channels,
			storage.ChannelRow{Row: i, ChannelID: fmt.Sprintf("UC%02d", i)})
	}

	cfg := testConfig()
	cfg.BatchSize = 2
	client, cheap := seedWorld()
	c := testCollector(t, cfg, store, client, cheap)

	if _, err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(store.batches) != 3 {
		t.Fatalf("got %d batches, want 3", len(store.batches))
	}
	for i, want := range []int{2, 2, 1} {
		if len(store.batches[i]) != want {
			t.Errorf("batch %d has %d records, want %d", i, len(store.batches[i]), want)
		}
	}
}

func TestRun_EmptyRoster(t *testing.T) {
	store := newFakeStore()
	client, cheap := seedWorld()
	c := testCollector(t, testConfig(), store, client, cheap)

	summary, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if summary.Processed != 0 {
		t.Errorf("summary = %+v, want nothing processed", summary)
	}
}

func TestRun_RotatesCredentials(t *testing.T) {
	store := newFakeStore()
	store.creds = []quota.Credential{
		{Name: "key-a", Key: "ka", Total: 10000},
		{Name: "key-b", Key: "kb", Total: 10000},
		{Name: "key-c", Key: "kc", Total: 10000},
	}
	for i := 1; i <= 6; i++ {
		store.channels = append(store.channels,
			storage.ChannelRow{Row: i, ChannelID: fmt.Sprintf("UC%02d", i)})
	}

	var keys []string
	client, cheap := seedWorld()
	factory := func(ctx context.Context, apiKey string) (APIClient, error) {
		keys = append(keys, apiKey)
		client.units = 0
		return client, nil
	}

	logger := slog.New(slog.DiscardHandler)
	c := New(testConfig(), store, factory, logger)
	c.aggregator = feed.NewAggregator(cheap, logger)
	c.sleep = func(time.Duration) {}

	if _, err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	want := []string{"ka", "kb", "kc", "ka", "kb", "kc"}
	if len(keys) != len(want) {
		t.Fatalf("built %d clients, want %d", len(keys), len(want))
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("row %d used key %q, want %q", i+1, keys[i], want[i])
		}
	}
}
