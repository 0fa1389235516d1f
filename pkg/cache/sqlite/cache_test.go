package sqlite

import (
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func newTestCache(t *testing.T, ttl time.Duration, opts ...Option) *Cache {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "cache_test.db")
	c, err := New(dbPath, ttl, opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNewCreatesMissingDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "cache", "finlens.db")

	c, err := New(dbPath, time.Hour)
	if err != nil {
		t.Fatalf("expected the cache directory created on first use, got %v", err)
	}
	defer c.Close()

	c.SetDefault("k", []byte("data"))
	if _, ok := c.Get("k"); !ok {
		t.Error("expected a working cache under the created directory")
	}
}

func TestKey(t *testing.T) {
	k1 := Key("doc", "value investing")
	k2 := Key("doc", "value investing")
	k3 := Key("doc", "growth investing")

	if k1 != k2 {
		t.Error("same parts should produce same key")
	}
	if k1 == k3 {
		t.Error("different parts should produce different keys")
	}
	// Part boundaries matter: ("ab","c") != ("a","bc").
	if Key("ab", "c") == Key("a", "bc") {
		t.Error("key should be sensitive to part boundaries")
	}
}

func TestSetAndGet(t *testing.T) {
	c := newTestCache(t, time.Hour)

	c.SetDefault("k1", []byte(`{"a":1}`))

	data, ok := c.Get("k1")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if string(data) != `{"a":1}` {
		t.Errorf("unexpected payload: %s", data)
	}

	if _, ok := c.Get("k2"); ok {
		t.Error("expected miss for unknown key")
	}
}

func TestSetOverwrites(t *testing.T) {
	c := newTestCache(t, time.Hour)

	c.SetDefault("k", []byte("old"))
	c.SetDefault("k", []byte("new"))

	data, ok := c.Get("k")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if string(data) != "new" {
		t.Errorf("expected overwritten payload, got %s", data)
	}
}

func TestTTLExpiry(t *testing.T) {
	c := newTestCache(t, time.Hour)

	c.Set("k", []byte("data"), 1*time.Second)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("expected hit before expiry")
	}

	// Force expiry by rewinding the stored timestamps.
	past := time.Now().Add(-2 * time.Second).Unix()
	if _, err := c.db.Exec(`UPDATE cache_entries SET created_at = ?, expires_at = ?`, past, past); err != nil {
		t.Fatal(err)
	}

	if _, ok := c.Get("k"); ok {
		t.Error("expected miss after expiry")
	}

	// The expired row must have been deleted, not just skipped.
	var n int
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM cache_entries`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("expected expired entry deleted, found %d rows", n)
	}
}

func TestZeroTTLIsBornExpired(t *testing.T) {
	c := newTestCache(t, time.Hour)

	c.Set("x", []byte(`{"a":1}`), 0)
	if _, ok := c.Get("x"); ok {
		t.Error("zero-TTL entry should be immediately expired")
	}
}

func TestClear(t *testing.T) {
	c := newTestCache(t, time.Hour)

	c.SetDefault("k1", []byte("a"))
	c.SetDefault("k2", []byte("b"))

	if err := c.Clear("k1"); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get("k1"); ok {
		t.Error("expected k1 cleared")
	}
	if _, ok := c.Get("k2"); !ok {
		t.Error("expected k2 untouched")
	}

	if err := c.Clear(""); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get("k2"); ok {
		t.Error("expected all entries cleared")
	}
}

func TestDisabledCache(t *testing.T) {
	c := newTestCache(t, time.Hour, Disabled())

	c.SetDefault("k", []byte("data"))
	if _, ok := c.Get("k"); ok {
		t.Error("disabled cache should always miss")
	}

	// The gate still works while caching is off.
	if !c.TrackAPICall("llm") {
		t.Error("gate should still allow calls when caching is disabled")
	}
}

func TestTrackAPICallLimit(t *testing.T) {
	c := newTestCache(t, time.Hour, WithLimits(map[string]int64{"search": 2}))

	got := []bool{
		c.TrackAPICall("search"),
		c.TrackAPICall("search"),
		c.TrackAPICall("search"),
	}
	want := []bool{true, true, false}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d: got %v, want %v", i+1, got[i], want[i])
		}
	}

	// Denial must not increment the counter.
	stats, err := c.UsageStats()
	if err != nil {
		t.Fatal(err)
	}
	if stats["search"].Count != 2 {
		t.Errorf("expected count 2 after denial, got %d", stats["search"].Count)
	}
}

func TestTrackAPICallUnmetered(t *testing.T) {
	c := newTestCache(t, time.Hour, WithLimits(map[string]int64{"llm": 1}))

	for i := 0; i < 5; i++ {
		if !c.TrackAPICall("weather") {
			t.Fatal("unmetered API should always be allowed")
		}
	}
}

func TestTrackAPICallWindowRollover(t *testing.T) {
	c := newTestCache(t, time.Hour, WithLimits(map[string]int64{"llm": 1}))

	if !c.TrackAPICall("llm") {
		t.Fatal("first call should be allowed")
	}
	if c.TrackAPICall("llm") {
		t.Fatal("second call should be denied")
	}

	// Age the window past 24h and verify the counter resets.
	past := time.Now().Add(-25 * time.Hour).Unix()
	if _, err := c.db.Exec(`UPDATE api_usage SET window_start = ? WHERE api_name = 'llm'`, past); err != nil {
		t.Fatal(err)
	}

	if !c.TrackAPICall("llm") {
		t.Error("first call after window rollover should be allowed")
	}

	stats, err := c.UsageStats()
	if err != nil {
		t.Fatal(err)
	}
	if stats["llm"].Count != 1 {
		t.Errorf("expected fresh window count 1, got %d", stats["llm"].Count)
	}
}

func TestBudgetSurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cache_test.db")
	limits := map[string]int64{"search": 2}

	c, err := New(dbPath, time.Hour, WithLimits(limits))
	if err != nil {
		t.Fatal(err)
	}
	c.TrackAPICall("search")
	c.TrackAPICall("search")
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	c2, err := New(dbPath, time.Hour, WithLimits(limits))
	if err != nil {
		t.Fatal(err)
	}
	defer c2.Close()

	if c2.TrackAPICall("search") {
		t.Error("budget should persist across restarts")
	}
}

func TestTrackAPICallConcurrent(t *testing.T) {
	const limit = 10
	c := newTestCache(t, time.Hour, WithLimits(map[string]int64{"llm": limit}))

	var wg sync.WaitGroup
	allowed := make(chan bool, limit*3)
	for i := 0; i < limit*3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed <- c.TrackAPICall("llm")
		}()
	}
	wg.Wait()
	close(allowed)

	var n int
	for ok := range allowed {
		if ok {
			n++
		}
	}
	if n != limit {
		t.Errorf("expected exactly %d allowed calls, got %d", limit, n)
	}
}

func TestUsageStatsReadOnly(t *testing.T) {
	c := newTestCache(t, time.Hour, WithLimits(map[string]int64{"llm": 4}))

	c.TrackAPICall("llm")
	c.TrackAPICall("llm")

	for i := 0; i < 3; i++ {
		if _, err := c.UsageStats(); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := c.UsageStats()
	if err != nil {
		t.Fatal(err)
	}
	u := stats["llm"]
	if u.Count != 2 {
		t.Errorf("expected count 2, got %d", u.Count)
	}
	if u.UsagePercent != 50 {
		t.Errorf("expected 50%% usage, got %v", u.UsagePercent)
	}
	if u.ResetIn <= 0 || u.ResetIn > int64(window.Seconds()) {
		t.Errorf("implausible reset: %d", u.ResetIn)
	}
}

func TestUsageStatsIncludesUnusedAPIs(t *testing.T) {
	c := newTestCache(t, time.Hour, WithLimits(map[string]int64{"llm": 100, "search": 50}))

	c.TrackAPICall("llm")

	stats, err := c.UsageStats()
	if err != nil {
		t.Fatal(err)
	}
	s, ok := stats["search"]
	if !ok {
		t.Fatal("expected a zero row for configured but unused API")
	}
	if s.Count != 0 || s.Limit != 50 {
		t.Errorf("unexpected zero row: %+v", s)
	}
}

func TestJournal(t *testing.T) {
	c := newTestCache(t, time.Hour, WithLimits(map[string]int64{"search": 1}))

	c.TrackAPICall("search")
	c.TrackAPICall("search")

	records, err := c.Journal(time.Now().Add(-time.Minute), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 journal records, got %d", len(records))
	}

	var denied int
	for _, r := range records {
		if r.APIName != "search" {
			t.Errorf("unexpected api in journal: %s", r.APIName)
		}
		if r.ID == "" {
			t.Error("journal record missing id")
		}
		if d := time.Since(r.CreatedAt); d < 0 || d > time.Minute {
			t.Errorf("implausible record timestamp: %v", r.CreatedAt)
		}
		if !r.Allowed {
			denied++
		}
	}
	if denied != 1 {
		t.Errorf("expected 1 denied record, got %d", denied)
	}

	stats, err := c.JournalStats()
	if err != nil {
		t.Fatal(err)
	}
	if len(stats) != 1 {
		t.Fatalf("expected 1 journal stat row, got %d", len(stats))
	}
	if stats[0].Day != time.Now().UTC().Format("2006-01-02") {
		t.Errorf("expected today's UTC day bucket, got %q", stats[0].Day)
	}
	if stats[0].Allowed != 1 || stats[0].Denied != 1 {
		t.Errorf("unexpected journal stat: %+v", stats[0])
	}
}

func TestStats(t *testing.T) {
	c := newTestCache(t, time.Hour)

	c.SetDefault("k", []byte("data"))
	c.Get("k")  // hit
	c.Get("k2") // miss

	stats, err := c.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Entries != 1 {
		t.Errorf("expected 1 entry, got %d", stats.Entries)
	}
	if stats.Hits != 1 {
		t.Errorf("expected 1 hit, got %d", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Errorf("expected 1 miss, got %d", stats.Misses)
	}
}
