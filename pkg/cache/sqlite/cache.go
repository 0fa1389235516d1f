// Package sqlite implements the budget cache: a persistent TTL cache for
// upstream API responses plus per-API daily call counters that gate every
// outbound call to a metered service.
package sqlite

import (
	"crypto/sha256"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/finlens-ai/finlens/pkg/models"
)

// window is the rolling budget window for every metered API.
const window = 24 * time.Hour

// Cache is a TTL key-value cache and API budget gate backed by SQLite.
// Counters survive process restarts; a restart never resets the budget.
type Cache struct {
	db      *sql.DB
	ttl     time.Duration
	enabled bool
	limits  map[string]int64
	log     *slog.Logger

	hits   atomic.Int64
	misses atomic.Int64

	mu    sync.Mutex
	apiMu map[string]*sync.Mutex
}

const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	key TEXT PRIMARY KEY,
	payload BLOB NOT NULL,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS api_usage (
	api_name TEXT PRIMARY KEY,
	count INTEGER NOT NULL,
	window_start INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS call_journal (
	id TEXT PRIMARY KEY,
	api_name TEXT NOT NULL,
	allowed INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_journal_created ON call_journal(created_at);
`

// Option configures a Cache.
type Option func(*Cache)

// WithLimits sets per-API daily call limits. APIs absent from the map
// are unmetered and always allowed.
func WithLimits(limits map[string]int64) Option {
	return func(c *Cache) { c.limits = limits }
}

// WithLogger sets the logger used for swallowed storage errors.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.log = l }
}

// Disabled turns off response caching. The budget gate keeps working;
// Get always misses and Set is a no-op.
func Disabled() Option {
	return func(c *Cache) { c.enabled = false }
}

// New opens (creating if needed) the cache database and its directory.
// An uncreatable directory or an unopenable or unmigratable database is
// a fatal configuration error: without it the budget gate cannot run.
func New(dbPath string, ttl time.Duration, opts ...Option) (*Cache, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	c := &Cache{
		db:      db,
		ttl:     ttl,
		enabled: true,
		limits:  map[string]int64{},
		log:     slog.Default(),
		apiMu:   make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Key derives a deterministic cache key from the logical request parts.
func Key(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Get returns the cached payload for key iff an unexpired entry exists.
// Expired entries are deleted as a side effect. A miss is a normal
// outcome, never an error; corrupt rows are treated as misses.
func (c *Cache) Get(key string) ([]byte, bool) {
	if !c.enabled {
		return nil, false
	}

	var payload []byte
	var expiresAt int64
	err := c.db.QueryRow(
		`SELECT payload, expires_at FROM cache_entries WHERE key = ?`, key,
	).Scan(&payload, &expiresAt)
	if err != nil {
		if err != sql.ErrNoRows {
			c.log.Warn("cache read failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return nil, false
	}

	if time.Now().Unix() >= expiresAt {
		if _, err := c.db.Exec(`DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
			c.log.Warn("expired entry delete failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return payload, true
}

// Set stores payload under key with expiry now+ttl, overwriting any
// previous entry. Writes are best effort: a storage failure is logged
// and swallowed, since caching is an optimization, not a requirement.
func (c *Cache) Set(key string, payload []byte, ttl time.Duration) {
	if !c.enabled {
		return
	}

	now := time.Now()
	_, err := c.db.Exec(
		`INSERT OR REPLACE INTO cache_entries (key, payload, created_at, expires_at)
		 VALUES (?, ?, ?, ?)`,
		key, payload, now.Unix(), now.Add(ttl).Unix(),
	)
	if err != nil {
		c.log.Warn("cache write failed", "key", key, "error", err)
	}
}

// SetDefault stores payload under key with the configured default TTL.
func (c *Cache) SetDefault(key string, payload []byte) {
	c.Set(key, payload, c.ttl)
}

// Clear deletes one entry, or every entry when key is empty.
func (c *Cache) Clear(key string) error {
	var err error
	if key == "" {
		_, err = c.db.Exec(`DELETE FROM cache_entries`)
	} else {
		_, err = c.db.Exec(`DELETE FROM cache_entries WHERE key = ?`, key)
	}
	if err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	return nil
}

// lockAPI returns the mutex serializing counter updates for one API.
func (c *Cache) lockAPI(api string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.apiMu[api]
	if !ok {
		m = &sync.Mutex{}
		c.apiMu[api] = m
	}
	return m
}

// TrackAPICall checks and consumes one unit of the daily budget for api.
// It must be called exactly once before each attempted upstream call; a
// false return means the call must be skipped entirely. Unmetered APIs
// are always allowed but still counted and journaled. A denial does not
// increment the counter.
func (c *Cache) TrackAPICall(api string) bool {
	m := c.lockAPI(api)
	m.Lock()
	defer m.Unlock()

	now := time.Now()
	count, windowStart := c.readCounter(api, now)

	if now.Sub(windowStart) > window {
		count = 0
		windowStart = now
	}

	limit, metered := c.limits[api]
	if metered && count >= limit {
		c.log.Warn("daily rate limit exceeded", "api", api, "limit", limit)
		c.journal(api, false, now)
		return false
	}

	count++
	_, err := c.db.Exec(
		`INSERT OR REPLACE INTO api_usage (api_name, count, window_start) VALUES (?, ?, ?)`,
		api, count, windowStart.Unix(),
	)
	if err != nil {
		c.log.Warn("usage counter persist failed", "api", api, "error", err)
	}

	if metered {
		pct := float64(count) / float64(limit) * 100
		if pct >= 80 {
			c.log.Warn("approaching daily limit", "api", api, "usage_percent", pct)
		} else if pct >= 50 {
			c.log.Info("daily usage", "api", api, "usage_percent", pct)
		}
	}

	c.journal(api, true, now)
	return true
}

// readCounter loads the persisted counter for api. A missing or
// unreadable row starts a fresh window.
func (c *Cache) readCounter(api string, now time.Time) (int64, time.Time) {
	var count, startUnix int64
	err := c.db.QueryRow(
		`SELECT count, window_start FROM api_usage WHERE api_name = ?`, api,
	).Scan(&count, &startUnix)
	if err != nil {
		if err != sql.ErrNoRows {
			c.log.Warn("usage counter read failed", "api", api, "error", err)
		}
		return 0, now
	}
	return count, time.Unix(startUnix, 0)
}

// UsageStats returns the current budget window per API. Read-only:
// window rollover is computed arithmetically, counters are not mutated.
func (c *Cache) UsageStats() (map[string]models.APIUsage, error) {
	rows, err := c.db.Query(`SELECT api_name, count, window_start FROM api_usage`)
	if err != nil {
		return nil, fmt.Errorf("usage stats: %w", err)
	}
	defer rows.Close()

	now := time.Now()
	stats := make(map[string]models.APIUsage)
	for rows.Next() {
		var api string
		var count, startUnix int64
		if err := rows.Scan(&api, &count, &startUnix); err != nil {
			return nil, fmt.Errorf("scan usage stats: %w", err)
		}

		elapsed := now.Sub(time.Unix(startUnix, 0))
		resetIn := window - elapsed
		if elapsed > window {
			count = 0
			resetIn = window
		}

		u := models.APIUsage{
			APIName: api,
			Count:   count,
			Limit:   c.limits[api],
			ResetIn: int64(resetIn.Seconds()),
		}
		if u.Limit > 0 {
			u.UsagePercent = float64(count) / float64(u.Limit) * 100
		}
		stats[api] = u
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Configured APIs that have never been called still get a row.
	for api, limit := range c.limits {
		if _, ok := stats[api]; !ok {
			stats[api] = models.APIUsage{
				APIName: api,
				Limit:   limit,
				ResetIn: int64(window.Seconds()),
			}
		}
	}
	return stats, nil
}

// journal records one gate decision. Timestamps are stored as Unix
// seconds, like the other tables. Failures are swallowed: the journal
// must never block the gate.
func (c *Cache) journal(api string, allowed bool, at time.Time) {
	_, err := c.db.Exec(
		`INSERT INTO call_journal (id, api_name, allowed, created_at) VALUES (?, ?, ?, ?)`,
		uuid.NewString(), api, allowed, at.Unix(),
	)
	if err != nil {
		c.log.Warn("journal write failed", "api", api, "error", err)
	}
}

// Journal returns recent gate decisions, newest first.
func (c *Cache) Journal(since time.Time, limit int) ([]models.CallRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := c.db.Query(
		`SELECT id, api_name, allowed, created_at FROM call_journal
		 WHERE created_at >= ? ORDER BY created_at DESC LIMIT ?`,
		since.Unix(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var records []models.CallRecord
	for rows.Next() {
		var r models.CallRecord
		var createdUnix int64
		if err := rows.Scan(&r.ID, &r.APIName, &r.Allowed, &createdUnix); err != nil {
			return nil, fmt.Errorf("scan journal: %w", err)
		}
		r.CreatedAt = time.Unix(createdUnix, 0).UTC()
		records = append(records, r)
	}
	return records, rows.Err()
}

// JournalStats aggregates gate decisions by API and day.
func (c *Cache) JournalStats() ([]models.CallStat, error) {
	rows, err := c.db.Query(
		`SELECT api_name, date(created_at, 'unixepoch') AS day,
			SUM(CASE WHEN allowed THEN 1 ELSE 0 END),
			SUM(CASE WHEN allowed THEN 0 ELSE 1 END)
		 FROM call_journal GROUP BY api_name, day ORDER BY day DESC, api_name`)
	if err != nil {
		return nil, fmt.Errorf("journal stats: %w", err)
	}
	defer rows.Close()

	var stats []models.CallStat
	for rows.Next() {
		var s models.CallStat
		if err := rows.Scan(&s.APIName, &s.Day, &s.Allowed, &s.Denied); err != nil {
			return nil, fmt.Errorf("scan journal stat: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// Stats returns cache performance metrics.
func (c *Cache) Stats() (models.CacheStats, error) {
	var count int64
	err := c.db.QueryRow(`SELECT COUNT(*) FROM cache_entries`).Scan(&count)
	if err != nil {
		return models.CacheStats{}, fmt.Errorf("cache stats: %w", err)
	}
	return models.CacheStats{
		Entries: count,
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}, nil
}

// Close releases the database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}
