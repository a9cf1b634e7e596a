package stats

import (
	"sync"
	"time"

	"github.com/driverscout/driverscout/models"
)

// dailyCutoffHour/Minute define the fixed daily expiry used when no cache
// cycle is configured, aligned just ahead of the nightly fetch.
const (
	dailyCutoffHour   = 23
	dailyCutoffMinute = 55
)

type cacheKey struct {
	category  string
	startDate string
	limit     int
	minRating int
	hasMin    bool
}

type cacheEntry struct {
	payload   models.LeaderboardPayload
	expiresAt time.Time
}

// growersCache memoizes leaderboard payloads until the next fetch-cadence
// boundary. One mutex guards the map; entries are lazily overwritten once
// expired, no background sweep.
type growersCache struct {
	mu      sync.Mutex
	entries map[cacheKey]cacheEntry
	cycle   time.Duration
	now     func() time.Time
}

func newGrowersCache(cycle time.Duration, now func() time.Time) *growersCache {
	return &growersCache{
		entries: make(map[cacheKey]cacheEntry),
		cycle:   cycle,
		now:     now,
	}
}

func (c *growersCache) get(key cacheKey) (models.LeaderboardPayload, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok || !entry.expiresAt.After(c.now()) {
		return models.LeaderboardPayload{}, false
	}
	return entry.payload, true
}

func (c *growersCache) put(key cacheKey, payload models.LeaderboardPayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{payload: payload, expiresAt: c.nextExpiry(c.now())}
}

// nextExpiry aligns expiry to the fetch cadence: the next boundary of the
// configured cycle, or the daily cutoff when no cycle is set.
func (c *growersCache) nextExpiry(now time.Time) time.Time {
	now = now.UTC()
	if c.cycle > 0 {
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		boundary := midnight
		for !boundary.After(now) {
			boundary = boundary.Add(c.cycle)
		}
		return boundary
	}
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), dailyCutoffHour, dailyCutoffMinute, 0, 0, time.UTC)
	if !cutoff.After(now) {
		cutoff = cutoff.AddDate(0, 0, 1)
	}
	return cutoff
}
