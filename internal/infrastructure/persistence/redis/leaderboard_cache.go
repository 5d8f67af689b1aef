package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ecoquest/ecoquest-progression/internal/domain/leaderboard"
)

// TTLLeaderboardCache is the default lifetime of the cached ranked list.
const TTLLeaderboardCache = 5 * time.Minute

// LeaderboardCache implements leaderboard.Cache as one JSON value holding
// the ranked top list, guarded by a generation counter that every
// invalidation increments.
type LeaderboardCache struct {
	kv     KV
	key    string
	genKey string
}

// NewLeaderboardCache creates a cache over kv.
func NewLeaderboardCache(kv KV) *LeaderboardCache {
	return &LeaderboardCache{kv: kv, key: LeaderboardKey(), genKey: LeaderboardGenerationKey()}
}

// Get returns the cached list or leaderboard.ErrCacheMiss.
func (c *LeaderboardCache) Get(ctx context.Context) ([]leaderboard.Entry, error) {
	var entries []leaderboard.Entry
	err := GetJSON(ctx, c.kv, c.key, &entries)
	if errors.Is(err, ErrCacheMiss) {
		return nil, leaderboard.ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Generation returns the current invalidation counter. A missing counter is 0.
func (c *LeaderboardCache) Generation(ctx context.Context) (int64, error) {
	raw, err := c.kv.Get(ctx, c.genKey)
	if errors.Is(err, ErrCacheMiss) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	gen, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: leaderboard generation %q", ErrCacheSerialization, raw)
	}
	return gen, nil
}

// Set stores the list for ttl unless the generation moved past gen.
// A non-positive ttl uses the default.
func (c *LeaderboardCache) Set(ctx context.Context, gen int64, entries []leaderboard.Entry, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = TTLLeaderboardCache
	}
	if entries == nil {
		entries = []leaderboard.Entry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return c.kv.SetIfEqual(ctx, c.genKey, strconv.FormatInt(gen, 10), c.key, string(data), ttl)
}

// Invalidate bumps the generation and drops the cached list. The bump
// comes first so a refresh racing with it cannot store its list.
func (c *LeaderboardCache) Invalidate(ctx context.Context) error {
	if _, err := c.kv.Incr(ctx, c.genKey); err != nil {
		return err
	}
	return c.kv.Del(ctx, c.key)
}
