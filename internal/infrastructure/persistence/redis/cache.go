// Package redis implements the Redis-backed infrastructure of the
// progression service:
//   - Cache: JSON key/value access with TTLs
//   - LeaderboardCache: the cached ranked top list
//   - Locker: the cross-instance per-student lock
//   - PubSub: the go-redis adapter for the event bus bridge
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config holds Redis connection configuration.
type Config struct {
	// Host is the Redis server hostname.
	Host string

	// Port is the Redis server port.
	Port int

	// Password is the Redis authentication password (empty if no auth).
	Password string

	// DB is the Redis database number (0-15).
	DB int

	// PoolSize is the maximum number of socket connections.
	PoolSize int

	// MinIdleConns is the minimum number of idle connections.
	MinIdleConns int

	// MaxRetries is the maximum number of retries before giving up.
	MaxRetries int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Host:         "localhost",
		Port:         6379,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Addr returns the Redis address in "host:port" format.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS & KEYS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrCacheMiss is returned when the requested key is not found in cache.
	ErrCacheMiss = errors.New("cache: key not found")

	// ErrCacheSerialization is returned when serialization fails.
	ErrCacheSerialization = errors.New("cache: serialization failed")

	// ErrCacheKeyEmpty is returned when an empty key is provided.
	ErrCacheKeyEmpty = errors.New("cache: key cannot be empty")
)

// Key prefixes for namespacing Redis keys.
const (
	PrefixLeaderboard = "ecoquest:leaderboard:"
	PrefixLock        = "ecoquest:lock:"
)

// LeaderboardKey is the key of the cached ranked list.
func LeaderboardKey() string {
	return PrefixLeaderboard + "top"
}

// LeaderboardGenerationKey is the key of the leaderboard invalidation counter.
func LeaderboardGenerationKey() string {
	return PrefixLeaderboard + "gen"
}

// LockKey generates a key for a distributed lock.
func LockKey(resource string) string {
	return PrefixLock + resource
}

// ══════════════════════════════════════════════════════════════════════════════
// KV CONTRACT
// ══════════════════════════════════════════════════════════════════════════════

// KV is the small set of string operations the cache and the lock need.
// Cache implements it on top of go-redis.
type KV interface {
	// Get returns ErrCacheMiss when the key is absent.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error

	// SetNX stores value only if key is absent.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// CompareAndDelete removes key only if it still holds value.
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)

	// Incr atomically increments the integer at key, treating a missing key as 0.
	Incr(ctx context.Context, key string) (int64, error)

	// SetIfEqual stores value at key only while guardKey holds guardValue.
	// A missing guardKey compares as "0".
	SetIfEqual(ctx context.Context, guardKey, guardValue, key, value string, ttl time.Duration) (bool, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// CACHE CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Cache wraps a go-redis client.
type Cache struct {
	client *redis.Client
}

// NewCache connects to Redis and verifies the connection.
func NewCache(cfg Config) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: failed to connect to %s: %w", cfg.Addr(), err)
	}

	return &Cache{client: client}, nil
}

// NewCacheFromClient wraps an existing client.
func NewCacheFromClient(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Client returns the underlying go-redis client.
func (c *Cache) Client() *redis.Client {
	return c.client
}

// Close closes the client.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping checks the connection.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Get returns the string stored at key.
func (c *Cache) Get(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", ErrCacheKeyEmpty
	}
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

// Set stores value at key with ttl (0 means no expiry).
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if key == "" {
		return ErrCacheKeyEmpty
	}
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Del removes keys.
func (c *Cache) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// SetNX stores value only if key does not exist.
func (c *Cache) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	return ok, nil
}

var compareAndDelete = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// CompareAndDelete deletes key only if it still holds value.
func (c *Cache) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	n, err := compareAndDelete.Run(ctx, c.client, []string{key}, value).Int()
	if err != nil {
		return false, fmt.Errorf("redis compare-and-delete %s: %w", key, err)
	}
	return n == 1, nil
}

// Incr increments the integer stored at key.
func (c *Cache) Incr(ctx context.Context, key string) (int64, error) {
	n, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", key, err)
	}
	return n, nil
}

var setIfEqual = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if not current then
	current = "0"
end
if current ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
else
	redis.call("SET", KEYS[2], ARGV[2])
end
return 1
`)

// SetIfEqual stores value at key only while guardKey holds guardValue.
// The check and the write run as one script.
func (c *Cache) SetIfEqual(ctx context.Context, guardKey, guardValue, key, value string, ttl time.Duration) (bool, error) {
	if key == "" || guardKey == "" {
		return false, ErrCacheKeyEmpty
	}
	n, err := setIfEqual.Run(ctx, c.client, []string{guardKey, key}, guardValue, value, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("redis set-if-equal %s: %w", key, err)
	}
	return n == 1, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// JSON HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// GetJSON decodes the JSON value at key into dest.
func GetJSON(ctx context.Context, kv KV, key string, dest interface{}) error {
	raw, err := kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return nil
}

// SetJSON encodes value as JSON and stores it at key.
func SetJSON(ctx context.Context, kv KV, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return kv.Set(ctx, key, string(data), ttl)
}
