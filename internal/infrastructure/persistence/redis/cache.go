// Package redis implements the shared leaderboard page cache on Redis, so
// several server replicas serve the same assembled pages within the TTL.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alem-hub/community-rankings/internal/domain/leaderboard"
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

	// DB is the Redis database number.
	DB int

	// PoolSize is the maximum number of socket connections.
	PoolSize int

	// MaxRetries is the maximum number of retries before giving up.
	MaxRetries int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// KeyPrefix namespaces every key this package writes.
	KeyPrefix string
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Host:         "localhost",
		Port:         6379,
		PoolSize:     10,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		KeyPrefix:    "rankings:",
	}
}

// Addr returns the Redis address in "host:port" format.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrCacheConnection is returned when Redis connection fails.
	ErrCacheConnection = errors.New("cache: connection failed")

	// ErrCacheSerialization is returned when serialization/deserialization fails.
	ErrCacheSerialization = errors.New("cache: serialization failed")

	// ErrCacheInvalidTTL is returned when a non-positive TTL is provided.
	ErrCacheInvalidTTL = errors.New("cache: invalid TTL")

	// ErrCacheKeyEmpty is returned when an empty key is provided.
	ErrCacheKeyEmpty = errors.New("cache: key cannot be empty")
)

// ══════════════════════════════════════════════════════════════════════════════
// PAGE CACHE
// ══════════════════════════════════════════════════════════════════════════════

// PrefixLeaderboardPage is appended to Config.KeyPrefix for page keys.
const PrefixLeaderboardPage = "leaderboard:page:"

// PageCache is a leaderboard.PageCache storing pages as JSON strings.
// Expiry is left to Redis.
type PageCache struct {
	client *redis.Client
	prefix string
}

// NewPageCache dials Redis and verifies the connection.
func NewPageCache(ctx context.Context, cfg Config) (*PageCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrCacheConnection, err)
	}

	return NewPageCacheWithClient(client, cfg.KeyPrefix), nil
}

// NewPageCacheWithClient wraps an existing client.
func NewPageCacheWithClient(client *redis.Client, keyPrefix string) *PageCache {
	return &PageCache{client: client, prefix: keyPrefix + PrefixLeaderboardPage}
}

// Close closes the Redis connection.
func (c *PageCache) Close() error {
	return c.client.Close()
}

// Ping checks if Redis is reachable.
func (c *PageCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *PageCache) key(key string) string {
	return c.prefix + key
}

// Get implements leaderboard.PageCache.
func (c *PageCache) Get(ctx context.Context, key string) (*leaderboard.Page, error) {
	if key == "" {
		return nil, ErrCacheKeyEmpty
	}

	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, leaderboard.ErrCacheMiss
		}
		return nil, err
	}

	var page leaderboard.Page
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return &page, nil
}

// Set implements leaderboard.PageCache.
func (c *PageCache) Set(ctx context.Context, key string, page *leaderboard.Page, ttl time.Duration) error {
	if key == "" {
		return ErrCacheKeyEmpty
	}
	if ttl <= 0 {
		return ErrCacheInvalidTTL
	}

	data, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return c.client.Set(ctx, c.key(key), data, ttl).Err()
}

// Invalidate drops every cached page whose key starts with keyPrefix,
// e.g. "total_xp:" for one category. An empty prefix drops all pages.
// The prefix is matched literally; glob characters in it are escaped.
func (c *PageCache) Invalidate(ctx context.Context, keyPrefix string) (int, error) {
	iter := c.client.Scan(ctx, 0, c.scanPattern(keyPrefix), 100).Iterator()

	var batch []string
	removed := 0
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := c.client.Unlink(ctx, batch...).Result()
		if err != nil {
			return err
		}
		removed += int(n)
		batch = batch[:0]
		return nil
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= 100 {
			if err := flush(); err != nil {
				return removed, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, err
	}
	return removed, flush()
}

func (c *PageCache) scanPattern(keyPrefix string) string {
	return globEscaper.Replace(c.key(keyPrefix)) + "*"
}

var globEscaper = strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`, "]", `\]`)

var _ leaderboard.PageCache = (*PageCache)(nil)
