// Package cache stores detector findings in Redis so repeated scans of the
// same text under the same rule set skip pattern evaluation.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/raaihank/pdn-sentinel/internal/logger"
	"github.com/raaihank/pdn-sentinel/internal/privacy"
	"go.uber.org/zap"
)

// FindingsCache implements privacy.FindingsCache on top of Redis. Cache
// failures are logged and reported as misses; they never fail a scan.
type FindingsCache struct {
	client *redis.Client
	config *Config
	logger *logger.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

var _ privacy.FindingsCache = (*FindingsCache)(nil)

// NewFindingsCache creates a Redis-backed findings cache and checks the
// connection.
func NewFindingsCache(config *Config, log *logger.Logger) (*FindingsCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if config.MaxConnections > 0 {
		opts.PoolSize = config.MaxConnections
	}
	opts.MinIdleConns = config.MinIdleConns

	c := newFindingsCache(redis.NewClient(opts), config, log)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.client.Ping(ctx).Err(); err != nil {
		c.client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	c.logger.Info("Findings cache initialized",
		zap.String("redis_url", maskRedisURL(config.RedisURL)),
		zap.Int("max_connections", opts.PoolSize),
		zap.Duration("default_ttl", config.DefaultTTL))

	return c, nil
}

func newFindingsCache(client *redis.Client, config *Config, log *logger.Logger) *FindingsCache {
	if log == nil {
		log = logger.NewNop()
	}
	return &FindingsCache{
		client: client,
		config: config,
		logger: log.WithComponent("cache"),
	}
}

// Get returns the cached findings for a detector key
func (c *FindingsCache) Get(ctx context.Context, key string) (privacy.Findings, bool) {
	cacheKey := c.key(key)

	data, err := c.client.Get(ctx, cacheKey).Bytes()
	if err == redis.Nil {
		c.misses.Add(1)
		return nil, false
	} else if err != nil {
		c.misses.Add(1)
		c.logger.Warn("Cache lookup failed", zap.Error(err))
		return nil, false
	}

	findings, err := decodeEntry(data)
	if err != nil {
		c.misses.Add(1)
		c.logger.Error("Failed to unmarshal cached findings", zap.Error(err))
		c.client.Del(ctx, cacheKey)
		return nil, false
	}

	c.hits.Add(1)
	c.logger.Debug("Cache hit",
		zap.String("key", cacheKey),
		zap.Int("categories", len(findings)))
	return findings, true
}

// Set stores findings under a detector key with the configured TTL
func (c *FindingsCache) Set(ctx context.Context, key string, findings privacy.Findings) {
	data, err := encodeEntry(findings, c.config.DefaultTTL)
	if err != nil {
		c.logger.Error("Failed to marshal findings for caching", zap.Error(err))
		return
	}

	if err := c.client.Set(ctx, c.key(key), data, c.config.DefaultTTL).Err(); err != nil {
		c.logger.Warn("Failed to cache findings", zap.Error(err))
	}
}

// GetStats returns cache performance statistics
func (c *FindingsCache) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}

	info, err := c.client.Info(ctx, "memory").Result()
	if err != nil {
		return stats, fmt.Errorf("failed to get Redis info: %w", err)
	}
	stats.MemoryUsage = parseUsedMemory(info)

	if keys, err := c.client.DBSize(ctx).Result(); err == nil {
		stats.TotalKeys = keys
	}
	return stats, nil
}

// Clear removes every cached entry under the key prefix. Called when the
// category set changes.
func (c *FindingsCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.config.KeyPrefix+":findings:*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}

	const batchSize = 100
	for i := 0; i < len(keys); i += batchSize {
		end := min(i+batchSize, len(keys))
		if err := c.client.Del(ctx, keys[i:end]...).Err(); err != nil {
			return fmt.Errorf("failed to delete cache keys: %w", err)
		}
	}

	c.logger.Info("Cache cleared", zap.Int("deleted_keys", len(keys)))
	return nil
}

// Close closes the Redis connection
func (c *FindingsCache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func (c *FindingsCache) key(detectorKey string) string {
	return c.config.KeyPrefix + ":findings:" + detectorKey
}

func encodeEntry(findings privacy.Findings, ttl time.Duration) ([]byte, error) {
	if findings == nil {
		findings = privacy.Findings{}
	}
	return json.Marshal(entry{
		Findings: findings,
		CachedAt: time.Now().UTC(),
		TTL:      int64(ttl.Seconds()),
	})
}

func decodeEntry(data []byte) (privacy.Findings, error) {
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if e.Findings == nil {
		return nil, fmt.Errorf("cache entry has no findings")
	}
	return e.Findings, nil
}

func parseUsedMemory(info string) int64 {
	for _, line := range strings.Split(info, "\r\n") {
		if mem, ok := strings.CutPrefix(line, "used_memory:"); ok {
			if n, err := strconv.ParseInt(mem, 10, 64); err == nil {
				return n
			}
		}
	}
	return 0
}

// maskRedisURL masks the password in a Redis URL for logging
func maskRedisURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}
	userPart := url[:at]
	colon := strings.LastIndex(userPart, ":")
	if colon < 0 || !strings.Contains(userPart[:colon], "//") {
		return url
	}
	return userPart[:colon+1] + "***" + url[at:]
}
