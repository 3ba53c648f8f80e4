// Package cache is a JSON read-through cache on Redis for derived, read-heavy views such as
// attempt results. Entries expire after a TTL and are invalidated after every committed write that
// changes them.
package cache

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultTTL = 5 * time.Minute
	scanCount  = 100
)

type Config struct {
	Redis  redis.UniversalClient
	Prefix string
	TTL    time.Duration
}

type Cache struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func New(c Config) *Cache {
	ttl := c.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}

	return &Cache{
		redis:  c.Redis,
		prefix: c.Prefix,
		ttl:    ttl,
	}
}

// ResultKey is the key of a single attempt result.
func ResultKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:result", attemptID)
}

// UserResultsPrefix prefixes every cached listing of a user's results.
func UserResultsPrefix(userID string) string {
	return fmt.Sprintf("user:%s:results", userID)
}

// Get decodes the entry into v and reports whether it was found.
func (c *Cache) Get(ctx context.Context, key string, v any) (bool, error) {
	b, err := c.redis.Get(ctx, c.key(key)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache: get %s: %w", key, err)
	}

	if err := json.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("cache: decode %s: %w", key, err)
	}

	return true, nil
}

func (c *Cache) Set(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}

	if err := c.redis.Set(ctx, c.key(key), b, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache: set %s: %w", key, err)
	}

	return nil
}

func (c *Cache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, c.key(k))
	}

	// Keys may hash to different slots in cluster mode.
	pipe := c.redis.Pipeline()
	for _, k := range full {
		pipe.Del(ctx, k)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache: invalidate: %w", err)
	}

	return nil
}

// InvalidatePrefix deletes every entry whose key starts with prefix. Glob characters in prefix
// match literally.
func (c *Cache) InvalidatePrefix(ctx context.Context, prefix string) error {
	match := globEscaper.Replace(c.key(prefix)) + "*"

	if cc, ok := c.redis.(*redis.ClusterClient); ok {
		return cc.ForEachMaster(ctx, func(ctx context.Context, node *redis.Client) error {
			return scanDelete(ctx, node, match)
		})
	}

	return scanDelete(ctx, c.redis, match)
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func scanDelete(ctx context.Context, r redis.Cmdable, match string) error {
	iter := r.Scan(ctx, 0, match, scanCount).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache: scan %s: %w", match, err)
	}

	for _, k := range keys {
		if err := r.Del(ctx, k).Err(); err != nil {
			return fmt.Errorf("cache: delete %s: %w", k, err)
		}
	}

	return nil
}

func (c *Cache) key(k string) string {
	if c.prefix == "" {
		return k
	}

	return c.prefix + ":" + k
}
