package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CompletionCache caches project completion percentages in Redis.
// Redis failures degrade to cache misses.
type CompletionCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewCompletionCache(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *CompletionCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CompletionCache{rdb: rdb, ttl: ttl, logger: logger}
}

// Key returns the Redis key holding a project's completion.
func Key(projectID string) string {
	return "project:completion:" + projectID
}

func (c *CompletionCache) Get(ctx context.Context, projectID string) (int, bool) {
	v, err := c.rdb.Get(ctx, Key(projectID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Completion cache read failed",
				zap.String("project_id", projectID),
				zap.Error(err),
			)
		}
		return 0, false
	}
	pct, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return pct, true
}

func (c *CompletionCache) Set(ctx context.Context, projectID string, pct int) {
	if err := c.rdb.Set(ctx, Key(projectID), pct, c.ttl).Err(); err != nil {
		c.logger.Warn("Completion cache write failed",
			zap.String("project_id", projectID),
			zap.Error(err),
		)
	}
}

func (c *CompletionCache) Invalidate(ctx context.Context, projectID string) error {
	return c.rdb.Del(ctx, Key(projectID)).Err()
}
