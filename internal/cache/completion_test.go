package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "project:completion:p-1", Key("p-1"))
}

func TestUnreachableRedisDegradesToMiss(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	c := NewCompletionCache(rdb, 0, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	c.Set(ctx, "p-1", 42)
	_, ok := c.Get(ctx, "p-1")
	assert.False(t, ok)
	assert.Error(t, c.Invalidate(ctx, "p-1"))
}
