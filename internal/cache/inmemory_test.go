package cache

import (
	"context"
	"testing"
	"time"

	"github.com/cloudfin/finance/internal/config"
	"github.com/cloudfin/finance/internal/logger"
	"github.com/stretchr/testify/assert"
)

func TestInMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache(config.GetDefaultConfig(), logger.NewNopLogger())

	key := GenerateKey(PrefixPlan, "default")
	assert.Equal(t, "plan:v1::default", key)

	c.Set(ctx, key, 42, 0)
	v, ok := c.Get(ctx, key)
	assert.True(t, ok)
	assert.Equal(t, 42, v)

	c.Set(ctx, GenerateKey(PrefixPlan, "other"), 1, time.Minute)
	c.DeleteByPrefix(ctx, PrefixPlan)
	_, ok = c.Get(ctx, key)
	assert.False(t, ok)
}

func TestDisabledCacheAlwaysMisses(t *testing.T) {
	ctx := context.Background()
	cfg := config.GetDefaultConfig()
	cfg.Cache.Enabled = false
	c := NewInMemoryCache(cfg, logger.NewNopLogger())

	c.Set(ctx, "k", "v", 0)
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}
