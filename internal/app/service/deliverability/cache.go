package deliverability

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fatflowers/funnelhook/internal/platform/verifier"
	"github.com/fatflowers/funnelhook/pkg/config"
)

// Cache stores verification verdicts by address. Misses and errors are
// indistinguishable to the caller.
type Cache interface {
	Get(ctx context.Context, email string) (*verifier.Result, bool)
	Set(ctx context.Context, email string, res *verifier.Result)
}

const cacheKeyPrefix = "funnelhook:verify:"

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.SugaredLogger
}

// NewCache returns a no-op cache when client is nil.
func NewCache(client *redis.Client, cfg *config.Config, log *zap.SugaredLogger) Cache {
	if client == nil {
		return nopCache{}
	}
	ttl := cfg.Redis.CacheTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisCache{client: client, ttl: ttl, log: log}
}

func (c *RedisCache) Get(ctx context.Context, email string) (*verifier.Result, bool) {
	raw, err := c.client.Get(ctx, cacheKeyPrefix+email).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warnw("verify cache get failed", "err", err)
		}
		return nil, false
	}
	var res verifier.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, false
	}
	return &res, true
}

func (c *RedisCache) Set(ctx context.Context, email string, res *verifier.Result) {
	raw, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKeyPrefix+email, raw, c.ttl).Err(); err != nil {
		c.log.Warnw("verify cache set failed", "err", err)
	}
}

type nopCache struct{}

func (nopCache) Get(context.Context, string) (*verifier.Result, bool) { return nil, false }
func (nopCache) Set(context.Context, string, *verifier.Result)        {}
