package ratelimit

import (
	"github.com/smallbiznis/affina/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("rate.limit",
	fx.Provide(NewClient),
	fx.Provide(NewTokenBucket),
	fx.Provide(NewJobLock),
	fx.Provide(NewDebitLimiter),
)

// NewClient returns a Redis client, or nil when no address is
// configured. All consumers tolerate a nil client.
func NewClient(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
}
