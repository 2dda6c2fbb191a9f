package ratelimit

import (
	"context"

	"github.com/smallbiznis/affina/internal/config"
	"go.uber.org/zap"
)

// DebitLimiter bounds metered debit calls per balance. Without a Redis
// client it degrades to allow-all, so the ledger remains usable in
// single-node setups.
type DebitLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
	log    *zap.Logger
}

func NewDebitLimiter(bucket *TokenBucket, cfg config.Config, log *zap.Logger) *DebitLimiter {
	return &DebitLimiter{
		bucket: bucket,
		rate:   cfg.Commission.DebitRatePerSecond,
		burst:  cfg.Commission.DebitBurst,
		log:    log.Named("ratelimit.debit"),
	}
}

// Allow reports whether a debit against the balance may proceed now.
func (d *DebitLimiter) Allow(ctx context.Context, balanceID string) bool {
	if d == nil || d.bucket == nil {
		return true
	}
	result, err := d.bucket.Allow(ctx, "debit:"+balanceID, d.rate, d.burst)
	if err != nil {
		// Fail open: a broken limiter must not block the ledger.
		d.log.Warn("rate limiter unavailable", zap.Error(err))
		return true
	}
	return result.Allowed
}
