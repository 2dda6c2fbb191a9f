package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// releaseIfOwner deletes the lock key only when the stored fencing
// token still matches, so a lease that outlived its TTL cannot free a
// successor's lock.
const releaseIfOwner = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// JobLock hands out best-effort leases on named scheduler jobs so a
// sweep runs on one replica at a time.
type JobLock struct {
	client  *redis.Client
	release *redis.Script
}

// Lease is a held job lock. Release it when the job finishes; an
// unreleased lease expires with its TTL.
type Lease struct {
	lock  *JobLock
	key   string
	token string
}

func NewJobLock(client *redis.Client) *JobLock {
	if client == nil {
		return nil
	}
	return &JobLock{
		client:  client,
		release: redis.NewScript(releaseIfOwner),
	}
}

// Acquire tries to lease the named job for ttl. It returns a nil
// lease with a nil error when another runner already holds the job.
func (j *JobLock) Acquire(ctx context.Context, name string, ttl time.Duration) (*Lease, error) {
	if j == nil || j.client == nil {
		return nil, errors.New("job lock client not configured")
	}
	if name == "" {
		return nil, errors.New("job name is empty")
	}
	if ttl <= 0 {
		return nil, errors.New("lease ttl must be positive")
	}

	key := "scheduler:" + name
	token := uuid.NewString()
	ok, err := j.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &Lease{lock: j, key: key, token: token}, nil
}

func (l *Lease) Release(ctx context.Context) error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.release.Run(ctx, l.lock.client, []string{l.key}, l.token).Err()
}
