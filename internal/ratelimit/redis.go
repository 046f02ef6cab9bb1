package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a fixed-window counter shared by every replica.
type Redis struct {
	cli      redis.UniversalClient
	attempts int64
	window   time.Duration
	prefix   string
}

func NewRedis(cli redis.UniversalClient, attempts int, window time.Duration) *Redis {
	return &Redis{
		cli:      cli,
		attempts: int64(attempts),
		window:   window,
		prefix:   "govlink:rl:",
	}
}

func (r *Redis) Check(ctx context.Context, key string) (Decision, error) {
	k := r.prefix + key

	pipe := r.cli.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Do(ctx, "pexpire", k, r.window.Milliseconds(), "nx")
	ttl := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return allow(), fmt.Errorf("ratelimit: redis: %w", err)
	}

	if incr.Val() <= r.attempts {
		return allow(), nil
	}
	return deny(ttl.Val()), nil
}
