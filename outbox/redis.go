package outbox

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// Redis keeps the outbox in a Redis list so queued messages survive a process
// crash. Disconnect and Destroy still clear it. Entries are pushed on the
// right and popped from the left; the bound is enforced with LTRIM inside the
// same MULTI as the push.
type Redis struct {
	cli redis.Cmdable
	key string
	cap int
}

var _ Store = (*Redis)(nil)

func NewRedis(cli redis.Cmdable, key string, capacity int) *Redis {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Redis{cli: cli, key: key, cap: capacity}
}

func (r *Redis) Push(ctx context.Context, msg string) (int, error) {
	var push *redis.IntCmd
	_, err := r.cli.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		push = pipe.RPush(ctx, r.key, msg)
		pipe.LTrim(ctx, r.key, int64(-r.cap), -1)
		return nil
	})
	if err != nil {
		return 0, err
	}
	n := int(push.Val())
	if n > r.cap {
		return n - r.cap, nil
	}
	return 0, nil
}

func (r *Redis) Requeue(ctx context.Context, msg string) error {
	_, err := r.cli.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, r.key, msg)
		pipe.LTrim(ctx, r.key, 0, int64(r.cap-1))
		return nil
	})
	return err
}

func (r *Redis) Pop(ctx context.Context) (string, bool, error) {
	msg, err := r.cli.LPop(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return msg, true, nil
}

func (r *Redis) Len(ctx context.Context) (int, error) {
	n, err := r.cli.LLen(ctx, r.key).Result()
	return int(n), err
}

func (r *Redis) Clear(ctx context.Context) error {
	return r.cli.Del(ctx, r.key).Err()
}

func (r *Redis) Cap() int {
	return r.cap
}
