package implementation

import (
	"context"
	"errors"
	"time"

	"graphrag-gateway/internal/repository/contract"

	"github.com/redis/go-redis/v9"
)

const loginAttemptPrefix = "login_attempts:"

type LoginAttemptRepositoryRedis struct {
	rdb *redis.Client
}

func NewLoginAttemptRepository(rdb *redis.Client) contract.LoginAttemptRepository {
	return &LoginAttemptRepositoryRedis{rdb: rdb}
}

func (r *LoginAttemptRepositoryRedis) Failures(ctx context.Context, key string) (int, error) {
	n, err := r.rdb.Get(ctx, loginAttemptPrefix+key).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func (r *LoginAttemptRepositoryRedis) RecordFailure(ctx context.Context, key string, window time.Duration) (int, error) {
	var incr *redis.IntCmd
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, loginAttemptPrefix+key)
		pipe.ExpireNX(ctx, loginAttemptPrefix+key, window)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(incr.Val()), nil
}

func (r *LoginAttemptRepositoryRedis) Reset(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, loginAttemptPrefix+key).Err()
}
