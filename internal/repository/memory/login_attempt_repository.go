package memory

import (
	"context"
	"sync"
	"time"

	"graphrag-gateway/internal/repository/contract"

	"github.com/patrickmn/go-cache"
)

// LoginAttemptRepository keeps failure counters in process. It is the
// fallback when Redis is not reachable, so limits are per instance.
type LoginAttemptRepository struct {
	mu    sync.Mutex
	cache *cache.Cache
}

type attempts struct {
	count     int
	expiresAt time.Time
}

func NewLoginAttemptRepository() contract.LoginAttemptRepository {
	return &LoginAttemptRepository{
		cache: cache.New(15*time.Minute, 5*time.Minute),
	}
}

func (r *LoginAttemptRepository) Failures(_ context.Context, key string) (int, error) {
	if x, found := r.cache.Get(key); found {
		return x.(attempts).count, nil
	}
	return 0, nil
}

func (r *LoginAttemptRepository) RecordFailure(_ context.Context, key string, window time.Duration) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := attempts{expiresAt: time.Now().Add(window)}
	if x, found := r.cache.Get(key); found {
		current = x.(attempts)
	}
	current.count++

	ttl := time.Until(current.expiresAt)
	if ttl <= 0 {
		current = attempts{count: 1, expiresAt: time.Now().Add(window)}
		ttl = window
	}
	r.cache.Set(key, current, ttl)
	return current.count, nil
}

func (r *LoginAttemptRepository) Reset(_ context.Context, key string) error {
	r.cache.Delete(key)
	return nil
}
