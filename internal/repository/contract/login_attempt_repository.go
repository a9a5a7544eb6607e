package contract

import (
	"context"
	"time"
)

// LoginAttemptRepository counts failed logins per key inside a sliding
// lockout window. The window starts at the first failure.
type LoginAttemptRepository interface {
	Failures(ctx context.Context, key string) (int, error)
	RecordFailure(ctx context.Context, key string, window time.Duration) (int, error)
	Reset(ctx context.Context, key string) error
}
