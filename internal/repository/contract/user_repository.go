package contract

import (
	"context"
	"time"

	"graphrag-gateway/internal/entity"
	"graphrag-gateway/internal/repository/specification"

	"github.com/google/uuid"
)

type UserRepository interface {
	Create(ctx context.Context, user *entity.User) error
	// FindOne returns nil, nil when nothing matches.
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.User, error)
	TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	Ping(ctx context.Context) error
}
