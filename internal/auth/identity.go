package auth

import (
	"context"

	"github.com/google/uuid"
)

const RoleAdmin = "admin"

// Identity is the authenticated caller attached to a request by the session
// guard. Handlers receive it by value so it cannot be changed downstream.
type Identity struct {
	UserID   uuid.UUID
	Username string
	Role     string
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
