package serverutils

import (
	"strings"

	"graphrag-gateway/internal/auth"
	"graphrag-gateway/internal/pkg/logger"
	"graphrag-gateway/pkg/authtoken"

	"github.com/gofiber/fiber/v2"
)

// RejectKind tells apart why a request was turned away. It only reaches logs
// and metrics; the client always gets the same 401.
type RejectKind string

const (
	RejectMissingCredential RejectKind = "missing_credential"
	RejectInvalidCredential RejectKind = "invalid_credential"
)

type TokenVerifier interface {
	Verify(token string, key []byte) (*authtoken.Claims, error)
}

type JwtConfig struct {
	Verifier TokenVerifier
	Key      []byte
	Logger   logger.ILogger
	// OnReject is optional.
	OnReject func(kind RejectKind)
}

// JwtMiddleware guards every route registered behind it. A verified token
// becomes an auth.Identity on the request's user context.
func JwtMiddleware(cfg JwtConfig) fiber.Handler {
	reject := func(ctx *fiber.Ctx, kind RejectKind, err error) error {
		details := map[string]interface{}{
			"kind":   string(kind),
			"path":   ctx.Path(),
			"method": ctx.Method(),
		}
		if err != nil {
			details["reason"] = err.Error()
		}
		cfg.Logger.Warn("SessionGuard", "Rejected unauthenticated request", details)
		if cfg.OnReject != nil {
			cfg.OnReject(kind)
		}
		return ctx.Status(fiber.StatusUnauthorized).JSON(NewErrorResponse(CodeUnauthorized, "Authentication required"))
	}

	return func(ctx *fiber.Ctx) error {
		token, ok := extractBearerToken(ctx.Get(fiber.HeaderAuthorization))
		if !ok {
			return reject(ctx, RejectMissingCredential, nil)
		}

		claims, err := cfg.Verifier.Verify(token, cfg.Key)
		if err != nil {
			return reject(ctx, RejectInvalidCredential, err)
		}

		identity := auth.Identity{
			UserID:   claims.UserID(),
			Username: claims.Username,
			Role:     claims.Role,
		}
		ctx.SetUserContext(auth.WithIdentity(ctx.UserContext(), identity))
		return ctx.Next()
	}
}

// RequireRole must run after JwtMiddleware.
func RequireRole(role string) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		identity, ok := auth.IdentityFromContext(ctx.UserContext())
		if !ok {
			return Unauthorized()
		}
		if identity.Role != role {
			return Forbidden()
		}
		return ctx.Next()
	}
}

// CurrentIdentity returns the identity the guard attached, or an
// unauthorized error when the route was not guarded.
func CurrentIdentity(ctx *fiber.Ctx) (auth.Identity, error) {
	identity, ok := auth.IdentityFromContext(ctx.UserContext())
	if !ok {
		return auth.Identity{}, Unauthorized()
	}
	return identity, nil
}

func extractBearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}
