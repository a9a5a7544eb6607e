package controller

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"graphrag-gateway/internal/auth"
	"graphrag-gateway/internal/pkg/logger"
	"graphrag-gateway/internal/pkg/serverutils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var (
	alice = auth.Identity{UserID: uuid.MustParse("8f0c5f7e-3a43-4c41-9f5e-2b7a0a4f6c11"), Username: "alice", Role: "user"}
	admin = auth.Identity{UserID: uuid.MustParse("1d2e3f40-5a6b-4c7d-8e9f-a0b1c2d3e4f5"), Username: "root", Role: auth.RoleAdmin}
)

// newTestApp mounts routes under /api/v1 with identity pre-attached, standing
// in for the session guard. A nil identity leaves the request anonymous.
func newTestApp(identity *auth.Identity, register func(r fiber.Router)) *fiber.App {
	app := fiber.New()
	app.Use(serverutils.ErrorHandlerMiddleware(logger.NewNopLogger()))
	app.Use(func(ctx *fiber.Ctx) error {
		if identity != nil {
			ctx.SetUserContext(auth.WithIdentity(ctx.UserContext(), *identity))
		}
		return ctx.Next()
	})
	register(app.Group("/api/v1"))
	return app
}

func do(t *testing.T, app *fiber.App, method, path, contentType string, body io.Reader) (int, string, string) {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, resp.Header.Get("Content-Type"), string(raw)
}

func postJSON(t *testing.T, app *fiber.App, path, body string) (int, string) {
	t.Helper()
	status, _, raw := do(t, app, "POST", path, fiber.MIMEApplicationJSON, strings.NewReader(body))
	return status, raw
}

