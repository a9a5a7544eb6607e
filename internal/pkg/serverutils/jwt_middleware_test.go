package serverutils

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"graphrag-gateway/internal/pkg/logger"
	"graphrag-gateway/pkg/authtoken"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("test-secret")

const unauthorizedBody = `{"success":false,"data":null,"error":{"code":"UNAUTHORIZED","message":"Authentication required"}}`

func newGuardedApp(t *testing.T, rejects *[]RejectKind) *fiber.App {
	t.Helper()
	app := fiber.New()
	app.Use(ErrorHandlerMiddleware(logger.NewNopLogger()))

	app.Get("/open", func(ctx *fiber.Ctx) error {
		return ctx.SendString("open")
	})

	guard := JwtMiddleware(JwtConfig{
		Verifier: authtoken.NewCodec(),
		Key:      testKey,
		Logger:   logger.NewNopLogger(),
		OnReject: func(kind RejectKind) {
			*rejects = append(*rejects, kind)
		},
	})
	protected := app.Group("/p", guard)
	protected.Get("/me", func(ctx *fiber.Ctx) error {
		identity, err := CurrentIdentity(ctx)
		if err != nil {
			return err
		}
		return ctx.JSON(fiber.Map{
			"user_id":  identity.UserID.String(),
			"username": identity.Username,
			"role":     identity.Role,
		})
	})
	protected.Get("/admin", RequireRole("admin"), func(ctx *fiber.Ctx) error {
		return ctx.SendString("welcome")
	})
	return app
}

func doGet(t *testing.T, app *fiber.App, path, authorization string) (int, string) {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestJwtMiddlewareAttachesIdentity(t *testing.T) {
	var rejects []RejectKind
	app := newGuardedApp(t, &rejects)

	userID := uuid.New()
	token, err := authtoken.NewCodec().IssueAccess(userID, "alice", "user", testKey, 3600)
	require.NoError(t, err)

	status, body := doGet(t, app, "/p/me", "Bearer "+token)

	assert.Equal(t, fiber.StatusOK, status)
	assert.JSONEq(t, `{"user_id":"`+userID.String()+`","username":"alice","role":"user"}`, body)
	assert.Empty(t, rejects)
}

func TestJwtMiddlewareRejectsIdentically(t *testing.T) {
	codec := authtoken.NewCodec()
	valid, err := codec.IssueAccess(uuid.New(), "alice", "user", testKey, 3600)
	require.NoError(t, err)
	wrongKey, err := codec.IssueAccess(uuid.New(), "alice", "user", []byte("other"), 3600)
	require.NoError(t, err)
	expired, err := authtoken.NewCodecWithClock(func() time.Time {
		return time.Now().Add(-2 * time.Hour)
	}).IssueAccess(uuid.New(), "alice", "user", testKey, 60)
	require.NoError(t, err)

	tests := []struct {
		name          string
		authorization string
		wantKind      RejectKind
	}{
		{name: "no header", authorization: "", wantKind: RejectMissingCredential},
		{name: "basic scheme", authorization: "Basic dXNlcjpwYXNz", wantKind: RejectMissingCredential},
		{name: "bearer without token", authorization: "Bearer ", wantKind: RejectMissingCredential},
		{name: "scheme only", authorization: "Bearer", wantKind: RejectMissingCredential},
		{name: "token without scheme", authorization: valid, wantKind: RejectMissingCredential},
		{name: "garbage token", authorization: "Bearer not.a.jwt", wantKind: RejectInvalidCredential},
		{name: "wrong key", authorization: "Bearer " + wrongKey, wantKind: RejectInvalidCredential},
		{name: "expired", authorization: "Bearer " + expired, wantKind: RejectInvalidCredential},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rejects []RejectKind
			app := newGuardedApp(t, &rejects)

			status, body := doGet(t, app, "/p/me", tt.authorization)

			assert.Equal(t, fiber.StatusUnauthorized, status)
			assert.JSONEq(t, unauthorizedBody, body)
			assert.Equal(t, []RejectKind{tt.wantKind}, rejects)
		})
	}
}

func TestJwtMiddlewareSchemeIsCaseInsensitive(t *testing.T) {
	var rejects []RejectKind
	app := newGuardedApp(t, &rejects)

	token, err := authtoken.NewCodec().IssueAccess(uuid.New(), "alice", "user", testKey, 3600)
	require.NoError(t, err)

	status, _ := doGet(t, app, "/p/me", "bearer "+token)
	assert.Equal(t, fiber.StatusOK, status)
}

func TestUnguardedRouteBypassesGuard(t *testing.T) {
	var rejects []RejectKind
	app := newGuardedApp(t, &rejects)

	status, body := doGet(t, app, "/open", "")

	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "open", body)
	assert.Empty(t, rejects)
}

func TestRequireRole(t *testing.T) {
	var rejects []RejectKind
	app := newGuardedApp(t, &rejects)
	codec := authtoken.NewCodec()

	userToken, err := codec.IssueAccess(uuid.New(), "bob", "user", testKey, 3600)
	require.NoError(t, err)
	adminToken, err := codec.IssueAccess(uuid.New(), "root", "admin", testKey, 3600)
	require.NoError(t, err)

	status, body := doGet(t, app, "/p/admin", "Bearer "+userToken)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.JSONEq(t, `{"success":false,"data":null,"error":{"code":"FORBIDDEN","message":"Insufficient permissions"}}`, body)

	status, body = doGet(t, app, "/p/admin", "Bearer "+adminToken)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "welcome", body)
}
