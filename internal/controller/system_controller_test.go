package controller

import (
	"context"
	"testing"

	"graphrag-gateway/internal/auth"
	"graphrag-gateway/internal/dto"
	"graphrag-gateway/internal/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
)

type stubSystemService struct {
	gotLevel  string
	gotLimit  int
	gotOffset int
}

func (s *stubSystemService) Health() *dto.HealthResponse {
	return &dto.HealthResponse{Status: "healthy", Service: "api-gateway", Version: "0.1.0"}
}

func (s *stubSystemService) ServiceHealth(context.Context) *dto.ServiceHealthResponse {
	return &dto.ServiceHealthResponse{Services: map[string]dto.ComponentStatus{
		"api_gateway": {Status: "healthy"},
		"postgres":    {Status: "unhealthy"},
	}}
}

func (s *stubSystemService) Logs(level string, limit, offset int) (*dto.LogListResponse, error) {
	s.gotLevel, s.gotLimit, s.gotOffset = level, limit, offset
	return &dto.LogListResponse{Entries: []logger.LogEntry{}, Limit: limit, Offset: offset}, nil
}

func newSystemApp(svc *stubSystemService, identity *auth.Identity) *fiber.App {
	ctrl := NewSystemController(svc)
	app := newTestApp(identity, func(r fiber.Router) {
		ctrl.RegisterRoutes(r)
		ctrl.RegisterAdminRoutes(r)
	})
	app.Get("/health", ctrl.Health)
	return app
}

func TestHealthRoutes(t *testing.T) {
	app := newSystemApp(&stubSystemService{}, nil)

	status, _, body := do(t, app, "GET", "/health", "", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.JSONEq(t, `{"status":"healthy","service":"api-gateway","version":"0.1.0"}`, body)

	status, _, body = do(t, app, "GET", "/api/v1/health", "", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.JSONEq(t, `{"services":{"api_gateway":{"status":"healthy"},"postgres":{"status":"unhealthy"}}}`, body)
}

func TestAdminLogsRoleGate(t *testing.T) {
	tests := []struct {
		name       string
		identity   *auth.Identity
		wantStatus int
	}{
		{"anonymous", nil, fiber.StatusUnauthorized},
		{"plain user", &alice, fiber.StatusForbidden},
		{"admin", &admin, fiber.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubSystemService{}
			status, _, _ := do(t, newSystemApp(svc, tt.identity), "GET", "/api/v1/admin/logs?level=error&limit=20&offset=40", "", nil)
			assert.Equal(t, tt.wantStatus, status)
			if tt.wantStatus == fiber.StatusOK {
				assert.Equal(t, "error", svc.gotLevel)
				assert.Equal(t, 20, svc.gotLimit)
				assert.Equal(t, 40, svc.gotOffset)
			}
		})
	}
}
