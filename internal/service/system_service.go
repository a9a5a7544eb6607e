package service

import (
	"context"
	"time"

	"graphrag-gateway/internal/dto"
	"graphrag-gateway/internal/pkg/logger"
	"graphrag-gateway/internal/pkg/serverutils"
)

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"

	maxLogPageSize = 500
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type ISystemService interface {
	Health() *dto.HealthResponse
	ServiceHealth(ctx context.Context) *dto.ServiceHealthResponse
	Logs(level string, limit, offset int) (*dto.LogListResponse, error)
}

type systemService struct {
	version string
	db      Pinger
	logger  logger.ILogger
}

func NewSystemService(version string, db Pinger, log logger.ILogger) ISystemService {
	return &systemService{version: version, db: db, logger: log}
}

func (s *systemService) Health() *dto.HealthResponse {
	return &dto.HealthResponse{
		Status:  StatusHealthy,
		Service: "api-gateway",
		Version: s.version,
	}
}

func (s *systemService) ServiceHealth(ctx context.Context) *dto.ServiceHealthResponse {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	postgres := StatusHealthy
	if err := s.db.Ping(ctx); err != nil {
		postgres = StatusUnhealthy
		s.logger.Warn("SystemService", "Postgres health check failed", map[string]interface{}{"error": err})
	}

	return &dto.ServiceHealthResponse{
		Services: map[string]dto.ComponentStatus{
			"api_gateway": {Status: StatusHealthy},
			"postgres":    {Status: postgres},
		},
	}
}

func (s *systemService) Logs(level string, limit, offset int) (*dto.LogListResponse, error) {
	if limit <= 0 || limit > maxLogPageSize {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	entries, err := s.logger.GetLogs(level, limit, offset)
	if err != nil {
		return nil, serverutils.Internal(err)
	}
	return &dto.LogListResponse{Entries: entries, Limit: limit, Offset: offset}, nil
}
