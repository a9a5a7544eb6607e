package dto

import "graphrag-gateway/internal/pkg/logger"

type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

type ComponentStatus struct {
	Status string `json:"status"`
}

type ServiceHealthResponse struct {
	Services map[string]ComponentStatus `json:"services"`
}

type LogListResponse struct {
	Entries []logger.LogEntry `json:"entries"`
	Limit   int               `json:"limit"`
	Offset  int               `json:"offset"`
}
