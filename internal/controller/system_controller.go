package controller

import (
	"graphrag-gateway/internal/auth"
	"graphrag-gateway/internal/pkg/serverutils"
	"graphrag-gateway/internal/service"

	"github.com/gofiber/fiber/v2"
)

type ISystemController interface {
	// RegisterRoutes mounts the public health check.
	RegisterRoutes(r fiber.Router)
	// RegisterAdminRoutes mounts admin-only routes; r must already be guarded.
	RegisterAdminRoutes(r fiber.Router)
	Health(ctx *fiber.Ctx) error
	ServiceHealth(ctx *fiber.Ctx) error
	GetLogs(ctx *fiber.Ctx) error
}

type systemController struct {
	service service.ISystemService
}

func NewSystemController(service service.ISystemService) ISystemController {
	return &systemController{service: service}
}

func (c *systemController) RegisterRoutes(r fiber.Router) {
	r.Get("/health", c.ServiceHealth)
}

func (c *systemController) RegisterAdminRoutes(r fiber.Router) {
	h := r.Group("/admin", serverutils.RequireRole(auth.RoleAdmin))
	h.Get("/logs", c.GetLogs)
}

// Health is the bare liveness probe served at the root.
func (c *systemController) Health(ctx *fiber.Ctx) error {
	return ctx.JSON(c.service.Health())
}

func (c *systemController) ServiceHealth(ctx *fiber.Ctx) error {
	return ctx.JSON(c.service.ServiceHealth(ctx.UserContext()))
}

func (c *systemController) GetLogs(ctx *fiber.Ctx) error {
	res, err := c.service.Logs(ctx.Query("level"), ctx.QueryInt("limit", 100), ctx.QueryInt("offset", 0))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("", res))
}
