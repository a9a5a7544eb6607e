package server

import (
	"context"

	"graphrag-gateway/internal/bootstrap"
	"graphrag-gateway/internal/config"
	"graphrag-gateway/internal/pkg/serverutils"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

type Server struct {
	app       *fiber.App
	cfg       *config.Config
	container *bootstrap.Container
}

func New(cfg *config.Config, container *bootstrap.Container) *Server {
	app := fiber.New(fiber.Config{
		BodyLimit:             50 * 1024 * 1024, // document uploads
		DisableStartupMessage: true,
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.App.CorsAllowedOrigin,
		AllowCredentials: true,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET, POST, OPTIONS",
	}))

	app.Use(otelfiber.Middleware())

	app.Use(serverutils.ErrorHandlerMiddleware(container.Logger))

	registerRoutes(app, container)

	return &Server{
		app:       app,
		cfg:       cfg,
		container: container,
	}
}

func (s *Server) GetApp() *fiber.App {
	return s.app
}

func (s *Server) Run() error {
	s.container.Logger.Info("Server", "API gateway listening", map[string]interface{}{
		"port":    s.cfg.App.Port,
		"version": s.cfg.App.Version,
	})
	return s.app.Listen(":" + s.cfg.App.Port)
}

// Shutdown stops accepting connections and waits for in-flight requests,
// open chat streams included, until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func registerRoutes(app *fiber.App, c *bootstrap.Container) {
	app.Get("/health", c.SystemController.Health)
	app.Get("/metrics", adaptor.HTTPHandler(c.Metrics.Handler()))

	api := app.Group("/api/v1")

	// Public allow-list.
	c.AuthController.RegisterRoutes(api)
	c.SystemController.RegisterRoutes(api)

	protected := api.Group("", c.Guard)
	c.ChatController.RegisterRoutes(protected)
	c.DocumentController.RegisterRoutes(protected)
	c.SystemController.RegisterAdminRoutes(protected)
}
