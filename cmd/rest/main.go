package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"graphrag-gateway/internal/bootstrap"
	"graphrag-gateway/internal/config"
	"graphrag-gateway/internal/server"
	"graphrag-gateway/internal/tracer"
	"graphrag-gateway/pkg/database"

	"golang.org/x/sync/errgroup"
)

const shutdownGrace = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Load Configuration
	cfg := config.Load()

	// 2. Tracing (no-op unless OTEL_ENABLED)
	shutdownTracer := tracer.InitTracer(ctx, cfg.Telemetry, cfg.App.Version)

	// 3. Initialize Database
	gormDB, err := database.NewGormDBFromDSN(cfg.Database.Connection, !cfg.App.IsProduction())
	if err != nil {
		log.Panicf("Unable to connect to GORM DB: %v", err)
	}

	// 4. Bootstrap Dependencies (Container)
	container := bootstrap.NewContainer(ctx, gormDB, cfg)
	srv := server.New(cfg, container)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return container.ConsumerService.Consume(gctx)
	})

	g.Go(func() error {
		return srv.Run()
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		container.Logger.Error("Main", "Gateway stopped with error", map[string]interface{}{"error": err})
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracer(flushCtx); err != nil {
		log.Printf("Tracer shutdown: %v", err)
	}
	container.Close()
}
