package bootstrap

import (
	"context"
	"time"

	"graphrag-gateway/internal/config"
	"graphrag-gateway/internal/controller"
	"graphrag-gateway/internal/observability"
	"graphrag-gateway/internal/pkg/logger"
	"graphrag-gateway/internal/pkg/serverutils"
	"graphrag-gateway/internal/repository/contract"
	"graphrag-gateway/internal/repository/implementation"
	"graphrag-gateway/internal/repository/memory"
	"graphrag-gateway/internal/service"
	"graphrag-gateway/internal/tracer"
	"graphrag-gateway/pkg/authtoken"
	pktNats "graphrag-gateway/pkg/nats"
	"graphrag-gateway/pkg/relay"
	"graphrag-gateway/pkg/retrieval"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const documentProxyTimeout = 2 * time.Minute

type Container struct {
	Logger  logger.ILogger
	Metrics *observability.Metrics

	// Guard protects every route outside the public allow-list.
	Guard fiber.Handler

	AuthController     controller.IAuthController
	ChatController     controller.IChatController
	DocumentController controller.IDocumentController
	SystemController   controller.ISystemController

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService

	closers []func()
}

func NewContainer(ctx context.Context, db *gorm.DB, cfg *config.Config) *Container {
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.IsProduction())
	metrics := observability.NewMetrics()
	c := &Container{Logger: sysLogger, Metrics: metrics}

	// Event bus: in-process audit topic, optionally exported to NATS.
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false))
	c.closers = append(c.closers, func() { _ = pubSub.Close() })

	var forwarder service.EventForwarder
	if cfg.App.NatsURL != "" {
		natsPub, err := pktNats.NewPublisher(ctx, cfg.App.NatsURL)
		if err != nil {
			sysLogger.Warn("Bootstrap", "NATS unavailable, audit events stay local", map[string]interface{}{"error": err})
		} else {
			forwarder = natsPub
			c.closers = append(c.closers, natsPub.Close)
		}
	}

	publisherService := service.NewPublisherService(service.AuditTopic, pubSub, sysLogger)
	c.ConsumerService = service.NewConsumerService(pubSub, service.AuditTopic, forwarder, sysLogger)

	// Repositories
	userRepo := implementation.NewUserRepository(db)
	attemptRepo := c.loginAttempts(ctx, cfg, sysLogger)

	// Token codec and guard
	codec := authtoken.NewCodec()
	secret := []byte(cfg.Auth.JWTSecret)
	c.Guard = serverutils.JwtMiddleware(serverutils.JwtConfig{
		Verifier: codec,
		Key:      secret,
		Logger:   sysLogger,
		OnReject: func(kind serverutils.RejectKind) {
			metrics.ObserveAuthRejection(string(kind))
		},
	})

	// Upstream clients
	retriever := retrieval.NewClient(cfg.Services.ETLServiceURL, cfg.Services.RetrievalTimeout, tracer.Transport(nil), sysLogger)
	retriever.OnFailure(metrics.ObserveRetrievalFailure)
	streamRelay, relayLogger := newStreamRelay(cfg)
	c.closers = append(c.closers, func() { _ = relayLogger.Sync() })

	// Services
	authService := service.NewAuthService(userRepo, attemptRepo, codec, service.AuthSettings{
		Secret:         secret,
		AccessTTL:      cfg.Auth.AccessTokenTTL,
		MaxAttempts:    cfg.Auth.LoginMaxAttempts,
		LockoutWindow:  cfg.Auth.LoginLockoutWindow,
		OnLoginOutcome: metrics.ObserveLogin,
	}, publisherService, sysLogger)
	chatService := service.NewChatService(retriever, streamRelay, publisherService, sysLogger, metrics)
	documentService := service.NewDocumentService(cfg.Services.ETLServiceURL, documentProxyTimeout, tracer.Transport(nil), publisherService, sysLogger)
	systemService := service.NewSystemService(cfg.App.Version, userRepo, sysLogger)

	// Controllers
	c.AuthController = controller.NewAuthController(authService)
	c.ChatController = controller.NewChatController(chatService, sysLogger)
	c.DocumentController = controller.NewDocumentController(documentService)
	c.SystemController = controller.NewSystemController(systemService)

	return c
}

// loginAttempts prefers Redis so lockouts hold across instances and falls
// back to process memory when Redis cannot be reached at startup.
func (c *Container) loginAttempts(ctx context.Context, cfg *config.Config, log logger.ILogger) contract.LoginAttemptRepository {
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Warn("Bootstrap", "Invalid REDIS_URL, using in-memory login throttle", map[string]interface{}{"error": err})
		return memory.NewLoginAttemptRepository()
	}

	rdb := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warn("Bootstrap", "Redis unreachable, using in-memory login throttle", map[string]interface{}{"error": err})
		_ = rdb.Close()
		return memory.NewLoginAttemptRepository()
	}

	c.closers = append(c.closers, func() { _ = rdb.Close() })
	return implementation.NewLoginAttemptRepository(rdb)
}

// newStreamRelay builds the relay on a file-only logger at RELAY_LOG_FILE_PATH.
func newStreamRelay(cfg *config.Config) (*relay.Relay, *logger.ZapLogger) {
	relayLogger := logger.NewIsolatedLogger(cfg.App.RelayLogFilePath)
	return relay.New(
		relay.NewHTTPGenerator(cfg.Services.LLMServiceURL, tracer.Transport(nil)),
		relayLogger,
		cfg.Services.GenerationTimeout,
	), relayLogger
}

// Close releases connections in reverse order of creation.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	_ = c.Logger.Sync()
}
