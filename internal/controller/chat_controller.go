package controller

import (
	"bufio"
	"context"

	"graphrag-gateway/internal/dto"
	"graphrag-gateway/internal/pkg/logger"
	"graphrag-gateway/internal/pkg/serverutils"
	"graphrag-gateway/internal/service"
	chatws "graphrag-gateway/internal/websocket"
	"graphrag-gateway/pkg/relay"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/valyala/fasthttp"
)

type IChatController interface {
	RegisterRoutes(r fiber.Router)
	Stream(ctx *fiber.Ctx) error
	Socket(ctx *fiber.Ctx) error
}

type chatController struct {
	service service.IChatService
	logger  logger.ILogger
}

func NewChatController(service service.IChatService, log logger.ILogger) IChatController {
	return &chatController{service: service, logger: log}
}

func (c *chatController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/chat")
	h.Post("/stream", c.Stream)
	h.Get("/ws", c.Socket)
}

// Stream answers with text/event-stream. Validation and retrieval happen
// before the headers go out; after that every failure is reported in band.
func (c *chatController) Stream(ctx *fiber.Ctx) error {
	identity, err := serverutils.CurrentIdentity(ctx)
	if err != nil {
		return err
	}

	var req dto.ChatRequest
	if err := ctx.BodyParser(&req); err != nil {
		return serverutils.Validation("Invalid request body")
	}

	userCtx := ctx.UserContext()
	prepared, err := c.service.Prepare(userCtx, identity, req.Query)
	if err != nil {
		return err
	}

	ctx.Set(fiber.HeaderContentType, "text/event-stream")
	ctx.Set(fiber.HeaderCacheControl, "no-cache")
	ctx.Set(fiber.HeaderConnection, "keep-alive")
	ctx.Set("X-Accel-Buffering", "no")

	// The writer runs after this handler returns, so nothing below may touch ctx.
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(userCtx))
	ctx.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()
		c.service.Stream(streamCtx, identity, *prepared, &sseSink{w: w, cancel: cancel})
	}))
	return nil
}

// Socket upgrades to the WebSocket variant of the chat stream.
func (c *chatController) Socket(ctx *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(ctx) {
		return fiber.ErrUpgradeRequired
	}
	identity, err := serverutils.CurrentIdentity(ctx)
	if err != nil {
		return err
	}

	return websocket.New(func(conn *websocket.Conn) {
		chatws.NewSession(conn, identity, c.service, c.logger).Serve(context.Background())
	})(ctx)
}

// sseSink frames each event and flushes it straight away. The first failed
// write means the client has gone.
type sseSink struct {
	w      *bufio.Writer
	cancel context.CancelFunc
}

func (s *sseSink) Send(event relay.Event) error {
	frame, err := event.SSEFrame()
	if err != nil {
		return err
	}
	if _, err := s.w.Write(frame); err != nil {
		s.cancel()
		return err
	}
	if err := s.w.Flush(); err != nil {
		s.cancel()
		return err
	}
	return nil
}
