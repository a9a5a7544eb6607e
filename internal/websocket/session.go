package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"graphrag-gateway/internal/auth"
	"graphrag-gateway/internal/pkg/logger"
	"graphrag-gateway/internal/pkg/serverutils"
	"graphrag-gateway/pkg/relay"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 * 1024
	sendBuffer     = 64
)

var errSessionClosed = errors.New("websocket session closed")

// Conn is the part of *websocket.Conn a session uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// ChatRunner runs one exchange. It matches service.IChatService.
type ChatRunner interface {
	Prepare(ctx context.Context, identity auth.Identity, rawQuery string) (*relay.Request, error)
	Stream(ctx context.Context, identity auth.Identity, req relay.Request, sink relay.Sink) relay.Outcome
}

type inbound struct {
	Query string `json:"query"`
}

// Session carries chat exchanges over one connection. Every text message is
// a query; its events come back as JSON text messages in the same order the
// SSE route would send them. Exchanges on one session run one at a time.
type Session struct {
	conn     Conn
	identity auth.Identity
	chat     ChatRunner
	logger   logger.ILogger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewSession(conn Conn, identity auth.Identity, chat ChatRunner, log logger.ILogger) *Session {
	return &Session{
		conn:     conn,
		identity: identity,
		chat:     chat,
		logger:   log,
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
	}
}

// Serve blocks until the peer goes away or ctx is cancelled.
func (s *Session) Serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.logger.Info("ChatSocket", "Starting WebSocket session", map[string]interface{}{"user_id": s.identity.UserID})

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writePump(cancel)
	}()
	s.readPump(ctx)

	close(s.send)
	<-writerDone
	s.logger.Info("ChatSocket", "WebSocket session ended", map[string]interface{}{"user_id": s.identity.UserID})
}

// Send implements relay.Sink.
func (s *Session) Send(event relay.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	select {
	case s.send <- payload:
		return nil
	case <-s.done:
		return errSessionClosed
	}
}

func (s *Session) readPump(ctx context.Context) {
	defer s.shutdown()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("ChatSocket", "Unexpected close", map[string]interface{}{"error": err})
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		s.exchange(ctx, data)
		if ctx.Err() != nil {
			return
		}
		// Pongs that arrived during a long exchange are only seen on the next
		// read, so the deadline is pushed out here.
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}

func (s *Session) exchange(ctx context.Context, data []byte) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		s.reject("Invalid message")
		return
	}

	req, err := s.chat.Prepare(ctx, s.identity, msg.Query)
	if err != nil {
		var appErr *serverutils.AppError
		if errors.As(err, &appErr) {
			s.reject(appErr.Message)
		} else {
			s.reject("Internal server error")
		}
		return
	}
	s.chat.Stream(ctx, s.identity, *req, s)
}

// reject answers a message that never reached the relay.
func (s *Session) reject(message string) {
	if s.Send(relay.ErrorEvent(message)) == nil {
		_ = s.Send(relay.DoneEvent())
	}
}

func (s *Session) writePump(cancel context.CancelFunc) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.shutdown()
		cancel()
	}()

	for {
		select {
		case message, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Session) shutdown() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}
