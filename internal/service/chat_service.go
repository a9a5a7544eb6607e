package service

import (
	"context"
	"strings"

	"graphrag-gateway/internal/auth"
	"graphrag-gateway/internal/pkg/logger"
	"graphrag-gateway/internal/pkg/serverutils"
	"graphrag-gateway/pkg/events"
	"graphrag-gateway/pkg/relay"
	"graphrag-gateway/pkg/retrieval"
)

type ContextRetriever interface {
	FetchContext(ctx context.Context, query string, limit int) ([]string, []retrieval.Citation)
}

type StreamRunner interface {
	Run(ctx context.Context, sink relay.Sink, req relay.Request) relay.Outcome
}

// StreamObserver is told when a stream opens and how it ended.
type StreamObserver interface {
	StreamOpened()
	ObserveStream(out relay.Outcome)
}

type IChatService interface {
	// Prepare validates the query and gathers retrieval context. It is the
	// only step allowed to fail with an HTTP error; once it succeeds the
	// exchange is streamed.
	Prepare(ctx context.Context, identity auth.Identity, rawQuery string) (*relay.Request, error)
	Stream(ctx context.Context, identity auth.Identity, req relay.Request, sink relay.Sink) relay.Outcome
}

type chatService struct {
	retriever ContextRetriever
	runner    StreamRunner
	publisher IPublisherService
	logger    logger.ILogger
	observer  StreamObserver
}

// NewChatService wires the chat flow. observer may be nil.
func NewChatService(
	retriever ContextRetriever,
	runner StreamRunner,
	publisher IPublisherService,
	log logger.ILogger,
	observer StreamObserver,
) IChatService {
	return &chatService{
		retriever: retriever,
		runner:    runner,
		publisher: publisher,
		logger:    log,
		observer:  observer,
	}
}

func (s *chatService) Prepare(ctx context.Context, identity auth.Identity, rawQuery string) (*relay.Request, error) {
	query := strings.TrimSpace(rawQuery)
	if query == "" {
		return nil, serverutils.Validation("query must not be empty")
	}

	fragments, citations := s.retriever.FetchContext(ctx, query, retrieval.ResultLimit)

	s.logger.Info("ChatService", "Starting chat stream with retrieved context", map[string]interface{}{
		"user_id":       identity.UserID.String(),
		"context_count": len(fragments),
		"source_count":  len(citations),
	})

	return &relay.Request{
		Query:   query,
		Context: fragments,
		Sources: citations,
	}, nil
}

func (s *chatService) Stream(ctx context.Context, identity auth.Identity, req relay.Request, sink relay.Sink) relay.Outcome {
	if s.observer != nil {
		s.observer.StreamOpened()
	}
	out := s.runner.Run(ctx, sink, req)

	s.logger.Info("ChatService", "Chat stream finished", map[string]interface{}{
		"user_id":         identity.UserID.String(),
		"termination":     string(out.Termination),
		"tokens":          out.Tokens,
		"skipped_chunks":  out.SkippedChunks,
		"discarded_lines": out.DiscardedLines,
		"duration_ms":     out.Duration.Milliseconds(),
	})
	if s.observer != nil {
		s.observer.ObserveStream(out)
	}
	s.publisher.Publish(ctx, events.New(events.TypeChatExchange, map[string]interface{}{
		"user_id":     identity.UserID.String(),
		"username":    identity.Username,
		"termination": string(out.Termination),
		"tokens":      out.Tokens,
		"sources":     len(req.Sources),
	}))
	return out
}
