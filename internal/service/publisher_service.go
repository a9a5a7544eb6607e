package service

import (
	"context"

	"graphrag-gateway/internal/pkg/logger"
	"graphrag-gateway/pkg/events"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// AuditTopic is the in-process topic every audit event goes through.
const AuditTopic = "gateway.audit"

type IPublisherService interface {
	Publish(ctx context.Context, event events.Event)
}

type publisherService struct {
	topic     string
	publisher message.Publisher
	logger    logger.ILogger
}

func NewPublisherService(topic string, publisher message.Publisher, log logger.ILogger) IPublisherService {
	return &publisherService{
		topic:     topic,
		publisher: publisher,
		logger:    log,
	}
}

// Publish is fire and forget. A failed audit event is logged and never
// fails the request that produced it.
func (s *publisherService) Publish(ctx context.Context, event events.Event) {
	payload, err := events.Encode(event)
	if err != nil {
		s.logger.Error("EventBus", "Failed to encode event", map[string]interface{}{
			"type":  event.EventType(),
			"error": err,
		})
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(context.WithoutCancel(ctx))
	msg.Metadata.Set("event_type", event.EventType())

	if err := s.publisher.Publish(s.topic, msg); err != nil {
		s.logger.Error("EventBus", "Failed to publish event", map[string]interface{}{
			"type":  event.EventType(),
			"error": err,
		})
	}
}
