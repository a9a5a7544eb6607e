package service

import (
	"context"
	"time"

	"graphrag-gateway/internal/pkg/logger"
	"graphrag-gateway/pkg/events"

	"github.com/ThreeDotsLabs/watermill/message"
)

// EventForwarder ships audit events out of the process. The NATS publisher
// satisfies it.
type EventForwarder interface {
	Publish(ctx context.Context, event events.Event) error
}

type IConsumerService interface {
	// Consume blocks until ctx is cancelled or the subscription closes.
	Consume(ctx context.Context) error
}

type consumerService struct {
	subscriber message.Subscriber
	topic      string
	forwarder  EventForwarder
	logger     logger.ILogger
}

// NewConsumerService builds the audit consumer. forwarder may be nil, in
// which case events are only written to the log.
func NewConsumerService(subscriber message.Subscriber, topic string, forwarder EventForwarder, log logger.ILogger) IConsumerService {
	return &consumerService{
		subscriber: subscriber,
		topic:      topic,
		forwarder:  forwarder,
		logger:     log,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.subscriber.Subscribe(ctx, cs.topic)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			cs.processMessage(ctx, msg)
		}
	}
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	event, err := events.Decode(msg.Payload)
	if err != nil {
		cs.logger.Error("AuditConsumer", "Dropping undecodable event", map[string]interface{}{
			"message_id": msg.UUID,
			"error":      err,
		})
		msg.Ack()
		return
	}

	cs.logger.Info("AuditConsumer", event.EventType(), event.Payload())

	if cs.forwarder != nil {
		fctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := cs.forwarder.Publish(fctx, event); err != nil {
			// Forwarding is best effort; the event is acked either way.
			cs.logger.Warn("AuditConsumer", "Failed to forward event", map[string]interface{}{
				"type":  event.EventType(),
				"error": err,
			})
		}
	}
	msg.Ack()
}
