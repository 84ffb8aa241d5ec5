package service

import (
	"context"
	"errors"

	"research-flowstream/internal/pkg/logger"
	"research-flowstream/pkg/events"

	"github.com/ThreeDotsLabs/watermill/message"
)

const consumerLogModule = "Consumer"

// EventForwarder relays events to another bus, e.g. NATS JetStream.
type EventForwarder interface {
	Publish(ctx context.Context, event events.Event) error
}

// Forwarders publishes to every forwarder and joins their errors.
type Forwarders []EventForwarder

func (fs Forwarders) Publish(ctx context.Context, event events.Event) error {
	var errs []error
	for _, f := range fs {
		if err := f.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type IConsumerService interface {
	// Consume blocks until ctx is done or the subscription closes.
	Consume(ctx context.Context) error
}

type consumerService struct {
	subscriber message.Subscriber
	topicName  string
	forwarder  EventForwarder
	logger     logger.ILogger
}

// NewConsumerService wires the in-process report.saved subscription.
// forwarder may be nil, in which case events are only logged.
func NewConsumerService(
	subscriber message.Subscriber,
	topicName string,
	forwarder EventForwarder,
	log logger.ILogger,
) IConsumerService {
	return &consumerService{
		subscriber: subscriber,
		topicName:  topicName,
		forwarder:  forwarder,
		logger:     log,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.subscriber.Subscribe(ctx, cs.topicName)
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

// processMessage always acks. Invalid payloads would never succeed, and a
// gochannel nack redelivers at once, so a down forwarder would spin.
func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	defer msg.Ack()

	evt, err := events.DecodeReportSaved(msg.Payload)
	if err != nil {
		cs.logger.Error(consumerLogModule, "Dropping undecodable message", map[string]interface{}{
			"message_id": msg.UUID,
			"error":      err,
		})
		return
	}

	cs.logger.Info(consumerLogModule, "Report saved", map[string]interface{}{
		"report_id": evt.ReportID,
		"title":     evt.Title,
		"length":    evt.Length,
	})

	if cs.forwarder == nil {
		return
	}
	if err := cs.forwarder.Publish(ctx, evt); err != nil {
		cs.logger.Warn(consumerLogModule, "Failed to forward event", map[string]interface{}{
			"report_id": evt.ReportID,
			"error":     err,
		})
	}
}
