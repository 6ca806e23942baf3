package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/quotehub-backend/pkg/db/models"
	"github.com/angelmondragon/quotehub-backend/pkg/enums"
	"github.com/angelmondragon/quotehub-backend/pkg/outbox/registry"
)

const (
	publishTimeout  = 15 * time.Second
	maxAttributeLen = 512
)

var errNilResult = errors.New("publish result is nil")

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// cachedPublishers hands out one Pub/Sub publisher per topic.
func cachedPublishers(client pubSubClient) publisherFactory {
	var mu sync.Mutex
	cache := map[string]publisher{}
	return func(topic string) publisher {
		mu.Lock()
		defer mu.Unlock()
		if p, ok := cache[topic]; ok {
			return p
		}
		raw := client.Publisher(topic)
		if raw == nil {
			return nil
		}
		p := &gcpPublisher{Publisher: raw}
		cache[topic] = p
		return p
	}
}

func messageAttributes(event models.OutboxEvent) map[string]string {
	return map[string]string{
		"outbox_id":      event.ID.String(),
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
	}
}

// send publishes msg on topic and waits for the server ack.
func (s *Service) send(ctx context.Context, topic string, msg *gcppubsub.Message) error {
	pub := s.publisherFactory(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	result := pub.Publish(ctx, msg)
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	_, err := result.Get(ctx)
	return err
}

// publishResolved sends the stored envelope unchanged as the message body.
func (s *Service) publishResolved(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	attrs := messageAttributes(event)
	attrs["event_id"] = resolved.Envelope.EventID
	attrs["created_at"] = event.CreatedAt.Format(time.RFC3339Nano)
	return s.send(ctx, resolved.Descriptor.Topic, &gcppubsub.Message{Data: event.Payload, Attributes: attrs})
}

// forwardToDLQTopic mirrors a dead-lettered row onto the DLQ topic. Failures
// are only logged.
func (s *Service) forwardToDLQTopic(ctx context.Context, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) {
	if s.dlqTopic == "" {
		return
	}
	attrs := messageAttributes(event)
	attrs["error_reason"] = string(reason)
	attrs["error"] = truncate(cause.Error(), maxAttributeLen)
	if err := s.send(ctx, s.dlqTopic, &gcppubsub.Message{Data: event.Payload, Attributes: attrs}); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "dlq_error", err.Error()), "dlq forward failed")
	}
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max]
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r.PublishResult == nil {
		return "", errNilResult
	}
	return r.PublishResult.Get(ctx)
}
