package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox/registry"
)

const publishTimeout = 15 * time.Second

var errNilPublishResult = errors.New("publish result is nil")

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// publishResolved sends the stored envelope as-is and blocks until the server
// acks it. A topic with no publisher is a configuration error and is not retried.
func publishResolved(ctx context.Context, factory publisherFactory, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := factory(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	result := pub.Publish(ctx, messageFor(event, resolved))
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("topic %s: %w", topic, errNilPublishResult))
	}
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish %s to %s: %w", event.EventType, topic, err)
	}
	return nil
}

// messageFor keys the message on the aggregate so consumers see one order's
// events in the order they were written.
func messageFor(event models.OutboxEvent, resolved *registry.ResolvedEvent) *gcppubsub.Message {
	aggregateID := event.AggregateID.String()
	return &gcppubsub.Message{
		Data:        event.Payload,
		OrderingKey: aggregateID,
		Attributes: map[string]string{
			"event_id":         resolved.Envelope.EventID,
			"event_type":       string(event.EventType),
			"aggregate_type":   string(event.AggregateType),
			"aggregate_id":     aggregateID,
			"envelope_version": strconv.Itoa(resolved.Envelope.Version),
			"created_at":       event.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}
}

// gcpPublisherFactory caches one ordered publisher per topic.
func gcpPublisherFactory(client pubSubClient) publisherFactory {
	cache := map[string]*gcpPublisher{}
	return func(topic string) publisher {
		if p, ok := cache[topic]; ok {
			return p
		}
		handle := client.Publisher(topic)
		if handle == nil {
			return nil
		}
		handle.EnableMessageOrdering = true
		p := &gcpPublisher{handle: handle}
		cache[topic] = p
		return p
	}
}

type gcpPublisher struct {
	handle *gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return &gcpPublishResult{
		result: p.handle.Publish(ctx, msg),
		resume: func() { p.handle.ResumePublish(msg.OrderingKey) },
	}
}

// gcpPublishResult resumes the ordering key after a failure; otherwise every
// later message for that aggregate would fail fast.
type gcpPublishResult struct {
	result *gcppubsub.PublishResult
	resume func()
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r.result == nil {
		return "", errNilPublishResult
	}
	id, err := r.result.Get(ctx)
	if err != nil && r.resume != nil {
		r.resume()
	}
	return id, err
}
