// Package registry maps outbox event types to the topic they publish on and
// the payload they carry.
package registry

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/angelmondragon/fulfillment-backend/pkg/config"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox/payloads"
)

// EventDescriptor routes one event type.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	decode        func(outbox.PayloadEnvelope) (any, error)
}

// ResolvedEvent is a validated outbox row with its typed payload.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// EventRegistry resolves outbox rows against the known event types.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError marks a row that can never publish as written.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// NewNonRetryableError wraps err so the relay dead-letters instead of retrying.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

// IsNonRetryable reports whether err, or anything it wraps, is a NonRetryableError.
func IsNonRetryable(err error) bool {
	var target NonRetryableError
	return errors.As(err, &target)
}

func nonRetryable(format string, args ...any) error {
	return NewNonRetryableError(fmt.Errorf(format, args...))
}

// payloadOf returns a decoder producing *T from the envelope data.
func payloadOf[T any]() func(outbox.PayloadEnvelope) (any, error) {
	return func(envelope outbox.PayloadEnvelope) (any, error) {
		dest := new(T)
		if err := envelope.DecodeData(dest); err != nil {
			return nil, err
		}
		return dest, nil
	}
}

// NewEventRegistry builds the registry. Order events go to the orders topic,
// file events to the files topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.OrdersTopic == "" {
		return nil, errors.New("orders topic is required")
	}
	if cfg.FilesTopic == "" {
		return nil, errors.New("files topic is required")
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor)}
	for _, desc := range []EventDescriptor{
		{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, Topic: cfg.OrdersTopic, decode: payloadOf[payloads.OrderCreatedEvent]()},
		{EventType: enums.EventOrderUpdated, AggregateType: enums.AggregateOrder, Topic: cfg.OrdersTopic, decode: payloadOf[payloads.OrderUpdatedEvent]()},
		{EventType: enums.EventOrderStatusChanged, AggregateType: enums.AggregateOrder, Topic: cfg.OrdersTopic, decode: payloadOf[payloads.StatusChangedEvent]()},
		{EventType: enums.EventCODStatusChanged, AggregateType: enums.AggregateOrder, Topic: cfg.OrdersTopic, decode: payloadOf[payloads.StatusChangedEvent]()},
		{EventType: enums.EventOrderCompleted, AggregateType: enums.AggregateOrder, Topic: cfg.OrdersTopic, decode: payloadOf[payloads.OrderCompletedEvent]()},
		{EventType: enums.EventOrderAutoDelivered, AggregateType: enums.AggregateOrder, Topic: cfg.OrdersTopic, decode: payloadOf[payloads.OrderAutoDeliveredEvent]()},
		{EventType: enums.EventFileStatusChanged, AggregateType: enums.AggregateTuningFile, Topic: cfg.FilesTopic, decode: payloadOf[payloads.StatusChangedEvent]()},
	} {
		if err := reg.register(desc); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func (r *EventRegistry) register(desc EventDescriptor) error {
	if desc.decode == nil {
		return fmt.Errorf("event %s has no payload decoder", desc.EventType)
	}
	if _, dup := r.entries[desc.EventType]; dup {
		return fmt.Errorf("event %s registered twice", desc.EventType)
	}
	r.entries[desc.EventType] = desc
	return nil
}

// Topics lists the distinct topics the registry publishes to, sorted.
func (r *EventRegistry) Topics() []string {
	seen := map[string]struct{}{}
	for _, desc := range r.entries {
		seen[desc.Topic] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for topic := range seen {
		out = append(out, topic)
	}
	sort.Strings(out)
	return out
}

// Resolve checks the row against its descriptor and decodes the payload. Every
// failure is non-retryable: the row will not change on its own.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, nonRetryable("unsupported event type %s", event.EventType)
	case desc.AggregateType != event.AggregateType:
		return nil, nonRetryable("%s: aggregate mismatch: expected %s got %s", event.EventType, desc.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, nonRetryable("%s: missing aggregate_id", event.EventType)
	}

	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, nonRetryable("%s: %w", event.EventType, err)
	}
	payload, err := desc.decode(envelope)
	if err != nil {
		return nil, nonRetryable("decode %s payload: %w", event.EventType, err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
