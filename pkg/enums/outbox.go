package enums

import "slices"

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateOrder      OutboxAggregateType = "order"
	AggregateTuningFile OutboxAggregateType = "tuning_file"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateTuningFile,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	return slices.Contains(validAggregateTypes, a)
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse(value, validAggregateTypes, "aggregate type")
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventOrderCreated       OutboxEventType = "order_created"
	EventOrderUpdated       OutboxEventType = "order_updated"
	EventOrderStatusChanged OutboxEventType = "order_status_changed"
	EventCODStatusChanged   OutboxEventType = "cod_status_changed"
	EventFileStatusChanged  OutboxEventType = "file_status_changed"
	EventOrderCompleted     OutboxEventType = "order_completed"
	EventOrderAutoDelivered OutboxEventType = "order_auto_delivered"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderUpdated,
	EventOrderStatusChanged,
	EventCODStatusChanged,
	EventFileStatusChanged,
	EventOrderCompleted,
	EventOrderAutoDelivered,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	return slices.Contains(validOutboxEventTypes, e)
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse(value, validOutboxEventTypes, "event type")
}

// OutboxDLQErrorReason explains why an outbox row stopped retrying.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)
