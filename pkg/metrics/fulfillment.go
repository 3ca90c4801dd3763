package metrics

import "github.com/prometheus/client_golang/prometheus"

// BestEffortMetrics counts side-effect steps whose failure must not abort the caller.
type BestEffortMetrics struct {
	steps *prometheus.CounterVec
}

// NewBestEffortMetrics registers best_effort_steps_total on the provided registerer.
func NewBestEffortMetrics(reg prometheus.Registerer) *BestEffortMetrics {
	if reg == nil {
		return &BestEffortMetrics{}
	}
	steps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "best_effort_steps_total",
		Help: "Best-effort side effect executions by outcome.",
	}, []string{"step", "outcome"})
	reg.MustRegister(steps)
	return &BestEffortMetrics{steps: steps}
}

// Inc records one execution of step with the given outcome.
func (m *BestEffortMetrics) Inc(step, outcome string) {
	if m == nil || m.steps == nil {
		return
	}
	m.steps.WithLabelValues(normalizeLabel(step), normalizeLabel(outcome)).Inc()
}

// ParcelSyncMetrics counts carrier mirror writes.
type ParcelSyncMetrics struct {
	syncs *prometheus.CounterVec
}

// NewParcelSyncMetrics registers parcel_sync_total on the provided registerer.
func NewParcelSyncMetrics(reg prometheus.Registerer) *ParcelSyncMetrics {
	if reg == nil {
		return &ParcelSyncMetrics{}
	}
	syncs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parcel_sync_total",
		Help: "Parcel sync attempts by result.",
	}, []string{"result"})
	reg.MustRegister(syncs)
	return &ParcelSyncMetrics{syncs: syncs}
}

// Inc records one parcel sync with the given result (created, updated, skipped, failed).
func (m *ParcelSyncMetrics) Inc(result string) {
	if m == nil || m.syncs == nil {
		return
	}
	m.syncs.WithLabelValues(normalizeLabel(result)).Inc()
}

// OutboxMetrics counts relay outcomes per event type.
type OutboxMetrics struct {
	events *prometheus.CounterVec
}

// NewOutboxMetrics registers outbox_events_total on the provided registerer.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_total",
		Help: "Outbox rows handled by the publisher, by event type and result.",
	}, []string{"event_type", "result"})
	reg.MustRegister(events)
	return &OutboxMetrics{events: events}
}

// Inc records one handled row. Result is published, retry or dead_letter.
func (m *OutboxMetrics) Inc(eventType, result string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(eventType), normalizeLabel(result)).Inc()
}
