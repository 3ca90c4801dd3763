package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/pkg/db/dbtest"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox/payloads"
)

func newService(t *testing.T) (*Service, *Repository, *gorm.DB) {
	t.Helper()
	db := dbtest.Open(t)
	repo := NewRepository(db)
	return NewService(repo, logger.New(logger.Options{ServiceName: "test", Output: io.Discard})), repo, db
}

func TestEmitWritesEnvelope(t *testing.T) {
	svc, _, db := newService(t)
	orderID := uuid.New()

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderUpdated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Actor:         &ActorRef{ActorID: "admin-1", Role: "admin", Source: "admin"},
			Data:          payloads.OrderUpdatedEvent{OrderID: orderID, TotalCents: 3000},
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	assert.Equal(t, 1, envelope.Version)
	assert.Equal(t, "admin-1", envelope.Actor.ActorID)
	var data payloads.OrderUpdatedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	assert.Equal(t, int64(3000), data.TotalCents)
}

func TestEmitRolledBackWithTransaction(t *testing.T) {
	svc, _, db := newService(t)

	_ = db.Transaction(func(tx *gorm.DB) error {
		require.NoError(t, svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Data:          map[string]string{"k": "v"},
		}))
		return errors.New("abort")
	})

	var count int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEmitIfNotExistsDeduplicates(t *testing.T) {
	svc, _, db := newService(t)
	orderID := uuid.New()
	event := DomainEvent{
		EventType:     enums.EventOrderAutoDelivered,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Data:          payloads.OrderAutoDeliveredEvent{OrderID: orderID},
	}
	for i := 0; i < 2; i++ {
		require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
			return svc.EmitIfNotExists(context.Background(), tx, event)
		}))
	}

	var count int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestEmitRejectsUnknownEventAndMissingTx(t *testing.T) {
	svc, _, db := newService(t)
	assert.Error(t, svc.Emit(context.Background(), nil, DomainEvent{EventType: enums.EventOrderCreated}))
	assert.Error(t, svc.Emit(context.Background(), db, DomainEvent{EventType: "nope"}))
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	svc, repo, db := newService(t)
	orderID := uuid.New()
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Data:          payloads.OrderCreatedEvent{OrderID: orderID},
		})
	}))

	rows, err := repo.FetchUnpublishedForPublish(db, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	require.NoError(t, repo.MarkFailedTx(db, rows[0].ID, errors.New("pubsub unavailable")))
	rows, err = repo.FetchUnpublishedForPublish(db, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].AttemptCount)
	require.NotNil(t, rows[0].LastError)

	require.NoError(t, repo.MarkTerminalTx(db, rows[0].ID, errors.New("gave up"), 3))
	rows, err = repo.FetchUnpublishedForPublish(db, 10, 3)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRepositoryMarkPublishedHidesRow(t *testing.T) {
	svc, repo, db := newService(t)
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventFileStatusChanged,
			AggregateType: enums.AggregateTuningFile,
			AggregateID:   uuid.New(),
			Data:          payloads.StatusChangedEvent{NewStatus: "READY"},
		})
	}))
	rows, err := repo.FetchUnpublishedForPublish(db, 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NoError(t, repo.MarkPublishedTx(db, rows[0].ID))

	rows, err = repo.FetchUnpublishedForPublish(db, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestDeletePublishedBeforeKeepsPendingRows(t *testing.T) {
	svc, repo, db := newService(t)
	for i := 0; i < 2; i++ {
		require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
			return svc.Emit(context.Background(), tx, DomainEvent{
				EventType:     enums.EventOrderUpdated,
				AggregateType: enums.AggregateOrder,
				AggregateID:   uuid.New(),
				Data:          payloads.OrderUpdatedEvent{},
			})
		}))
	}
	rows, err := repo.FetchUnpublishedForPublish(db, 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.NoError(t, repo.MarkPublishedTx(db, rows[0].ID))

	deleted, err := repo.DeletePublishedBefore(context.Background(), db, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, deleted)

	deleted, err = repo.DeletePublishedBefore(context.Background(), db, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var remaining int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Count(&remaining).Error)
	assert.Equal(t, int64(1), remaining)
}

func TestEmitUsesRowIDAsEventID(t *testing.T) {
	svc, _, db := newService(t)
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Data:          payloads.OrderCreatedEvent{},
		})
	}))

	var row models.OutboxEvent
	require.NoError(t, db.First(&row).Error)
	env, err := DecodeEnvelope(row.Payload)
	require.NoError(t, err)
	assert.Equal(t, row.ID.String(), env.EventID)
	assert.Equal(t, envelopeVersion, env.Version)
	assert.False(t, env.OccurredAt.IsZero())
}

func TestDecodeEnvelopeRejectsMissingData(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`{"version":1,"eventId":"e","data":null}`))
	assert.ErrorIs(t, err, ErrEmptyPayload)
	_, err = DecodeEnvelope([]byte(`{"version":1}`))
	assert.ErrorIs(t, err, ErrEmptyPayload)
	_, err = DecodeEnvelope([]byte(`not json`))
	assert.Error(t, err)
}

func TestDLQInsertIgnoresRepeatedEvent(t *testing.T) {
	db := dbtest.Open(t)
	dlq := NewDLQRepository(db)
	eventID := uuid.New()
	msg := "topic missing"
	entry := models.OutboxDLQ{
		EventID:       eventID,
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"data":{}}`),
		ErrorReason:   enums.OutboxDLQReasonNonRetryable,
		ErrorMessage:  &msg,
		FailedAt:      time.Now().UTC(),
	}
	require.NoError(t, dlq.InsertTx(db, entry))
	require.NoError(t, dlq.InsertTx(db, entry))
	assert.ErrorIs(t, dlq.InsertTx(nil, entry), ErrTxRequired)

	var count int64
	require.NoError(t, db.Model(&models.OutboxDLQ{}).Where("event_id = ?", eventID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
