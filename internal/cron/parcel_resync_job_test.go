package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/angelmondragon/fulfillment-backend/internal/parcels"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
)

type fakeFailedSyncReader struct {
	orders []models.Order
	limit  int
	err    error
}

func (f *fakeFailedSyncReader) ListParcelSyncFailed(ctx context.Context, limit int) ([]models.Order, error) {
	f.limit = limit
	return f.orders, f.err
}

type fakeResyncer struct {
	results map[uuid.UUID]*parcels.SyncResult
	errs    map[uuid.UUID]error
	calls   []uuid.UUID
}

func (f *fakeResyncer) ResyncParcel(ctx context.Context, orderID uuid.UUID) (*parcels.SyncResult, error) {
	f.calls = append(f.calls, orderID)
	if err := f.errs[orderID]; err != nil {
		return nil, err
	}
	if result, ok := f.results[orderID]; ok {
		return result, nil
	}
	return &parcels.SyncResult{Outcome: parcels.OutcomeUpdated}, nil
}

func TestParcelResyncJobRetriesEveryOrder(t *testing.T) {
	ok, failed, broken := uuid.New(), uuid.New(), uuid.New()
	reader := &fakeFailedSyncReader{orders: []models.Order{{ID: ok}, {ID: failed}, {ID: broken}}}
	resyncer := &fakeResyncer{
		results: map[uuid.UUID]*parcels.SyncResult{
			failed: {Outcome: parcels.OutcomeFailed, Err: errors.New("carrier table locked")},
		},
		errs: map[uuid.UUID]error{broken: errors.New("order vanished")},
	}
	job, err := NewParcelResyncJob(ParcelResyncJobParams{Logger: testLogger(), Orders: reader, Resyncer: resyncer})
	require.NoError(t, err)
	assert.Equal(t, "parcel-resync", job.Name())

	err = job.Run(context.Background())
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
	assert.Equal(t, []uuid.UUID{ok, failed, broken}, resyncer.calls)
	assert.Equal(t, defaultParcelResyncBatch, reader.limit)
}

func TestParcelResyncJobNothingToDo(t *testing.T) {
	job, err := NewParcelResyncJob(ParcelResyncJobParams{
		Logger:    testLogger(),
		Orders:    &fakeFailedSyncReader{},
		Resyncer:  &fakeResyncer{},
		BatchSize: 10,
	})
	require.NoError(t, err)
	assert.NoError(t, job.Run(context.Background()))
}

func TestParcelResyncJobListError(t *testing.T) {
	resyncer := &fakeResyncer{}
	job, err := NewParcelResyncJob(ParcelResyncJobParams{
		Logger:   testLogger(),
		Orders:   &fakeFailedSyncReader{err: errors.New("db down")},
		Resyncer: resyncer,
	})
	require.NoError(t, err)
	assert.Error(t, job.Run(context.Background()))
	assert.Empty(t, resyncer.calls)
}
