package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/fulfillment-backend/internal/parcels"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
)

const defaultParcelResyncBatch = 100

type failedSyncReader interface {
	ListParcelSyncFailed(ctx context.Context, limit int) ([]models.Order, error)
}

type parcelResyncer interface {
	ResyncParcel(ctx context.Context, orderID uuid.UUID) (*parcels.SyncResult, error)
}

type ParcelResyncJobParams struct {
	Logger    *logger.Logger
	Orders    failedSyncReader
	Resyncer  parcelResyncer
	BatchSize int
}

// NewParcelResyncJob retries the parcel sync of COD orders left flagged failed.
func NewParcelResyncJob(params ParcelResyncJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders reader required")
	}
	if params.Resyncer == nil {
		return nil, fmt.Errorf("parcel resyncer required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultParcelResyncBatch
	}
	return &parcelResyncJob{
		logg:     params.Logger,
		orders:   params.Orders,
		resyncer: params.Resyncer,
		batch:    batch,
	}, nil
}

type parcelResyncJob struct {
	logg     *logger.Logger
	orders   failedSyncReader
	resyncer parcelResyncer
	batch    int
}

func (j *parcelResyncJob) Name() string { return "parcel-resync" }

func (j *parcelResyncJob) Run(ctx context.Context) error {
	pending, err := j.orders.ListParcelSyncFailed(ctx, j.batch)
	if err != nil {
		return fmt.Errorf("list failed parcel syncs: %w", err)
	}

	var errs []error
	recovered := 0
	for _, order := range pending {
		orderCtx := j.logg.WithOrderID(ctx, order.ID.String())
		result, err := j.resyncer.ResyncParcel(orderCtx, order.ID)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("resync order %s: %w", order.ID, err))
		case result != nil && result.Outcome == parcels.OutcomeFailed:
			errs = append(errs, fmt.Errorf("resync order %s: %w", order.ID, result.Err))
		default:
			recovered++
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": len(pending),
		"recovered":  recovered,
		"failed":     len(errs),
	})
	j.logg.Info(logCtx, "parcel resync loop complete")
	return multierr.Combine(errs...)
}
