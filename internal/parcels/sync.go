package parcels

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/pkg/db"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/metrics"
)

// PlaceholderDestination fills carrier fields that are unknown when a parcel is
// created on the fly.
const PlaceholderDestination = "to be updated"

const orderIDConstraint = "ux_parcels_order_id"

// ShippingOptions carries explicit overrides. Nil fields leave the parcel untouched.
type ShippingOptions struct {
	DeliveryType  *enums.DeliveryType
	ToWilayaName  *string
	ToCommuneName *string
	Address       *string
	Freeshipping  *bool
	StopdeskID    *int64
}

func (o *ShippingOptions) apply(parcel *models.Parcel) {
	if o == nil {
		return
	}
	if o.DeliveryType != nil {
		parcel.IsStopdesk = *o.DeliveryType == enums.DeliveryTypeStopdesk
	}
	if o.ToWilayaName != nil {
		parcel.ToWilayaName = *o.ToWilayaName
	}
	if o.ToCommuneName != nil {
		parcel.ToCommuneName = *o.ToCommuneName
	}
	if o.Address != nil {
		parcel.Address = *o.Address
	}
	if o.Freeshipping != nil {
		parcel.Freeshipping = *o.Freeshipping
	}
	if o.StopdeskID != nil {
		id := *o.StopdeskID
		parcel.StopdeskID = &id
	}
}

// Outcome labels the result of a sync attempt.
type Outcome string

const (
	OutcomeSkipped Outcome = "skipped"
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
	OutcomeFailed  Outcome = "failed"
)

// SyncResult describes what a sync did to the parcel mirror.
type SyncResult struct {
	Outcome  Outcome
	ParcelID uuid.UUID
	Strategy string
	Price    int64
	Err      error
}

// Engine keeps carrier parcels consistent with their orders.
type Engine struct {
	repo       Repository
	strategies []LookupStrategy
	logg       *logger.Logger
	metrics    *metrics.ParcelSyncMetrics
}

// Option customizes an Engine.
type Option func(*Engine)

// WithStrategies replaces the default lookup order.
func WithStrategies(strategies ...LookupStrategy) Option {
	return func(e *Engine) {
		e.strategies = strategies
	}
}

// WithMetrics records each sync outcome.
func WithMetrics(m *metrics.ParcelSyncMetrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine builds a parcel sync engine.
func NewEngine(repo Repository, logg *logger.Logger, opts ...Option) (*Engine, error) {
	if repo == nil {
		return nil, fmt.Errorf("parcels repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	e := &Engine{repo: repo, strategies: DefaultStrategies(), logg: logg}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// RoundPrice converts an order amount to whole carrier currency units.
func RoundPrice(amount decimal.Decimal) int64 {
	return amount.Round(0).IntPart()
}

// SyncParcel pushes the order's total, item summary and shipping overrides into
// its parcel, creating one when no lookup strategy matches. The parcel write runs
// in a savepoint: a failure there is logged, recorded on the order as
// parcel_sync_status=failed and reported through the result, while the caller's
// transaction stays usable. Only a failure to record that status is returned.
func (e *Engine) SyncParcel(ctx context.Context, tx *gorm.DB, order *models.Order, items []models.OrderItem, opts *ShippingOptions) (*SyncResult, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	if !order.IsCOD() {
		e.metrics.Inc(string(OutcomeSkipped))
		return &SyncResult{Outcome: OutcomeSkipped}, nil
	}
	ctx = e.logg.WithOrderID(ctx, order.ID.String())

	price := RoundPrice(order.Total)
	summary := Summarize(items)
	mutate := func(parcel *models.Parcel) {
		if parcel.OrderID == nil {
			id := order.ID
			parcel.OrderID = &id
		}
		parcel.Price = price
		parcel.ProductList = summary
		opts.apply(parcel)
	}

	result := &SyncResult{Price: price}
	err := tx.Transaction(func(sp *gorm.DB) error {
		repo := e.repo.WithTx(sp)
		parcel, strategy, err := Locate(ctx, repo, order, e.strategies)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "locate parcel")
		}
		if parcel != nil {
			mutate(parcel)
			if err := repo.Save(ctx, parcel); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update parcel")
			}
			result.Outcome, result.ParcelID, result.Strategy = OutcomeUpdated, parcel.ID, strategy
			return nil
		}

		parcel = placeholderParcel(order)
		mutate(parcel)
		outcome, err := e.createOrAdopt(ctx, sp, parcel, mutate)
		if err != nil {
			return err
		}
		result.Outcome, result.ParcelID = outcome, parcel.ID
		return nil
	})
	if err != nil {
		return e.recordFailure(ctx, tx, order, result, "parcel_sync", err)
	}
	if err := markSyncStatus(ctx, tx, order, enums.ParcelSyncSynced, nil); err != nil {
		return nil, err
	}
	e.metrics.Inc(string(result.Outcome))
	return result, nil
}

// createOrAdopt inserts parcel in its own savepoint. Losing the order_id
// uniqueness race re-reads the winning row and applies the update to it.
func (e *Engine) createOrAdopt(ctx context.Context, tx *gorm.DB, parcel *models.Parcel, mutate func(*models.Parcel)) (Outcome, error) {
	createErr := tx.Transaction(func(inner *gorm.DB) error {
		return e.repo.WithTx(inner).Create(ctx, parcel)
	})
	if createErr == nil {
		return OutcomeCreated, nil
	}
	if !isOrderIDConflict(createErr) || parcel.OrderID == nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, createErr, "create parcel")
	}

	repo := e.repo.WithTx(tx)
	winner, err := repo.FindByOrderID(ctx, *parcel.OrderID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload concurrent parcel")
	}
	mutate(winner)
	if err := repo.Save(ctx, winner); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update concurrent parcel")
	}
	e.logg.Info(e.logg.WithField(ctx, "parcel_id", winner.ID.String()), "parcel created concurrently, updated existing row")
	*parcel = *winner
	return OutcomeUpdated, nil
}

func (e *Engine) recordFailure(ctx context.Context, tx *gorm.DB, order *models.Order, result *SyncResult, step string, cause error) (*SyncResult, error) {
	e.metrics.Inc(string(OutcomeFailed))
	e.logg.WarnErr(e.logg.WithStep(ctx, step), "parcel sync failed", errorWithCause(cause))

	msg := errorWithCause(cause).Error()
	if err := markSyncStatus(ctx, tx, order, enums.ParcelSyncFailed, &msg); err != nil {
		return nil, err
	}
	result.Outcome = OutcomeFailed
	result.Err = cause
	return result, nil
}

func placeholderParcel(order *models.Order) *models.Parcel {
	address := order.ShippingAddress
	if address == "" {
		address = PlaceholderDestination
	}
	status := enums.CODStatusPending
	if order.CODStatus != nil {
		status = *order.CODStatus
	}
	return &models.Parcel{
		ID:            uuid.New(),
		Firstname:     order.CustomerFirstName,
		Familyname:    order.CustomerLastName,
		ContactPhone:  order.CustomerPhone,
		Address:       address,
		ToWilayaName:  PlaceholderDestination,
		ToCommuneName: PlaceholderDestination,
		Status:        status,
	}
}

func markSyncStatus(ctx context.Context, tx *gorm.DB, order *models.Order, status enums.ParcelSyncStatus, syncErr *string) error {
	err := tx.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", order.ID).
		Updates(map[string]any{
			"parcel_sync_status": status,
			"parcel_sync_error":  syncErr,
		}).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record parcel sync status")
	}
	order.ParcelSyncStatus = status
	order.ParcelSyncError = syncErr
	return nil
}

func isOrderIDConflict(err error) bool {
	return db.IsUniqueViolation(err, orderIDConstraint) || db.IsUniqueViolation(err, "parcels.order_id")
}

// errorWithCause keeps the underlying driver message, which the typed error
// string leaves out.
func errorWithCause(err error) error {
	typed := pkgerrors.As(err)
	if typed == nil {
		return err
	}
	if cause := errors.Unwrap(typed); cause != nil {
		return fmt.Errorf("%s: %w", typed.Message(), cause)
	}
	return err
}
