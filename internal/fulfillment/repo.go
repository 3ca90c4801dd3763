package fulfillment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
)

// Repository holds the order reads and writes the completion pipeline needs.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error)
	ClaimCompletion(ctx context.Context, orderID uuid.UUID, now, until time.Time) (bool, error)
	FinishCompletion(ctx context.Context, orderID uuid.UUID, at time.Time) error
	ReleaseCompletion(ctx context.Context, orderID uuid.UUID) error
	MarkDelivered(ctx context.Context, orderID uuid.UUID, at time.Time) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds the pipeline repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&items).Error
	return items, err
}

// ClaimCompletion leases the order to one caller until the given time. It
// reports false when the order is completed or another unexpired lease holds it.
func (r *repository) ClaimCompletion(ctx context.Context, orderID uuid.UUID, now, until time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND fulfillment_completed_at IS NULL", orderID).
		Where("(fulfillment_claimed_until IS NULL OR fulfillment_claimed_until < ?)", now).
		Update("fulfillment_claimed_until", until)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// FinishCompletion stamps fulfillment_completed_at and drops the lease.
func (r *repository) FinishCompletion(ctx context.Context, orderID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND fulfillment_completed_at IS NULL", orderID).
		Updates(map[string]any{
			"fulfillment_completed_at":  at,
			"fulfillment_claimed_until": nil,
			"updated_at":                at,
		}).Error
}

// ReleaseCompletion drops the lease of an order that is not completed yet.
func (r *repository) ReleaseCompletion(ctx context.Context, orderID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND fulfillment_completed_at IS NULL", orderID).
		Update("fulfillment_claimed_until", nil).Error
}

// MarkDelivered moves a non-terminal order to DELIVERED.
func (r *repository) MarkDelivered(ctx context.Context, orderID uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status NOT IN ?", orderID, []enums.OrderStatus{enums.OrderStatusDelivered, enums.OrderStatusCancelled}).
		Updates(map[string]any{
			"status":       enums.OrderStatusDelivered,
			"delivered_at": at,
			"updated_at":   at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
