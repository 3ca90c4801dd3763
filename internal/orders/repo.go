package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
)

// Repository defines persistence operations for orders and their items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindOrderForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	OrderNumberExists(ctx context.Context, number string) (bool, error)
	CreateOrder(ctx context.Context, order *models.Order) error
	UpdateOrder(ctx context.Context, id uuid.UUID, updates map[string]any) error
	ListItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error)
	CreateItems(ctx context.Context, items []models.OrderItem) error
	UpdateItem(ctx context.Context, item models.OrderItem) error
	DeleteItems(ctx context.Context, orderID uuid.UUID, ids []uuid.UUID) error
	FindProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
	ListParcelSyncFailed(ctx context.Context, limit int) ([]models.Order, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
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

// FindOrderForUpdate row-locks the order on Postgres so concurrent edits serialize.
func (r *repository) FindOrderForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	query := r.db.WithContext(ctx).Where("id = ?", id)
	if r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var order models.Order
	if err := query.First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) OrderNumberExists(ctx context.Context, number string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("order_number = ?", number).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) UpdateOrder(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// ListItems returns items in insertion order.
func (r *repository) ListItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) CreateItems(ctx context.Context, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) UpdateItem(ctx context.Context, item models.OrderItem) error {
	return r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Where("id = ? AND order_id = ?", item.ID, item.OrderID).
		Updates(map[string]any{
			"name":        item.Name,
			"sku":         item.SKU,
			"price":       item.Price,
			"price_cents": item.PriceCents,
			"quantity":    item.Quantity,
			"updated_at":  time.Now().UTC(),
		}).Error
}

func (r *repository) DeleteItems(ctx context.Context, orderID uuid.UUID, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Where("order_id = ? AND id IN ?", orderID, ids).
		Delete(&models.OrderItem{}).Error
}

func (r *repository) FindProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	result := make(map[uuid.UUID]models.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var products []models.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, err
	}
	for _, product := range products {
		result[product.ID] = product
	}
	return result, nil
}

// ListParcelSyncFailed returns non-terminal COD orders whose last parcel sync failed.
func (r *repository) ListParcelSyncFailed(ctx context.Context, limit int) ([]models.Order, error) {
	var orders []models.Order
	query := r.db.WithContext(ctx).
		Where("parcel_sync_status = ?", enums.ParcelSyncFailed).
		Where("status NOT IN ?", []enums.OrderStatus{enums.OrderStatusDelivered, enums.OrderStatusCancelled}).
		Order("updated_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}
