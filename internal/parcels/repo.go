package parcels

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
)

// Repository defines persistence operations for the parcels mirror table.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Parcel, error)
	FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Parcel, error)
	FindByLegacyOrderID(ctx context.Context, keys ...string) (*models.Parcel, error)
	FindByCustomerInfo(ctx context.Context, firstname, familyname, phone string) (*models.Parcel, error)
	FindByTracking(ctx context.Context, tracking string) (*models.Parcel, error)
	Create(ctx context.Context, parcel *models.Parcel) error
	Save(ctx context.Context, parcel *models.Parcel) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.CODStatus) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a parcels repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Parcel, error) {
	var parcel models.Parcel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&parcel).Error; err != nil {
		return nil, err
	}
	return &parcel, nil
}

func (r *repository) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Parcel, error) {
	var parcel models.Parcel
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&parcel).Error; err != nil {
		return nil, err
	}
	return &parcel, nil
}

// FindByLegacyOrderID matches records created out-of-band, which carried the
// order reference in the free-form legacy column.
func (r *repository) FindByLegacyOrderID(ctx context.Context, keys ...string) (*models.Parcel, error) {
	var parcel models.Parcel
	err := r.db.WithContext(ctx).
		Where("legacy_order_id IN ?", keys).
		Order("created_at ASC").
		First(&parcel).Error
	if err != nil {
		return nil, err
	}
	return &parcel, nil
}

// FindByCustomerInfo only considers parcels not yet linked to an order.
func (r *repository) FindByCustomerInfo(ctx context.Context, firstname, familyname, phone string) (*models.Parcel, error) {
	var parcel models.Parcel
	err := r.db.WithContext(ctx).
		Where("order_id IS NULL").
		Where("firstname = ? AND familyname = ? AND contact_phone = ?", firstname, familyname, phone).
		Order("created_at DESC").
		First(&parcel).Error
	if err != nil {
		return nil, err
	}
	return &parcel, nil
}

func (r *repository) FindByTracking(ctx context.Context, tracking string) (*models.Parcel, error) {
	var parcel models.Parcel
	if err := r.db.WithContext(ctx).Where("tracking = ?", tracking).First(&parcel).Error; err != nil {
		return nil, err
	}
	return &parcel, nil
}

func (r *repository) Create(ctx context.Context, parcel *models.Parcel) error {
	if parcel.ID == uuid.Nil {
		parcel.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(parcel).Error
}

// Save writes every carrier-facing column, zero values included.
func (r *repository) Save(ctx context.Context, parcel *models.Parcel) error {
	parcel.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&models.Parcel{}).
		Where("id = ?", parcel.ID).
		Updates(map[string]any{
			"order_id":        parcel.OrderID,
			"firstname":       parcel.Firstname,
			"familyname":      parcel.Familyname,
			"contact_phone":   parcel.ContactPhone,
			"address":         parcel.Address,
			"to_wilaya_name":  parcel.ToWilayaName,
			"to_commune_name": parcel.ToCommuneName,
			"is_stopdesk":     parcel.IsStopdesk,
			"stopdesk_id":     parcel.StopdeskID,
			"freeshipping":    parcel.Freeshipping,
			"price":           parcel.Price,
			"product_list":    parcel.ProductList,
			"status":          parcel.Status,
			"updated_at":      parcel.UpdatedAt,
		}).Error
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.CODStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Parcel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     status,
			"updated_at": time.Now().UTC(),
		}).Error
}
