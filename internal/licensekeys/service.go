package licensekeys

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
)

const claimAttempts = 3

// ErrPoolExhausted is returned when a product has no unassigned keys left.
var ErrPoolExhausted = errors.New("license key pool exhausted")

// Service assigns pre-loaded keys from the per-product pool.
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

// NewService builds a key assigner over the license_keys table.
func NewService(db *gorm.DB) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("database required")
	}
	return &Service{db: db, now: time.Now}, nil
}

// Assign claims one free key of productID for the order item. Each call claims
// exactly one key. Concurrent claimers on Postgres skip rows locked by others;
// a lost race on the final conditional update is retried.
func (s *Service) Assign(ctx context.Context, productID, orderID, itemID uuid.UUID, userID *uuid.UUID) (*models.LicenseKey, error) {
	for attempt := 0; attempt < claimAttempts; attempt++ {
		key, err := s.claim(ctx, productID, orderID, itemID, userID)
		if err != nil {
			return nil, err
		}
		if key != nil {
			return key, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeConflict, "license key claim contended")
}

func (s *Service) claim(ctx context.Context, productID, orderID, itemID uuid.UUID, userID *uuid.UUID) (*models.LicenseKey, error) {
	var claimed *models.LicenseKey
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Where("product_id = ? AND order_id IS NULL", productID).
			Order("created_at ASC").
			Order("id ASC")
		if tx.Dialector.Name() == "postgres" {
			query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		var candidate models.LicenseKey
		if err := query.First(&candidate).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, ErrPoolExhausted, fmt.Sprintf("no license keys left for product %s", productID))
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "select license key")
		}

		now := s.now().UTC()
		res := tx.Model(&models.LicenseKey{}).
			Where("id = ? AND order_id IS NULL", candidate.ID).
			Updates(map[string]any{
				"order_id":      orderID,
				"order_item_id": itemID,
				"user_id":       userID,
				"assigned_at":   now,
			})
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "assign license key")
		}
		if res.RowsAffected == 0 {
			return nil
		}
		candidate.OrderID = &orderID
		candidate.OrderItemID = &itemID
		candidate.UserID = userID
		candidate.AssignedAt = &now
		claimed = &candidate
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// CountForItem returns how many keys are already assigned to the order item.
func (s *Service) CountForItem(ctx context.Context, itemID uuid.UUID) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.LicenseKey{}).
		Where("order_item_id = ?", itemID).
		Count(&count).Error
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count license keys")
	}
	return int(count), nil
}

// ListForOrder returns the keys assigned to an order.
func (s *Service) ListForOrder(ctx context.Context, orderID uuid.UUID) ([]models.LicenseKey, error) {
	var keys []models.LicenseKey
	err := s.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("assigned_at ASC").
		Find(&keys).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list license keys")
	}
	return keys, nil
}
