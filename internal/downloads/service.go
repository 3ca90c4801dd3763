package downloads

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/pkg/db"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
)

const tokenBytes = 32

// Service provisions download grants for the virtual items of an order.
type Service struct {
	db    *gorm.DB
	ttl   time.Duration
	now   func() time.Time
	token func() (string, error)
}

// NewService builds a provisioner. A zero ttl issues grants that never expire.
func NewService(conn *gorm.DB, ttl time.Duration) (*Service, error) {
	if conn == nil {
		return nil, fmt.Errorf("database required")
	}
	return &Service{db: conn, ttl: ttl, now: time.Now, token: randomToken}, nil
}

// CreateForOrder issues one grant per virtual item that has none yet and
// returns how many were created.
func (s *Service) CreateForOrder(ctx context.Context, orderID uuid.UUID, userID *uuid.UUID) (int, error) {
	var items []models.OrderItem
	err := s.db.WithContext(ctx).
		Where("order_id = ? AND is_virtual = ?", orderID, true).
		Where("id NOT IN (?)", s.db.Model(&models.DownloadGrant{}).Select("order_item_id").Where("order_id = ?", orderID)).
		Find(&items).Error
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load virtual items")
	}

	created := 0
	for _, item := range items {
		token, err := s.token()
		if err != nil {
			return created, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate download token")
		}
		grant := models.DownloadGrant{
			ID:          uuid.New(),
			OrderID:     orderID,
			OrderItemID: item.ID,
			ProductID:   item.ProductID,
			UserID:      userID,
			Token:       token,
		}
		if s.ttl > 0 {
			expires := s.now().UTC().Add(s.ttl)
			grant.ExpiresAt = &expires
		}
		if err := s.db.WithContext(ctx).Create(&grant).Error; err != nil {
			if db.IsUniqueViolation(err, "download_grants.order_item_id") || db.IsUniqueViolation(err, "ux_download_grants_order_item") {
				continue
			}
			return created, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create download grant")
		}
		created++
	}
	return created, nil
}

// ListForOrder returns the grants issued for an order.
func (s *Service) ListForOrder(ctx context.Context, orderID uuid.UUID) ([]models.DownloadGrant, error) {
	var grants []models.DownloadGrant
	if err := s.db.WithContext(ctx).Where("order_id = ?", orderID).Find(&grants).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list download grants")
	}
	return grants, nil
}

func randomToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
