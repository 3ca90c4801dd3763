package audit

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	"github.com/angelmondragon/fulfillment-backend/pkg/pagination"
)

// Repository is append-only: rows are created and listed, never changed.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, entry *models.AuditLog) error
	List(ctx context.Context, entityType enums.AuditEntityType, entityID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.AuditLog, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an audit log repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, entry *models.AuditLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) List(ctx context.Context, entityType enums.AuditEntityType, entityID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.AuditLog, error) {
	var rows []models.AuditLog
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Scopes(pagination.Seek(cursor, limit)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
