package tuningfiles

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
)

// Repository persists tuning file workflow state.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Find(ctx context.Context, id uuid.UUID) (*models.TuningFile, error)
	FindForUpdate(ctx context.Context, id uuid.UUID) (*models.TuningFile, error)
	Create(ctx context.Context, file *models.TuningFile) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.FileStatus) error
	SetEstimate(ctx context.Context, id uuid.UUID, minutes int, at time.Time) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a tuning files repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Find(ctx context.Context, id uuid.UUID) (*models.TuningFile, error) {
	var file models.TuningFile
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&file).Error; err != nil {
		return nil, err
	}
	return &file, nil
}

// FindForUpdate row-locks the file on Postgres so concurrent transitions serialize.
func (r *repository) FindForUpdate(ctx context.Context, id uuid.UUID) (*models.TuningFile, error) {
	var file models.TuningFile
	if err := r.lockedByID(ctx, id).First(&file).Error; err != nil {
		return nil, err
	}
	return &file, nil
}

func (r *repository) lockedByID(ctx context.Context, id uuid.UUID) *gorm.DB {
	query := r.db.WithContext(ctx).Where("id = ?", id)
	if r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return query
}

func (r *repository) Create(ctx context.Context, file *models.TuningFile) error {
	if file.ID == uuid.Nil {
		file.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(file).Error
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.FileStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.TuningFile{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     status,
			"updated_at": time.Now().UTC(),
		}).Error
}

// SetEstimate stores the estimate and forces the file back to PENDING.
func (r *repository) SetEstimate(ctx context.Context, id uuid.UUID, minutes int, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.TuningFile{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":                    enums.FileStatusPending,
			"estimated_processing_time": minutes,
			"estimate_set_at":           at,
			"updated_at":                at,
		}).Error
}
