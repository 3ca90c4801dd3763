package notifications

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	"github.com/angelmondragon/fulfillment-backend/pkg/pagination"
)

// Repository exposes persistence helpers for notifications.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, notification *models.Notification) error
	List(ctx context.Context, params listNotificationsParams) ([]models.Notification, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID, now time.Time) (notificationMarkResult, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error)
	CountUnread(ctx context.Context, userID *uuid.UUID) (int64, error)
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a notifications repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

// listNotificationsParams selects either a user's inbox or, with a nil UserID,
// the shared admin pool.
type listNotificationsParams struct {
	UserID     *uuid.UUID
	Limit      int
	Cursor     *pagination.Cursor
	UnreadOnly bool
}

type notificationMarkResult struct {
	Updated bool
	Found   bool
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, notification *models.Notification) error {
	if notification.ID == uuid.Nil {
		notification.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(notification).Error
}

// inbox scopes a query to a user's notifications or, with a nil user, to
// the shared admin pool.
func inbox(userID *uuid.UUID, unreadOnly bool) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if userID != nil {
			db = db.Where("user_id = ?", *userID)
		} else {
			db = db.Where("user_id IS NULL AND audience = ?", enums.AudienceAdmin)
		}
		if unreadOnly {
			db = db.Where("read_at IS NULL")
		}
		return db
	}
}

// List returns up to params.Limit rows, newest first.
func (r *repositoryImpl) List(ctx context.Context, params listNotificationsParams) ([]models.Notification, error) {
	var rows []models.Notification
	err := r.db.WithContext(ctx).
		Scopes(inbox(params.UserID, params.UnreadOnly), pagination.Seek(params.Cursor, params.Limit)).
		Find(&rows).Error
	return rows, err
}

// MarkRead stamps read_at on an unread notification owned by userID. Found is
// false when the row does not exist for that user; Updated is false when it
// was already read.
func (r *repositoryImpl) MarkRead(ctx context.Context, userID, notificationID uuid.UUID, now time.Time) (notificationMarkResult, error) {
	var row models.Notification
	err := r.db.WithContext(ctx).
		Select("id", "read_at").
		Where("id = ? AND user_id = ?", notificationID, userID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notificationMarkResult{}, nil
	}
	if err != nil {
		return notificationMarkResult{}, err
	}
	if row.ReadAt != nil {
		return notificationMarkResult{Found: true}, nil
	}

	result := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND read_at IS NULL", notificationID).
		UpdateColumn("read_at", now)
	if result.Error != nil {
		return notificationMarkResult{}, result.Error
	}
	return notificationMarkResult{Found: true, Updated: result.RowsAffected > 0}, nil
}

// MarkAllRead stamps read_at on every unread notification in the user's inbox.
func (r *repositoryImpl) MarkAllRead(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Scopes(inbox(&userID, true)).
		UpdateColumn("read_at", now)
	return result.RowsAffected, result.Error
}

func (r *repositoryImpl) CountUnread(ctx context.Context, userID *uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Scopes(inbox(userID, true)).
		Count(&count).Error
	return count, err
}

// DeleteReadBefore purges notifications read before cutoff.
func (r *repositoryImpl) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("read_at IS NOT NULL AND read_at < ?", cutoff).
		Delete(&models.Notification{})
	return result.RowsAffected, result.Error
}
