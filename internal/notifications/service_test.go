package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/pkg/db/dbtest"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
)

func seedNotification(t *testing.T, db *gorm.DB, userID *uuid.UUID, createdAt time.Time) models.Notification {
	t.Helper()
	audience := enums.AudienceCustomer
	if userID == nil {
		audience = enums.AudienceAdmin
	}
	row := models.Notification{
		ID:        uuid.New(),
		UserID:    userID,
		Audience:  audience,
		Type:      enums.NotificationTypeOrderStatus,
		Title:     "Order shipped",
		Message:   "on its way",
		CreatedAt: createdAt,
	}
	require.NoError(t, db.Create(&row).Error)
	return row
}

func TestServiceListScopesToUserAndPaginates(t *testing.T) {
	db := dbtest.Open(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	userID := uuid.New()
	base := time.Now().UTC().Add(-time.Hour)
	oldest := seedNotification(t, db, &userID, base)
	seedNotification(t, db, &userID, base.Add(time.Minute))
	newest := seedNotification(t, db, &userID, base.Add(2*time.Minute))
	other := uuid.New()
	seedNotification(t, db, &other, base)
	seedNotification(t, db, nil, base)

	page, err := svc.List(context.Background(), ListParams{UserID: userID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, newest.ID, page.Items[0].ID)
	require.NotEmpty(t, page.NextCursor)

	rest, err := svc.List(context.Background(), ListParams{UserID: userID, Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, rest.Items, 1)
	assert.Equal(t, oldest.ID, rest.Items[0].ID)
	assert.Empty(t, rest.NextCursor)

	_, err = svc.List(context.Background(), ListParams{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestServiceMarkRead(t *testing.T) {
	db := dbtest.Open(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	userID := uuid.New()
	row := seedNotification(t, db, &userID, time.Now().UTC())

	require.NoError(t, svc.MarkRead(context.Background(), userID, row.ID))
	require.NoError(t, svc.MarkRead(context.Background(), userID, row.ID))

	var stored models.Notification
	require.NoError(t, db.First(&stored, "id = ?", row.ID).Error)
	assert.NotNil(t, stored.ReadAt)

	err = svc.MarkRead(context.Background(), uuid.New(), row.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestRepositoryDeleteReadBefore(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	userID := uuid.New()
	now := time.Now().UTC()

	old := seedNotification(t, db, &userID, now.Add(-72*time.Hour))
	unread := seedNotification(t, db, &userID, now.Add(-72*time.Hour))
	recent := seedNotification(t, db, &userID, now)
	require.NoError(t, db.Model(&models.Notification{}).Where("id = ?", old.ID).Update("read_at", now.Add(-48*time.Hour)).Error)
	require.NoError(t, db.Model(&models.Notification{}).Where("id = ?", recent.ID).Update("read_at", now).Error)

	deleted, err := repo.DeleteReadBefore(context.Background(), now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var ids []uuid.UUID
	require.NoError(t, db.Model(&models.Notification{}).Order("created_at ASC").Pluck("id", &ids).Error)
	assert.ElementsMatch(t, []uuid.UUID{unread.ID, recent.ID}, ids)
}

func TestServiceListReportsUnreadCount(t *testing.T) {
	db := dbtest.Open(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	userID := uuid.New()
	now := time.Now().UTC()
	read := seedNotification(t, db, &userID, now.Add(-time.Minute))
	seedNotification(t, db, &userID, now)
	require.NoError(t, svc.MarkRead(context.Background(), userID, read.ID))

	page, err := svc.List(context.Background(), ListParams{UserID: userID, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, int64(1), page.UnreadCount)

	unread, err := svc.List(context.Background(), ListParams{UserID: userID, Limit: 10, UnreadOnly: true})
	require.NoError(t, err)
	assert.Len(t, unread.Items, 1)

	_, err = svc.List(context.Background(), ListParams{UserID: userID, Cursor: "%%%"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestServiceMarkAllReadLeavesOtherInboxes(t *testing.T) {
	db := dbtest.Open(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	userID := uuid.New()
	other := uuid.New()
	now := time.Now().UTC()
	seedNotification(t, db, &userID, now)
	seedNotification(t, db, &userID, now.Add(time.Second))
	seedNotification(t, db, &other, now)
	seedNotification(t, db, nil, now)

	updated, err := svc.MarkAllRead(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)

	again, err := svc.MarkAllRead(context.Background(), userID)
	require.NoError(t, err)
	assert.Zero(t, again)

	var unread int64
	require.NoError(t, db.Model(&models.Notification{}).Where("read_at IS NULL").Count(&unread).Error)
	assert.Equal(t, int64(2), unread)

	_, err = svc.MarkAllRead(context.Background(), uuid.Nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}
