package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/fulfillment-backend/pkg/db/dbtest"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/telegram"
)

type fakeChat struct {
	sent    map[int64]string
	failFor int64
}

func (f *fakeChat) SendMessage(_ context.Context, chatID int64, text string, _ *telegram.InlineKeyboard) error {
	if chatID == f.failFor {
		return errors.New("chat unreachable")
	}
	if f.sent == nil {
		f.sent = map[int64]string{}
	}
	f.sent[chatID] = text
	return nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func TestNotifyCustomerPersistsRow(t *testing.T) {
	db := dbtest.Open(t)
	dispatcher, err := NewDispatcher(NewRepository(db), nil, nil, testLogger())
	require.NoError(t, err)

	userID := uuid.New()
	require.NoError(t, dispatcher.NotifyCustomer(context.Background(), userID, Event{
		Type:    enums.NotificationTypeFileStatus,
		Title:   "File ready",
		Message: "stage1.bin is READY",
	}))

	var rows []models.Notification
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].UserID)
	assert.Equal(t, userID, *rows[0].UserID)
	assert.Equal(t, enums.AudienceCustomer, rows[0].Audience)

	err = dispatcher.NotifyCustomer(context.Background(), uuid.Nil, Event{Type: enums.NotificationTypeSystem, Title: "x"})
	assert.Error(t, err)
}

func TestNotifyAdminsContinuesPastFailingChat(t *testing.T) {
	db := dbtest.Open(t)
	chat := &fakeChat{failFor: 2}
	link := "/admin/orders/1"
	dispatcher, err := NewDispatcher(NewRepository(db), chat, []int64{1, 2, 3}, testLogger())
	require.NoError(t, err)

	err = dispatcher.NotifyAdmins(context.Background(), Event{
		Type:    enums.NotificationTypeNewOrder,
		Title:   "New order ORD-ABC",
		Message: "Total 28.00",
		Link:    &link,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat unreachable")

	assert.Equal(t, "New order ORD-ABC\nTotal 28.00\n/admin/orders/1", chat.sent[1])
	assert.Contains(t, chat.sent, int64(3))

	var rows []models.Notification
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].UserID)
	assert.Equal(t, enums.AudienceAdmin, rows[0].Audience)
}

func TestNotifyRejectsInvalidEvent(t *testing.T) {
	dispatcher, err := NewDispatcher(NewRepository(dbtest.Open(t)), nil, nil, testLogger())
	require.NoError(t, err)
	assert.Error(t, dispatcher.NotifyAdmins(context.Background(), Event{Type: "bogus", Title: "x"}))
	assert.Error(t, dispatcher.NotifyAdmins(context.Background(), Event{Type: enums.NotificationTypeSystem}))
}

type fakePublisher struct {
	channel string
	payload any
	err     error
}

func (f *fakePublisher) Publish(_ context.Context, channel string, payload any) (int64, error) {
	f.channel = channel
	f.payload = payload
	return 1, f.err
}

func (f *fakePublisher) RealtimeUserChannel(userID string) string {
	return "fulfillment:realtime:user:" + userID
}

func TestRealtimePushPublishesJSON(t *testing.T) {
	pub := &fakePublisher{}
	push, err := NewRealtimePush(pub)
	require.NoError(t, err)

	userID := uuid.New()
	require.NoError(t, push.SendToUser(context.Background(), userID, map[string]string{"status": "READY"}))
	assert.Equal(t, "fulfillment:realtime:user:"+userID.String(), pub.channel)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(pub.payload.([]byte), &decoded))
	assert.Equal(t, "READY", decoded["status"])

	pub.err = errors.New("redis down")
	assert.Error(t, push.SendToUser(context.Background(), userID, "x"))
	assert.Error(t, push.SendToUser(context.Background(), uuid.Nil, "x"))
}
