package orders

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/internal/fulfillment"
	"github.com/angelmondragon/fulfillment-backend/internal/notifications"
	"github.com/angelmondragon/fulfillment-backend/internal/parcels"
	"github.com/angelmondragon/fulfillment-backend/pkg/db"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/dbtest"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox"
)

type stubCompleter struct {
	calls []uuid.UUID
	err   error
}

func (s *stubCompleter) CompleteOrder(ctx context.Context, orderID uuid.UUID, userID *uuid.UUID) (*fulfillment.CompletionReport, error) {
	s.calls = append(s.calls, orderID)
	if s.err != nil {
		return nil, s.err
	}
	return &fulfillment.CompletionReport{OrderID: orderID}, nil
}

type stubDispatcher struct {
	admin []notifications.Event
	err   error
}

func (d *stubDispatcher) NotifyCustomer(ctx context.Context, userID uuid.UUID, event notifications.Event) error {
	return d.err
}

func (d *stubDispatcher) NotifyAdmins(ctx context.Context, event notifications.Event) error {
	d.admin = append(d.admin, event)
	return d.err
}

type serviceFixture struct {
	db        *gorm.DB
	svc       Service
	completer *stubCompleter
	notify    *stubDispatcher
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	conn := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	engine, err := parcels.NewEngine(parcels.NewRepository(conn), logg)
	require.NoError(t, err)

	f := &serviceFixture{db: conn, completer: &stubCompleter{}, notify: &stubDispatcher{}}
	svc, err := NewService(Deps{
		Repo:      NewRepository(conn),
		Tx:        db.Wrap(conn),
		Parcels:   engine,
		Outbox:    outbox.NewService(outbox.NewRepository(conn), logg),
		Notify:    f.notify,
		Completer: f.completer,
		Logger:    logg,
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *serviceFixture) parcelFor(t *testing.T, orderID uuid.UUID) models.Parcel {
	t.Helper()
	var parcel models.Parcel
	require.NoError(t, f.db.Where("order_id = ?", orderID).First(&parcel).Error)
	return parcel
}

func TestUpdateOrderEndToEndScenario(t *testing.T) {
	f := newServiceFixture(t)
	widget := dbtest.CreateProduct(t, f.db, "Widget", "10.00", false)
	strap := dbtest.CreateProduct(t, f.db, "Strap", "5.00", false)
	clip := dbtest.CreateProduct(t, f.db, "Clip", "7.00", false)
	order := dbtest.CreateOrder(t, f.db, func(o *models.Order) {
		o.Subtotal = dec("25")
		o.Shipping = dec("3")
		o.Total = dec("28")
	})
	first := dbtest.CreateItem(t, f.db, order.ID, widget, "", 2)
	dbtest.CreateItem(t, f.db, order.ID, strap, "", 1)

	orderID := order.ID
	require.NoError(t, f.db.Create(&models.Parcel{
		ID:            uuid.New(),
		OrderID:       &orderID,
		Firstname:     "Amina",
		Familyname:    "Benali",
		ContactPhone:  "0550000000",
		Address:       "12 rue Didouche",
		ToWilayaName:  "Alger",
		ToCommuneName: "Alger Centre",
		Price:         28,
		Status:        enums.CODStatusPending,
	}).Error)

	result, err := f.svc.UpdateOrder(context.Background(), UpdateOrderInput{
		OrderID: order.ID,
		ActorID: uuid.NewString(),
		Items: []SubmittedItem{
			submittedFrom(first),
			{ID: "temp-1", ProductID: clip.ID, Name: "Clip", Price: dec("7"), Quantity: 1},
		},
	})
	require.NoError(t, err)

	assert.True(t, result.Totals.Subtotal.Equal(dec("27")))
	assert.True(t, result.Totals.Total.Equal(dec("30")))
	require.Len(t, result.Items, 2)
	assert.Equal(t, parcels.OutcomeUpdated, result.ParcelSync.Outcome)

	var stored models.Order
	require.NoError(t, f.db.First(&stored, "id = ?", order.ID).Error)
	assert.True(t, stored.Subtotal.Equal(dec("27")))
	assert.True(t, stored.Total.Equal(dec("30")))
	assert.Equal(t, int64(3000), stored.TotalCents)
	assert.Equal(t, enums.ParcelSyncSynced, stored.ParcelSyncStatus)

	parcel := f.parcelFor(t, order.ID)
	assert.Equal(t, int64(30), parcel.Price)
	assert.Equal(t, "Widget x2, Clip x1", parcel.ProductList)
	assert.Equal(t, "Alger", parcel.ToWilayaName, "omitted shipping options stay untouched")

	var events int64
	require.NoError(t, f.db.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventOrderUpdated).Count(&events).Error)
	assert.Equal(t, int64(1), events)
	require.Len(t, f.notify.admin, 1)
	assert.Equal(t, enums.NotificationTypeOrderUpdated, f.notify.admin[0].Type)
}

func TestUpdateOrderIgnoresClientTotalsAndAppliesAmounts(t *testing.T) {
	f := newServiceFixture(t)
	widget := dbtest.CreateProduct(t, f.db, "Widget", "10.00", false)
	order := dbtest.CreateOrder(t, f.db, func(o *models.Order) {
		o.PaymentMethod = enums.PaymentMethodCard
		o.Subtotal = dec("999")
		o.Total = dec("999")
	})
	dbtest.CreateItem(t, f.db, order.ID, widget, "", 3)

	shipping, discount := dec("4"), dec("2")
	result, err := f.svc.UpdateOrder(context.Background(), UpdateOrderInput{
		OrderID: order.ID,
		ActorID: "admin-1",
		Amounts: AmountsInput{Shipping: &shipping, Discount: &discount},
	})
	require.NoError(t, err)
	assert.True(t, result.Totals.Subtotal.Equal(dec("30")))
	assert.True(t, result.Totals.Total.Equal(dec("32")))
	assert.Equal(t, parcels.OutcomeSkipped, result.ParcelSync.Outcome)

	var parcelCount int64
	require.NoError(t, f.db.Model(&models.Parcel{}).Count(&parcelCount).Error)
	assert.Zero(t, parcelCount)
}

func TestUpdateOrderPropagatesCustomerInfo(t *testing.T) {
	f := newServiceFixture(t)
	widget := dbtest.CreateProduct(t, f.db, "Widget", "10.00", false)
	order := dbtest.CreateOrder(t, f.db, nil)
	dbtest.CreateItem(t, f.db, order.ID, widget, "", 1)

	phone, address := "0661112233", "3 rue Larbi Ben M'hidi"
	result, err := f.svc.UpdateOrder(context.Background(), UpdateOrderInput{
		OrderID:  order.ID,
		ActorID:  "admin-1",
		Customer: &CustomerInput{Phone: &phone, ShippingAddress: &address},
	})
	require.NoError(t, err)
	assert.Equal(t, parcels.OutcomeCreated, result.ParcelSync.Outcome)
	assert.Equal(t, parcels.OutcomeUpdated, result.CustomerSync.Outcome)

	parcel := f.parcelFor(t, order.ID)
	assert.Equal(t, phone, parcel.ContactPhone)
	assert.Equal(t, address, parcel.Address)
	assert.Equal(t, int64(10), parcel.Price)
}

func TestUpdateOrderRejectsTerminalOrders(t *testing.T) {
	f := newServiceFixture(t)
	cancelled := dbtest.CreateOrder(t, f.db, func(o *models.Order) { o.Status = enums.OrderStatusCancelled })
	failed := enums.CODStatusFailed
	codFailed := dbtest.CreateOrder(t, f.db, func(o *models.Order) { o.CODStatus = &failed })

	for _, id := range []uuid.UUID{cancelled.ID, codFailed.ID} {
		_, err := f.svc.UpdateOrder(context.Background(), UpdateOrderInput{OrderID: id, ActorID: "admin-1", Items: []SubmittedItem{}})
		require.Error(t, err)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	}
	assert.Empty(t, f.notify.admin)
}

func TestUpdateOrderValidationErrorRollsBack(t *testing.T) {
	f := newServiceFixture(t)
	widget := dbtest.CreateProduct(t, f.db, "Widget", "10.00", false)
	order := dbtest.CreateOrder(t, f.db, nil)
	item := dbtest.CreateItem(t, f.db, order.ID, widget, "", 1)
	name := "Karim"

	_, err := f.svc.UpdateOrder(context.Background(), UpdateOrderInput{
		OrderID:  order.ID,
		ActorID:  "admin-1",
		Customer: &CustomerInput{FirstName: &name},
		Items:    []SubmittedItem{{ID: item.ID.String(), Name: "Widget", Price: dec("10"), Quantity: 0}},
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	var stored models.Order
	require.NoError(t, f.db.First(&stored, "id = ?", order.ID).Error)
	assert.Equal(t, "Amina", stored.CustomerFirstName)
}

func TestUpdateOrderNotFound(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.UpdateOrder(context.Background(), UpdateOrderInput{OrderID: uuid.New(), ActorID: "admin-1"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestUpdateOrderSurvivesNotificationFailure(t *testing.T) {
	f := newServiceFixture(t)
	f.notify.err = errors.New("telegram down")
	order := dbtest.CreateOrder(t, f.db, nil)

	_, err := f.svc.UpdateOrder(context.Background(), UpdateOrderInput{OrderID: order.ID, ActorID: "admin-1"})
	require.NoError(t, err)
}

func TestCreateOrderCODCreatesParcel(t *testing.T) {
	f := newServiceFixture(t)
	widget := dbtest.CreateProduct(t, f.db, "Widget", "10.00", false)
	ebook := dbtest.CreateProduct(t, f.db, "Ebook", "5.50", true)

	result, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{
		FirstName:       "Amina",
		LastName:        "Benali",
		Phone:           "0550000000",
		ShippingAddress: "12 rue Didouche",
		PaymentMethod:   enums.PaymentMethodCOD,
		Items: []CreateItemInput{
			{ProductID: widget.ID, Quantity: 2},
			{ProductID: ebook.ID, Quantity: 1},
		},
		Shipping: dec("3"),
	})
	require.NoError(t, err)
	order := result.Order
	assert.True(t, order.Total.Equal(dec("28.50")))
	require.NotNil(t, order.CODStatus)
	assert.Equal(t, enums.CODStatusPending, *order.CODStatus)
	assert.Equal(t, parcels.OutcomeCreated, result.ParcelSync.Outcome)
	assert.Empty(t, f.completer.calls)

	parcel := f.parcelFor(t, order.ID)
	assert.Equal(t, int64(29), parcel.Price)
	assert.Equal(t, parcels.PlaceholderDestination, parcel.ToWilayaName)

	var createdEvents int64
	require.NoError(t, f.db.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventOrderCreated).Count(&createdEvents).Error)
	assert.Equal(t, int64(1), createdEvents)
	require.Len(t, f.notify.admin, 1)
	assert.Equal(t, enums.NotificationTypeNewOrder, f.notify.admin[0].Type)
}

func TestCreateOrderFreeRunsCompletion(t *testing.T) {
	f := newServiceFixture(t)
	ebook := dbtest.CreateProduct(t, f.db, "Ebook", "0", true)
	userID := uuid.New()

	result, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{
		UserID:        &userID,
		FirstName:     "Amina",
		LastName:      "Benali",
		Phone:         "0550000000",
		PaymentMethod: enums.PaymentMethodFree,
		Items:         []CreateItemInput{{ProductID: ebook.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{result.Order.ID}, f.completer.calls)
	require.NotNil(t, result.Completion)
	assert.Equal(t, enums.OrderStatusProcessing, result.Order.Status)
}

func TestCreateOrderFreeMustTotalZero(t *testing.T) {
	f := newServiceFixture(t)
	ebook := dbtest.CreateProduct(t, f.db, "Ebook", "9.00", true)

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{
		FirstName:     "Amina",
		LastName:      "Benali",
		Phone:         "0550000000",
		PaymentMethod: enums.PaymentMethodFree,
		Items:         []CreateItemInput{{ProductID: ebook.ID, Quantity: 1}},
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	var orders int64
	require.NoError(t, f.db.Model(&models.Order{}).Count(&orders).Error)
	assert.Zero(t, orders)
}

func TestConfirmPaymentMarksPaidAndCompletes(t *testing.T) {
	f := newServiceFixture(t)
	order := dbtest.CreateOrder(t, f.db, func(o *models.Order) { o.PaymentMethod = enums.PaymentMethodCard })

	result, err := f.svc.ConfirmPayment(context.Background(), order.ID, "pay_123")
	require.NoError(t, err)
	assert.False(t, result.AlreadyConfirmed)
	assert.Equal(t, enums.OrderStatusProcessing, result.Order.Status)
	assert.Len(t, f.completer.calls, 1)

	again, err := f.svc.ConfirmPayment(context.Background(), order.ID, "pay_123")
	require.NoError(t, err)
	assert.True(t, again.AlreadyConfirmed)

	var stored models.Order
	require.NoError(t, f.db.First(&stored, "id = ?", order.ID).Error)
	require.NotNil(t, stored.PaidAt)
	require.NotNil(t, stored.PaymentRef)
	assert.Equal(t, "pay_123", *stored.PaymentRef)
}

func TestConfirmPaymentCompletionFailureIsNotFatal(t *testing.T) {
	f := newServiceFixture(t)
	f.completer.err = errors.New("pipeline down")
	order := dbtest.CreateOrder(t, f.db, func(o *models.Order) { o.PaymentMethod = enums.PaymentMethodCard })

	result, err := f.svc.ConfirmPayment(context.Background(), order.ID, "pay_1")
	require.NoError(t, err)
	assert.Nil(t, result.Completion)
}

func TestConfirmPaymentRejectsCOD(t *testing.T) {
	f := newServiceFixture(t)
	order := dbtest.CreateOrder(t, f.db, nil)

	_, err := f.svc.ConfirmPayment(context.Background(), order.ID, "pay_1")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Empty(t, f.completer.calls)
}

func TestResyncParcelClearsFailedFlag(t *testing.T) {
	f := newServiceFixture(t)
	widget := dbtest.CreateProduct(t, f.db, "Widget", "12.40", false)
	msg := "connection reset"
	order := dbtest.CreateOrder(t, f.db, func(o *models.Order) {
		o.ParcelSyncStatus = enums.ParcelSyncFailed
		o.ParcelSyncError = &msg
		o.Subtotal = dec("12.40")
		o.Total = dec("12.40")
	})
	dbtest.CreateItem(t, f.db, order.ID, widget, "", 1)

	result, err := f.svc.ResyncParcel(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, parcels.OutcomeCreated, result.Outcome)

	var stored models.Order
	require.NoError(t, f.db.First(&stored, "id = ?", order.ID).Error)
	assert.Equal(t, enums.ParcelSyncSynced, stored.ParcelSyncStatus)
	assert.Nil(t, stored.ParcelSyncError)
	assert.Equal(t, int64(12), f.parcelFor(t, order.ID).Price)
}

func TestResyncParcelReappliesCustomerInfo(t *testing.T) {
	f := newServiceFixture(t)
	widget := dbtest.CreateProduct(t, f.db, "Widget", "10.00", false)
	msg := "customer info sync: connection reset"
	order := dbtest.CreateOrder(t, f.db, func(o *models.Order) {
		o.ParcelSyncStatus = enums.ParcelSyncFailed
		o.ParcelSyncError = &msg
		o.Subtotal = dec("10.00")
		o.Total = dec("10.00")
	})
	dbtest.CreateItem(t, f.db, order.ID, widget, "", 1)
	stale := models.Parcel{
		ID: uuid.New(), OrderID: &order.ID, Firstname: "old", Familyname: "name", ContactPhone: "000",
		Address: "d", ToWilayaName: "e", ToCommuneName: "f", Price: 10, Status: enums.CODStatusPending,
	}
	require.NoError(t, f.db.Create(&stale).Error)

	result, err := f.svc.ResyncParcel(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, parcels.OutcomeUpdated, result.Outcome)

	parcel := f.parcelFor(t, order.ID)
	assert.Equal(t, order.CustomerFirstName, parcel.Firstname)
	assert.Equal(t, order.CustomerLastName, parcel.Familyname)
	assert.Equal(t, order.CustomerPhone, parcel.ContactPhone)
	assert.Equal(t, "d", parcel.Address)

	var stored models.Order
	require.NoError(t, f.db.First(&stored, "id = ?", order.ID).Error)
	assert.Equal(t, enums.ParcelSyncSynced, stored.ParcelSyncStatus)
	assert.Nil(t, stored.ParcelSyncError)
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(Deps{})
	require.Error(t, err)
}
