package parcels

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/pkg/db/dbtest"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
)

func newTestEngine(t *testing.T, repo Repository, opts ...Option) *Engine {
	t.Helper()
	engine, err := NewEngine(repo, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}), opts...)
	require.NoError(t, err)
	return engine
}

func strPtr(v string) *string { return &v }

func seedCODOrder(t *testing.T, db *gorm.DB, total string) models.Order {
	t.Helper()
	return dbtest.CreateOrder(t, db, func(o *models.Order) {
		o.Total = decimal.RequireFromString(total)
		o.Subtotal = o.Total
	})
}

func loadParcelForOrder(t *testing.T, db *gorm.DB, orderID uuid.UUID) models.Parcel {
	t.Helper()
	var parcel models.Parcel
	require.NoError(t, db.Where("order_id = ?", orderID).First(&parcel).Error)
	return parcel
}

func TestSyncParcelCreatesPlaceholderParcel(t *testing.T) {
	db := dbtest.Open(t)
	engine := newTestEngine(t, NewRepository(db))
	order := seedCODOrder(t, db, "27.60")
	items := []models.OrderItem{{Name: "Stage 1 map", SKU: strPtr("S1"), Quantity: 2}}

	var result *SyncResult
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = engine.SyncParcel(context.Background(), tx, &order, items, nil)
		return err
	}))

	assert.Equal(t, OutcomeCreated, result.Outcome)
	parcel := loadParcelForOrder(t, db, order.ID)
	assert.Equal(t, int64(28), parcel.Price)
	assert.Equal(t, "Stage 1 map (S1) x2", parcel.ProductList)
	assert.Equal(t, PlaceholderDestination, parcel.ToWilayaName)
	assert.Equal(t, PlaceholderDestination, parcel.ToCommuneName)
	assert.Equal(t, order.ShippingAddress, parcel.Address)
	assert.Equal(t, enums.CODStatusPending, parcel.Status)

	var stored models.Order
	require.NoError(t, db.First(&stored, "id = ?", order.ID).Error)
	assert.Equal(t, enums.ParcelSyncSynced, stored.ParcelSyncStatus)
}

func TestSyncParcelAppliesOnlyProvidedOptions(t *testing.T) {
	db := dbtest.Open(t)
	engine := newTestEngine(t, NewRepository(db))
	order := seedCODOrder(t, db, "30")
	stopdesk := int64(16)
	existing := models.Parcel{
		ID:            uuid.New(),
		OrderID:       &order.ID,
		Firstname:     "Amina",
		Familyname:    "Benali",
		ContactPhone:  "0550000000",
		Address:       "old address",
		ToWilayaName:  "Alger",
		ToCommuneName: "Bab Ezzouar",
		IsStopdesk:    true,
		StopdeskID:    &stopdesk,
		Freeshipping:  true,
		Price:         10,
		Status:        enums.CODStatusSubmitted,
	}
	require.NoError(t, db.Create(&existing).Error)

	home := enums.DeliveryTypeHome
	opts := &ShippingOptions{DeliveryType: &home, ToCommuneName: strPtr("Hydra")}
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		result, err := engine.SyncParcel(context.Background(), tx, &order, nil, opts)
		if err == nil {
			assert.Equal(t, OutcomeUpdated, result.Outcome)
			assert.Equal(t, "order_id", result.Strategy)
		}
		return err
	}))

	parcel := loadParcelForOrder(t, db, order.ID)
	assert.Equal(t, int64(30), parcel.Price)
	assert.False(t, parcel.IsStopdesk)
	assert.Equal(t, "Hydra", parcel.ToCommuneName)
	assert.Equal(t, "Alger", parcel.ToWilayaName)
	assert.Equal(t, "old address", parcel.Address)
	assert.True(t, parcel.Freeshipping)
	require.NotNil(t, parcel.StopdeskID)
	assert.Equal(t, int64(16), *parcel.StopdeskID)
	assert.Equal(t, enums.CODStatusSubmitted, parcel.Status)
}

func TestSyncParcelSkipsNonCODOrders(t *testing.T) {
	db := dbtest.Open(t)
	engine := newTestEngine(t, NewRepository(db))
	order := dbtest.CreateOrder(t, db, func(o *models.Order) {
		o.PaymentMethod = enums.PaymentMethodCard
	})

	result, err := engine.SyncParcel(context.Background(), db, &order, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, result.Outcome)

	var count int64
	require.NoError(t, db.Model(&models.Parcel{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestSyncParcelAdoptsLegacyParcel(t *testing.T) {
	db := dbtest.Open(t)
	engine := newTestEngine(t, NewRepository(db))
	order := seedCODOrder(t, db, "12.40")
	legacy := models.Parcel{
		ID:            uuid.New(),
		LegacyOrderID: strPtr(order.OrderNumber),
		Firstname:     "someone",
		Familyname:    "else",
		ContactPhone:  "0",
		Address:       "a",
		ToWilayaName:  "Oran",
		ToCommuneName: "Bir El Djir",
		Status:        enums.CODStatusPending,
	}
	require.NoError(t, db.Create(&legacy).Error)

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		result, err := engine.SyncParcel(context.Background(), tx, &order, nil, nil)
		if err == nil {
			assert.Equal(t, "legacy_order_id", result.Strategy)
			assert.Equal(t, legacy.ID, result.ParcelID)
		}
		return err
	}))

	parcel := loadParcelForOrder(t, db, order.ID)
	assert.Equal(t, legacy.ID, parcel.ID)
	assert.Equal(t, int64(12), parcel.Price)
	assert.Equal(t, "Oran", parcel.ToWilayaName)
}

func TestByCustomerInfoIgnoresLinkedAndIncomplete(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	order := seedCODOrder(t, db, "5")
	other := seedCODOrder(t, db, "5")

	linked := models.Parcel{
		ID: uuid.New(), OrderID: &other.ID,
		Firstname: order.CustomerFirstName, Familyname: order.CustomerLastName, ContactPhone: order.CustomerPhone,
		Address: "x", ToWilayaName: "x", ToCommuneName: "x", Status: enums.CODStatusPending,
	}
	require.NoError(t, db.Create(&linked).Error)

	_, ok, err := ByCustomerInfo{}.Find(context.Background(), repo, &order)
	require.NoError(t, err)
	assert.False(t, ok)

	orphan := linked
	orphan.ID = uuid.New()
	orphan.OrderID = nil
	require.NoError(t, db.Create(&orphan).Error)

	parcel, ok, err := ByCustomerInfo{}.Find(context.Background(), repo, &order)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, orphan.ID, parcel.ID)

	incomplete := order
	incomplete.CustomerPhone = " "
	_, ok, err = ByCustomerInfo{}.Find(context.Background(), repo, &incomplete)
	require.NoError(t, err)
	assert.False(t, ok)
}

type failingSaveRepo struct {
	Repository
}

func (f failingSaveRepo) WithTx(tx *gorm.DB) Repository {
	return failingSaveRepo{Repository: f.Repository.WithTx(tx)}
}

func (failingSaveRepo) Save(context.Context, *models.Parcel) error {
	return errors.New("carrier mirror unavailable")
}

func TestSyncParcelFailureMarksOrderAndKeepsTransaction(t *testing.T) {
	db := dbtest.Open(t)
	engine := newTestEngine(t, failingSaveRepo{Repository: NewRepository(db)})
	order := seedCODOrder(t, db, "30")
	existing := models.Parcel{
		ID: uuid.New(), OrderID: &order.ID, Firstname: "a", Familyname: "b", ContactPhone: "c",
		Address: "d", ToWilayaName: "e", ToCommuneName: "f", Price: 10, Status: enums.CODStatusPending,
	}
	require.NoError(t, db.Create(&existing).Error)

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).Update("customer_phone", "0661").Error; err != nil {
			return err
		}
		result, err := engine.SyncParcel(context.Background(), tx, &order, nil, nil)
		if err != nil {
			return err
		}
		assert.Equal(t, OutcomeFailed, result.Outcome)
		assert.Error(t, result.Err)
		return nil
	}))

	var stored models.Order
	require.NoError(t, db.First(&stored, "id = ?", order.ID).Error)
	assert.Equal(t, "0661", stored.CustomerPhone)
	assert.Equal(t, enums.ParcelSyncFailed, stored.ParcelSyncStatus)
	require.NotNil(t, stored.ParcelSyncError)
	assert.Contains(t, *stored.ParcelSyncError, "carrier mirror unavailable")

	parcel := loadParcelForOrder(t, db, order.ID)
	assert.Equal(t, int64(10), parcel.Price)
}

func TestSyncParcelLosingCreateRaceUpdatesWinner(t *testing.T) {
	db := dbtest.Open(t)
	// No lookup strategies: every sync attempts a create, like a concurrent
	// writer that looked before the winner committed.
	engine := newTestEngine(t, NewRepository(db), WithStrategies())
	order := seedCODOrder(t, db, "44")
	winner := models.Parcel{
		ID: uuid.New(), OrderID: &order.ID, Firstname: "a", Familyname: "b", ContactPhone: "c",
		Address: "d", ToWilayaName: "Blida", ToCommuneName: "f", Price: 1, Status: enums.CODStatusPending,
	}
	require.NoError(t, db.Create(&winner).Error)

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		result, err := engine.SyncParcel(context.Background(), tx, &order, nil, nil)
		if err == nil {
			assert.Equal(t, OutcomeUpdated, result.Outcome)
			assert.Equal(t, winner.ID, result.ParcelID)
		}
		return err
	}))

	var count int64
	require.NoError(t, db.Model(&models.Parcel{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	parcel := loadParcelForOrder(t, db, order.ID)
	assert.Equal(t, int64(44), parcel.Price)
	assert.Equal(t, "Blida", parcel.ToWilayaName)
}

func TestSyncCustomerInfo(t *testing.T) {
	t.Run("creates parcel priced without shipping", func(t *testing.T) {
		db := dbtest.Open(t)
		engine := newTestEngine(t, NewRepository(db))
		order := dbtest.CreateOrder(t, db, func(o *models.Order) {
			o.Total = decimal.RequireFromString("28")
			o.Shipping = decimal.RequireFromString("3")
		})

		require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
			result, err := engine.SyncCustomerInfo(context.Background(), tx, &order, CustomerInfo{
				FirstName: "Yacine", LastName: "Haddad", Phone: "0770",
			})
			if err == nil {
				assert.Equal(t, OutcomeCreated, result.Outcome)
			}
			return err
		}))

		parcel := loadParcelForOrder(t, db, order.ID)
		assert.Equal(t, int64(25), parcel.Price)
		assert.Equal(t, "Yacine", parcel.Firstname)
		assert.Equal(t, PlaceholderDestination, parcel.Address)
	})

	t.Run("updates existing parcel", func(t *testing.T) {
		db := dbtest.Open(t)
		engine := newTestEngine(t, NewRepository(db))
		order := seedCODOrder(t, db, "10")
		existing := models.Parcel{
			ID: uuid.New(), OrderID: &order.ID, Firstname: "a", Familyname: "b", ContactPhone: "c",
			Address: "d", ToWilayaName: "e", ToCommuneName: "f", Price: 10, Status: enums.CODStatusPending,
		}
		require.NoError(t, db.Create(&existing).Error)

		require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
			_, err := engine.SyncCustomerInfo(context.Background(), tx, &order, CustomerInfo{
				FirstName: "Nadia", LastName: "Kaci", Phone: "0555", Address: strPtr("5 bd Zighoud"),
			})
			return err
		}))

		parcel := loadParcelForOrder(t, db, order.ID)
		assert.Equal(t, "Nadia", parcel.Firstname)
		assert.Equal(t, "Kaci", parcel.Familyname)
		assert.Equal(t, "0555", parcel.ContactPhone)
		assert.Equal(t, "5 bd Zighoud", parcel.Address)
		assert.Equal(t, int64(10), parcel.Price)
	})

	t.Run("skips incomplete info", func(t *testing.T) {
		db := dbtest.Open(t)
		engine := newTestEngine(t, NewRepository(db))
		order := dbtest.CreateOrder(t, db, func(o *models.Order) {
			o.CustomerPhone = ""
		})

		var result *SyncResult
		require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
			var err error
			result, err = engine.SyncCustomerInfo(context.Background(), tx, &order, CustomerInfo{FirstName: "A", LastName: "B"})
			return err
		}))
		assert.Equal(t, OutcomeSkipped, result.Outcome)

		var count int64
		require.NoError(t, db.Model(&models.Parcel{}).Count(&count).Error)
		assert.Zero(t, count)
	})
}

func TestSummarize(t *testing.T) {
	items := []models.OrderItem{
		{Name: "ECU map", SKU: strPtr("ECU-1"), Quantity: 1},
		{Name: "Cable", Quantity: 3},
	}
	assert.Equal(t, "ECU map (ECU-1) x1, Cable x3", Summarize(items))
	assert.Equal(t, "", Summarize(nil))

	long := make([]models.OrderItem, 0, 40)
	for i := 0; i < 40; i++ {
		long = append(long, models.OrderItem{Name: "Performance tuning file", SKU: strPtr("PTF"), Quantity: 2})
	}
	summary := Summarize(long)
	assert.Len(t, []rune(summary), MaxProductListLength)
	assert.True(t, strings.HasSuffix(summary, "..."))

	accented := []models.OrderItem{{Name: strings.Repeat("é", 300), Quantity: 1}}
	assert.LessOrEqual(t, len([]rune(Summarize(accented))), MaxProductListLength)
}
