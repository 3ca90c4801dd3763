package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
)

// CreateProduct inserts a catalog product.
func CreateProduct(t testing.TB, db *gorm.DB, name string, price string, virtual bool) models.Product {
	t.Helper()
	product := models.Product{
		ID:        uuid.New(),
		Name:      name,
		Price:     decimal.RequireFromString(price),
		IsVirtual: virtual,
	}
	require.NoError(t, db.Create(&product).Error)
	return product
}

// CreateOrder inserts a pending COD order with zeroed money columns; mutate
// adjusts it before insert.
func CreateOrder(t testing.TB, db *gorm.DB, mutate func(*models.Order)) models.Order {
	t.Helper()
	id := uuid.New()
	order := models.Order{
		ID:                id,
		OrderNumber:       "ORD-" + id.String()[:8],
		CustomerFirstName: "Amina",
		CustomerLastName:  "Benali",
		CustomerPhone:     "0550000000",
		ShippingAddress:   "12 rue Didouche",
		Subtotal:          decimal.Zero,
		Shipping:          decimal.Zero,
		Tax:               decimal.Zero,
		Discount:          decimal.Zero,
		Total:             decimal.Zero,
		PaymentMethod:     enums.PaymentMethodCOD,
		Status:            enums.OrderStatusPending,
		ParcelSyncStatus:  enums.ParcelSyncNotApplicable,
	}
	if mutate != nil {
		mutate(&order)
	}
	require.NoError(t, db.Create(&order).Error)
	return order
}

// CreateItem inserts an order item priced from the product unless price is set.
func CreateItem(t testing.TB, db *gorm.DB, orderID uuid.UUID, product models.Product, price string, qty int) models.OrderItem {
	t.Helper()
	unit := product.Price
	if price != "" {
		unit = decimal.RequireFromString(price)
	}
	item := models.OrderItem{
		ID:         uuid.New(),
		OrderID:    orderID,
		ProductID:  product.ID,
		Name:       product.Name,
		SKU:        product.SKU,
		Price:      unit,
		PriceCents: unit.Mul(decimal.NewFromInt(100)).Round(0).IntPart(),
		Quantity:   qty,
		IsVirtual:  product.IsVirtual,
	}
	require.NoError(t, db.Create(&item).Error)
	return item
}
