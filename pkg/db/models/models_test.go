package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
)

func TestOrderEffectiveStatusPrefersCOD(t *testing.T) {
	order := Order{Status: enums.OrderStatusProcessing}
	assert.Equal(t, "PROCESSING", order.EffectiveStatus())

	cod := enums.CODStatusDispatched
	order.CODStatus = &cod
	assert.Equal(t, "DISPATCHED", order.EffectiveStatus())
}

func TestOrderIsTerminal(t *testing.T) {
	order := Order{Status: enums.OrderStatusPending}
	assert.False(t, order.IsTerminal())

	failed := enums.CODStatusFailed
	order.CODStatus = &failed
	assert.True(t, order.IsTerminal())

	order = Order{Status: enums.OrderStatusCancelled}
	assert.True(t, order.IsTerminal())
}

func TestOrderItemLineTotal(t *testing.T) {
	item := OrderItem{Price: decimal.RequireFromString("10.50"), Quantity: 3}
	assert.True(t, item.LineTotal().Equal(decimal.RequireFromString("31.50")))
}
