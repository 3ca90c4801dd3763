package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
)

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func TestComputeTotals(t *testing.T) {
	items := []models.OrderItem{
		{Price: dec("10.00"), Quantity: 2},
		{Price: dec("5.00"), Quantity: 1},
	}
	totals := ComputeTotals(items, dec("3"), dec("1.50"), dec("2.25"))

	assert.True(t, totals.Subtotal.Equal(dec("25")))
	assert.True(t, totals.Total.Equal(dec("27.25")))
	assert.Equal(t, int64(2500), totals.SubtotalCents)
	assert.Equal(t, int64(2725), totals.TotalCents)
}

func TestComputeTotalsEmptyItems(t *testing.T) {
	totals := ComputeTotals(nil, dec("3"), decimal.Zero, decimal.Zero)
	assert.True(t, totals.Subtotal.IsZero())
	assert.True(t, totals.Total.Equal(dec("3")))
}

func TestToCentsRoundsHalfAwayFromZero(t *testing.T) {
	assert.Equal(t, int64(1001), ToCents(dec("10.005")))
	assert.Equal(t, int64(-1001), ToCents(dec("-10.005")))
	assert.Equal(t, int64(1000), ToCents(dec("10.004")))
}

func TestTotalsApply(t *testing.T) {
	var order models.Order
	ComputeTotals([]models.OrderItem{{Price: dec("4"), Quantity: 3}}, dec("1"), decimal.Zero, decimal.Zero).Apply(&order)
	assert.True(t, order.Subtotal.Equal(dec("12")))
	assert.True(t, order.Total.Equal(dec("13")))
	assert.Equal(t, int64(1300), order.TotalCents)
}

func TestNumberGeneratorReturnsFirstFreeCandidate(t *testing.T) {
	gen := NewNumberGenerator(3)
	calls := 0
	number, err := gen.Next(context.Background(), func(ctx context.Context, candidate string) (bool, error) {
		calls++
		return calls < 2, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Len(t, number, len(orderNumberPrefix)+8)
	assert.Contains(t, number, orderNumberPrefix)
}

func TestNumberGeneratorFallsBackToTimestamp(t *testing.T) {
	gen := NewNumberGenerator(0)
	gen.now = func() time.Time { return time.UnixMilli(1700000000123) }
	calls := 0
	number, err := gen.Next(context.Background(), func(ctx context.Context, candidate string) (bool, error) {
		calls++
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, defaultOrderNumberRetries, calls)
	assert.Equal(t, "ORD-1700000000123", number)
}

func TestNumberGeneratorPropagatesLookupErrors(t *testing.T) {
	gen := NewNumberGenerator(2)
	_, err := gen.Next(context.Background(), func(ctx context.Context, candidate string) (bool, error) {
		return false, errors.New("db down")
	})
	require.Error(t, err)
}
