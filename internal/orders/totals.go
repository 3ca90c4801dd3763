package orders

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
)

var hundred = decimal.NewFromInt(100)

// Totals is the derived money state of an order.
type Totals struct {
	Subtotal      decimal.Decimal
	Shipping      decimal.Decimal
	Tax           decimal.Decimal
	Discount      decimal.Decimal
	Total         decimal.Decimal
	SubtotalCents int64
	TotalCents    int64
}

// ComputeTotals derives subtotal as the sum of price*quantity and
// total = subtotal + shipping + tax - discount.
func ComputeTotals(items []models.OrderItem, shipping, tax, discount decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.LineTotal())
	}
	total := subtotal.Add(shipping).Add(tax).Sub(discount)
	return Totals{
		Subtotal:      subtotal,
		Shipping:      shipping,
		Tax:           tax,
		Discount:      discount,
		Total:         total,
		SubtotalCents: ToCents(subtotal),
		TotalCents:    ToCents(total),
	}
}

// ToCents rounds half away from zero.
func ToCents(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// Apply copies the totals onto order.
func (t Totals) Apply(order *models.Order) {
	order.Subtotal = t.Subtotal
	order.Shipping = t.Shipping
	order.Tax = t.Tax
	order.Discount = t.Discount
	order.Total = t.Total
	order.SubtotalCents = t.SubtotalCents
	order.TotalCents = t.TotalCents
}

func (t Totals) columns() map[string]any {
	return map[string]any{
		"subtotal":       t.Subtotal,
		"shipping":       t.Shipping,
		"tax":            t.Tax,
		"discount":       t.Discount,
		"total":          t.Total,
		"subtotal_cents": t.SubtotalCents,
		"total_cents":    t.TotalCents,
	}
}
