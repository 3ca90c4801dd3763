package parcels

import (
	"fmt"
	"strings"

	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
)

// MaxProductListLength is the carrier limit for product_list, in characters.
const MaxProductListLength = 240

const ellipsis = "..."

// Summarize renders items as "name (sku) xqty" entries joined by ", ",
// truncated to MaxProductListLength with a trailing ellipsis.
func Summarize(items []models.OrderItem) string {
	entries := make([]string, 0, len(items))
	for _, item := range items {
		name := strings.TrimSpace(item.Name)
		if item.SKU != nil && strings.TrimSpace(*item.SKU) != "" {
			entries = append(entries, fmt.Sprintf("%s (%s) x%d", name, strings.TrimSpace(*item.SKU), item.Quantity))
			continue
		}
		entries = append(entries, fmt.Sprintf("%s x%d", name, item.Quantity))
	}
	return truncate(strings.Join(entries, ", "), MaxProductListLength)
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-len(ellipsis)]) + ellipsis
}
