package orders

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
)

// TempIDPrefix marks submitted items that have not been persisted yet.
const TempIDPrefix = "temp-"

// SubmittedItem is one entry of the desired item list of an order edit.
type SubmittedItem struct {
	ID        string          `json:"id" validate:"required"`
	ProductID uuid.UUID       `json:"product_id"`
	Name      string          `json:"name" validate:"required"`
	SKU       *string         `json:"sku,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity" validate:"min=1"`
}

// IsNew reports whether the item carries the temporary id sentinel.
func (s SubmittedItem) IsNew() bool {
	return strings.HasPrefix(s.ID, TempIDPrefix)
}

// Reconcile makes the persisted items of orderID match submitted, which is the
// full desired list: missing real ids are deleted, temp ids are created and the
// rest are overwritten in place. Everything is validated before the first
// write. repo must be bound to the caller's transaction. The returned slice is
// reloaded from storage.
func Reconcile(ctx context.Context, repo Repository, orderID uuid.UUID, submitted []SubmittedItem) ([]models.OrderItem, error) {
	persisted, err := repo.ListItems(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order items")
	}
	byID := make(map[uuid.UUID]models.OrderItem, len(persisted))
	for _, item := range persisted {
		byID[item.ID] = item
	}

	var (
		creates  []SubmittedItem
		updates  []models.OrderItem
		existing = make(map[uuid.UUID]struct{}, len(submitted))
	)
	for i, item := range submitted {
		if err := validateSubmitted(i, item); err != nil {
			return nil, err
		}
		if item.IsNew() {
			creates = append(creates, item)
			continue
		}
		id, err := uuid.Parse(item.ID)
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("items[%d]: invalid item id", i))
		}
		current, ok := byID[id]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("items[%d]: item does not belong to order", i))
		}
		if _, dup := existing[id]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("items[%d]: duplicate item id", i))
		}
		existing[id] = struct{}{}

		current.Name = strings.TrimSpace(item.Name)
		current.SKU = normalizeSKU(item.SKU)
		current.Price = item.Price
		current.PriceCents = ToCents(item.Price)
		current.Quantity = item.Quantity
		updates = append(updates, current)
	}

	newRows, err := buildNewItems(ctx, repo, orderID, creates)
	if err != nil {
		return nil, err
	}

	var deletes []uuid.UUID
	for _, item := range persisted {
		if _, keep := existing[item.ID]; !keep {
			deletes = append(deletes, item.ID)
		}
	}

	if err := repo.DeleteItems(ctx, orderID, deletes); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete order items")
	}
	for _, item := range updates {
		if err := repo.UpdateItem(ctx, item); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order item")
		}
	}
	if err := repo.CreateItems(ctx, newRows); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order items")
	}

	final, err := repo.ListItems(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order items")
	}
	return final, nil
}

func validateSubmitted(index int, item SubmittedItem) error {
	field := func(msg string) error {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("items[%d]: %s", index, msg))
	}
	switch {
	case strings.TrimSpace(item.ID) == "":
		return field("id is required")
	case strings.TrimSpace(item.Name) == "":
		return field("name is required")
	case item.Quantity < 1:
		return field("quantity must be at least 1")
	case item.Price.IsNegative():
		return field("price must not be negative")
	case item.IsNew() && item.ProductID == uuid.Nil:
		return field("product_id is required for new items")
	}
	return nil
}

// buildNewItems resolves the virtual flag of each new row from the catalog.
func buildNewItems(ctx context.Context, repo Repository, orderID uuid.UUID, creates []SubmittedItem) ([]models.OrderItem, error) {
	if len(creates) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, 0, len(creates))
	for _, item := range creates {
		ids = append(ids, item.ProductID)
	}
	products, err := repo.FindProducts(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}

	rows := make([]models.OrderItem, 0, len(creates))
	for _, item := range creates {
		product, ok := products[item.ProductID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown product %s", item.ProductID))
		}
		rows = append(rows, models.OrderItem{
			ID:         uuid.New(),
			OrderID:    orderID,
			ProductID:  product.ID,
			Name:       strings.TrimSpace(item.Name),
			SKU:        normalizeSKU(item.SKU),
			Price:      item.Price,
			PriceCents: ToCents(item.Price),
			Quantity:   item.Quantity,
			IsVirtual:  product.IsVirtual,
		})
	}
	return rows, nil
}

func normalizeSKU(sku *string) *string {
	if sku == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*sku)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
