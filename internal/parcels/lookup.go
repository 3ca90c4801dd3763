package parcels

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
)

// LookupStrategy is one way of finding the parcel that mirrors an order.
type LookupStrategy interface {
	Name() string
	Find(ctx context.Context, repo Repository, order *models.Order) (*models.Parcel, bool, error)
}

// DefaultStrategies is the lookup order used when no override is configured.
func DefaultStrategies() []LookupStrategy {
	return []LookupStrategy{ByOrderID{}, ByLegacyOrderID{}, ByCustomerInfo{}}
}

// ByOrderID matches the parcel linked through the unique order_id column.
type ByOrderID struct{}

func (ByOrderID) Name() string { return "order_id" }

func (ByOrderID) Find(ctx context.Context, repo Repository, order *models.Order) (*models.Parcel, bool, error) {
	return found(repo.FindByOrderID(ctx, order.ID))
}

// ByLegacyOrderID matches historical records keyed by order id or order number.
type ByLegacyOrderID struct{}

func (ByLegacyOrderID) Name() string { return "legacy_order_id" }

func (ByLegacyOrderID) Find(ctx context.Context, repo Repository, order *models.Order) (*models.Parcel, bool, error) {
	keys := []string{order.ID.String()}
	if order.OrderNumber != "" {
		keys = append(keys, order.OrderNumber)
	}
	return found(repo.FindByLegacyOrderID(ctx, keys...))
}

// ByCustomerInfo is the heuristic fallback on first name, last name and phone.
// It never matches when any of the three is blank.
type ByCustomerInfo struct{}

func (ByCustomerInfo) Name() string { return "customer_info" }

func (ByCustomerInfo) Find(ctx context.Context, repo Repository, order *models.Order) (*models.Parcel, bool, error) {
	first := strings.TrimSpace(order.CustomerFirstName)
	last := strings.TrimSpace(order.CustomerLastName)
	phone := strings.TrimSpace(order.CustomerPhone)
	if first == "" || last == "" || phone == "" {
		return nil, false, nil
	}
	return found(repo.FindByCustomerInfo(ctx, first, last, phone))
}

func found(parcel *models.Parcel, err error) (*models.Parcel, bool, error) {
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return parcel, true, nil
}

// Locate runs the strategies in order and returns the first match along with
// the name of the strategy that produced it.
func Locate(ctx context.Context, repo Repository, order *models.Order, strategies []LookupStrategy) (*models.Parcel, string, error) {
	for _, strategy := range strategies {
		parcel, ok, err := strategy.Find(ctx, repo, order)
		if err != nil {
			return nil, strategy.Name(), err
		}
		if ok {
			return parcel, strategy.Name(), nil
		}
	}
	return nil, "", nil
}
