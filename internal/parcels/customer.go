package parcels

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
)

// CustomerInfo is the contact data copied from an order onto its parcel.
type CustomerInfo struct {
	FirstName string
	LastName  string
	Phone     string
	Address   *string
}

func (c CustomerInfo) complete() bool {
	return strings.TrimSpace(c.FirstName) != "" &&
		strings.TrimSpace(c.LastName) != "" &&
		strings.TrimSpace(c.Phone) != ""
}

// SyncCustomerInfo copies customer contact fields onto the order's parcel. When
// no parcel exists and the info is complete, a parcel is created with a
// product-only price (total minus shipping). Incomplete info is skipped.
// Failures follow the same savepoint policy as SyncParcel.
func (e *Engine) SyncCustomerInfo(ctx context.Context, tx *gorm.DB, order *models.Order, info CustomerInfo) (*SyncResult, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	if !order.IsCOD() {
		return &SyncResult{Outcome: OutcomeSkipped}, nil
	}
	ctx = e.logg.WithOrderID(ctx, order.ID.String())

	mutate := func(parcel *models.Parcel) {
		if parcel.OrderID == nil {
			id := order.ID
			parcel.OrderID = &id
		}
		if v := strings.TrimSpace(info.FirstName); v != "" {
			parcel.Firstname = v
		}
		if v := strings.TrimSpace(info.LastName); v != "" {
			parcel.Familyname = v
		}
		if v := strings.TrimSpace(info.Phone); v != "" {
			parcel.ContactPhone = v
		}
		if info.Address != nil && strings.TrimSpace(*info.Address) != "" {
			parcel.Address = strings.TrimSpace(*info.Address)
		}
	}

	result := &SyncResult{}
	skipped := false
	err := tx.Transaction(func(sp *gorm.DB) error {
		repo := e.repo.WithTx(sp)
		parcel, strategy, err := Locate(ctx, repo, order, e.strategies)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "locate parcel")
		}
		if parcel != nil {
			mutate(parcel)
			if err := repo.Save(ctx, parcel); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update parcel customer info")
			}
			result.Outcome, result.ParcelID, result.Strategy = OutcomeUpdated, parcel.ID, strategy
			return nil
		}
		if !info.complete() {
			skipped = true
			return nil
		}

		parcel = placeholderParcel(order)
		parcel.Address = PlaceholderDestination
		parcel.Price = RoundPrice(order.Total.Sub(order.Shipping))
		mutate(parcel)
		outcome, err := e.createOrAdopt(ctx, sp, parcel, mutate)
		if err != nil {
			return err
		}
		result.Outcome, result.ParcelID, result.Price = outcome, parcel.ID, parcel.Price
		return nil
	})
	if err != nil {
		return e.recordFailure(ctx, tx, order, result, "customer_info_sync", err)
	}
	if skipped {
		e.logg.Info(ctx, "customer info incomplete, parcel creation skipped")
		result.Outcome = OutcomeSkipped
	}
	return result, nil
}
