package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/internal/fulfillment"
	"github.com/angelmondragon/fulfillment-backend/internal/notifications"
	"github.com/angelmondragon/fulfillment-backend/internal/parcels"
	"github.com/angelmondragon/fulfillment-backend/pkg/besteffort"
	"github.com/angelmondragon/fulfillment-backend/pkg/db"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox/payloads"
)

const orderNumberConstraint = "ux_orders_order_number"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ParcelSyncer keeps the carrier parcel aligned with an order inside the
// caller's transaction.
type ParcelSyncer interface {
	SyncParcel(ctx context.Context, tx *gorm.DB, order *models.Order, items []models.OrderItem, opts *parcels.ShippingOptions) (*parcels.SyncResult, error)
	SyncCustomerInfo(ctx context.Context, tx *gorm.DB, order *models.Order, info parcels.CustomerInfo) (*parcels.SyncResult, error)
}

// Completer runs post-payment fulfillment.
type Completer interface {
	CompleteOrder(ctx context.Context, orderID uuid.UUID, userID *uuid.UUID) (*fulfillment.CompletionReport, error)
}

// Service defines the order operations exposed to controllers, webhooks and jobs.
type Service interface {
	GetOrder(ctx context.Context, orderID uuid.UUID) (*OrderDetail, error)
	CreateOrder(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error)
	UpdateOrder(ctx context.Context, input UpdateOrderInput) (*UpdateOrderResult, error)
	ConfirmPayment(ctx context.Context, orderID uuid.UUID, paymentRef string) (*ConfirmPaymentResult, error)
	ResyncParcel(ctx context.Context, orderID uuid.UUID) (*parcels.SyncResult, error)
	Complete(ctx context.Context, orderID uuid.UUID) (*fulfillment.CompletionReport, error)
}

// OrderDetail is an order with its items.
type OrderDetail struct {
	Order *models.Order
	Items []models.OrderItem
}

// Deps bundles the order service collaborators.
type Deps struct {
	Repo      Repository
	Tx        txRunner
	Parcels   ParcelSyncer
	Outbox    outbox.Emitter
	Notify    notifications.Dispatcher
	Completer Completer
	Numbers   *NumberGenerator
	Runner    *besteffort.Runner
	Logger    *logger.Logger
}

type service struct {
	repo      Repository
	tx        txRunner
	parcels   ParcelSyncer
	outbox    outbox.Emitter
	notify    notifications.Dispatcher
	completer Completer
	numbers   *NumberGenerator
	runner    *besteffort.Runner
	logg      *logger.Logger
	now       func() time.Time
}

// NewService builds the order service with the required dependencies.
func NewService(deps Deps) (Service, error) {
	switch {
	case deps.Repo == nil:
		return nil, fmt.Errorf("orders repository required")
	case deps.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case deps.Parcels == nil:
		return nil, fmt.Errorf("parcel syncer required")
	case deps.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case deps.Notify == nil:
		return nil, fmt.Errorf("notification dispatcher required")
	case deps.Completer == nil:
		return nil, fmt.Errorf("completion pipeline required")
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	numbers := deps.Numbers
	if numbers == nil {
		numbers = NewNumberGenerator(0)
	}
	runner := deps.Runner
	if runner == nil {
		runner = besteffort.New(deps.Logger, nil)
	}
	return &service{
		repo:      deps.Repo,
		tx:        deps.Tx,
		parcels:   deps.Parcels,
		outbox:    deps.Outbox,
		notify:    deps.Notify,
		completer: deps.Completer,
		numbers:   numbers,
		runner:    runner,
		logg:      deps.Logger,
		now:       time.Now,
	}, nil
}

func (s *service) GetOrder(ctx context.Context, orderID uuid.UUID) (*OrderDetail, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		return nil, mapLoadError(err)
	}
	items, err := s.repo.ListItems(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order items")
	}
	return &OrderDetail{Order: order, Items: items}, nil
}

// UpdateOrder applies an admin edit in one transaction: customer fields, item
// reconciliation, derived totals, parcel sync and customer-info propagation.
// Parcel steps run in savepoints and mark the order for resync on failure
// instead of aborting the edit. Client subtotal and total are never read.
func (s *service) UpdateOrder(ctx context.Context, input UpdateOrderInput) (*UpdateOrderResult, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if strings.TrimSpace(input.ActorID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor required")
	}
	if err := validateCustomer(input.Customer); err != nil {
		return nil, err
	}
	if err := validateAmounts(input.Amounts); err != nil {
		return nil, err
	}
	ctx = s.logg.WithOrderID(ctx, input.OrderID.String())

	result := &UpdateOrderResult{}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindOrderForUpdate(ctx, input.OrderID)
		if err != nil {
			return mapLoadError(err)
		}
		if order.IsTerminal() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order is %s and can no longer be edited", order.EffectiveStatus()))
		}

		updates := applyCustomer(order, input.Customer)

		var items []models.OrderItem
		if input.Items != nil {
			items, err = Reconcile(ctx, repo, order.ID, input.Items)
		} else {
			items, err = repo.ListItems(ctx, order.ID)
		}
		if err != nil {
			if pkgerrors.As(err) != nil {
				return err
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order items")
		}

		totals := ComputeTotals(items,
			pick(input.Amounts.Shipping, order.Shipping),
			pick(input.Amounts.Tax, order.Tax),
			pick(input.Amounts.Discount, order.Discount),
		)
		if totals.Total.IsNegative() {
			return pkgerrors.New(pkgerrors.CodeValidation, "discount exceeds order value")
		}
		for column, value := range totals.columns() {
			updates[column] = value
		}
		if err := repo.UpdateOrder(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order")
		}
		totals.Apply(order)

		parcelResult, err := s.parcels.SyncParcel(ctx, tx, order, items, input.Shipping)
		if err != nil {
			return err
		}
		result.ParcelSync = parcelResult

		if input.Customer != nil {
			info := parcels.CustomerInfo{
				FirstName: order.CustomerFirstName,
				LastName:  order.CustomerLastName,
				Phone:     order.CustomerPhone,
			}
			if input.Customer.ShippingAddress != nil {
				address := order.ShippingAddress
				info.Address = &address
			}
			customerResult, err := s.parcels.SyncCustomerInfo(ctx, tx, order, info)
			if err != nil {
				return err
			}
			result.CustomerSync = customerResult
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderUpdated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{ActorID: input.ActorID, Role: string(enums.RoleAdmin), Source: "admin"},
			Data: payloads.OrderUpdatedEvent{
				OrderID:          order.ID,
				SubtotalCents:    totals.SubtotalCents,
				TotalCents:       totals.TotalCents,
				ItemCount:        len(items),
				ParcelSyncStatus: string(order.ParcelSyncStatus),
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order updated event")
		}

		result.Order = order
		result.Items = items
		result.Totals = totals
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.runner.Run(ctx, "notify_admins_order_updated", func(ctx context.Context) error {
		return s.notify.NotifyAdmins(ctx, notifications.Event{
			Type:    enums.NotificationTypeOrderUpdated,
			Title:   "Order " + result.Order.OrderNumber + " updated",
			Message: fmt.Sprintf("New total %s (%d items).", result.Totals.Total.StringFixed(2), len(result.Items)),
			Link:    adminOrderLink(result.Order.ID),
		})
	})
	return result, nil
}

// CreateOrder persists a checkout order with catalog-snapshotted items and
// derived totals. COD orders get their parcel in the same transaction. Free
// orders are completed right after commit.
func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error) {
	if err := validateCreate(input); err != nil {
		return nil, err
	}
	number, err := s.numbers.Next(ctx, s.repo.OrderNumberExists)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "generate order number")
	}

	result := &CreateOrderResult{}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order := &models.Order{
			ID:                uuid.New(),
			OrderNumber:       number,
			UserID:            input.UserID,
			CustomerFirstName: strings.TrimSpace(input.FirstName),
			CustomerLastName:  strings.TrimSpace(input.LastName),
			CustomerPhone:     strings.TrimSpace(input.Phone),
			CustomerEmail:     input.Email,
			ShippingAddress:   strings.TrimSpace(input.ShippingAddress),
			PaymentMethod:     input.PaymentMethod,
			Status:            enums.OrderStatusPending,
			ParcelSyncStatus:  enums.ParcelSyncNotApplicable,
		}
		ctx := s.logg.WithOrderID(ctx, order.ID.String())

		items, err := s.snapshotItems(ctx, repo, order.ID, input.Items)
		if err != nil {
			return err
		}
		totals := ComputeTotals(items, input.Shipping, input.Tax, input.Discount)
		if totals.Total.IsNegative() {
			return pkgerrors.New(pkgerrors.CodeValidation, "discount exceeds order value")
		}
		if order.PaymentMethod == enums.PaymentMethodFree && !totals.Total.IsZero() {
			return pkgerrors.New(pkgerrors.CodeValidation, "free orders must total zero")
		}
		totals.Apply(order)

		switch order.PaymentMethod {
		case enums.PaymentMethodCOD:
			pending := enums.CODStatusPending
			order.CODStatus = &pending
		case enums.PaymentMethodFree:
			paidAt := s.now().UTC()
			order.Status = enums.OrderStatusProcessing
			order.PaidAt = &paidAt
		}

		if err := repo.CreateOrder(ctx, order); err != nil {
			if db.IsUniqueViolation(err, orderNumberConstraint) || db.IsUniqueViolation(err, "orders.order_number") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "order number already taken, retry")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		if err := repo.CreateItems(ctx, items); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order items")
		}

		parcelResult, err := s.parcels.SyncParcel(ctx, tx, order, items, input.ShippingOptions)
		if err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         customerActor(input.UserID),
			Data: payloads.OrderCreatedEvent{
				OrderID:       order.ID,
				OrderNumber:   order.OrderNumber,
				UserID:        order.UserID,
				PaymentMethod: string(order.PaymentMethod),
				TotalCents:    order.TotalCents,
				ItemCount:     len(items),
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order created event")
		}

		result.Order = order
		result.Items = items
		result.ParcelSync = parcelResult
		return nil
	})
	if err != nil {
		return nil, err
	}

	order := result.Order
	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	s.runner.Run(ctx, "notify_admins_new_order", func(ctx context.Context) error {
		return s.notify.NotifyAdmins(ctx, notifications.Event{
			Type:    enums.NotificationTypeNewOrder,
			Title:   "New order " + order.OrderNumber,
			Message: fmt.Sprintf("%s %s, %s, total %s.", order.CustomerFirstName, order.CustomerLastName, order.PaymentMethod, order.Total.StringFixed(2)),
			Link:    adminOrderLink(order.ID),
		})
	})
	if order.PaymentMethod == enums.PaymentMethodFree {
		result.Completion = s.completeAfterCommit(ctx, order)
	}
	return result, nil
}

// ConfirmPayment records an online payment and runs fulfillment after commit.
// Confirming twice is safe: the second call reports AlreadyConfirmed and the
// pipeline's own claim keeps fulfillment single-shot.
func (s *service) ConfirmPayment(ctx context.Context, orderID uuid.UUID, paymentRef string) (*ConfirmPaymentResult, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	paymentRef = strings.TrimSpace(paymentRef)
	if paymentRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference required")
	}
	ctx = s.logg.WithOrderID(ctx, orderID.String())

	result := &ConfirmPaymentResult{}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindOrderForUpdate(ctx, orderID)
		if err != nil {
			return mapLoadError(err)
		}
		result.Order = order
		if order.IsCOD() {
			return pkgerrors.New(pkgerrors.CodeValidation, "cash on delivery orders are settled by the carrier")
		}
		if order.PaidAt != nil {
			result.AlreadyConfirmed = true
			return nil
		}
		if order.Status == enums.OrderStatusCancelled {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is cancelled")
		}

		now := s.now().UTC()
		oldStatus := order.Status
		updates := map[string]any{
			"paid_at":     now,
			"payment_ref": paymentRef,
		}
		if order.Status == enums.OrderStatusPending {
			updates["status"] = enums.OrderStatusProcessing
		}
		if err := repo.UpdateOrder(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment")
		}
		order.PaidAt = &now
		order.PaymentRef = &paymentRef
		if order.Status == enums.OrderStatusPending {
			order.Status = enums.OrderStatusProcessing
		}
		if oldStatus == order.Status {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{ActorID: "payments-webhook", Source: "webhook"},
			Data: payloads.StatusChangedEvent{
				EntityID:  order.ID,
				UserID:    order.UserID,
				OldStatus: string(oldStatus),
				NewStatus: string(order.Status),
				ActorID:   "payments-webhook",
				ChangedAt: now,
			},
		})
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm payment")
	}

	result.Completion = s.completeAfterCommit(ctx, result.Order)
	return result, nil
}

// ResyncParcel re-runs the parcel sync for one order against its current items,
// then copies the order's customer name and phone onto the parcel. A failed
// sync is reported through the result and leaves the order flagged.
func (s *service) ResyncParcel(ctx context.Context, orderID uuid.UUID) (*parcels.SyncResult, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	ctx = s.logg.WithOrderID(ctx, orderID.String())

	var result *parcels.SyncResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindOrderForUpdate(ctx, orderID)
		if err != nil {
			return mapLoadError(err)
		}
		items, err := repo.ListItems(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order items")
		}
		result, err = s.parcels.SyncParcel(ctx, tx, order, items, nil)
		if err != nil || result.Outcome == parcels.OutcomeFailed || result.Outcome == parcels.OutcomeSkipped {
			return err
		}
		// A failed customer-info copy is only retried here.
		customer, err := s.parcels.SyncCustomerInfo(ctx, tx, order, parcels.CustomerInfo{
			FirstName: order.CustomerFirstName,
			LastName:  order.CustomerLastName,
			Phone:     order.CustomerPhone,
		})
		if err == nil && customer.Outcome == parcels.OutcomeFailed {
			result = customer
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Complete runs the fulfillment pipeline on admin request and surfaces its error.
func (s *service) Complete(ctx context.Context, orderID uuid.UUID) (*fulfillment.CompletionReport, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	return s.completer.CompleteOrder(ctx, orderID, nil)
}

func (s *service) completeAfterCommit(ctx context.Context, order *models.Order) *fulfillment.CompletionReport {
	var report *fulfillment.CompletionReport
	s.runner.Run(ctx, "complete_order", func(ctx context.Context) error {
		var err error
		report, err = s.completer.CompleteOrder(ctx, order.ID, order.UserID)
		return err
	})
	return report
}

// snapshotItems copies name, sku, price and kind from the catalog.
func (s *service) snapshotItems(ctx context.Context, repo Repository, orderID uuid.UUID, lines []CreateItemInput) ([]models.OrderItem, error) {
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	products, err := repo.FindProducts(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}
	items := make([]models.OrderItem, 0, len(lines))
	for _, line := range lines {
		product, ok := products[line.ProductID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown product %s", line.ProductID))
		}
		items = append(items, models.OrderItem{
			ID:         uuid.New(),
			OrderID:    orderID,
			ProductID:  product.ID,
			Name:       product.Name,
			SKU:        product.SKU,
			Price:      product.Price,
			PriceCents: ToCents(product.Price),
			Quantity:   line.Quantity,
			IsVirtual:  product.IsVirtual,
		})
	}
	return items, nil
}

func validateCreate(input CreateOrderInput) error {
	switch {
	case strings.TrimSpace(input.FirstName) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "first name is required")
	case strings.TrimSpace(input.LastName) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "last name is required")
	case strings.TrimSpace(input.Phone) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "phone is required")
	case !input.PaymentMethod.IsValid():
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	case len(input.Items) == 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	case input.PaymentMethod == enums.PaymentMethodCOD && strings.TrimSpace(input.ShippingAddress) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "shipping address is required for cash on delivery")
	}
	for i, line := range input.Items {
		if line.ProductID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("items[%d]: product_id is required", i))
		}
		if line.Quantity < 1 {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("items[%d]: quantity must be at least 1", i))
		}
	}
	return validateAmounts(AmountsInput{Shipping: &input.Shipping, Tax: &input.Tax, Discount: &input.Discount})
}

func validateCustomer(input *CustomerInput) error {
	if input == nil {
		return nil
	}
	for field, value := range map[string]*string{
		"first name": input.FirstName,
		"last name":  input.LastName,
		"phone":      input.Phone,
	} {
		if value != nil && strings.TrimSpace(*value) == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, field+" must not be blank")
		}
	}
	return nil
}

func validateAmounts(input AmountsInput) error {
	for field, value := range map[string]*decimal.Decimal{
		"shipping": input.Shipping,
		"tax":      input.Tax,
		"discount": input.Discount,
	} {
		if value != nil && value.IsNegative() {
			return pkgerrors.New(pkgerrors.CodeValidation, field+" must not be negative")
		}
	}
	return nil
}

// applyCustomer copies provided customer fields onto order and returns the
// matching column updates.
func applyCustomer(order *models.Order, input *CustomerInput) map[string]any {
	updates := map[string]any{}
	if input == nil {
		return updates
	}
	if input.FirstName != nil {
		order.CustomerFirstName = strings.TrimSpace(*input.FirstName)
		updates["customer_first_name"] = order.CustomerFirstName
	}
	if input.LastName != nil {
		order.CustomerLastName = strings.TrimSpace(*input.LastName)
		updates["customer_last_name"] = order.CustomerLastName
	}
	if input.Phone != nil {
		order.CustomerPhone = strings.TrimSpace(*input.Phone)
		updates["customer_phone"] = order.CustomerPhone
	}
	if input.Email != nil {
		email := strings.TrimSpace(*input.Email)
		order.CustomerEmail = &email
		updates["customer_email"] = email
	}
	if input.ShippingAddress != nil {
		order.ShippingAddress = strings.TrimSpace(*input.ShippingAddress)
		updates["shipping_address"] = order.ShippingAddress
	}
	return updates
}

func pick(value *decimal.Decimal, fallback decimal.Decimal) decimal.Decimal {
	if value == nil {
		return fallback
	}
	return *value
}

func mapLoadError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
}

func customerActor(userID *uuid.UUID) *outbox.ActorRef {
	actor := &outbox.ActorRef{ActorID: "guest", Role: string(enums.RoleCustomer), Source: "checkout"}
	if userID != nil {
		actor.ActorID = userID.String()
	}
	return actor
}

func adminOrderLink(orderID uuid.UUID) *string {
	link := "/admin/orders/" + orderID.String()
	return &link
}
