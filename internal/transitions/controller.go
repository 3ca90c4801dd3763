package transitions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/internal/audit"
	"github.com/angelmondragon/fulfillment-backend/internal/fulfillment"
	"github.com/angelmondragon/fulfillment-backend/internal/notifications"
	"github.com/angelmondragon/fulfillment-backend/internal/orders"
	"github.com/angelmondragon/fulfillment-backend/internal/parcels"
	"github.com/angelmondragon/fulfillment-backend/internal/tuningfiles"
	"github.com/angelmondragon/fulfillment-backend/pkg/besteffort"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/fulfillment-backend/pkg/telegram"
)

const (
	defaultCallbackNamespace = "file"
	maxEstimateMinutes       = 7 * 24 * 60
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ChatEditor rewrites the bot message a webhook transition originated from.
type ChatEditor interface {
	EditMessageText(ctx context.Context, chatID, messageID int64, text string, markup *telegram.InlineKeyboard) error
}

// Completer runs fulfillment once a COD parcel is delivered.
type Completer interface {
	CompleteOrder(ctx context.Context, orderID uuid.UUID, userID *uuid.UUID) (*fulfillment.CompletionReport, error)
}

// ChatMessageRef points at the chat message that carried a callback.
type ChatMessageRef struct {
	ChatID    int64
	MessageID int64
}

// FileTransitionInput requests a tuning file status change.
type FileTransitionInput struct {
	FileID  uuid.UUID
	Status  string
	Actor   Actor
	Message *ChatMessageRef
}

// EstimateInput sets the processing estimate, which also moves the file to PENDING.
type EstimateInput struct {
	FileID  uuid.UUID
	Minutes int
	Actor   Actor
	Message *ChatMessageRef
}

// OrderTransitionInput requests an order lifecycle change.
type OrderTransitionInput struct {
	OrderID uuid.UUID
	Status  string
	Actor   Actor
}

// CODTransitionInput requests a carrier status change for a COD order.
type CODTransitionInput struct {
	OrderID uuid.UUID
	Status  string
	Actor   Actor
}

// Result reports what a transition did. Changed is false for same-status requests.
type Result struct {
	Changed   bool                 `json:"changed"`
	OldStatus string               `json:"old_status"`
	NewStatus string               `json:"new_status"`
	Steps     []besteffort.Outcome `json:"-"`
}

// RealtimeEvent is pushed to the owner's live sessions after a change.
type RealtimeEvent struct {
	Type     string    `json:"type"`
	EntityID uuid.UUID `json:"entity_id"`
	Status   string    `json:"status"`
}

// Deps bundles the controller collaborators. Chat and Completer are optional.
type Deps struct {
	Tx                txRunner
	Files             tuningfiles.Repository
	Orders            orders.Repository
	Parcels           parcels.Repository
	Audit             audit.Repository
	Outbox            outbox.Emitter
	Notify            notifications.Dispatcher
	Realtime          notifications.RealtimePush
	Chat              ChatEditor
	Completer         Completer
	Runner            *besteffort.Runner
	Logger            *logger.Logger
	CallbackNamespace string
}

// Controller applies status transitions for files, orders and COD parcels.
type Controller struct {
	tx        txRunner
	files     tuningfiles.Repository
	orders    orders.Repository
	parcels   parcels.Repository
	audit     audit.Repository
	outbox    outbox.Emitter
	notify    notifications.Dispatcher
	realtime  notifications.RealtimePush
	chat      ChatEditor
	completer Completer
	runner    *besteffort.Runner
	logg      *logger.Logger
	namespace string
	now       func() time.Time
}

// NewController validates and wires the controller.
func NewController(deps Deps) (*Controller, error) {
	switch {
	case deps.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case deps.Files == nil:
		return nil, fmt.Errorf("tuning files repository required")
	case deps.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case deps.Parcels == nil:
		return nil, fmt.Errorf("parcels repository required")
	case deps.Audit == nil:
		return nil, fmt.Errorf("audit repository required")
	case deps.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case deps.Notify == nil:
		return nil, fmt.Errorf("notification dispatcher required")
	case deps.Realtime == nil:
		return nil, fmt.Errorf("realtime push required")
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	runner := deps.Runner
	if runner == nil {
		runner = besteffort.New(deps.Logger, nil)
	}
	namespace := deps.CallbackNamespace
	if namespace == "" {
		namespace = defaultCallbackNamespace
	}
	return &Controller{
		tx:        deps.Tx,
		files:     deps.Files,
		orders:    deps.Orders,
		parcels:   deps.Parcels,
		audit:     deps.Audit,
		outbox:    deps.Outbox,
		notify:    deps.Notify,
		realtime:  deps.Realtime,
		chat:      deps.Chat,
		completer: deps.Completer,
		runner:    runner,
		logg:      deps.Logger,
		namespace: namespace,
		now:       time.Now,
	}, nil
}

// TransitionFileStatus moves a tuning file along RECEIVED -> PENDING -> READY.
func (c *Controller) TransitionFileStatus(ctx context.Context, input FileTransitionInput) (*Result, error) {
	if err := input.Actor.authorize(); err != nil {
		return nil, err
	}
	target, err := parseFileTarget(input.Status, input.Actor.Source)
	if err != nil {
		return nil, err
	}
	if input.FileID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "file id required")
	}
	ctx = c.scope(c.logg.WithFileID(ctx, input.FileID.String()), input.Actor)

	result := &Result{NewStatus: string(target)}
	var file *models.TuningFile
	err = c.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := c.files.WithTx(tx)
		file, err = findFile(ctx, repo, input.FileID)
		if err != nil {
			return err
		}
		result.OldStatus = string(file.Status)
		if file.Status == target {
			return nil
		}
		if err := checkEdge(fileEdges, file.Status, target, input.Actor.Source); err != nil {
			return err
		}
		if err := repo.UpdateStatus(ctx, file.ID, target); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update file status")
		}
		result.Changed = true
		return c.record(ctx, tx, result, recordSpec{
			entityType: enums.AuditEntityTuningFile,
			entityID:   file.ID,
			userID:     &file.UserID,
			aggregate:  enums.AggregateTuningFile,
			event:      enums.EventFileStatusChanged,
			actor:      input.Actor,
		})
	})
	if err != nil {
		return nil, err
	}
	if !result.Changed {
		return result, nil
	}

	file.Status = target
	c.afterFileChange(ctx, result, file, input.Actor, input.Message, fmt.Sprintf("Status changed to %s.", target))
	return result, nil
}

// SetEstimate stores the processing estimate, forces PENDING and stamps
// estimate_set_at. It always writes, even when the file is already PENDING.
func (c *Controller) SetEstimate(ctx context.Context, input EstimateInput) (*Result, error) {
	if err := input.Actor.authorize(); err != nil {
		return nil, err
	}
	if input.Minutes < 1 || input.Minutes > maxEstimateMinutes {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("estimate must be between 1 and %d minutes", maxEstimateMinutes))
	}
	if input.FileID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "file id required")
	}
	ctx = c.scope(c.logg.WithFileID(ctx, input.FileID.String()), input.Actor)

	result := &Result{NewStatus: string(enums.FileStatusPending)}
	var file *models.TuningFile
	err := c.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := c.files.WithTx(tx)
		var err error
		file, err = findFile(ctx, repo, input.FileID)
		if err != nil {
			return err
		}
		result.OldStatus = string(file.Status)
		if err := checkEdge(fileEdges, file.Status, enums.FileStatusPending, input.Actor.Source); err != nil {
			return err
		}
		if err := repo.SetEstimate(ctx, file.ID, input.Minutes, c.now().UTC()); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "set estimate")
		}
		result.Changed = true
		return c.record(ctx, tx, result, recordSpec{
			entityType: enums.AuditEntityTuningFile,
			entityID:   file.ID,
			userID:     &file.UserID,
			aggregate:  enums.AggregateTuningFile,
			event:      enums.EventFileStatusChanged,
			actor:      input.Actor,
		})
	})
	if err != nil {
		return nil, err
	}

	file.Status = enums.FileStatusPending
	minutes := input.Minutes
	file.EstimatedProcessingTime = &minutes
	c.afterFileChange(ctx, result, file, input.Actor, input.Message, fmt.Sprintf("Estimated processing time: %d minutes.", input.Minutes))
	return result, nil
}

// TransitionOrderStatus moves an order along its lifecycle, stamping
// delivered_at or cancelled_at on the terminal targets.
func (c *Controller) TransitionOrderStatus(ctx context.Context, input OrderTransitionInput) (*Result, error) {
	if err := input.Actor.authorize(); err != nil {
		return nil, err
	}
	target, err := parseOrderTarget(input.Status, input.Actor.Source)
	if err != nil {
		return nil, err
	}
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	ctx = c.scope(c.logg.WithOrderID(ctx, input.OrderID.String()), input.Actor)

	result := &Result{NewStatus: string(target)}
	var order *models.Order
	err = c.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := c.orders.WithTx(tx)
		order, err = findOrder(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		result.OldStatus = string(order.Status)
		if order.Status == target {
			return nil
		}
		if err := checkEdge(orderEdges, order.Status, target, input.Actor.Source); err != nil {
			return err
		}
		updates := map[string]any{"status": target}
		c.stampTerminal(updates, target)
		if err := repo.UpdateOrder(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		result.Changed = true
		return c.record(ctx, tx, result, recordSpec{
			entityType: enums.AuditEntityOrder,
			entityID:   order.ID,
			userID:     order.UserID,
			aggregate:  enums.AggregateOrder,
			event:      enums.EventOrderStatusChanged,
			actor:      input.Actor,
		})
	})
	if err != nil {
		return nil, err
	}
	if !result.Changed {
		return result, nil
	}

	c.afterOrderChange(ctx, result, order, "order_status")
	return result, nil
}

// TransitionCODStatus applies a carrier status to the order's parcel and
// cod_status. DELIVERED and CANCELLED also close the order, and DELIVERED runs
// fulfillment after commit.
func (c *Controller) TransitionCODStatus(ctx context.Context, input CODTransitionInput) (*Result, error) {
	if err := input.Actor.authorize(); err != nil {
		return nil, err
	}
	target, err := parseCODTarget(input.Status, input.Actor.Source)
	if err != nil {
		return nil, err
	}
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	ctx = c.scope(c.logg.WithOrderID(ctx, input.OrderID.String()), input.Actor)

	result := &Result{NewStatus: string(target)}
	var order *models.Order
	err = c.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := c.orders.WithTx(tx)
		order, err = findOrder(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		if !order.IsCOD() {
			return pkgerrors.New(pkgerrors.CodeValidation, "order is not cash on delivery")
		}
		current := enums.CODStatusPending
		if order.CODStatus != nil {
			current = *order.CODStatus
		}
		result.OldStatus = string(current)
		if current == target {
			return nil
		}
		if err := checkEdge(codEdges, current, target, input.Actor.Source); err != nil {
			return err
		}

		entityType, entityID := enums.AuditEntityOrder, order.ID
		parcelRepo := c.parcels.WithTx(tx)
		parcel, err := parcelRepo.FindByOrderID(ctx, order.ID)
		switch {
		case err == nil:
			if err := parcelRepo.UpdateStatus(ctx, parcel.ID, target); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update parcel status")
			}
			entityType, entityID = enums.AuditEntityParcel, parcel.ID
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load parcel")
		}

		updates := map[string]any{"cod_status": target}
		switch target {
		case enums.CODStatusDelivered:
			updates["status"] = enums.OrderStatusDelivered
			c.stampTerminal(updates, enums.OrderStatusDelivered)
		case enums.CODStatusCancelled:
			updates["status"] = enums.OrderStatusCancelled
			c.stampTerminal(updates, enums.OrderStatusCancelled)
		}
		if err := repo.UpdateOrder(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cod status")
		}
		result.Changed = true
		return c.record(ctx, tx, result, recordSpec{
			entityType: entityType,
			entityID:   entityID,
			userID:     order.UserID,
			aggregate:  enums.AggregateOrder,
			event:      enums.EventCODStatusChanged,
			actor:      input.Actor,
			eventID:    order.ID,
		})
	})
	if err != nil {
		return nil, err
	}
	if !result.Changed {
		return result, nil
	}

	c.afterOrderChange(ctx, result, order, "cod_status")
	if target == enums.CODStatusDelivered && c.completer != nil {
		result.Steps = append(result.Steps, c.runner.Run(ctx, "complete_order", func(ctx context.Context) error {
			_, err := c.completer.CompleteOrder(ctx, order.ID, order.UserID)
			return err
		}))
	}
	return result, nil
}

type recordSpec struct {
	entityType enums.AuditEntityType
	entityID   uuid.UUID
	userID     *uuid.UUID
	aggregate  enums.OutboxAggregateType
	event      enums.OutboxEventType
	actor      Actor
	// eventID overrides the aggregate id when the audited entity differs.
	eventID uuid.UUID
}

// record writes the audit row in a savepoint, so its failure leaves the status
// write intact, then emits the outbox event, whose failure aborts.
func (c *Controller) record(ctx context.Context, tx *gorm.DB, result *Result, spec recordSpec) error {
	oldValue, newValue := result.OldStatus, result.NewStatus
	result.Steps = append(result.Steps, c.runner.Run(ctx, "audit_log", func(ctx context.Context) error {
		return tx.Transaction(func(sp *gorm.DB) error {
			return audit.Record(ctx, c.audit.WithTx(sp), audit.Entry{
				EntityType: spec.entityType,
				EntityID:   spec.entityID,
				ActorID:    spec.actor.ID,
				Action:     enums.AuditActionStatusChange,
				OldValue:   &oldValue,
				NewValue:   &newValue,
			})
		})
	}))

	aggregateID := spec.eventID
	if aggregateID == uuid.Nil {
		aggregateID = spec.entityID
	}
	err := c.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     spec.event,
		AggregateType: spec.aggregate,
		AggregateID:   aggregateID,
		Actor:         &outbox.ActorRef{ActorID: spec.actor.ID, Role: spec.actor.role(), Source: string(spec.actor.Source)},
		Data: payloads.StatusChangedEvent{
			EntityID:  aggregateID,
			UserID:    spec.userID,
			OldStatus: oldValue,
			NewStatus: newValue,
			ActorID:   spec.actor.ID,
			ChangedAt: c.now().UTC(),
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit status event")
	}
	return nil
}

func (c *Controller) stampTerminal(updates map[string]any, target enums.OrderStatus) {
	switch target {
	case enums.OrderStatusDelivered:
		updates["delivered_at"] = c.now().UTC()
	case enums.OrderStatusCancelled:
		updates["cancelled_at"] = c.now().UTC()
	}
}

func (c *Controller) scope(ctx context.Context, actor Actor) context.Context {
	return c.logg.WithFields(ctx, map[string]any{
		"actor_id":     actor.ID,
		"actor_source": string(actor.Source),
	})
}

func findFile(ctx context.Context, repo tuningfiles.Repository, id uuid.UUID) (*models.TuningFile, error) {
	file, err := repo.FindForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "file not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load file")
	}
	return file, nil
}

func findOrder(ctx context.Context, repo orders.Repository, id uuid.UUID) (*models.Order, error) {
	order, err := repo.FindOrderForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}
