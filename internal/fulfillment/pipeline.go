package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/internal/audit"
	"github.com/angelmondragon/fulfillment-backend/internal/notifications"
	"github.com/angelmondragon/fulfillment-backend/pkg/besteffort"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox/payloads"
)

// SystemActorID identifies pipeline-originated audit rows and events.
const SystemActorID = "fulfillment-pipeline"

// DefaultClaimLease bounds how long a crashed run keeps other callers out.
const DefaultClaimLease = 10 * time.Minute

const (
	stepDownloads     = "download_grants"
	stepCourses       = "course_enrollment"
	stepLicenseKeys   = "license_keys"
	stepNotifyAdmins  = "notify_admins_delivered"
	stepNotifyBuyer   = "notify_customer_delivered"
	stepAuditDelivery = "audit_auto_delivery"
)

// DownloadProvisioner issues download grants for virtual items.
type DownloadProvisioner interface {
	CreateForOrder(ctx context.Context, orderID uuid.UUID, userID *uuid.UUID) (int, error)
}

// CourseEnroller enrolls the buyer into courses mapped from the order's products.
type CourseEnroller interface {
	EnrollFromOrder(ctx context.Context, orderID, userID uuid.UUID) ([]models.CourseEnrollment, error)
}

// LicenseKeyAssigner hands out one key per call.
type LicenseKeyAssigner interface {
	Assign(ctx context.Context, productID, orderID, itemID uuid.UUID, userID *uuid.UUID) (*models.LicenseKey, error)
	CountForItem(ctx context.Context, itemID uuid.UUID) (int, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// CompletionReport summarizes one CompleteOrder call.
type CompletionReport struct {
	OrderID             uuid.UUID            `json:"order_id"`
	AlreadyCompleted    bool                 `json:"already_completed"`
	DownloadGrants      int                  `json:"download_grants"`
	CoursesEnrolled     int                  `json:"courses_enrolled"`
	LicenseKeysAssigned int                  `json:"license_keys_assigned"`
	LicenseKeyFailures  int                  `json:"license_key_failures"`
	AutoDelivered       bool                 `json:"auto_delivered"`
	Incomplete          bool                 `json:"incomplete"`
	Steps               []besteffort.Outcome `json:"-"`
}

// Deps bundles the pipeline collaborators.
type Deps struct {
	Repo      Repository
	Tx        txRunner
	Downloads DownloadProvisioner
	Courses   CourseEnroller
	Keys      LicenseKeyAssigner
	Outbox    outbox.Emitter
	Audit     audit.Repository
	Notify    notifications.Dispatcher
	Runner    *besteffort.Runner
	Logger    *logger.Logger
	// ClaimLease defaults to DefaultClaimLease.
	ClaimLease time.Duration
}

// Pipeline runs the post-payment fulfillment of an order.
type Pipeline struct {
	repo      Repository
	tx        txRunner
	downloads DownloadProvisioner
	courses   CourseEnroller
	keys      LicenseKeyAssigner
	outbox    outbox.Emitter
	audit     audit.Repository
	notify    notifications.Dispatcher
	runner    *besteffort.Runner
	logg      *logger.Logger
	lease     time.Duration
	now       func() time.Time
}

// NewPipeline validates and wires the pipeline.
func NewPipeline(deps Deps) (*Pipeline, error) {
	switch {
	case deps.Repo == nil:
		return nil, fmt.Errorf("fulfillment repository required")
	case deps.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case deps.Downloads == nil:
		return nil, fmt.Errorf("download provisioner required")
	case deps.Courses == nil:
		return nil, fmt.Errorf("course enroller required")
	case deps.Keys == nil:
		return nil, fmt.Errorf("license key assigner required")
	case deps.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case deps.Audit == nil:
		return nil, fmt.Errorf("audit repository required")
	case deps.Notify == nil:
		return nil, fmt.Errorf("notification dispatcher required")
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	runner := deps.Runner
	if runner == nil {
		runner = besteffort.New(deps.Logger, nil)
	}
	lease := deps.ClaimLease
	if lease <= 0 {
		lease = DefaultClaimLease
	}
	return &Pipeline{
		repo:      deps.Repo,
		tx:        deps.Tx,
		downloads: deps.Downloads,
		courses:   deps.Courses,
		keys:      deps.Keys,
		outbox:    deps.Outbox,
		audit:     deps.Audit,
		notify:    deps.Notify,
		runner:    runner,
		logg:      deps.Logger,
		lease:     lease,
		now:       time.Now,
	}, nil
}

// CompleteOrder provisions downloads, course enrollments and license keys for
// the order and auto-delivers all-virtual orders. A run leases the order while
// it works; a concurrent caller gets CONFLICT. The order is stamped completed
// only when every provisioning step succeeded, so a later call fills the gaps
// of a partial run. Completed orders return AlreadyCompleted without side
// effects. userID falls back to the order owner.
func (p *Pipeline) CompleteOrder(ctx context.Context, orderID uuid.UUID, userID *uuid.UUID) (*CompletionReport, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	ctx = p.logg.WithOrderID(ctx, orderID.String())
	report := &CompletionReport{OrderID: orderID}

	order, err := p.claim(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		report.AlreadyCompleted = true
		p.logg.Info(ctx, "order already completed")
		return report, nil
	}
	finished := false
	defer func() {
		if !finished {
			p.release(ctx, orderID)
		}
	}()

	items, err := p.repo.ListItems(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order items")
	}
	if userID == nil {
		userID = order.UserID
	}
	p.provision(ctx, report, items, userID)
	for _, step := range report.Steps {
		if !step.OK {
			report.Incomplete = true
		}
	}

	deliver := qualifiesForAutoDelivery(items) && !order.Status.IsTerminal()
	now := p.now().UTC()
	err = p.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := p.repo.WithTx(tx)
		if deliver {
			updated, err := repo.MarkDelivered(ctx, orderID, now)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order delivered")
			}
			report.AutoDelivered = updated
		}
		if report.AutoDelivered {
			p.auditDelivery(ctx, tx, order)
			if err := p.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderAutoDelivered,
				AggregateType: enums.AggregateOrder,
				AggregateID:   orderID,
				Actor:         &outbox.ActorRef{ActorID: SystemActorID, Source: "system"},
				Data:          payloads.OrderAutoDeliveredEvent{OrderID: orderID, DeliveredAt: now},
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit auto delivered event")
			}
		}
		if report.Incomplete {
			return nil
		}
		if err := repo.FinishCompletion(ctx, orderID, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stamp order completion")
		}
		return p.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCompleted,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Actor:         &outbox.ActorRef{ActorID: SystemActorID, Source: "system"},
			Data: payloads.OrderCompletedEvent{
				OrderID:          orderID,
				DownloadGrants:   report.DownloadGrants,
				LicenseKeys:      report.LicenseKeysAssigned,
				CourseEnrollment: report.CoursesEnrolled,
				AutoDelivered:    report.AutoDelivered,
			},
		})
	})
	if err != nil {
		report.AutoDelivered = false
		if pkgerrors.As(err) != nil {
			return report, err
		}
		return report, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record order completion")
	}
	finished = !report.Incomplete

	if report.AutoDelivered {
		p.notifyDelivered(ctx, order, userID)
	}
	fields := p.logg.WithFields(ctx, map[string]any{
		"download_grants": report.DownloadGrants,
		"license_keys":    report.LicenseKeysAssigned,
		"auto_delivered":  report.AutoDelivered,
	})
	if report.Incomplete {
		p.logg.Warn(fields, "order fulfillment incomplete; rerun to fill gaps")
		return report, nil
	}
	p.logg.Info(fields, "order fulfillment completed")
	return report, nil
}

// claim returns the leased order, or nil when the order is already completed.
func (p *Pipeline) claim(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := p.repo.FindOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.FulfillmentCompletedAt != nil {
		return nil, nil
	}

	now := p.now().UTC()
	claimed, err := p.repo.ClaimCompletion(ctx, orderID, now, now.Add(p.lease))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim order completion")
	}
	if claimed {
		return order, nil
	}
	current, err := p.repo.FindOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
	}
	if current.FulfillmentCompletedAt != nil {
		return nil, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeConflict, "order completion already in progress")
}

// release frees the lease even when the caller's context is gone.
func (p *Pipeline) release(ctx context.Context, orderID uuid.UUID) {
	if err := p.repo.ReleaseCompletion(context.WithoutCancel(ctx), orderID); err != nil {
		p.logg.WarnErr(ctx, "release order completion claim", err)
	}
}

func (p *Pipeline) provision(ctx context.Context, report *CompletionReport, items []models.OrderItem, userID *uuid.UUID) {
	orderID := report.OrderID
	report.Steps = append(report.Steps, p.runner.Run(ctx, stepDownloads, func(ctx context.Context) error {
		created, err := p.downloads.CreateForOrder(ctx, orderID, userID)
		report.DownloadGrants = created
		return err
	}))

	if userID != nil {
		uid := *userID
		report.Steps = append(report.Steps, p.runner.Run(ctx, stepCourses, func(ctx context.Context) error {
			enrollments, err := p.courses.EnrollFromOrder(ctx, orderID, uid)
			report.CoursesEnrolled = len(enrollments)
			return err
		}))
	}

	for _, item := range items {
		if !item.IsVirtual {
			continue
		}
		item := item
		itemCtx := p.logg.WithField(ctx, "order_item_id", item.ID.String())
		outcome := p.runner.Run(itemCtx, stepLicenseKeys, func(ctx context.Context) error {
			assigned, err := p.assignKeys(ctx, item, userID)
			report.LicenseKeysAssigned += assigned
			return err
		})
		if !outcome.OK {
			report.LicenseKeyFailures++
		}
		report.Steps = append(report.Steps, outcome)
	}
}

// assignKeys tops the item up to one key per unit, counting keys a previous
// run already assigned.
func (p *Pipeline) assignKeys(ctx context.Context, item models.OrderItem, userID *uuid.UUID) (int, error) {
	existing, err := p.keys.CountForItem(ctx, item.ID)
	if err != nil {
		return 0, err
	}
	assigned := 0
	for n := existing; n < item.Quantity; n++ {
		if _, err := p.keys.Assign(ctx, item.ProductID, item.OrderID, item.ID, userID); err != nil {
			return assigned, err
		}
		assigned++
	}
	return assigned, nil
}

func (p *Pipeline) auditDelivery(ctx context.Context, tx *gorm.DB, order *models.Order) {
	oldValue := string(order.Status)
	newValue := string(enums.OrderStatusDelivered)
	p.runner.Run(ctx, stepAuditDelivery, func(ctx context.Context) error {
		return tx.Transaction(func(sp *gorm.DB) error {
			return audit.Record(ctx, p.audit.WithTx(sp), audit.Entry{
				EntityType: enums.AuditEntityOrder,
				EntityID:   order.ID,
				ActorID:    SystemActorID,
				Action:     enums.AuditActionStatusChange,
				OldValue:   &oldValue,
				NewValue:   &newValue,
			})
		})
	})
}

func (p *Pipeline) notifyDelivered(ctx context.Context, order *models.Order, userID *uuid.UUID) {
	link := "/admin/orders/" + order.ID.String()
	p.runner.Run(ctx, stepNotifyAdmins, func(ctx context.Context) error {
		return p.notify.NotifyAdmins(ctx, notifications.Event{
			Type:    enums.NotificationTypeDigitalDelivered,
			Title:   "Digital order delivered " + order.OrderNumber,
			Message: "All items are digital; the order was marked delivered automatically.",
			Link:    &link,
		})
	})
	if userID == nil {
		return
	}
	p.runner.Run(ctx, stepNotifyBuyer, func(ctx context.Context) error {
		return p.notify.NotifyCustomer(ctx, *userID, notifications.Event{
			Type:    enums.NotificationTypeOrderStatus,
			Title:   "Order " + order.OrderNumber + " delivered",
			Message: "Your downloads and license keys are ready.",
		})
	})
}

// qualifiesForAutoDelivery reports true for a non-empty, all-virtual item set.
func qualifiesForAutoDelivery(items []models.OrderItem) bool {
	if len(items) == 0 {
		return false
	}
	for _, item := range items {
		if !item.IsVirtual {
			return false
		}
	}
	return true
}
