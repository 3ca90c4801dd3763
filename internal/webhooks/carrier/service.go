package carrier

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/internal/transitions"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
)

// TokenHeader carries the shared secret configured with the carrier.
const TokenHeader = "X-Carrier-Token"

// Event is one carrier status notification.
type Event struct {
	Tracking string     `json:"tracking"`
	OrderID  *uuid.UUID `json:"order_id,omitempty"`
	Status   string     `json:"status" validate:"required"`
}

// statusMap translates carrier vocabulary into COD statuses. Anything missing
// here is rejected before any lookup.
var statusMap = map[string]enums.CODStatus{
	"submitted":  enums.CODStatusSubmitted,
	"accepted":   enums.CODStatusSubmitted,
	"dispatched": enums.CODStatusDispatched,
	"in_transit": enums.CODStatusDispatched,
	"shipped":    enums.CODStatusDispatched,
	"delivered":  enums.CODStatusDelivered,
	"failed":     enums.CODStatusFailed,
	"returned":   enums.CODStatusFailed,
	"cancelled":  enums.CODStatusCancelled,
	"canceled":   enums.CODStatusCancelled,
}

// MapStatus normalizes a carrier status.
func MapStatus(raw string) (enums.CODStatus, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	status, ok := statusMap[key]
	if !ok {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "unsupported carrier status").
			WithDetails(map[string]any{"status": raw})
	}
	return status, nil
}

type parcelFinder interface {
	FindByTracking(ctx context.Context, tracking string) (*models.Parcel, error)
	FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Parcel, error)
}

// CODTransitioner applies carrier status changes to orders.
type CODTransitioner interface {
	TransitionCODStatus(ctx context.Context, input transitions.CODTransitionInput) (*transitions.Result, error)
}

type ServiceParams struct {
	Parcels     parcelFinder
	Transitions CODTransitioner
	Token       string
	Logger      *logger.Logger
}

// Service applies carrier webhook events.
type Service struct {
	parcels     parcelFinder
	transitions CODTransitioner
	token       string
	logg        *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Parcels == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "parcel repo required")
	}
	if params.Transitions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transitions controller required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		parcels:     params.Parcels,
		transitions: params.Transitions,
		token:       params.Token,
		logg:        params.Logger,
	}, nil
}

// Authenticate compares the presented header value with the configured secret.
// An unconfigured secret rejects everything.
func (s *Service) Authenticate(presented string) error {
	if s.token == "" || presented == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "carrier token missing")
	}
	if subtle.ConstantTimeCompare([]byte(s.token), []byte(presented)) != 1 {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "carrier token invalid")
	}
	return nil
}

// Handle resolves the parcel the event refers to and moves its order's COD status.
func (s *Service) Handle(ctx context.Context, event Event) (*transitions.Result, error) {
	status, err := MapStatus(event.Status)
	if err != nil {
		return nil, err
	}
	parcel, err := s.resolve(ctx, event)
	if err != nil {
		return nil, err
	}
	if parcel.OrderID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "parcel is not linked to an order")
	}

	ctx = s.logg.WithOrderID(ctx, parcel.OrderID.String())
	result, err := s.transitions.TransitionCODStatus(ctx, transitions.CODTransitionInput{
		OrderID: *parcel.OrderID,
		Status:  string(status),
		Actor:   transitions.WebhookActor(transitions.ActorCarrierWebhook),
	})
	if err != nil {
		s.logg.WarnErr(ctx, "carrier status rejected", err)
		return nil, err
	}
	return result, nil
}

// resolve tries the tracking number first, then the order id.
func (s *Service) resolve(ctx context.Context, event Event) (*models.Parcel, error) {
	tracking := strings.TrimSpace(event.Tracking)
	if tracking == "" && event.OrderID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tracking or order_id required")
	}
	if tracking != "" {
		parcel, err := s.parcels.FindByTracking(ctx, tracking)
		if err == nil {
			return parcel, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find parcel by tracking")
		}
	}
	if event.OrderID != nil {
		parcel, err := s.parcels.FindByOrderID(ctx, *event.OrderID)
		if err == nil {
			return parcel, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find parcel by order")
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "parcel not found")
}
