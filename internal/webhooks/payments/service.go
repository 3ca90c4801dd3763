package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/fulfillment-backend/internal/orders"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
)

const (
	// SignatureHeader carries the hex HMAC-SHA256 of the raw body.
	SignatureHeader = "X-Payments-Signature"
	consumerName    = "payments-webhook"
	statusPaid      = "paid"
)

// Event is the gateway's payment notification.
type Event struct {
	OrderID    uuid.UUID `json:"order_id" validate:"required"`
	PaymentRef string    `json:"payment_ref" validate:"required"`
	Status     string    `json:"status" validate:"required"`
}

// Outcome tells the caller what happened to an event. All outcomes are acked.
type Outcome struct {
	Processed        bool   `json:"processed"`
	Duplicate        bool   `json:"duplicate"`
	Ignored          bool   `json:"ignored"`
	AlreadyConfirmed bool   `json:"already_confirmed"`
	Status           string `json:"status"`
}

// PaymentConfirmer marks an order paid.
type PaymentConfirmer interface {
	ConfirmPayment(ctx context.Context, orderID uuid.UUID, paymentRef string) (*orders.ConfirmPaymentResult, error)
}

// Guard drops redelivered payment refs.
type Guard interface {
	CheckAndMarkProcessed(ctx context.Context, consumer, id string) (bool, error)
	Delete(ctx context.Context, consumer, id string) error
}

type ServiceParams struct {
	Orders PaymentConfirmer
	Guard  Guard
	Secret string
	Logger *logger.Logger
}

type Service struct {
	orders PaymentConfirmer
	guard  Guard
	secret string
	logg   *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders service required")
	}
	if params.Guard == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		orders: params.Orders,
		guard:  params.Guard,
		secret: params.Secret,
		logg:   params.Logger,
	}, nil
}

// VerifySignature checks the body HMAC against the shared secret.
func (s *Service) VerifySignature(body []byte, signature string) error {
	if s.secret == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "payments webhook secret not configured")
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "payments signature missing")
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "payments signature malformed")
	}
	if !hmac.Equal(got, Sign(body, s.secret)) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "payments signature invalid")
	}
	return nil
}

// Sign computes the signature expected for a body.
func Sign(body []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}

// Handle confirms paid orders once per payment ref. Other statuses are
// acknowledged without effect and do not consume the ref.
func (s *Service) Handle(ctx context.Context, event Event) (*Outcome, error) {
	ref := strings.TrimSpace(event.PaymentRef)
	if ref == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment_ref is required")
	}
	if event.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order_id is required")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"order_id":    event.OrderID.String(),
		"payment_ref": ref,
	})

	status := strings.ToLower(strings.TrimSpace(event.Status))
	if status != statusPaid {
		s.logg.Info(ctx, "payment event ignored")
		return &Outcome{Ignored: true, Status: status}, nil
	}

	already, err := s.guard.CheckAndMarkProcessed(ctx, consumerName, ref)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency")
	}
	if already {
		s.logg.Info(ctx, "payment event already processed")
		return &Outcome{Duplicate: true, Status: status}, nil
	}

	result, err := s.orders.ConfirmPayment(ctx, event.OrderID, ref)
	if err != nil {
		if delErr := s.guard.Delete(ctx, consumerName, ref); delErr != nil {
			s.logg.WarnErr(ctx, "release payment idempotency key", delErr)
		}
		return nil, err
	}
	s.logg.Info(ctx, "payment confirmed")
	return &Outcome{Processed: true, AlreadyConfirmed: result.AlreadyConfirmed, Status: status}, nil
}
