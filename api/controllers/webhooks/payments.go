package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/fulfillment-backend/api/responses"
	"github.com/angelmondragon/fulfillment-backend/api/validators"
	"github.com/angelmondragon/fulfillment-backend/internal/webhooks/payments"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
)

type paymentsService interface {
	VerifySignature(body []byte, signature string) error
	Handle(ctx context.Context, event payments.Event) (*payments.Outcome, error)
}

// Payments confirms an order payment. Redeliveries of a processed payment
// reference are acked without side effects.
func Payments(svc paymentsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}
		if err := svc.VerifySignature(payload, r.Header.Get(payments.SignatureHeader)); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var event payments.Event
		if err := validators.DecodeJSONPayload(payload, &event); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		outcome, err := svc.Handle(ctx, event)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, outcome)
	}
}
