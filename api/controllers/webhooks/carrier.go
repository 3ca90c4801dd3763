package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/fulfillment-backend/api/responses"
	"github.com/angelmondragon/fulfillment-backend/api/validators"
	"github.com/angelmondragon/fulfillment-backend/internal/transitions"
	"github.com/angelmondragon/fulfillment-backend/internal/webhooks/carrier"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
)

type carrierService interface {
	Authenticate(presented string) error
	Handle(ctx context.Context, event carrier.Event) (*transitions.Result, error)
}

// Carrier applies a parcel status update pushed by the carrier.
func Carrier(svc carrierService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "carrier service unavailable"))
			return
		}
		if err := svc.Authenticate(r.Header.Get(carrier.TokenHeader)); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}
		var event carrier.Event
		if err := validators.DecodeJSONPayload(payload, &event); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.Handle(ctx, event)
		if err != nil {
			if ack, ok := settledFailure(err); ok {
				if logg != nil {
					logg.WarnErr(ctx, "carrier event acknowledged without change", err)
				}
				responses.WriteSuccess(w, ack)
				return
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// carrierAck answers events that can never succeed on redelivery.
type carrierAck struct {
	OK      bool   `json:"ok"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// settledFailure acks unknown parcels and disallowed transitions with 200 so
// the carrier stops retrying. Other failures keep their error status.
func settledFailure(err error) (carrierAck, bool) {
	typed := pkgerrors.As(err)
	if typed == nil {
		return carrierAck{}, false
	}
	switch typed.Code() {
	case pkgerrors.CodeNotFound, pkgerrors.CodeStateConflict:
		return carrierAck{OK: false, Code: string(typed.Code()), Message: typed.Message()}, true
	}
	return carrierAck{}, false
}
