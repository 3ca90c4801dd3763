package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/fulfillment-backend/api/responses"
	"github.com/angelmondragon/fulfillment-backend/api/validators"
	"github.com/angelmondragon/fulfillment-backend/internal/fulfillment"
	internalorders "github.com/angelmondragon/fulfillment-backend/internal/orders"
	"github.com/angelmondragon/fulfillment-backend/internal/parcels"
	"github.com/angelmondragon/fulfillment-backend/pkg/besteffort"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
)

const (
	maxNameLength  = 120
	maxPhoneLength = 32
)

type orderCreator interface {
	CreateOrder(ctx context.Context, input internalorders.CreateOrderInput) (*internalorders.CreateOrderResult, error)
}

type orderResponse struct {
	Order      *models.Order                 `json:"order"`
	Items      []models.OrderItem            `json:"items"`
	ParcelSync *syncView                     `json:"parcel_sync,omitempty"`
	Customer   *syncView                     `json:"customer_sync,omitempty"`
	Completion *fulfillment.CompletionReport `json:"completion,omitempty"`
	Steps      []stepView                    `json:"steps,omitempty"`
}

type syncView struct {
	Outcome  parcels.Outcome `json:"outcome"`
	ParcelID *uuid.UUID      `json:"parcel_id,omitempty"`
	Strategy string          `json:"strategy,omitempty"`
	Price    int64           `json:"price,omitempty"`
	Error    string          `json:"error,omitempty"`
}

type stepView struct {
	Step  string `json:"step"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func toSyncView(result *parcels.SyncResult) *syncView {
	if result == nil {
		return nil
	}
	view := &syncView{Outcome: result.Outcome, Strategy: result.Strategy, Price: result.Price}
	if result.ParcelID != uuid.Nil {
		id := result.ParcelID
		view.ParcelID = &id
	}
	if result.Err != nil {
		view.Error = result.Err.Error()
	}
	return view
}

func toStepViews(steps []besteffort.Outcome) []stepView {
	if len(steps) == 0 {
		return nil
	}
	out := make([]stepView, 0, len(steps))
	for _, step := range steps {
		view := stepView{Step: step.Step, OK: step.OK}
		if step.Err != nil {
			view.Error = step.Err.Error()
		}
		out = append(out, view)
	}
	return out
}

// CreateOrder places a checkout order. Guests are allowed; a valid bearer
// token attaches the order to the caller.
func CreateOrder(svc orderCreator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("orders"))
			return
		}

		var input internalorders.CreateOrderInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input.UserID = optionalUserID(r)
		input.FirstName = validators.SanitizeString(input.FirstName, maxNameLength)
		input.LastName = validators.SanitizeString(input.LastName, maxNameLength)
		input.Phone = validators.SanitizePhone(input.Phone, maxPhoneLength)
		if input.Phone == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "phone must contain digits").WithDetails(map[string]any{"field": "phone"}))
			return
		}

		result, err := svc.CreateOrder(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := orderResponse{
			Order:      result.Order,
			Items:      result.Items,
			ParcelSync: toSyncView(result.ParcelSync),
			Completion: result.Completion,
		}
		if result.Completion != nil {
			resp.Steps = toStepViews(result.Completion.Steps)
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, resp)
	}
}
