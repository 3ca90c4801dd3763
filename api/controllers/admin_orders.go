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
	"github.com/angelmondragon/fulfillment-backend/internal/transitions"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
)

type adminOrderService interface {
	GetOrder(ctx context.Context, orderID uuid.UUID) (*internalorders.OrderDetail, error)
	UpdateOrder(ctx context.Context, input internalorders.UpdateOrderInput) (*internalorders.UpdateOrderResult, error)
	ResyncParcel(ctx context.Context, orderID uuid.UUID) (*parcels.SyncResult, error)
	Complete(ctx context.Context, orderID uuid.UUID) (*fulfillment.CompletionReport, error)
}

type orderTransitioner interface {
	TransitionOrderStatus(ctx context.Context, input transitions.OrderTransitionInput) (*transitions.Result, error)
	TransitionCODStatus(ctx context.Context, input transitions.CODTransitionInput) (*transitions.Result, error)
}

type shippingBody struct {
	DeliveryType  *string `json:"delivery_type,omitempty"`
	ToWilayaName  *string `json:"to_wilaya_name,omitempty"`
	ToCommuneName *string `json:"to_commune_name,omitempty"`
	Address       *string `json:"address,omitempty"`
	Freeshipping  *bool   `json:"freeshipping,omitempty"`
	StopdeskID    *int64  `json:"stopdesk_id,omitempty"`
}

func (b *shippingBody) options() (*parcels.ShippingOptions, error) {
	if b == nil {
		return nil, nil
	}
	opts := &parcels.ShippingOptions{
		ToWilayaName:  b.ToWilayaName,
		ToCommuneName: b.ToCommuneName,
		Address:       b.Address,
		Freeshipping:  b.Freeshipping,
		StopdeskID:    b.StopdeskID,
	}
	if b.DeliveryType != nil {
		deliveryType, err := enums.ParseDeliveryType(*b.DeliveryType)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid delivery type")
		}
		opts.DeliveryType = &deliveryType
	}
	return opts, nil
}

type updateOrderBody struct {
	Customer *internalorders.CustomerInput  `json:"customer,omitempty"`
	Items    []internalorders.SubmittedItem `json:"items,omitempty" validate:"omitempty,dive"`
	Amounts  internalorders.AmountsInput    `json:"amounts"`
	Shipping *shippingBody                  `json:"shipping,omitempty"`
}

type statusBody struct {
	Status string `json:"status" validate:"required"`
}

// AdminGetOrder returns an order with its items.
func AdminGetOrder(svc adminOrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := uuidParam(r, "orderId", "order id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		detail, err := svc.GetOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, orderResponse{Order: detail.Order, Items: detail.Items})
	}
}

// AdminUpdateOrder applies an admin edit and reports the parcel sync outcome.
// Sync failures are reported in the body; the edit itself is committed.
func AdminUpdateOrder(svc adminOrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := uuidParam(r, "orderId", "order id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body updateOrderBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		shipping, err := body.Shipping.options()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actor, err := adminActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.UpdateOrder(r.Context(), internalorders.UpdateOrderInput{
			OrderID:  orderID,
			ActorID:  actor.ID,
			Customer: body.Customer,
			Items:    body.Items,
			Amounts:  body.Amounts,
			Shipping: shipping,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, orderResponse{
			Order:      result.Order,
			Items:      result.Items,
			ParcelSync: toSyncView(result.ParcelSync),
			Customer:   toSyncView(result.CustomerSync),
		})
	}
}

// AdminOrderStatus moves an order through its lifecycle.
func AdminOrderStatus(ctrl orderTransitioner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, body, actor, ok := decodeOrderTransition(w, r, logg)
		if !ok {
			return
		}
		result, err := ctrl.TransitionOrderStatus(r.Context(), transitions.OrderTransitionInput{
			OrderID: orderID,
			Status:  body.Status,
			Actor:   actor,
		})
		writeTransitionResult(w, r, logg, result, err)
	}
}

// AdminCODStatus overrides the carrier status of a COD order.
func AdminCODStatus(ctrl orderTransitioner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, body, actor, ok := decodeOrderTransition(w, r, logg)
		if !ok {
			return
		}
		result, err := ctrl.TransitionCODStatus(r.Context(), transitions.CODTransitionInput{
			OrderID: orderID,
			Status:  body.Status,
			Actor:   actor,
		})
		writeTransitionResult(w, r, logg, result, err)
	}
}

// AdminResyncParcel retries the carrier parcel sync for an order.
func AdminResyncParcel(svc adminOrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := uuidParam(r, "orderId", "order id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.ResyncParcel(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toSyncView(result))
	}
}

// AdminCompleteOrder runs the fulfillment pipeline for an order. Repeat calls
// report the earlier completion.
func AdminCompleteOrder(svc adminOrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := uuidParam(r, "orderId", "order id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		report, err := svc.Complete(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"completion": report,
			"steps":      toStepViews(report.Steps),
		})
	}
}

func decodeOrderTransition(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (uuid.UUID, statusBody, transitions.Actor, bool) {
	var body statusBody
	orderID, err := uuidParam(r, "orderId", "order id")
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return uuid.Nil, body, transitions.Actor{}, false
	}
	if err := validators.DecodeJSONBody(r, &body); err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return uuid.Nil, body, transitions.Actor{}, false
	}
	actor, err := adminActor(r)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return uuid.Nil, body, transitions.Actor{}, false
	}
	return orderID, body, actor, true
}

func writeTransitionResult(w http.ResponseWriter, r *http.Request, logg *logger.Logger, result *transitions.Result, err error) {
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	responses.WriteSuccess(w, map[string]any{
		"changed":    result.Changed,
		"old_status": result.OldStatus,
		"new_status": result.NewStatus,
		"steps":      toStepViews(result.Steps),
	})
}
