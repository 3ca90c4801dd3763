package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/fulfillment-backend/api/responses"
	"github.com/angelmondragon/fulfillment-backend/api/validators"
	"github.com/angelmondragon/fulfillment-backend/internal/transitions"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
)

type fileTransitioner interface {
	TransitionFileStatus(ctx context.Context, input transitions.FileTransitionInput) (*transitions.Result, error)
	SetEstimate(ctx context.Context, input transitions.EstimateInput) (*transitions.Result, error)
}

type estimateBody struct {
	Minutes int `json:"minutes" validate:"min=1"`
}

// AdminFileStatus changes a tuning file status. Admins may force any valid status.
func AdminFileStatus(ctrl fileTransitioner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fileID, err := uuidParam(r, "fileId", "file id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body statusBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actor, err := adminActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := ctrl.TransitionFileStatus(r.Context(), transitions.FileTransitionInput{
			FileID: fileID,
			Status: body.Status,
			Actor:  actor,
		})
		writeTransitionResult(w, r, logg, result, err)
	}
}

// AdminFileEstimate sets the processing estimate in minutes.
func AdminFileEstimate(ctrl fileTransitioner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fileID, err := uuidParam(r, "fileId", "file id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body estimateBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actor, err := adminActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := ctrl.SetEstimate(r.Context(), transitions.EstimateInput{
			FileID:  fileID,
			Minutes: body.Minutes,
			Actor:   actor,
		})
		writeTransitionResult(w, r, logg, result, err)
	}
}
