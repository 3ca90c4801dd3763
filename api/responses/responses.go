package responses

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/types"
)

// RequestIDHeader is set by the request id middleware before handlers run.
const RequestIDHeader = "X-Request-Id"

// retryAfterSeconds is advertised on retryable failures.
const retryAfterSeconds = 5

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, types.SuccessEnvelope{Data: data})
}

// WriteError maps err onto its code's HTTP status. Untyped errors become
// INTERNAL_ERROR and never leak their text. Client errors are logged as
// warnings, server errors with a stack.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())

	logRequestError(ctx, logg, err, typed, meta.HTTPStatus)
	if meta.Retryable {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	}
	writeJSON(w, meta.HTTPStatus, types.ErrorEnvelope{
		Error:     publicError(typed, meta),
		RequestID: w.Header().Get(RequestIDHeader),
	})
}

func publicError(typed *pkgerrors.Error, meta pkgerrors.Metadata) types.APIError {
	out := types.APIError{Code: string(typed.Code()), Message: meta.PublicMessage}
	if meta.ExposeMessage && typed.Message() != "" {
		out.Message = typed.Message()
	}
	if meta.DetailsAllowed {
		out.Details = typed.Details()
	}
	return out
}

func logRequestError(ctx context.Context, logg *logger.Logger, err error, typed *pkgerrors.Error, status int) {
	if logg == nil {
		return
	}
	ctx = logg.WithFields(ctx, pkgerrors.Dump(err).Fields())
	if details, ok := typed.Details().(map[string]any); ok {
		if step, ok := details["step"].(string); ok {
			ctx = logg.WithStep(ctx, step)
		}
	}
	if status >= http.StatusInternalServerError {
		logg.Error(ctx, "request.error", err)
		return
	}
	logg.WarnErr(ctx, "request.rejected", err)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf(`{"level":"error","msg":"failed to encode response","err":"%v"}`, err)
	}
}
