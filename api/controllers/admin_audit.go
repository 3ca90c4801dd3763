package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/fulfillment-backend/api/responses"
	"github.com/angelmondragon/fulfillment-backend/internal/audit"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
)

// AdminAuditLog serves GET /audit/{entityType}/{entityId}, newest entry first.
func AdminAuditLog(svc audit.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := auditQuery(svc, r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func auditQuery(svc audit.Service, r *http.Request) (any, error) {
	if svc == nil {
		return nil, unavailable("audit")
	}
	rawType := strings.TrimSpace(chi.URLParam(r, "entityType"))
	entityType, err := enums.ParseAuditEntityType(rawType)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid entity type").
			WithDetails(map[string]any{"field": "entityType", "value": rawType})
	}
	entityID, err := uuidParam(r, "entityId", "entity id")
	if err != nil {
		return nil, err
	}
	params, err := pageParams(r)
	if err != nil {
		return nil, err
	}
	return svc.List(r.Context(), entityType, entityID, params)
}
