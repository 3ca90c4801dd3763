package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/fulfillment-backend/api/responses"
	"github.com/angelmondragon/fulfillment-backend/api/validators"
	"github.com/angelmondragon/fulfillment-backend/internal/notifications"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
)

// inboxHandler is a notifications endpoint that already knows its caller.
type inboxHandler func(w http.ResponseWriter, r *http.Request, userID uuid.UUID) error

// inbox guards the service and resolves the caller before running fn.
func inbox(svc notifications.Service, logg *logger.Logger, fn inboxHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("notifications"))
			return
		}
		userID, err := currentUserID(r)
		if err == nil {
			err = fn(w, r, userID)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
		}
	}
}

// ListNotifications pages through the caller's inbox. ?unreadOnly=true hides
// read rows; the unread count always covers the whole inbox.
func ListNotifications(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return inbox(svc, logg, func(w http.ResponseWriter, r *http.Request, userID uuid.UUID) error {
		page, err := pageParams(r)
		if err != nil {
			return err
		}
		unreadOnly, err := validators.ParseQueryBool(r, "unreadOnly", false)
		if err != nil {
			return err
		}

		result, err := svc.List(r.Context(), notifications.ListParams{
			UserID:     userID,
			Limit:      page.Limit,
			Cursor:     page.Cursor,
			UnreadOnly: unreadOnly,
		})
		if err != nil {
			return err
		}
		responses.WriteSuccess(w, result)
		return nil
	})
}

func MarkNotificationRead(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return inbox(svc, logg, func(w http.ResponseWriter, r *http.Request, userID uuid.UUID) error {
		notificationID, err := uuidParam(r, "notificationId", "notification id")
		if err != nil {
			return err
		}
		if err := svc.MarkRead(r.Context(), userID, notificationID); err != nil {
			return err
		}
		responses.WriteSuccess(w, map[string]bool{"read": true})
		return nil
	})
}

func MarkAllNotificationsRead(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return inbox(svc, logg, func(w http.ResponseWriter, r *http.Request, userID uuid.UUID) error {
		updated, err := svc.MarkAllRead(r.Context(), userID)
		if err != nil {
			return err
		}
		responses.WriteSuccess(w, map[string]int64{"updated": updated})
		return nil
	})
}
