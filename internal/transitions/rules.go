package transitions

import (
	"strconv"

	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
)

// Source tells who initiated a transition.
type Source string

const (
	SourceAdmin   Source = "admin"
	SourceWebhook Source = "webhook"
)

// Fixed actor ids for webhook-originated transitions.
const (
	ActorTelegramBot    = "telegram-bot"
	ActorFileAdminBot   = "file-admin-bot"
	ActorCarrierWebhook = "carrier-webhook"
)

// Actor identifies the caller of a transition.
type Actor struct {
	ID     string
	Role   enums.Role
	Source Source
}

// AdminActor builds an actor for an authenticated admin API caller.
func AdminActor(id string, role enums.Role) Actor {
	return Actor{ID: id, Role: role, Source: SourceAdmin}
}

// WebhookActor builds an actor for one of the fixed webhook identities.
func WebhookActor(id string) Actor {
	return Actor{ID: id, Source: SourceWebhook}
}

func (a Actor) authorize() error {
	switch a.Source {
	case SourceAdmin:
		if a.ID == "" {
			return pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
		}
		if !a.Role.IsAdmin() {
			return pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
		}
		return nil
	case SourceWebhook:
		if a.ID == "" {
			return pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook actor missing")
		}
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "unknown actor source")
}

func (a Actor) role() string {
	if a.Source == SourceWebhook {
		return "system"
	}
	return string(a.Role)
}

var fileEdges = map[enums.FileStatus][]enums.FileStatus{
	enums.FileStatusReceived: {enums.FileStatusPending, enums.FileStatusReady},
	enums.FileStatusPending:  {enums.FileStatusPending, enums.FileStatusReady},
}

var orderEdges = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:    {enums.OrderStatusProcessing, enums.OrderStatusShipped, enums.OrderStatusCancelled},
	enums.OrderStatusProcessing: {enums.OrderStatusShipped, enums.OrderStatusDelivered, enums.OrderStatusCancelled},
	enums.OrderStatusShipped:    {enums.OrderStatusDelivered, enums.OrderStatusCancelled},
}

var codEdges = map[enums.CODStatus][]enums.CODStatus{
	enums.CODStatusPending:    {enums.CODStatusSubmitted, enums.CODStatusCancelled},
	enums.CODStatusSubmitted:  {enums.CODStatusDispatched, enums.CODStatusFailed, enums.CODStatusCancelled},
	enums.CODStatusDispatched: {enums.CODStatusDelivered, enums.CODStatusFailed, enums.CODStatusCancelled},
}

// Values webhooks may submit. Anything else is rejected before lookup.
var (
	webhookFileStatuses = []enums.FileStatus{enums.FileStatusReceived, enums.FileStatusPending, enums.FileStatusReady}
	webhookCODStatuses  = []enums.CODStatus{
		enums.CODStatusSubmitted,
		enums.CODStatusDispatched,
		enums.CODStatusDelivered,
		enums.CODStatusFailed,
		enums.CODStatusCancelled,
	}
	webhookOrderStatuses = []enums.OrderStatus{
		enums.OrderStatusProcessing,
		enums.OrderStatusShipped,
		enums.OrderStatusDelivered,
		enums.OrderStatusCancelled,
	}
)

func contains[T comparable](values []T, target T) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

// checkEdge applies the shared policy: terminal origins never move, webhooks
// follow edges, admins may force any valid target.
func checkEdge[T comparable](edges map[T][]T, from, to T, source Source) error {
	next, open := edges[from]
	if !open {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "status is terminal")
	}
	if source == SourceWebhook && !contains(next, to) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "transition not allowed")
	}
	return nil
}

// NextFileStatuses lists the targets offered as chat buttons after a change.
func NextFileStatuses(from enums.FileStatus) []enums.FileStatus {
	var out []enums.FileStatus
	for _, to := range fileEdges[from] {
		if to != from {
			out = append(out, to)
		}
	}
	return out
}

func parseFileTarget(raw string, source Source) (enums.FileStatus, error) {
	status, err := enums.ParseFileStatus(raw)
	if err != nil || (source == SourceWebhook && !contains(webhookFileStatuses, status)) {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "unsupported file status "+strconv.Quote(raw))
	}
	return status, nil
}

func parseOrderTarget(raw string, source Source) (enums.OrderStatus, error) {
	status, err := enums.ParseOrderStatus(raw)
	if err != nil || (source == SourceWebhook && !contains(webhookOrderStatuses, status)) {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "unsupported order status "+strconv.Quote(raw))
	}
	return status, nil
}

func parseCODTarget(raw string, source Source) (enums.CODStatus, error) {
	status, err := enums.ParseCODStatus(raw)
	if err != nil || (source == SourceWebhook && !contains(webhookCODStatuses, status)) {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "unsupported cod status "+strconv.Quote(raw))
	}
	return status, nil
}
