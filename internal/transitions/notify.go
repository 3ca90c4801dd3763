package transitions

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/fulfillment-backend/internal/notifications"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	"github.com/angelmondragon/fulfillment-backend/pkg/telegram"
)

// afterFileChange runs the post-commit side effects of a file transition. Each
// one is isolated; none can fail the already committed change.
func (c *Controller) afterFileChange(ctx context.Context, result *Result, file *models.TuningFile, actor Actor, msg *ChatMessageRef, detail string) {
	title := fmt.Sprintf("File %s is %s", file.FileName, file.Status)
	link := "/files/" + file.ID.String()

	result.Steps = append(result.Steps, c.runner.Run(ctx, "notify_customer", func(ctx context.Context) error {
		return c.notify.NotifyCustomer(ctx, file.UserID, notifications.Event{
			Type:    enums.NotificationTypeFileStatus,
			Title:   title,
			Message: detail,
			Link:    &link,
		})
	}))
	result.Steps = append(result.Steps, c.runner.Run(ctx, "realtime_push", func(ctx context.Context) error {
		return c.realtime.SendToUser(ctx, file.UserID, RealtimeEvent{
			Type:     "file_status",
			EntityID: file.ID,
			Status:   string(file.Status),
		})
	}))
	if actor.Source == SourceWebhook && msg != nil && c.chat != nil {
		result.Steps = append(result.Steps, c.runner.Run(ctx, "chat_message_edit", func(ctx context.Context) error {
			return c.chat.EditMessageText(ctx, msg.ChatID, msg.MessageID, fileChatText(file, detail), c.fileKeyboard(file))
		}))
	}
	adminLink := "/admin/files/" + file.ID.String()
	result.Steps = append(result.Steps, c.runner.Run(ctx, "notify_admins", func(ctx context.Context) error {
		return c.notify.NotifyAdmins(ctx, notifications.Event{
			Type:    enums.NotificationTypeFileStatus,
			Title:   title,
			Message: fmt.Sprintf("%s Changed by %s.", detail, actor.ID),
			Link:    &adminLink,
		})
	}))
}

// afterOrderChange runs the post-commit side effects of an order or COD transition.
func (c *Controller) afterOrderChange(ctx context.Context, result *Result, order *models.Order, kind string) {
	title := fmt.Sprintf("Order %s is %s", order.OrderNumber, result.NewStatus)
	if order.UserID != nil {
		userID := *order.UserID
		link := "/orders/" + order.ID.String()
		result.Steps = append(result.Steps, c.runner.Run(ctx, "notify_customer", func(ctx context.Context) error {
			return c.notify.NotifyCustomer(ctx, userID, notifications.Event{
				Type:    enums.NotificationTypeOrderStatus,
				Title:   title,
				Message: fmt.Sprintf("Your order moved from %s to %s.", result.OldStatus, result.NewStatus),
				Link:    &link,
			})
		}))
		result.Steps = append(result.Steps, c.runner.Run(ctx, "realtime_push", func(ctx context.Context) error {
			return c.realtime.SendToUser(ctx, userID, RealtimeEvent{
				Type:     kind,
				EntityID: order.ID,
				Status:   result.NewStatus,
			})
		}))
	}
	adminLink := "/admin/orders/" + order.ID.String()
	result.Steps = append(result.Steps, c.runner.Run(ctx, "notify_admins", func(ctx context.Context) error {
		return c.notify.NotifyAdmins(ctx, notifications.Event{
			Type:    enums.NotificationTypeOrderStatus,
			Title:   title,
			Message: fmt.Sprintf("%s changed from %s to %s.", strings.ReplaceAll(kind, "_", " "), result.OldStatus, result.NewStatus),
			Link:    &adminLink,
		})
	}))
}

func fileChatText(file *models.TuningFile, detail string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "File: %s\nStatus: %s", file.FileName, file.Status)
	if file.EstimatedProcessingTime != nil {
		fmt.Fprintf(&b, "\nETA: %d min", *file.EstimatedProcessingTime)
	}
	b.WriteString("\n")
	b.WriteString(detail)
	return b.String()
}

// fileKeyboard offers the statuses reachable from the file's new state. READY
// files get no buttons.
func (c *Controller) fileKeyboard(file *models.TuningFile) *telegram.InlineKeyboard {
	next := NextFileStatuses(file.Status)
	if len(next) == 0 {
		return nil
	}
	row := make([]telegram.InlineButton, 0, len(next))
	for _, status := range next {
		row = append(row, telegram.InlineButton{
			Text:         string(status),
			CallbackData: CallbackData(c.namespace, file.ID.String(), status),
		})
	}
	return &telegram.InlineKeyboard{Rows: [][]telegram.InlineButton{row}}
}

// CallbackData encodes a status button as <namespace>_status_<fileId>_<STATUS>.
func CallbackData(namespace, fileID string, status enums.FileStatus) string {
	return namespace + "_status_" + fileID + "_" + string(status)
}
