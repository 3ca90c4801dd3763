package notifications

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/telegram"
)

// Event is a notification about something that happened to an order or file.
type Event struct {
	Type    enums.NotificationType
	Title   string
	Message string
	Link    *string
}

// Dispatcher delivers customer and admin notifications. Callers treat every
// error as non-fatal.
type Dispatcher interface {
	NotifyCustomer(ctx context.Context, userID uuid.UUID, event Event) error
	NotifyAdmins(ctx context.Context, event Event) error
}

// ChatSender posts plain messages to an admin chat.
type ChatSender interface {
	SendMessage(ctx context.Context, chatID int64, text string, markup *telegram.InlineKeyboard) error
}

type dispatcher struct {
	repo    Repository
	chat    ChatSender
	chatIDs []int64
	logg    *logger.Logger
}

// NewDispatcher persists notifications and fans admin events out to the
// configured chats. chat may be nil when no bot token is configured.
func NewDispatcher(repo Repository, chat ChatSender, chatIDs []int64, logg *logger.Logger) (Dispatcher, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &dispatcher{repo: repo, chat: chat, chatIDs: chatIDs, logg: logg}, nil
}

func (d *dispatcher) NotifyCustomer(ctx context.Context, userID uuid.UUID, event Event) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	if err := validateEvent(event); err != nil {
		return err
	}
	row := &models.Notification{
		ID:       uuid.New(),
		UserID:   &userID,
		Audience: enums.AudienceCustomer,
		Type:     event.Type,
		Title:    event.Title,
		Message:  event.Message,
		Link:     event.Link,
	}
	if err := d.repo.Create(ctx, row); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist customer notification")
	}
	return nil
}

// NotifyAdmins stores one row in the admin pool and messages every admin chat.
// A failing chat does not stop the others; all failures are combined.
func (d *dispatcher) NotifyAdmins(ctx context.Context, event Event) error {
	if err := validateEvent(event); err != nil {
		return err
	}
	var errs error
	row := &models.Notification{
		ID:       uuid.New(),
		Audience: enums.AudienceAdmin,
		Type:     event.Type,
		Title:    event.Title,
		Message:  event.Message,
		Link:     event.Link,
	}
	if err := d.repo.Create(ctx, row); err != nil {
		errs = multierr.Append(errs, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist admin notification"))
	}

	if d.chat == nil || len(d.chatIDs) == 0 {
		return errs
	}
	text := formatChatMessage(event)
	for _, chatID := range d.chatIDs {
		if err := d.chat.SendMessage(ctx, chatID, text, nil); err != nil {
			d.logg.WarnErr(d.logg.WithField(ctx, "chat_id", chatID), "admin chat notification failed", err)
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func validateEvent(event Event) error {
	if !event.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid notification type")
	}
	if strings.TrimSpace(event.Title) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification title required")
	}
	return nil
}

func formatChatMessage(event Event) string {
	var b strings.Builder
	b.WriteString(event.Title)
	if event.Message != "" {
		b.WriteString("\n")
		b.WriteString(event.Message)
	}
	if event.Link != nil && *event.Link != "" {
		b.WriteString("\n")
		b.WriteString(*event.Link)
	}
	return b.String()
}
