package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/pagination"
)

// Entry describes one state change to record.
type Entry struct {
	EntityType enums.AuditEntityType
	EntityID   uuid.UUID
	ActorID    string
	Action     enums.AuditAction
	OldValue   *string
	NewValue   *string
}

// Page is one page of audit history, newest first.
type Page = pagination.Page[models.AuditLog]

// Service reads audit history for the admin API.
type Service interface {
	List(ctx context.Context, entityType enums.AuditEntityType, entityID uuid.UUID, params pagination.Params) (*Page, error)
}

type service struct {
	repo Repository
}

// NewService wires the audit reader.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("audit repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) List(ctx context.Context, entityType enums.AuditEntityType, entityID uuid.UUID, params pagination.Params) (*Page, error) {
	if !entityType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid entity type")
	}
	if entityID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "entity id required")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, entityType, entityID, pagination.LimitWithBuffer(params.Limit), cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list audit logs")
	}
	page := pagination.Trim(rows, params.Limit, func(row models.AuditLog) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})
	return &page, nil
}

// Record writes entry through repo, which must be bound to the caller's
// transaction or savepoint.
func Record(ctx context.Context, repo Repository, entry Entry) error {
	if entry.ActorID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "audit actor required")
	}
	row := &models.AuditLog{
		ID:         uuid.New(),
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		ActorID:    entry.ActorID,
		Action:     entry.Action,
		OldValue:   entry.OldValue,
		NewValue:   entry.NewValue,
	}
	if err := repo.Create(ctx, row); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write audit log")
	}
	return nil
}
