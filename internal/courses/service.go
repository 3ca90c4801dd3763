package courses

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/pkg/db"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
)

// Service enrolls buyers into the courses mapped from purchased products.
type Service struct {
	db *gorm.DB
}

// NewService builds a course enroller.
func NewService(conn *gorm.DB) (*Service, error) {
	if conn == nil {
		return nil, fmt.Errorf("database required")
	}
	return &Service{db: conn}, nil
}

// EnrollFromOrder enrolls userID in every course linked to a product of the
// order and returns the enrollments created by this call. Existing enrollments
// for the same user and course are left as they are.
func (s *Service) EnrollFromOrder(ctx context.Context, orderID, userID uuid.UUID) ([]models.CourseEnrollment, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required for course enrollment")
	}

	var courseIDs []uuid.UUID
	err := s.db.WithContext(ctx).
		Model(&models.Product{}).
		Joins("JOIN order_items ON order_items.product_id = products.id").
		Where("order_items.order_id = ? AND products.course_id IS NOT NULL", orderID).
		Pluck("products.course_id", &courseIDs).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve courses for order")
	}

	var created []models.CourseEnrollment
	seen := make(map[uuid.UUID]struct{}, len(courseIDs))
	for _, courseID := range courseIDs {
		if _, dup := seen[courseID]; dup {
			continue
		}
		seen[courseID] = struct{}{}
		var existing int64
		if err := s.db.WithContext(ctx).
			Model(&models.CourseEnrollment{}).
			Where("user_id = ? AND course_id = ?", userID, courseID).
			Count(&existing).Error; err != nil {
			return created, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check enrollment")
		}
		if existing > 0 {
			continue
		}
		enrollment := models.CourseEnrollment{
			ID:       uuid.New(),
			UserID:   userID,
			CourseID: courseID,
			OrderID:  orderID,
		}
		if err := s.db.WithContext(ctx).Create(&enrollment).Error; err != nil {
			if db.IsUniqueViolation(err, "") {
				continue
			}
			return created, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create enrollment")
		}
		created = append(created, enrollment)
	}
	return created, nil
}
