package models

import (
	"time"

	"github.com/google/uuid"
)

// CourseEnrollment links a user to a course bought through an order.
type CourseEnrollment struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null"`
	CourseID  uuid.UUID `gorm:"column:course_id;type:uuid;not null"`
	OrderID   uuid.UUID `gorm:"column:order_id;type:uuid;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
