package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
)

// TuningFile is an uploaded file moving through the processing workflow.
type TuningFile struct {
	ID                      uuid.UUID        `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID                  uuid.UUID        `gorm:"column:user_id;type:uuid;not null" json:"user_id"`
	FileName                string           `gorm:"column:file_name;not null" json:"file_name"`
	Status                  enums.FileStatus `gorm:"column:status;not null" json:"status"`
	EstimatedProcessingTime *int             `gorm:"column:estimated_processing_time" json:"estimated_processing_time,omitempty"`
	EstimateSetAt           *time.Time       `gorm:"column:estimate_set_at" json:"estimate_set_at,omitempty"`
	CreatedAt               time.Time        `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt               time.Time        `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
