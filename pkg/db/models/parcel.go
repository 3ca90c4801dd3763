package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
)

// Parcel mirrors the carrier shipment record for a COD order.
type Parcel struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderID       *uuid.UUID      `gorm:"column:order_id;type:uuid;uniqueIndex:ux_parcels_order_id" json:"order_id,omitempty"`
	LegacyOrderID *string         `gorm:"column:legacy_order_id" json:"legacy_order_id,omitempty"`
	Tracking      *string         `gorm:"column:tracking" json:"tracking,omitempty"`
	Firstname     string          `gorm:"column:firstname;not null" json:"firstname"`
	Familyname    string          `gorm:"column:familyname;not null" json:"familyname"`
	ContactPhone  string          `gorm:"column:contact_phone;not null" json:"contact_phone"`
	Address       string          `gorm:"column:address;not null" json:"address"`
	ToWilayaName  string          `gorm:"column:to_wilaya_name;not null" json:"to_wilaya_name"`
	ToCommuneName string          `gorm:"column:to_commune_name;not null" json:"to_commune_name"`
	IsStopdesk    bool            `gorm:"column:is_stopdesk;not null" json:"is_stopdesk"`
	StopdeskID    *int64          `gorm:"column:stopdesk_id" json:"stopdesk_id,omitempty"`
	Freeshipping  bool            `gorm:"column:freeshipping;not null" json:"freeshipping"`
	Price         int64           `gorm:"column:price;not null" json:"price"`
	ProductList   string          `gorm:"column:product_list;not null" json:"product_list"`
	Status        enums.CODStatus `gorm:"column:status;not null" json:"status"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
