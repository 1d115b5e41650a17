package models

import (
	"wms-allocation/controllers/idgen"
	"wms-allocation/types"

	"gorm.io/gorm"
)

// Order header statuses driven by the allocation lifecycle.
const (
	OrderStatusOpen       = "open"
	OrderStatusAllocated  = "allocated"
	OrderStatusPartial    = "partially_allocated"
	OrderStatusConfirmed  = "confirmed"
	OrderStatusFulfilling = "fulfilling"
	OrderStatusCompleted  = "completed"
)

type OrderHeader struct {
	gorm.Model
	ID          types.SnowflakeID `json:"ID" gorm:"primaryKey"`
	OrderNo     string            `json:"order_no" gorm:"unique"`
	OrderDate   string            `json:"order_date"`
	CustomerRef string            `json:"customer_ref"`
	Status      string            `json:"status" gorm:"default:'open'"`
	Remarks     string            `json:"remarks"`
	CreatedBy   int
	UpdatedBy   int
	DeletedBy   int

	Items []OrderItem `gorm:"foreignKey:OrderID;references:ID;constraint:OnDelete:CASCADE" json:"items"`
}

func (o *OrderHeader) BeforeCreate(tx *gorm.DB) (err error) {
	if o.ID == 0 {
		o.ID = types.SnowflakeID(idgen.GenerateID())
	}
	return nil
}

// OrderItem is one demand line. Quantity is immutable once allocation for
// the order has begun; edits go through a separate order-edit flow.
type OrderItem struct {
	gorm.Model
	ID           types.SnowflakeID `json:"ID" gorm:"primaryKey"`
	OrderID      types.SnowflakeID `json:"order_id" gorm:"index"`
	OrderNo      string            `json:"order_no"`
	ItemID       int               `json:"item_id"`
	ItemCode     string            `json:"item_code"`
	Quantity     int               `json:"quantity"`
	QtyAllocated int               `json:"qty_allocated" gorm:"default:0"`
	WhsCode      string            `json:"whs_code"` // optional scope, empty means any warehouse
	Uom          string            `json:"uom"`
	Remarks      string            `json:"remarks"`
	CreatedBy    int
	UpdatedBy    int
	DeletedBy    int
}

func (i *OrderItem) BeforeCreate(tx *gorm.DB) (err error) {
	if i.ID == 0 {
		i.ID = types.SnowflakeID(idgen.GenerateID())
	}
	return nil
}
