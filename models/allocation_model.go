package models

import (
	"wms-allocation/controllers/idgen"
	"wms-allocation/types"

	"gorm.io/gorm"
)

// Canonical allocation statuses. A batch moves
// pending -> confirmed -> fulfilling -> fulfilled, or to cancelled from any
// non-terminal state. Rows additionally start as partially_allocated when
// their demand line had a planned shortfall.
const (
	AllocationStatusPending    = "pending"
	AllocationStatusPartial    = "partially_allocated"
	AllocationStatusConfirmed  = "confirmed"
	AllocationStatusFulfilling = "fulfilling"
	AllocationStatusFulfilled  = "fulfilled"
	AllocationStatusCancelled  = "cancelled"
)

// AllocationBatch groups the allocation rows produced for one order in one
// allocation request; the review/confirm state machine runs on the batch.
type AllocationBatch struct {
	gorm.Model
	ID        types.SnowflakeID `json:"ID" gorm:"primaryKey"`
	BatchRef  string            `json:"batch_ref" gorm:"unique"`
	OrderID   types.SnowflakeID `json:"order_id" gorm:"index"`
	OrderNo   string            `json:"order_no"`
	Strategy  string            `json:"strategy"`
	Status    string            `json:"status" gorm:"default:'pending'"`
	CreatedBy int
	UpdatedBy int
	DeletedBy int

	Allocations []Allocation `gorm:"foreignKey:BatchID;references:ID;constraint:OnDelete:CASCADE" json:"allocations"`
}

func (b *AllocationBatch) BeforeCreate(tx *gorm.DB) (err error) {
	if b.ID == 0 {
		b.ID = types.SnowflakeID(idgen.GenerateID())
	}
	return nil
}

// Allocation binds one order item to one lot with the quantity drawn from it.
type Allocation struct {
	gorm.Model
	ID           types.SnowflakeID `json:"ID" gorm:"primaryKey"`
	BatchID      types.SnowflakeID `json:"batch_id" gorm:"index"`
	OrderID      types.SnowflakeID `json:"order_id" gorm:"index"`
	OrderItemID  types.SnowflakeID `json:"order_item_id"`
	LotID        types.SnowflakeID `json:"lot_id" gorm:"index"`
	LotNumber    string            `json:"lot_number"`
	WhsCode      string            `json:"whs_code"`
	ItemID       int               `json:"item_id"`
	ItemCode     string            `json:"item_code"`
	QtyAllocated int               `json:"qty_allocated"`
	Strategy     string            `json:"strategy"`
	Status       string            `json:"status" gorm:"default:'pending'"`
	CreatedBy    int
	UpdatedBy    int
	DeletedBy    int
}

func (a *Allocation) BeforeCreate(tx *gorm.DB) (err error) {
	if a.ID == 0 {
		a.ID = types.SnowflakeID(idgen.GenerateID())
	}
	return nil
}

// IsTerminal reports whether the row has reached a final state and must not
// touch the ledger again.
func (a *Allocation) IsTerminal() bool {
	return a.Status == AllocationStatusFulfilled || a.Status == AllocationStatusCancelled
}
