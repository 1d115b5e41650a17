package models

import (
	"time"

	"wms-allocation/controllers/idgen"
	"wms-allocation/types"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Lot lifecycle statuses. Transitions to "expired" are stamped by a
// housekeeping job, not by the allocator; the selector still checks the
// expiry date itself so a stale status never leaks expired stock.
const (
	LotStatusInStock     = "in_stock"
	LotStatusUnassigned  = "unassigned"
	LotStatusDamaged     = "damaged"
	LotStatusSuspended   = "suspended"
	LotStatusExpired     = "expired"
	LotStatusUnavailable = "unavailable"
)

// Lot is one physical receipt of an item at a warehouse.
// Invariant: 0 <= qty_reserved <= qty_onhand.
type Lot struct {
	gorm.Model
	ID              types.SnowflakeID `json:"ID" gorm:"primaryKey"`
	LotNumber       string            `json:"lot_number" gorm:"uniqueIndex:idx_lot_whs"`
	WhsCode         string            `json:"whs_code" gorm:"uniqueIndex:idx_lot_whs"`
	ItemID          int               `json:"item_id" gorm:"index"`
	ItemCode        string            `json:"item_code"`
	QtyOnhand       int               `json:"qty_onhand" gorm:"default:0"`
	QtyReserved     int               `json:"qty_reserved" gorm:"default:0"`
	ExpiryDate      *time.Time        `json:"expiry_date" gorm:"default:null"`
	ManufactureDate *time.Time        `json:"manufacture_date" gorm:"default:null"`
	InboundDate     time.Time         `json:"inbound_date"`
	UnitCost        decimal.Decimal   `json:"unit_cost" gorm:"type:decimal(18,4);default:0"`
	Status          string            `json:"status" gorm:"default:'in_stock'"`
	Remarks         string            `json:"remarks"`
	CreatedBy       int
	UpdatedBy       int
	DeletedBy       int
}

func (l *Lot) BeforeCreate(tx *gorm.DB) (err error) {
	if l.ID == 0 {
		l.ID = types.SnowflakeID(idgen.GenerateID())
	}
	return nil
}

// Available is the quantity open for new reservations.
func (l *Lot) Available() int {
	return l.QtyOnhand - l.QtyReserved
}

func (l *Lot) IsExpiredAt(t time.Time) bool {
	if l.ExpiryDate == nil {
		return false
	}
	return l.ExpiryDate.Before(t)
}

// Allocatable reports whether the lot may back a new reservation as of t.
func (l *Lot) Allocatable(t time.Time) bool {
	if l.Status != LotStatusInStock {
		return false
	}
	if l.IsExpiredAt(t) {
		return false
	}
	return l.Available() > 0
}
