package models

import "gorm.io/gorm"

type Product struct {
	gorm.Model
	ItemCode  string `json:"item_code" gorm:"unique"`
	ItemName  string `json:"item_name"`
	Barcode   string `json:"barcode" gorm:"unique"`
	Uom       string `json:"uom"`
	Category  string `json:"category"`
	HasExpiry string `json:"has_expiry" gorm:"default:'N'"`
	Remarks   string `json:"remarks"`
	CreatedBy int
	UpdatedBy int
	DeletedBy int
}
