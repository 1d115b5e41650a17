package warehouse

import (
	"gorm.io/gorm"
)

func SeedWarehouses(db *gorm.DB) {
	warehouses := []Warehouse{
		{Code: "WH1", Name: "Main Warehouse", Address: "Jl. Raya Industri No. 1"},
		{Code: "WH2", Name: "Overflow Warehouse", Address: "Jl. Raya Industri No. 8"},
	}

	for _, w := range warehouses {
		var existing Warehouse
		if err := db.Where("code = ?", w.Code).First(&existing).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				db.Create(&w)
			}
		}
	}
}
