// database/migrate.go
package database

import (
	"wms-allocation/models"

	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Product{},
		&models.Lot{},
		&models.OrderHeader{},
		&models.OrderItem{},
		&models.AllocationBatch{},
		&models.Allocation{},
		&models.TransactionHistory{},
	)
}
