// database/seeder.go
package database

import (
	"time"

	"wms-allocation/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func RunSeeders(db *gorm.DB) {
	SeedProducts(db)
	SeedLots(db)
}

func SeedProducts(db *gorm.DB) {
	products := []models.Product{
		{ItemCode: "MED-AMX-500", ItemName: "Amoxicillin 500mg", Barcode: "8991002300011", Uom: "BOX", Category: "PHARMA", HasExpiry: "Y"},
		{ItemCode: "MED-PCM-650", ItemName: "Paracetamol 650mg", Barcode: "8991002300028", Uom: "BOX", Category: "PHARMA", HasExpiry: "Y"},
		{ItemCode: "PKG-CTN-S", ItemName: "Carton Small", Barcode: "8991002300035", Uom: "PCS", Category: "PACKAGING", HasExpiry: "N"},
	}

	for _, p := range products {
		var existing models.Product
		if err := db.Where("item_code = ?", p.ItemCode).First(&existing).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				db.Create(&p)
			}
		}
	}
}

func SeedLots(db *gorm.DB) {
	var count int64
	db.Model(&models.Lot{}).Count(&count)
	if count > 0 {
		return
	}

	expiry := func(daysAhead int) *time.Time {
		t := time.Now().AddDate(0, 0, daysAhead)
		return &t
	}

	var products []models.Product
	db.Find(&products)

	for _, p := range products {
		lots := []models.Lot{
			{
				ItemID: int(p.ID), ItemCode: p.ItemCode, WhsCode: "WH1",
				LotNumber: "LT" + time.Now().Format("060102") + "0001-" + p.ItemCode,
				QtyOnhand: 100, InboundDate: time.Now().AddDate(0, -2, 0),
				UnitCost: decimal.NewFromInt(25), Status: models.LotStatusInStock,
			},
			{
				ItemID: int(p.ID), ItemCode: p.ItemCode, WhsCode: "WH2",
				LotNumber: "LT" + time.Now().Format("060102") + "0002-" + p.ItemCode,
				QtyOnhand: 50, InboundDate: time.Now().AddDate(0, -1, 0),
				UnitCost: decimal.NewFromInt(27), Status: models.LotStatusInStock,
			},
		}
		if p.HasExpiry == "Y" {
			lots[0].ExpiryDate = expiry(120)
			lots[1].ExpiryDate = expiry(365)
		}
		for _, lot := range lots {
			db.Create(&lot)
		}
	}
}
