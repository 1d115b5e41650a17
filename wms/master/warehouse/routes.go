package warehouse

import (
	"wms-allocation/config"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

func SetupWarehouseRoutes(app *fiber.App, db *gorm.DB) {
	api := app.Group(config.MAIN_ROUTES + "/warehouses")
	warehouseHandler := NewWarehouseHandler(db)

	api.Get("/", warehouseHandler.GetAllWarehouses)
	api.Post("/", warehouseHandler.CreateWarehouse)
}
