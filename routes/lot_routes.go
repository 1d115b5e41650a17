package routes

import (
	"wms-allocation/config"
	"wms-allocation/controllers"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

func SetupLotRoutes(app *fiber.App, db *gorm.DB) {
	lotController := controllers.NewLotController(db)
	api := app.Group(config.MAIN_ROUTES + "/lots")

	api.Get("/", lotController.GetLots)
	api.Get("/strategies", lotController.GetStrategies)
	api.Post("/receive", lotController.ReceiveLot)
	api.Post("/adjust", lotController.AdjustLot)
}
