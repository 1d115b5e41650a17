package routes

import (
	"wms-allocation/config"
	"wms-allocation/controllers"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

func SetupAllocationRoutes(app *fiber.App, db *gorm.DB) {
	allocationController := controllers.NewAllocationController(db)
	api := app.Group(config.MAIN_ROUTES + "/inventory-allocations")

	api.Post("/allocate/:order_id", allocationController.AllocateOrder)
	api.Post("/review/:order_id", allocationController.ReviewAllocation)
	api.Get("/review/:order_id", allocationController.ReviewAllocation)
	api.Post("/confirm/:order_id", allocationController.ConfirmAllocation)
	api.Post("/fulfill/:order_id", allocationController.BeginFulfillment)
	api.Post("/fulfill/complete/:order_id", allocationController.CompleteFulfillment)
	api.Post("/cancel/:order_id", allocationController.CancelAllocation)
}
