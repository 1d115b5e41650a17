package main

import (
	"fmt"
	"log"

	"wms-allocation/config"
	"wms-allocation/controllers/idgen"
	"wms-allocation/database"
	"wms-allocation/routes"
	"wms-allocation/wms/master/warehouse"

	"github.com/gofiber/fiber/v2"
)

func main() {

	app := fiber.New()

	config.LoadConfig()

	database.EnsureDatabaseExists(config.DBName)

	db, err := database.OpenDatabaseConnection(config.DBName)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to auto migrate: %v", err)
	}
	if err := db.AutoMigrate(&warehouse.Warehouse{}); err != nil {
		log.Fatalf("Failed to auto migrate warehouse master: %v", err)
	}

	idgen.Init()
	database.RunSeeders(db)
	warehouse.SeedWarehouses(db)

	config.SetupCORS(app)

	routes.SetupOrderRoutes(app, db)
	routes.SetupLotRoutes(app, db)
	routes.SetupAllocationRoutes(app, db)
	warehouse.SetupWarehouseRoutes(app, db)

	port := config.APP_PORT
	fmt.Println("🚀 Server running on port " + port)

	if err := app.Listen(":" + port); err != nil {
		log.Fatal(err)
	}
}
