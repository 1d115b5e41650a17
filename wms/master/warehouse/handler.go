package warehouse

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type WarehouseHandler struct {
	DB *gorm.DB
}

func NewWarehouseHandler(db *gorm.DB) *WarehouseHandler {
	return &WarehouseHandler{DB: db}
}

func (h *WarehouseHandler) GetAllWarehouses(ctx *fiber.Ctx) error {
	var warehouses []Warehouse
	if err := h.DB.Find(&warehouses).Error; err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to retrieve warehouses",
		})
	}
	return ctx.JSON(fiber.Map{
		"success": true,
		"message": "Warehouses retrieved successfully",
		"data":    warehouses,
	})
}

func (h *WarehouseHandler) CreateWarehouse(ctx *fiber.Ctx) error {
	var payload Warehouse
	if err := ctx.BodyParser(&payload); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid payload",
		})
	}
	if payload.Code == "" || payload.Name == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Code and name are required",
		})
	}

	if err := h.DB.Create(&payload).Error; err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create warehouse",
		})
	}

	return ctx.JSON(fiber.Map{
		"success": true,
		"message": "Warehouse created successfully",
		"data":    payload,
	})
}
