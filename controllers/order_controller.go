package controllers

import (
	"errors"

	"wms-allocation/models"
	"wms-allocation/repositories"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type OrderController struct {
	DB *gorm.DB
}

func NewOrderController(DB *gorm.DB) *OrderController {
	return &OrderController{DB: DB}
}

type OrderPayload struct {
	CustomerRef string             `json:"customer_ref"`
	Remarks     string             `json:"remarks"`
	Items       []OrderItemPayload `json:"items" validate:"required,min=1,dive"`
}

type OrderItemPayload struct {
	ItemCode string `json:"item_code" validate:"required"`
	Quantity int    `json:"quantity" validate:"required,gt=0"`
	WhsCode  string `json:"whs_code"`
	Remarks  string `json:"remarks"`
}

func (c *OrderController) CreateOrder(ctx *fiber.Ctx) error {
	var payload OrderPayload
	if err := ctx.BodyParser(&payload); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid payload",
			"error":   err.Error(),
		})
	}
	if err := validate.Struct(payload); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	actor := actorID(ctx)

	header := models.OrderHeader{
		CustomerRef: payload.CustomerRef,
		Remarks:     payload.Remarks,
		CreatedBy:   actor,
		UpdatedBy:   actor,
	}

	items := make([]models.OrderItem, 0, len(payload.Items))
	for _, it := range payload.Items {
		var product models.Product
		if err := c.DB.First(&product, "item_code = ?", it.ItemCode).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"error": "Item " + it.ItemCode + " not found",
				})
			}
			return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		items = append(items, models.OrderItem{
			ItemID:   int(product.ID),
			ItemCode: product.ItemCode,
			Quantity: it.Quantity,
			WhsCode:  it.WhsCode,
			Uom:      product.Uom,
			Remarks:  it.Remarks,
		})
	}

	orderRepo := repositories.NewOrderRepository(c.DB)
	if err := orderRepo.CreateOrder(&header, items); err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to create order",
			"error":   err.Error(),
		})
	}

	return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": "Order created successfully",
		"data": fiber.Map{
			"order_id": header.ID,
			"order_no": header.OrderNo,
		},
	})
}

func (c *OrderController) GetOrders(ctx *fiber.Ctx) error {
	orderRepo := repositories.NewOrderRepository(c.DB)
	orders, err := orderRepo.GetOrders()
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": "Orders retrieved successfully",
		"data":    orders,
	})
}

func (c *OrderController) GetOrderByNo(ctx *fiber.Ctx) error {
	orderRepo := repositories.NewOrderRepository(c.DB)
	order, err := orderRepo.GetOrderByNo(ctx.Params("order_no"))
	if err != nil {
		if errors.Is(err, repositories.ErrOrderNotFound) {
			return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		}
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": "Order found",
		"data":    order,
	})
}
