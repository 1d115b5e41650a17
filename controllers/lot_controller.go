package controllers

import (
	"errors"
	"strconv"
	"time"

	"wms-allocation/models"
	"wms-allocation/repositories"
	"wms-allocation/services"
	"wms-allocation/types"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type LotController struct {
	DB *gorm.DB
}

func NewLotController(DB *gorm.DB) *LotController {
	return &LotController{DB: DB}
}

func (c *LotController) GetLots(ctx *fiber.Ctx) error {
	lotRepo := repositories.NewLotRepository(c.DB)
	lots, err := lotRepo.GetLots(repositories.LotFilter{
		ItemCode: ctx.Query("item_code"),
		WhsCode:  ctx.Query("whs_code"),
		Status:   ctx.Query("status"),
	})
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": "Lots retrieved successfully",
		"data":    lots,
	})
}

type ReceiveLotPayload struct {
	ItemCode        string `json:"item_code" validate:"required"`
	WhsCode         string `json:"whs_code" validate:"required"`
	Quantity        int    `json:"quantity" validate:"required,gt=0"`
	ExpiryDate      string `json:"expiry_date"`      // YYYY-MM-DD, optional
	ManufactureDate string `json:"manufacture_date"` // YYYY-MM-DD, optional
	UnitCost        string `json:"unit_cost"`
	Remarks         string `json:"remarks"`
}

func (c *LotController) ReceiveLot(ctx *fiber.Ctx) error {
	var payload ReceiveLotPayload
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

	var product models.Product
	if err := c.DB.First(&product, "item_code = ?", payload.ItemCode).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Item " + payload.ItemCode + " not found",
			})
		}
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	actor := actorID(ctx)
	lot := models.Lot{
		ItemID:      int(product.ID),
		ItemCode:    product.ItemCode,
		WhsCode:     payload.WhsCode,
		QtyOnhand:   payload.Quantity,
		InboundDate: time.Now(),
		Remarks:     payload.Remarks,
		CreatedBy:   actor,
		UpdatedBy:   actor,
	}

	if payload.ExpiryDate != "" {
		t, err := time.Parse("2006-01-02", payload.ExpiryDate)
		if err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid expiry_date"})
		}
		lot.ExpiryDate = &t
	}
	if payload.ManufactureDate != "" {
		t, err := time.Parse("2006-01-02", payload.ManufactureDate)
		if err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid manufacture_date"})
		}
		lot.ManufactureDate = &t
	}
	if payload.UnitCost != "" {
		cost, err := decimal.NewFromString(payload.UnitCost)
		if err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid unit_cost"})
		}
		lot.UnitCost = cost
	}

	lotRepo := repositories.NewLotRepository(c.DB)
	if err := lotRepo.Receive(&lot); err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to receive lot",
			"error":   err.Error(),
		})
	}

	return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": "Lot received successfully",
		"data":    lot,
	})
}

type AdjustLotPayload struct {
	LotID string `json:"lot_id" validate:"required"`
	Delta int    `json:"delta" validate:"required"`
}

func (c *LotController) AdjustLot(ctx *fiber.Ctx) error {
	var payload AdjustLotPayload
	if err := ctx.BodyParser(&payload); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := validate.Struct(payload); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	lotID, err := strconv.ParseInt(payload.LotID, 10, 64)
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid lot_id"})
	}

	// Adjustment uses the same locked ledger path as allocation.
	tx := c.DB.Begin()
	if tx.Error != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to start transaction"})
	}

	ledger := repositories.NewLedgerRepository(tx)
	if err := ledger.Adjust(types.SnowflakeID(lotID), payload.Delta, actorID(ctx)); err != nil {
		tx.Rollback()
		switch {
		case errors.Is(err, repositories.ErrLotNotFound):
			return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, repositories.ErrInsufficientStock):
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		default:
			return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
	}

	if err := tx.Commit().Error; err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": "Lot adjusted successfully",
	})
}

func (c *LotController) GetStrategies(ctx *fiber.Ctx) error {
	return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": "Available allocation strategies",
		"data":    services.StrategyNames(),
	})
}
