package controllers

import (
	"errors"
	"strconv"

	"wms-allocation/models"
	"wms-allocation/repositories"
	"wms-allocation/services"
	"wms-allocation/types"

	"github.com/go-playground/validator"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type AllocationController struct {
	DB *gorm.DB
}

func NewAllocationController(DB *gorm.DB) *AllocationController {
	return &AllocationController{DB: DB}
}

var validate = validator.New()

// actorID reads the acting user from the X-User-ID header; the upstream
// gateway owns authentication.
func actorID(ctx *fiber.Ctx) int {
	if v, err := strconv.Atoi(ctx.Get("X-User-ID")); err == nil {
		return v
	}
	return 0
}

func parseOrderID(ctx *fiber.Ctx) (types.SnowflakeID, error) {
	id, err := strconv.ParseInt(ctx.Params("order_id"), 10, 64)
	if err != nil {
		return 0, err
	}
	return types.SnowflakeID(id), nil
}

type AllocateRequest struct {
	Strategy     string   `json:"strategy" validate:"required"`
	WarehouseID  string   `json:"warehouse_id"`
	WarehouseIDs []string `json:"warehouse_ids"`
}

func (c *AllocationController) AllocateOrder(ctx *fiber.Ctx) error {
	orderID, err := parseOrderID(ctx)
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid order ID"})
	}

	var payload AllocateRequest
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

	strategy, err := services.StrategyByName(payload.Strategy)
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	whsScope := payload.WarehouseIDs
	if payload.WarehouseID != "" {
		whsScope = append(whsScope, payload.WarehouseID)
	}

	allocationRepo := repositories.NewAllocationRepository(c.DB)
	result, err := allocationRepo.AllocateOrder(orderID, strategy, whsScope, actorID(ctx))
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrOrderNotFound):
			return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, services.ErrInvalidDemand):
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, repositories.ErrOrderHasActiveBatch):
			return ctx.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, repositories.ErrInsufficientStock):
			// Retries exhausted against concurrent demand.
			return ctx.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		default:
			return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
	}

	message := "Allocation created"
	if result.Shortfall > 0 {
		message = "Partial allocation: demand could not be fully covered"
	}

	return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": message,
		"partial": result.Shortfall > 0,
		"data":    result,
	})
}

type ReviewRequest struct {
	AllocationIDs []types.SnowflakeID `json:"allocation_ids"`
}

func (c *AllocationController) ReviewAllocation(ctx *fiber.Ctx) error {
	orderID, err := parseOrderID(ctx)
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid order ID"})
	}

	// Body is optional: an empty filter reviews the whole batch.
	var payload ReviewRequest
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&payload); err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
	}

	allocationRepo := repositories.NewAllocationRepository(c.DB)
	review, err := allocationRepo.GetReview(orderID, payload.AllocationIDs)
	if err != nil {
		if errors.Is(err, repositories.ErrOrderNotFound) || errors.Is(err, repositories.ErrBatchNotFound) {
			return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		}
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": "Allocation review",
		"data":    review,
	})
}

// transition wraps the shared error mapping for the state machine endpoints.
func (c *AllocationController) transition(ctx *fiber.Ctx, message string, apply func(*repositories.AllocationRepository, types.SnowflakeID, int) (*models.AllocationBatch, error)) error {
	orderID, err := parseOrderID(ctx)
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid order ID"})
	}

	allocationRepo := repositories.NewAllocationRepository(c.DB)
	batch, err := apply(allocationRepo, orderID, actorID(ctx))
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrBatchNotFound), errors.Is(err, repositories.ErrOrderNotFound):
			return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, repositories.ErrInvalidTransition):
			return ctx.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, repositories.ErrReservationUnderflow), errors.Is(err, repositories.ErrOnhandUnderflow):
			// Ledger invariant violation: internal error, no detail leaks.
			return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal ledger error"})
		default:
			return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
	}

	return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": message,
		"data":    batch,
	})
}

func (c *AllocationController) ConfirmAllocation(ctx *fiber.Ctx) error {
	return c.transition(ctx, "Allocation confirmed",
		func(r *repositories.AllocationRepository, orderID types.SnowflakeID, actor int) (*models.AllocationBatch, error) {
			return r.ConfirmBatch(orderID, actor)
		})
}

func (c *AllocationController) BeginFulfillment(ctx *fiber.Ctx) error {
	return c.transition(ctx, "Fulfillment started",
		func(r *repositories.AllocationRepository, orderID types.SnowflakeID, actor int) (*models.AllocationBatch, error) {
			return r.BeginFulfillment(orderID, actor)
		})
}

func (c *AllocationController) CompleteFulfillment(ctx *fiber.Ctx) error {
	return c.transition(ctx, "Fulfillment completed",
		func(r *repositories.AllocationRepository, orderID types.SnowflakeID, actor int) (*models.AllocationBatch, error) {
			return r.CompleteFulfillment(orderID, actor)
		})
}

func (c *AllocationController) CancelAllocation(ctx *fiber.Ctx) error {
	return c.transition(ctx, "Allocation cancelled",
		func(r *repositories.AllocationRepository, orderID types.SnowflakeID, actor int) (*models.AllocationBatch, error) {
			return r.CancelBatch(orderID, actor)
		})
}
