package repositories

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"wms-allocation/models"
	"wms-allocation/types"

	"gorm.io/gorm"
)

var ErrOrderNotFound = errors.New("order not found")

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// GenerateOrderNumber builds the next SO<yymmdd><seq> number, resetting the
// sequence when the date changes.
func (r *OrderRepository) GenerateOrderNumber() (string, error) {
	var lastOrder models.OrderHeader
	if err := r.db.Last(&lastOrder).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	currentDate := time.Now().Format("060102")

	var orderNo string
	if lastOrder.OrderNo != "" && len(lastOrder.OrderNo) >= 12 {
		lastDatePart := lastOrder.OrderNo[2:8]
		lastSequenceStr := lastOrder.OrderNo[len(lastOrder.OrderNo)-4:]

		if currentDate != lastDatePart {
			orderNo = fmt.Sprintf("SO%s%04d", currentDate, 1)
		} else {
			lastSequenceInt, _ := strconv.Atoi(lastSequenceStr)
			orderNo = fmt.Sprintf("SO%s%04d", currentDate, lastSequenceInt+1)
		}
	} else {
		orderNo = fmt.Sprintf("SO%s%04d", currentDate, 1)
	}

	return orderNo, nil
}

// CreateOrder inserts the header and its demand lines in one transaction.
func (r *OrderRepository) CreateOrder(header *models.OrderHeader, items []models.OrderItem) error {
	if len(items) == 0 {
		return errors.New("order must have at least one item")
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			return fmt.Errorf("item %s quantity must be positive, got %d", item.ItemCode, item.Quantity)
		}
	}

	tx := r.db.Begin()
	if tx.Error != nil {
		return errors.New("failed to start transaction")
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if header.OrderNo == "" {
		orderNo, err := NewOrderRepository(tx).GenerateOrderNumber()
		if err != nil {
			tx.Rollback()
			return err
		}
		header.OrderNo = orderNo
	}
	if header.OrderDate == "" {
		header.OrderDate = time.Now().Format("2006-01-02")
	}
	header.Status = models.OrderStatusOpen

	if err := tx.Create(header).Error; err != nil {
		tx.Rollback()
		return err
	}

	for i := range items {
		items[i].OrderID = header.ID
		items[i].OrderNo = header.OrderNo
		items[i].CreatedBy = header.CreatedBy
		if err := tx.Create(&items[i]).Error; err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit().Error
}

// GetOrderWithItems loads an order and its demand lines by id.
func (r *OrderRepository) GetOrderWithItems(orderID types.SnowflakeID) (*models.OrderHeader, error) {
	var order models.OrderHeader
	if err := r.db.Preload("Items").Where("id = ?", orderID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: id %d", ErrOrderNotFound, orderID)
		}
		return nil, err
	}
	return &order, nil
}

func (r *OrderRepository) GetOrderByNo(orderNo string) (*models.OrderHeader, error) {
	var order models.OrderHeader
	if err := r.db.Preload("Items").Where("order_no = ?", orderNo).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: order_no %s", ErrOrderNotFound, orderNo)
		}
		return nil, err
	}
	return &order, nil
}

func (r *OrderRepository) GetOrders() ([]models.OrderHeader, error) {
	var orders []models.OrderHeader
	if err := r.db.Preload("Items").Order("id DESC").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}
