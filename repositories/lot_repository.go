package repositories

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"wms-allocation/models"

	"gorm.io/gorm"
)

type LotRepository struct {
	db *gorm.DB
}

func NewLotRepository(db *gorm.DB) *LotRepository {
	return &LotRepository{db: db}
}

// GetEligibleLots returns the non-locking snapshot the selector plans
// against: in-stock lots for the item with available quantity, not expired
// as of asOf, optionally restricted to a warehouse scope. Ordered by id so
// the snapshot itself is deterministic.
func (r *LotRepository) GetEligibleLots(itemID int, whsScope []string, asOf time.Time) ([]models.Lot, error) {
	q := r.db.
		Where("item_id = ? AND status = ?", itemID, models.LotStatusInStock).
		Where("qty_onhand - qty_reserved > 0").
		Where("expiry_date IS NULL OR expiry_date >= ?", asOf)

	if len(whsScope) > 0 {
		q = q.Where("whs_code IN ?", whsScope)
	}

	var lots []models.Lot
	if err := q.Order("id ASC").Find(&lots).Error; err != nil {
		return nil, err
	}
	return lots, nil
}

type LotFilter struct {
	ItemCode string
	WhsCode  string
	Status   string
}

func (r *LotRepository) GetLots(filter LotFilter) ([]models.Lot, error) {
	q := r.db.Order("whs_code, item_code, id")
	if filter.ItemCode != "" {
		q = q.Where("item_code = ?", filter.ItemCode)
	}
	if filter.WhsCode != "" {
		q = q.Where("whs_code = ?", filter.WhsCode)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}

	var lots []models.Lot
	if err := q.Find(&lots).Error; err != nil {
		return nil, err
	}
	return lots, nil
}

// GenerateLotNumber builds the next LT<yymmdd><seq> number, resetting the
// sequence when the date changes.
func (r *LotRepository) GenerateLotNumber() (string, error) {
	var lastLot models.Lot
	if err := r.db.Last(&lastLot).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	currentDate := time.Now().Format("060102")

	var lotNo string
	if lastLot.LotNumber != "" && len(lastLot.LotNumber) >= 12 {
		lastDatePart := lastLot.LotNumber[2:8]
		lastSequenceStr := lastLot.LotNumber[len(lastLot.LotNumber)-4:]

		if currentDate != lastDatePart {
			lotNo = fmt.Sprintf("LT%s%04d", currentDate, 1)
		} else {
			lastSequenceInt, _ := strconv.Atoi(lastSequenceStr)
			lotNo = fmt.Sprintf("LT%s%04d", currentDate, lastSequenceInt+1)
		}
	} else {
		lotNo = fmt.Sprintf("LT%s%04d", currentDate, 1)
	}

	return lotNo, nil
}

// Receive creates a lot for an inbound receipt. The lot number is generated
// when the caller leaves it empty.
func (r *LotRepository) Receive(lot *models.Lot) error {
	if lot.QtyOnhand <= 0 {
		return fmt.Errorf("receipt quantity must be positive, got %d", lot.QtyOnhand)
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

	if lot.LotNumber == "" {
		lotNo, err := NewLotRepository(tx).GenerateLotNumber()
		if err != nil {
			tx.Rollback()
			return err
		}
		lot.LotNumber = lotNo
	}
	if lot.InboundDate.IsZero() {
		lot.InboundDate = time.Now()
	}
	if lot.Status == "" {
		lot.Status = models.LotStatusInStock
	}
	lot.QtyReserved = 0

	if err := tx.Create(lot).Error; err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}
