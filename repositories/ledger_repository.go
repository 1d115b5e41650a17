package repositories

import (
	"errors"
	"fmt"
	"log"
	"time"

	"wms-allocation/models"
	"wms-allocation/types"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrLotNotFound       = errors.New("lot not found")
	ErrInsufficientStock = errors.New("insufficient available stock")
	// ErrReservationUnderflow and ErrOnhandUnderflow indicate a bug in the
	// calling workflow (double release / double commit), never a normal
	// business outcome. They are logged with full context and must abort
	// the surrounding transaction.
	ErrReservationUnderflow = errors.New("release exceeds reserved quantity")
	ErrOnhandUnderflow      = errors.New("fulfillment exceeds on-hand quantity")
)

// LedgerRepository owns every mutation of the lot quantity counters.
// Construct it over the transaction the mutation belongs to, the same way
// the allocation builder does: reserve and the allocation row insert must
// commit or roll back together.
type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// lockLot loads the lot under a row-level lock so concurrent reservations
// against the same lot serialize. sqlite (used by the tests) has no
// SELECT ... FOR UPDATE; its single-writer lock serializes writes anyway.
func (r *LedgerRepository) lockLot(lotID types.SnowflakeID) (*models.Lot, error) {
	q := r.db
	if r.db.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var lot models.Lot
	if err := q.Where("id = ?", lotID).First(&lot).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: id %d", ErrLotNotFound, lotID)
		}
		return nil, err
	}
	return &lot, nil
}

// Reserve places a hold of qty on the lot after re-checking availability
// under the row lock. The check is the commit-time re-validation of the
// selector's snapshot plan.
func (r *LedgerRepository) Reserve(lotID types.SnowflakeID, qty int, actor int) error {
	if qty <= 0 {
		return fmt.Errorf("reserve quantity must be positive, got %d", qty)
	}

	lot, err := r.lockLot(lotID)
	if err != nil {
		return err
	}

	if lot.Available() < qty {
		return fmt.Errorf("%w: lot %s requested %d available %d",
			ErrInsufficientStock, lot.LotNumber, qty, lot.Available())
	}

	return r.db.Model(&models.Lot{}).
		Where("id = ?", lotID).
		Updates(map[string]interface{}{
			"qty_reserved": gorm.Expr("qty_reserved + ?", qty),
			"updated_by":   actor,
			"updated_at":   time.Now(),
		}).Error
}

// Release gives back a reservation on allocation cancellation. Releasing
// more than is currently reserved is a data corruption signal and is
// surfaced loudly, never clamped.
func (r *LedgerRepository) Release(lotID types.SnowflakeID, qty int, actor int) error {
	if qty <= 0 {
		return fmt.Errorf("release quantity must be positive, got %d", qty)
	}

	lot, err := r.lockLot(lotID)
	if err != nil {
		return err
	}

	if lot.QtyReserved < qty {
		log.Printf("[ledger] release underflow: lot=%d lot_no=%s requested=%d reserved=%d onhand=%d",
			lot.ID, lot.LotNumber, qty, lot.QtyReserved, lot.QtyOnhand)
		return fmt.Errorf("%w: lot %s requested %d reserved %d",
			ErrReservationUnderflow, lot.LotNumber, qty, lot.QtyReserved)
	}

	return r.db.Model(&models.Lot{}).
		Where("id = ?", lotID).
		Updates(map[string]interface{}{
			"qty_reserved": gorm.Expr("qty_reserved - ?", qty),
			"updated_by":   actor,
			"updated_at":   time.Now(),
		}).Error
}

// CommitFulfillment retires the reservation and removes the stock in one
// step: the goods physically left the warehouse.
func (r *LedgerRepository) CommitFulfillment(lotID types.SnowflakeID, qty int, actor int) error {
	if qty <= 0 {
		return fmt.Errorf("fulfillment quantity must be positive, got %d", qty)
	}

	lot, err := r.lockLot(lotID)
	if err != nil {
		return err
	}

	if lot.QtyReserved < qty {
		log.Printf("[ledger] fulfillment underflow: lot=%d lot_no=%s requested=%d reserved=%d onhand=%d",
			lot.ID, lot.LotNumber, qty, lot.QtyReserved, lot.QtyOnhand)
		return fmt.Errorf("%w: lot %s requested %d reserved %d",
			ErrReservationUnderflow, lot.LotNumber, qty, lot.QtyReserved)
	}
	if lot.QtyOnhand < qty {
		log.Printf("[ledger] onhand underflow: lot=%d lot_no=%s requested=%d reserved=%d onhand=%d",
			lot.ID, lot.LotNumber, qty, lot.QtyReserved, lot.QtyOnhand)
		return fmt.Errorf("%w: lot %s requested %d onhand %d",
			ErrOnhandUnderflow, lot.LotNumber, qty, lot.QtyOnhand)
	}

	return r.db.Model(&models.Lot{}).
		Where("id = ?", lotID).
		Updates(map[string]interface{}{
			"qty_onhand":   gorm.Expr("qty_onhand - ?", qty),
			"qty_reserved": gorm.Expr("qty_reserved - ?", qty),
			"updated_by":   actor,
			"updated_at":   time.Now(),
		}).Error
}

// Adjust changes the on-hand quantity (cycle count, damage write-off). The
// result may not drop below the reserved quantity.
func (r *LedgerRepository) Adjust(lotID types.SnowflakeID, delta int, actor int) error {
	if delta == 0 {
		return nil
	}

	lot, err := r.lockLot(lotID)
	if err != nil {
		return err
	}

	if lot.QtyOnhand+delta < lot.QtyReserved {
		return fmt.Errorf("%w: lot %s adjustment %d would drop on-hand below reserved %d",
			ErrInsufficientStock, lot.LotNumber, delta, lot.QtyReserved)
	}

	return r.db.Model(&models.Lot{}).
		Where("id = ?", lotID).
		Updates(map[string]interface{}{
			"qty_onhand": gorm.Expr("qty_onhand + ?", delta),
			"updated_by": actor,
			"updated_at": time.Now(),
		}).Error
}
