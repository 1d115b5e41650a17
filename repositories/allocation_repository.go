package repositories

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"wms-allocation/controllers/helpers"
	"wms-allocation/models"
	"wms-allocation/services"
	"wms-allocation/types"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrBatchNotFound       = errors.New("allocation batch not found")
	ErrInvalidTransition   = errors.New("illegal allocation status transition")
	ErrOrderHasActiveBatch = errors.New("order already has an active allocation batch")
)

// allocateRetryLimit bounds the replan-and-commit attempts when a locked
// reserve re-check loses a race. A shortfall already visible in the
// snapshot is recorded, not retried.
const allocateRetryLimit = 3

type AllocationRepository struct {
	db *gorm.DB
}

func NewAllocationRepository(db *gorm.DB) *AllocationRepository {
	return &AllocationRepository{db: db}
}

type ItemAllocationResult struct {
	OrderItemID types.SnowflakeID        `json:"order_item_id"`
	ItemID      int                      `json:"item_id"`
	ItemCode    string                   `json:"item_code"`
	Requested   int                      `json:"requested"`
	Allocated   int                      `json:"allocated"`
	Shortfall   int                      `json:"shortfall"`
	Allocations []services.LotAllocation `json:"allocations"`
}

type AllocationBatchResult struct {
	BatchID   types.SnowflakeID      `json:"batch_id"`
	BatchRef  string                 `json:"batch_ref"`
	OrderID   types.SnowflakeID      `json:"order_id"`
	OrderNo   string                 `json:"order_no"`
	Strategy  string                 `json:"strategy"`
	Status    string                 `json:"status"`
	Items     []ItemAllocationResult `json:"items"`
	Shortfall int                    `json:"shortfall"`
}

// AllocateOrder plans every demand line of the order against a fresh lot
// snapshot and commits the whole batch in one transaction. When a reserve
// re-check fails because concurrent demand depleted a lot between snapshot
// and commit, the transaction rolls back and the whole cycle is retried
// against a new snapshot.
func (r *AllocationRepository) AllocateOrder(orderID types.SnowflakeID, strategy services.Strategy, whsScope []string, actor int) (*AllocationBatchResult, error) {
	order, err := NewOrderRepository(r.db).GetOrderWithItems(orderID)
	if err != nil {
		return nil, err
	}
	if len(order.Items) == 0 {
		return nil, fmt.Errorf("%w: order %s has no items", services.ErrInvalidDemand, order.OrderNo)
	}
	for _, item := range order.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: item %s qty %d", services.ErrInvalidDemand, item.ItemCode, item.Quantity)
		}
	}

	var result *AllocationBatchResult
	for attempt := 1; ; attempt++ {
		result, err = r.tryAllocate(order, strategy, whsScope, actor)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, ErrInsufficientStock) || attempt >= allocateRetryLimit {
			return nil, err
		}
		// Lost the race to another allocation; replan from a fresh snapshot.
	}
}

type plannedRow struct {
	item      *models.OrderItem
	alloc     services.LotAllocation
	shortfall int
}

func (r *AllocationRepository) tryAllocate(order *models.OrderHeader, strategy services.Strategy, whsScope []string, actor int) (*AllocationBatchResult, error) {
	asOf := time.Now()
	lotRepo := NewLotRepository(r.db)

	// Plan phase: non-locking snapshot reads, no mutation. plannedByLot
	// carries what earlier lines of this order already claimed, so two lines
	// for the same item never count the same availability twice.
	var rows []plannedRow
	results := make([]ItemAllocationResult, 0, len(order.Items))
	totalShortfall := 0
	plannedByLot := map[types.SnowflakeID]int{}

	for i := range order.Items {
		item := &order.Items[i]

		scope := whsScope
		if item.WhsCode != "" {
			scope = []string{item.WhsCode}
		}

		lots, err := lotRepo.GetEligibleLots(item.ItemID, scope, asOf)
		if err != nil {
			return nil, err
		}
		for j := range lots {
			lots[j].QtyReserved += plannedByLot[lots[j].ID]
		}

		plan, err := services.SelectLots(services.ItemDemand{
			OrderItemID: item.ID,
			ItemID:      item.ItemID,
			ItemCode:    item.ItemCode,
			Quantity:    item.Quantity,
			WhsScope:    scope,
		}, strategy, lots, asOf)
		if err != nil {
			return nil, err
		}

		for _, alloc := range plan.Allocations {
			plannedByLot[alloc.LotID] += alloc.Quantity
			rows = append(rows, plannedRow{item: item, alloc: alloc, shortfall: plan.Shortfall})
		}
		totalShortfall += plan.Shortfall
		results = append(results, ItemAllocationResult{
			OrderItemID: item.ID,
			ItemID:      item.ItemID,
			ItemCode:    item.ItemCode,
			Requested:   item.Quantity,
			Allocated:   plan.Allocated(),
			Shortfall:   plan.Shortfall,
			Allocations: plan.Allocations,
		})
	}

	// Lock lots in ascending id order so two overlapping batches cannot
	// deadlock each other.
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].alloc.LotID < rows[j].alloc.LotID
	})

	batchStatus := models.AllocationStatusPending
	orderStatus := models.OrderStatusAllocated
	if totalShortfall > 0 {
		orderStatus = models.OrderStatusPartial
	}

	tx := r.db.Begin()
	if tx.Error != nil {
		return nil, errors.New("failed to start transaction")
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	// One active batch per order. The check runs inside the transaction that
	// creates the new batch, behind a lock on the order header row, so two
	// concurrent allocate requests serialize instead of both passing a stale
	// read. sqlite (tests) has no FOR UPDATE; its single writer serializes.
	q := tx
	if tx.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var header models.OrderHeader
	if err := q.Where("id = ?", order.ID).First(&header).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	var active models.AllocationBatch
	err := tx.Where("order_id = ? AND status NOT IN ?", order.ID,
		[]string{models.AllocationStatusCancelled, models.AllocationStatusFulfilled}).
		First(&active).Error
	if err == nil {
		tx.Rollback()
		return nil, fmt.Errorf("%w: batch %s is %s", ErrOrderHasActiveBatch, active.BatchRef, active.Status)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		tx.Rollback()
		return nil, err
	}

	ledger := NewLedgerRepository(tx)
	for _, row := range rows {
		if err := ledger.Reserve(row.alloc.LotID, row.alloc.Quantity, actor); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	batch := models.AllocationBatch{
		BatchRef:  uuid.NewString(),
		OrderID:   order.ID,
		OrderNo:   order.OrderNo,
		Strategy:  strategy.Name,
		Status:    batchStatus,
		CreatedBy: actor,
	}
	if err := tx.Create(&batch).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	for _, row := range rows {
		rowStatus := models.AllocationStatusPending
		if row.shortfall > 0 {
			rowStatus = models.AllocationStatusPartial
		}
		allocation := models.Allocation{
			BatchID:      batch.ID,
			OrderID:      order.ID,
			OrderItemID:  row.item.ID,
			LotID:        row.alloc.LotID,
			LotNumber:    row.alloc.LotNumber,
			WhsCode:      row.alloc.WhsCode,
			ItemID:       row.item.ItemID,
			ItemCode:     row.item.ItemCode,
			QtyAllocated: row.alloc.Quantity,
			Strategy:     strategy.Name,
			Status:       rowStatus,
			CreatedBy:    actor,
		}
		if err := tx.Create(&allocation).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	for _, res := range results {
		if err := tx.Model(&models.OrderItem{}).
			Where("id = ?", res.OrderItemID).
			Updates(map[string]interface{}{
				"qty_allocated": res.Allocated,
				"updated_by":    actor,
			}).Error; err != nil {
			tx.Rollback()
			return nil, err
		}

		detail := fmt.Sprintf("item %s: allocated %d of %d across %d lots using %s",
			res.ItemCode, res.Allocated, res.Requested, len(res.Allocations), strategy.Name)
		if err := helpers.InsertTransactionHistory(tx, batch.BatchRef, batchStatus, "ALLOCATION", detail, actor); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Model(&models.OrderHeader{}).
		Where("id = ?", order.ID).
		Updates(map[string]interface{}{
			"status":     orderStatus,
			"updated_by": actor,
		}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return &AllocationBatchResult{
		BatchID:   batch.ID,
		BatchRef:  batch.BatchRef,
		OrderID:   order.ID,
		OrderNo:   order.OrderNo,
		Strategy:  strategy.Name,
		Status:    batchStatus,
		Items:     results,
		Shortfall: totalShortfall,
	}, nil
}

// getLatestBatch returns the most recent batch for the order.
func (r *AllocationRepository) getLatestBatch(orderID types.SnowflakeID) (*models.AllocationBatch, error) {
	var batch models.AllocationBatch
	if err := r.db.Where("order_id = ?", orderID).Order("id DESC").First(&batch).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: order %d", ErrBatchNotFound, orderID)
		}
		return nil, err
	}
	return &batch, nil
}

// ConfirmBatch advances pending -> confirmed. No quantity change: the
// reservation already holds the stock.
func (r *AllocationRepository) ConfirmBatch(orderID types.SnowflakeID, actor int) (*models.AllocationBatch, error) {
	return r.advance(orderID, models.AllocationStatusPending, models.AllocationStatusConfirmed, models.OrderStatusConfirmed, actor)
}

// BeginFulfillment advances confirmed -> fulfilling (pick/pack started).
func (r *AllocationRepository) BeginFulfillment(orderID types.SnowflakeID, actor int) (*models.AllocationBatch, error) {
	return r.advance(orderID, models.AllocationStatusConfirmed, models.AllocationStatusFulfilling, models.OrderStatusFulfilling, actor)
}

// advance applies a non-terminal transition to the batch, its rows and the
// order header. No ledger mutation happens on these edges.
func (r *AllocationRepository) advance(orderID types.SnowflakeID, from, to, orderStatus string, actor int) (*models.AllocationBatch, error) {
	batch, err := r.getLatestBatch(orderID)
	if err != nil {
		return nil, err
	}
	if batch.Status != from {
		return nil, fmt.Errorf("%w: batch %s is %s, expected %s", ErrInvalidTransition, batch.BatchRef, batch.Status, from)
	}

	tx := r.db.Begin()
	if tx.Error != nil {
		return nil, errors.New("failed to start transaction")
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Model(&models.AllocationBatch{}).
		Where("id = ?", batch.ID).
		Updates(map[string]interface{}{"status": to, "updated_by": actor}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Model(&models.Allocation{}).
		Where("batch_id = ? AND status NOT IN ?", batch.ID,
			[]string{models.AllocationStatusFulfilled, models.AllocationStatusCancelled}).
		Updates(map[string]interface{}{"status": to, "updated_by": actor}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Model(&models.OrderHeader{}).
		Where("id = ?", batch.OrderID).
		Updates(map[string]interface{}{"status": orderStatus, "updated_by": actor}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	detail := fmt.Sprintf("batch %s: %s -> %s", batch.BatchRef, from, to)
	if err := helpers.InsertTransactionHistory(tx, batch.BatchRef, to, "ALLOCATION", detail, actor); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	batch.Status = to
	return batch, nil
}

// CompleteFulfillment is the terminal success transition: the stock leaves
// the warehouse and the reservation is retired in the same step. Invoking
// it again on a fulfilled batch is a no-op, never a double commit.
func (r *AllocationRepository) CompleteFulfillment(orderID types.SnowflakeID, actor int) (*models.AllocationBatch, error) {
	batch, err := r.getLatestBatch(orderID)
	if err != nil {
		return nil, err
	}
	if batch.Status == models.AllocationStatusFulfilled {
		return batch, nil
	}
	if batch.Status != models.AllocationStatusFulfilling {
		return nil, fmt.Errorf("%w: batch %s is %s, expected %s",
			ErrInvalidTransition, batch.BatchRef, batch.Status, models.AllocationStatusFulfilling)
	}

	return r.finalize(batch, models.AllocationStatusFulfilled, models.OrderStatusCompleted, actor,
		func(ledger *LedgerRepository, row *models.Allocation) error {
			return ledger.CommitFulfillment(row.LotID, row.QtyAllocated, actor)
		})
}

// CancelBatch is the terminal abort transition: every non-terminal row
// releases its reservation exactly once. Invoking it again on a cancelled
// batch is a no-op, never a double release.
func (r *AllocationRepository) CancelBatch(orderID types.SnowflakeID, actor int) (*models.AllocationBatch, error) {
	batch, err := r.getLatestBatch(orderID)
	if err != nil {
		return nil, err
	}
	if batch.Status == models.AllocationStatusCancelled {
		return batch, nil
	}
	if batch.Status == models.AllocationStatusFulfilled {
		return nil, fmt.Errorf("%w: batch %s already fulfilled", ErrInvalidTransition, batch.BatchRef)
	}

	return r.finalize(batch, models.AllocationStatusCancelled, models.OrderStatusOpen, actor,
		func(ledger *LedgerRepository, row *models.Allocation) error {
			return ledger.Release(row.LotID, row.QtyAllocated, actor)
		})
}

// finalize applies a terminal transition: one ledger operation per
// non-terminal row, rows locked in lot-id order, then batch, rows and order
// stamped together.
func (r *AllocationRepository) finalize(batch *models.AllocationBatch, to, orderStatus string, actor int, apply func(*LedgerRepository, *models.Allocation) error) (*models.AllocationBatch, error) {
	tx := r.db.Begin()
	if tx.Error != nil {
		return nil, errors.New("failed to start transaction")
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var allocations []models.Allocation
	if err := tx.Where("batch_id = ?", batch.ID).Order("lot_id ASC").Find(&allocations).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	ledger := NewLedgerRepository(tx)
	for i := range allocations {
		row := &allocations[i]
		if row.IsTerminal() {
			continue
		}
		if err := apply(ledger, row); err != nil {
			tx.Rollback()
			return nil, err
		}
		if err := tx.Model(&models.Allocation{}).
			Where("id = ?", row.ID).
			Updates(map[string]interface{}{"status": to, "updated_by": actor}).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Model(&models.AllocationBatch{}).
		Where("id = ?", batch.ID).
		Updates(map[string]interface{}{"status": to, "updated_by": actor}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	orderUpdates := map[string]interface{}{"status": orderStatus, "updated_by": actor}
	if err := tx.Model(&models.OrderHeader{}).
		Where("id = ?", batch.OrderID).
		Updates(orderUpdates).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if to == models.AllocationStatusCancelled {
		if err := tx.Model(&models.OrderItem{}).
			Where("order_id = ?", batch.OrderID).
			Updates(map[string]interface{}{"qty_allocated": 0, "updated_by": actor}).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	detail := fmt.Sprintf("batch %s: %s -> %s (%d rows)", batch.BatchRef, batch.Status, to, len(allocations))
	if err := helpers.InsertTransactionHistory(tx, batch.BatchRef, to, "ALLOCATION", detail, actor); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	batch.Status = to
	return batch, nil
}

type ReviewLine struct {
	OrderItemID  types.SnowflakeID `json:"order_item_id"`
	ItemCode     string            `json:"item_code"`
	ItemName     string            `json:"item_name"`
	Requested    int               `json:"requested"`
	QtyAllocated int               `json:"qty_allocated"`
	Shortfall    int               `json:"shortfall"`
	AllocationID types.SnowflakeID `json:"allocation_id"`
	LotID        types.SnowflakeID `json:"lot_id"`
	LotNumber    string            `json:"lot_number"`
	WhsCode      string            `json:"whs_code"`
	QtyFromLot   int               `json:"qty_from_lot"`
	Status       string            `json:"status"`
}

type AllocationReview struct {
	Order *models.OrderHeader     `json:"order"`
	Batch *models.AllocationBatch `json:"batch"`
	Lines []ReviewLine            `json:"lines"`
}

// GetReview assembles the header, line items and lot/warehouse breakdown
// the confirmation screen shows. allocationIDs optionally narrows the rows.
func (r *AllocationRepository) GetReview(orderID types.SnowflakeID, allocationIDs []types.SnowflakeID) (*AllocationReview, error) {
	order, err := NewOrderRepository(r.db).GetOrderWithItems(orderID)
	if err != nil {
		return nil, err
	}
	batch, err := r.getLatestBatch(orderID)
	if err != nil {
		return nil, err
	}

	sqlReview := `select i.id as order_item_id, i.item_code, p.item_name,
	i.quantity as requested, i.qty_allocated,
	i.quantity - i.qty_allocated as shortfall,
	a.id as allocation_id, a.lot_id, a.lot_number, a.whs_code,
	a.qty_allocated as qty_from_lot, a.status
	from allocations a
	inner join order_items i on a.order_item_id = i.id
	left join products p on i.item_code = p.item_code
	where a.batch_id = ?`

	args := []interface{}{batch.ID}
	if len(allocationIDs) > 0 {
		sqlReview += " and a.id in ?"
		args = append(args, allocationIDs)
	}
	sqlReview += " order by i.id, a.lot_id"

	var lines []ReviewLine
	if err := r.db.Raw(sqlReview, args...).Scan(&lines).Error; err != nil {
		return nil, err
	}

	return &AllocationReview{Order: order, Batch: batch, Lines: lines}, nil
}
