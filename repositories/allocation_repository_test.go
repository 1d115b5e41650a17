package repositories

import (
	"testing"
	"time"

	"wms-allocation/models"
	"wms-allocation/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedOrder(t *testing.T, db *gorm.DB, items []models.OrderItem) *models.OrderHeader {
	t.Helper()

	header := models.OrderHeader{CustomerRef: "CUST-1"}
	require.NoError(t, NewOrderRepository(db).CreateOrder(&header, items))
	order, err := NewOrderRepository(db).GetOrderWithItems(header.ID)
	require.NoError(t, err)
	return order
}

func mustStrategy(t *testing.T, name string) services.Strategy {
	t.Helper()

	s, err := services.StrategyByName(name)
	require.NoError(t, err)
	return s
}

func TestAllocateOrderFefoSplitsAcrossLots(t *testing.T) {
	db := testDB(t)

	early := seedLot(t, db, lotSpec{itemID: 1, itemCode: "ITEM-A", whsCode: "WH1", onhand: 10, expiry: daysAhead(30)})
	late := seedLot(t, db, lotSpec{itemID: 1, itemCode: "ITEM-A", whsCode: "WH1", onhand: 10, expiry: daysAhead(180)})

	order := seedOrder(t, db, []models.OrderItem{
		{ItemID: 1, ItemCode: "ITEM-A", Quantity: 15},
	})

	result, err := NewAllocationRepository(db).AllocateOrder(order.ID, mustStrategy(t, "fefo"), nil, 1)
	require.NoError(t, err)

	assert.Equal(t, models.AllocationStatusPending, result.Status)
	assert.Equal(t, 0, result.Shortfall)
	require.Len(t, result.Items, 1)
	require.Len(t, result.Items[0].Allocations, 2)
	assert.Equal(t, early.ID, result.Items[0].Allocations[0].LotID)
	assert.Equal(t, 10, result.Items[0].Allocations[0].Quantity)
	assert.Equal(t, late.ID, result.Items[0].Allocations[1].LotID)
	assert.Equal(t, 5, result.Items[0].Allocations[1].Quantity)

	// Reservations hold the plan.
	assert.Equal(t, 10, reloadLot(t, db, early.ID).QtyReserved)
	assert.Equal(t, 5, reloadLot(t, db, late.ID).QtyReserved)

	var rows []models.Allocation
	require.NoError(t, db.Where("batch_id = ?", result.BatchID).Find(&rows).Error)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, models.AllocationStatusPending, row.Status)
		assert.Equal(t, "fefo", row.Strategy)
	}

	var order2 models.OrderHeader
	require.NoError(t, db.First(&order2, "id = ?", order.ID).Error)
	assert.Equal(t, models.OrderStatusAllocated, order2.Status)
}

func TestAllocateOrderPartialShortfall(t *testing.T) {
	db := testDB(t)

	lot := seedLot(t, db, lotSpec{itemID: 1, itemCode: "ITEM-A", whsCode: "WH1", onhand: 5})
	order := seedOrder(t, db, []models.OrderItem{
		{ItemID: 1, ItemCode: "ITEM-A", Quantity: 8},
	})

	result, err := NewAllocationRepository(db).AllocateOrder(order.ID, mustStrategy(t, "fifo"), nil, 1)
	require.NoError(t, err)

	// A shortfall the snapshot already shows is an accepted partial
	// allocation, not an error.
	assert.Equal(t, 3, result.Shortfall)
	assert.Equal(t, 5, result.Items[0].Allocated)
	assert.Equal(t, 5, reloadLot(t, db, lot.ID).QtyReserved)

	var rows []models.Allocation
	require.NoError(t, db.Where("batch_id = ?", result.BatchID).Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, models.AllocationStatusPartial, rows[0].Status)

	var header models.OrderHeader
	require.NoError(t, db.First(&header, "id = ?", order.ID).Error)
	assert.Equal(t, models.OrderStatusPartial, header.Status)

	var item models.OrderItem
	require.NoError(t, db.First(&item, "order_id = ?", order.ID).Error)
	assert.Equal(t, 5, item.QtyAllocated)
}

func TestAllocateOrderTwoLinesSameItemShareLot(t *testing.T) {
	db := testDB(t)

	lot := seedLot(t, db, lotSpec{itemID: 1, itemCode: "ITEM-A", whsCode: "WH1", onhand: 10})

	order := seedOrder(t, db, []models.OrderItem{
		{ItemID: 1, ItemCode: "ITEM-A", Quantity: 6},
		{ItemID: 1, ItemCode: "ITEM-A", Quantity: 6},
	})

	// The second line plans against what the first already claimed from the
	// lot, so the order lands as a partial allocation, not a reserve failure.
	result, err := NewAllocationRepository(db).AllocateOrder(order.ID, mustStrategy(t, "fifo"), nil, 1)
	require.NoError(t, err)

	require.Len(t, result.Items, 2)
	assert.Equal(t, 6, result.Items[0].Allocated)
	assert.Equal(t, 0, result.Items[0].Shortfall)
	assert.Equal(t, 4, result.Items[1].Allocated)
	assert.Equal(t, 2, result.Items[1].Shortfall)
	assert.Equal(t, 2, result.Shortfall)

	assert.Equal(t, 10, reloadLot(t, db, lot.ID).QtyReserved)

	var header models.OrderHeader
	require.NoError(t, db.First(&header, "id = ?", order.ID).Error)
	assert.Equal(t, models.OrderStatusPartial, header.Status)
}

func TestCompetingOrdersShareLot(t *testing.T) {
	db := testDB(t)

	lot := seedLot(t, db, lotSpec{itemID: 1, itemCode: "ITEM-A", whsCode: "WH1", onhand: 10})

	first := seedOrder(t, db, []models.OrderItem{{ItemID: 1, ItemCode: "ITEM-A", Quantity: 6}})
	second := seedOrder(t, db, []models.OrderItem{{ItemID: 1, ItemCode: "ITEM-A", Quantity: 6}})

	repo := NewAllocationRepository(db)

	res1, err := repo.AllocateOrder(first.ID, mustStrategy(t, "fifo"), nil, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, res1.Shortfall)

	// The second order sees only the remainder and gets a reduced
	// allocation; total reserved never exceeds on-hand.
	res2, err := repo.AllocateOrder(second.ID, mustStrategy(t, "fifo"), nil, 2)
	require.NoError(t, err)
	assert.Equal(t, 4, res2.Items[0].Allocated)
	assert.Equal(t, 2, res2.Shortfall)

	got := reloadLot(t, db, lot.ID)
	assert.Equal(t, 10, got.QtyReserved)
}

func TestAllocateOrderWarehouseScope(t *testing.T) {
	db := testDB(t)

	seedLot(t, db, lotSpec{itemID: 1, itemCode: "ITEM-A", whsCode: "WH1", onhand: 100})
	wh2 := seedLot(t, db, lotSpec{itemID: 1, itemCode: "ITEM-A", whsCode: "WH2", onhand: 3})

	order := seedOrder(t, db, []models.OrderItem{{ItemID: 1, ItemCode: "ITEM-A", Quantity: 5}})

	result, err := NewAllocationRepository(db).AllocateOrder(order.ID, mustStrategy(t, "fifo"), []string{"WH2"}, 1)
	require.NoError(t, err)

	require.Len(t, result.Items[0].Allocations, 1)
	assert.Equal(t, wh2.ID, result.Items[0].Allocations[0].LotID)
	assert.Equal(t, 3, result.Items[0].Allocated)
	assert.Equal(t, 2, result.Shortfall)
}

func TestAllocateOrderIneligibleLotsExcluded(t *testing.T) {
	db := testDB(t)

	seedLot(t, db, lotSpec{itemID: 1, itemCode: "ITEM-A", whsCode: "WH1", onhand: 10, status: models.LotStatusDamaged})
	seedLot(t, db, lotSpec{itemID: 1, itemCode: "ITEM-A", whsCode: "WH1", onhand: 10, expiry: daysAhead(-1)})
	good := seedLot(t, db, lotSpec{itemID: 1, itemCode: "ITEM-A", whsCode: "WH1", onhand: 4})

	order := seedOrder(t, db, []models.OrderItem{{ItemID: 1, ItemCode: "ITEM-A", Quantity: 10}})

	result, err := NewAllocationRepository(db).AllocateOrder(order.ID, mustStrategy(t, "fefo"), nil, 1)
	require.NoError(t, err)

	require.Len(t, result.Items[0].Allocations, 1)
	assert.Equal(t, good.ID, result.Items[0].Allocations[0].LotID)
	assert.Equal(t, 6, result.Shortfall)
}

func TestAllocateOrderRejectsSecondActiveBatch(t *testing.T) {
	db := testDB(t)

	seedLot(t, db, lotSpec{itemID: 1, itemCode: "ITEM-A", whsCode: "WH1", onhand: 20})
	order := seedOrder(t, db, []models.OrderItem{{ItemID: 1, ItemCode: "ITEM-A", Quantity: 5}})

	repo := NewAllocationRepository(db)
	_, err := repo.AllocateOrder(order.ID, mustStrategy(t, "fifo"), nil, 1)
	require.NoError(t, err)

	_, err = repo.AllocateOrder(order.ID, mustStrategy(t, "fifo"), nil, 1)
	require.ErrorIs(t, err, ErrOrderHasActiveBatch)
}

func TestCancelReleasesReservations(t *testing.T) {
	db := testDB(t)

	lotA := seedLot(t, db, lotSpec{itemID: 1, itemCode: "ITEM-A", whsCode: "WH1", onhand: 10})
	lotB := seedLot(t, db, lotSpec{itemID: 1, itemCode: "ITEM-A", whsCode: "WH2", onhand: 10})

	order := seedOrder(t, db, []models.OrderItem{{ItemID: 1, ItemCode: "ITEM-A", Quantity: 14}})

	repo := NewAllocationRepository(db)
	_, err := repo.AllocateOrder(order.ID, mustStrategy(t, "fifo"), nil, 1)
	require.NoError(t, err)

	_, err = repo.ConfirmBatch(order.ID, 1)
	require.NoError(t, err)

	batch, err := repo.CancelBatch(order.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, models.AllocationStatusCancelled, batch.Status)

	// Round trip: reserved returns to the pre-allocation value.
	assert.Equal(t, 0, reloadLot(t, db, lotA.ID).QtyReserved)
	assert.Equal(t, 0, reloadLot(t, db, lotB.ID).QtyReserved)

	var header models.OrderHeader
	require.NoError(t, db.First(&header, "id = ?", order.ID).Error)
	assert.Equal(t, models.OrderStatusOpen, header.Status)

	// Terminal idempotence: a second cancel is a no-op, never a double
	// release.
	_, err = repo.CancelBatch(order.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, reloadLot(t, db, lotA.ID).QtyReserved)
	assert.Equal(t, 10, reloadLot(t, db, lotA.ID).QtyOnhand)
}

func TestFulfillmentLifecycle(t *testing.T) {
	db := testDB(t)

	lot := seedLot(t, db, lotSpec{itemID: 1, itemCode: "ITEM-A", whsCode: "WH1", onhand: 10})
	order := seedOrder(t, db, []models.OrderItem{{ItemID: 1, ItemCode: "ITEM-A", Quantity: 6}})

	repo := NewAllocationRepository(db)
	result, err := repo.AllocateOrder(order.ID, mustStrategy(t, "fifo"), nil, 1)
	require.NoError(t, err)

	_, err = repo.ConfirmBatch(order.ID, 1)
	require.NoError(t, err)
	_, err = repo.BeginFulfillment(order.ID, 1)
	require.NoError(t, err)

	batch, err := repo.CompleteFulfillment(order.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, models.AllocationStatusFulfilled, batch.Status)

	// Stock leaves and the reservation retires together.
	got := reloadLot(t, db, lot.ID)
	assert.Equal(t, 4, got.QtyOnhand)
	assert.Equal(t, 0, got.QtyReserved)

	var rows []models.Allocation
	require.NoError(t, db.Where("batch_id = ?", result.BatchID).Find(&rows).Error)
	for _, row := range rows {
		assert.Equal(t, models.AllocationStatusFulfilled, row.Status)
	}

	// Re-invoking the terminal transition leaves the ledger unchanged.
	_, err = repo.CompleteFulfillment(order.ID, 1)
	require.NoError(t, err)
	got = reloadLot(t, db, lot.ID)
	assert.Equal(t, 4, got.QtyOnhand)
	assert.Equal(t, 0, got.QtyReserved)
}

func TestStateMachineRejectsIllegalTransitions(t *testing.T) {
	db := testDB(t)

	seedLot(t, db, lotSpec{itemID: 1, itemCode: "ITEM-A", whsCode: "WH1", onhand: 10})
	order := seedOrder(t, db, []models.OrderItem{{ItemID: 1, ItemCode: "ITEM-A", Quantity: 6}})

	repo := NewAllocationRepository(db)
	_, err := repo.AllocateOrder(order.ID, mustStrategy(t, "fifo"), nil, 1)
	require.NoError(t, err)

	// pending cannot start fulfilling or complete.
	_, err = repo.BeginFulfillment(order.ID, 1)
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, err = repo.CompleteFulfillment(order.ID, 1)
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = repo.ConfirmBatch(order.ID, 1)
	require.NoError(t, err)
	// confirm is not idempotent: the batch has moved on.
	_, err = repo.ConfirmBatch(order.ID, 1)
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = repo.BeginFulfillment(order.ID, 1)
	require.NoError(t, err)
	_, err = repo.CompleteFulfillment(order.ID, 1)
	require.NoError(t, err)

	// A fulfilled batch cannot be cancelled.
	_, err = repo.CancelBatch(order.ID, 1)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestGetReview(t *testing.T) {
	db := testDB(t)

	product := models.Product{ItemCode: "ITEM-A", ItemName: "Item A", Barcode: "B-1", Uom: "PCS"}
	require.NoError(t, db.Create(&product).Error)

	seedLot(t, db, lotSpec{itemID: 1, itemCode: "ITEM-A", whsCode: "WH1", onhand: 10, expiry: daysAhead(30)})
	seedLot(t, db, lotSpec{itemID: 1, itemCode: "ITEM-A", whsCode: "WH2", onhand: 10, expiry: daysAhead(60)})

	order := seedOrder(t, db, []models.OrderItem{{ItemID: 1, ItemCode: "ITEM-A", Quantity: 14}})

	repo := NewAllocationRepository(db)
	result, err := repo.AllocateOrder(order.ID, mustStrategy(t, "fefo"), nil, 1)
	require.NoError(t, err)

	review, err := repo.GetReview(order.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, result.BatchRef, review.Batch.BatchRef)
	require.Len(t, review.Lines, 2)
	assert.Equal(t, "Item A", review.Lines[0].ItemName)
	assert.Equal(t, 14, review.Lines[0].Requested)
	assert.Equal(t, 10, review.Lines[0].QtyFromLot)
	assert.Equal(t, 4, review.Lines[1].QtyFromLot)
	assert.Equal(t, 0, review.Lines[0].Shortfall)
}

func TestAllocationWritesHistory(t *testing.T) {
	db := testDB(t)

	seedLot(t, db, lotSpec{itemID: 1, itemCode: "ITEM-A", whsCode: "WH1", onhand: 10})
	order := seedOrder(t, db, []models.OrderItem{{ItemID: 1, ItemCode: "ITEM-A", Quantity: 6}})

	repo := NewAllocationRepository(db)
	result, err := repo.AllocateOrder(order.ID, mustStrategy(t, "fifo"), nil, 7)
	require.NoError(t, err)

	var histories []models.TransactionHistory
	require.NoError(t, db.Where("ref_no = ?", result.BatchRef).Find(&histories).Error)
	require.NotEmpty(t, histories)
	assert.Equal(t, "ALLOCATION", histories[0].Type)
	assert.Equal(t, 7, histories[0].CreatedBy)

	_, err = repo.ConfirmBatch(order.ID, 7)
	require.NoError(t, err)
	require.NoError(t, db.Where("ref_no = ?", result.BatchRef).Find(&histories).Error)
	assert.GreaterOrEqual(t, len(histories), 2)
}

func TestAllocateOrderSeesExternalReservations(t *testing.T) {
	db := testDB(t)

	lot := seedLot(t, db, lotSpec{itemID: 1, itemCode: "ITEM-A", whsCode: "WH1", onhand: 10})
	order := seedOrder(t, db, []models.OrderItem{{ItemID: 1, ItemCode: "ITEM-A", Quantity: 6}})

	// Another request drains most of the lot after the order was taken but
	// before allocation runs; the snapshot sees only the remainder and the
	// reduced outcome is recorded instead of failing.
	ledger := NewLedgerRepository(db)
	require.NoError(t, ledger.Reserve(lot.ID, 8, 99))

	result, err := NewAllocationRepository(db).AllocateOrder(order.ID, mustStrategy(t, "fifo"), nil, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Items[0].Allocated)
	assert.Equal(t, 4, result.Shortfall)

	got := reloadLot(t, db, lot.ID)
	assert.Equal(t, 10, got.QtyReserved)
}

func TestAllocateOrderValidation(t *testing.T) {
	db := testDB(t)

	repo := NewAllocationRepository(db)

	_, err := repo.AllocateOrder(123456, mustStrategy(t, "fifo"), nil, 1)
	require.ErrorIs(t, err, ErrOrderNotFound)

	// Demand lines are validated before the ledger is touched.
	header := models.OrderHeader{CustomerRef: "CUST-1"}
	require.NoError(t, db.Create(&header).Error)
	item := models.OrderItem{OrderID: header.ID, ItemID: 1, ItemCode: "ITEM-A", Quantity: 0}
	require.NoError(t, db.Create(&item).Error)

	_, err = repo.AllocateOrder(header.ID, mustStrategy(t, "fifo"), nil, 1)
	require.ErrorIs(t, err, services.ErrInvalidDemand)
}

func TestOrderNumberSequence(t *testing.T) {
	db := testDB(t)

	repo := NewOrderRepository(db)

	header := models.OrderHeader{CustomerRef: "CUST-1"}
	require.NoError(t, repo.CreateOrder(&header, []models.OrderItem{{ItemID: 1, ItemCode: "ITEM-A", Quantity: 1}}))
	prefix := "SO" + time.Now().Format("060102")
	assert.Equal(t, prefix+"0001", header.OrderNo)

	second := models.OrderHeader{CustomerRef: "CUST-2"}
	require.NoError(t, repo.CreateOrder(&second, []models.OrderItem{{ItemID: 1, ItemCode: "ITEM-A", Quantity: 1}}))
	assert.Equal(t, prefix+"0002", second.OrderNo)
}
