package repositories

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveReleaseRoundTrip(t *testing.T) {
	db := testDB(t)
	lot := seedLot(t, db, lotSpec{itemID: 1, itemCode: "ITEM-A", whsCode: "WH1", onhand: 10})

	ledger := NewLedgerRepository(db)

	require.NoError(t, ledger.Reserve(lot.ID, 6, 1))
	got := reloadLot(t, db, lot.ID)
	assert.Equal(t, 10, got.QtyOnhand)
	assert.Equal(t, 6, got.QtyReserved)
	assert.Equal(t, 4, got.Available())

	require.NoError(t, ledger.Release(lot.ID, 6, 1))
	got = reloadLot(t, db, lot.ID)
	assert.Equal(t, 0, got.QtyReserved)
	assert.Equal(t, 10, got.Available())
}

func TestReserveInsufficientStock(t *testing.T) {
	db := testDB(t)
	lot := seedLot(t, db, lotSpec{itemID: 1, itemCode: "ITEM-A", whsCode: "WH1", onhand: 10, reserved: 7})

	ledger := NewLedgerRepository(db)

	err := ledger.Reserve(lot.ID, 4, 1)
	require.ErrorIs(t, err, ErrInsufficientStock)

	// Failed reserve leaves the counters untouched.
	got := reloadLot(t, db, lot.ID)
	assert.Equal(t, 7, got.QtyReserved)
}

func TestReserveValidatesQuantity(t *testing.T) {
	db := testDB(t)
	lot := seedLot(t, db, lotSpec{itemID: 1, itemCode: "ITEM-A", whsCode: "WH1", onhand: 10})

	ledger := NewLedgerRepository(db)

	assert.Error(t, ledger.Reserve(lot.ID, 0, 1))
	assert.Error(t, ledger.Reserve(lot.ID, -3, 1))
}

func TestReserveUnknownLot(t *testing.T) {
	db := testDB(t)

	ledger := NewLedgerRepository(db)

	err := ledger.Reserve(999999, 1, 1)
	require.ErrorIs(t, err, ErrLotNotFound)
}

func TestReleaseUnderflowIsLoud(t *testing.T) {
	db := testDB(t)
	lot := seedLot(t, db, lotSpec{itemID: 1, itemCode: "ITEM-A", whsCode: "WH1", onhand: 10, reserved: 2})

	ledger := NewLedgerRepository(db)

	err := ledger.Release(lot.ID, 5, 1)
	require.ErrorIs(t, err, ErrReservationUnderflow)

	// Never clamped.
	got := reloadLot(t, db, lot.ID)
	assert.Equal(t, 2, got.QtyReserved)
}

func TestCommitFulfillment(t *testing.T) {
	db := testDB(t)
	lot := seedLot(t, db, lotSpec{itemID: 1, itemCode: "ITEM-A", whsCode: "WH1", onhand: 10, reserved: 6})

	ledger := NewLedgerRepository(db)

	require.NoError(t, ledger.CommitFulfillment(lot.ID, 6, 1))
	got := reloadLot(t, db, lot.ID)
	assert.Equal(t, 4, got.QtyOnhand)
	assert.Equal(t, 0, got.QtyReserved)
}

func TestCommitFulfillmentUnderflow(t *testing.T) {
	db := testDB(t)
	lot := seedLot(t, db, lotSpec{itemID: 1, itemCode: "ITEM-A", whsCode: "WH1", onhand: 10, reserved: 2})

	ledger := NewLedgerRepository(db)

	err := ledger.CommitFulfillment(lot.ID, 5, 1)
	require.ErrorIs(t, err, ErrReservationUnderflow)

	got := reloadLot(t, db, lot.ID)
	assert.Equal(t, 10, got.QtyOnhand)
	assert.Equal(t, 2, got.QtyReserved)
}

func TestAdjust(t *testing.T) {
	db := testDB(t)
	lot := seedLot(t, db, lotSpec{itemID: 1, itemCode: "ITEM-A", whsCode: "WH1", onhand: 10, reserved: 4})

	ledger := NewLedgerRepository(db)

	require.NoError(t, ledger.Adjust(lot.ID, -6, 1))
	got := reloadLot(t, db, lot.ID)
	assert.Equal(t, 4, got.QtyOnhand)

	// Cannot drop on-hand below the held reservation.
	err := ledger.Adjust(lot.ID, -1, 1)
	require.ErrorIs(t, err, ErrInsufficientStock)

	require.NoError(t, ledger.Adjust(lot.ID, 20, 1))
	got = reloadLot(t, db, lot.ID)
	assert.Equal(t, 24, got.QtyOnhand)
}

func TestCompetingReservesNeverExceedOnhand(t *testing.T) {
	db := testDB(t)
	lot := seedLot(t, db, lotSpec{itemID: 1, itemCode: "ITEM-A", whsCode: "WH1", onhand: 10})

	ledger := NewLedgerRepository(db)

	// Two demands of 6 against 10 on hand: the second reserve re-checks
	// under the lock and only the remainder can be taken.
	require.NoError(t, ledger.Reserve(lot.ID, 6, 1))
	err := ledger.Reserve(lot.ID, 6, 2)
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.NoError(t, ledger.Reserve(lot.ID, 4, 2))

	got := reloadLot(t, db, lot.ID)
	assert.Equal(t, 10, got.QtyReserved)
	assert.Equal(t, 0, got.Available())
}
