package repositories

import (
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"wms-allocation/controllers/idgen"
	"wms-allocation/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestMain(m *testing.M) {
	idgen.Init()
	os.Exit(m.Run())
}

// testDB opens a per-test in-memory sqlite database with the full schema.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One connection keeps the shared memory database alive and serializes
	// writers the way sqlite expects.
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.Product{},
		&models.Lot{},
		&models.OrderHeader{},
		&models.OrderItem{},
		&models.AllocationBatch{},
		&models.Allocation{},
		&models.TransactionHistory{},
	))

	return db
}

type lotSpec struct {
	itemID   int
	itemCode string
	whsCode  string
	onhand   int
	reserved int
	expiry   *time.Time
	inbound  time.Time
	cost     int64
	status   string
}

func seedLot(t *testing.T, db *gorm.DB, spec lotSpec) models.Lot {
	t.Helper()

	if spec.status == "" {
		spec.status = models.LotStatusInStock
	}
	if spec.inbound.IsZero() {
		spec.inbound = time.Now().AddDate(0, -1, 0)
	}
	lot := models.Lot{
		ItemID:      spec.itemID,
		ItemCode:    spec.itemCode,
		WhsCode:     spec.whsCode,
		LotNumber:   fmt.Sprintf("LT-%s-%d", spec.itemCode, idgen.GenerateID()),
		QtyOnhand:   spec.onhand,
		QtyReserved: spec.reserved,
		ExpiryDate:  spec.expiry,
		InboundDate: spec.inbound,
		UnitCost:    decimal.NewFromInt(spec.cost),
		Status:      spec.status,
	}
	require.NoError(t, db.Create(&lot).Error)
	return lot
}

func reloadLot(t *testing.T, db *gorm.DB, id interface{}) models.Lot {
	t.Helper()

	var lot models.Lot
	require.NoError(t, db.Where("id = ?", id).First(&lot).Error)
	require.GreaterOrEqual(t, lot.QtyReserved, 0)
	require.LessOrEqual(t, lot.QtyReserved, lot.QtyOnhand)
	return lot
}

func daysAhead(n int) *time.Time {
	t := time.Now().AddDate(0, 0, n)
	return &t
}
