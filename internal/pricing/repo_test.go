package pricing

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/garword/topupid-backend/pkg/db/models"
	"github.com/garword/topupid-backend/pkg/enums"
)

func setupPricingTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	ddl := []string{`
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  invoice_code TEXT NOT NULL UNIQUE,
  user_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  subtotal NUMERIC NOT NULL DEFAULT 0,
  discount NUMERIC NOT NULL DEFAULT 0,
  fee NUMERIC NOT NULL DEFAULT 0,
  total NUMERIC NOT NULL DEFAULT 0,
  delivered_at DATETIME,
  expired_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS tier_configs (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL UNIQUE,
  min_transactions INTEGER NOT NULL DEFAULT 0,
  margin_percent NUMERIC NOT NULL,
  active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`}
	for _, stmt := range ddl {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func seedTier(t *testing.T, db *gorm.DB, name string, min int, active bool) {
	t.Helper()

	tier := &models.TierConfig{
		ID:              uuid.New(),
		Name:            name,
		MinTransactions: min,
		MarginPercent:   decimal.NewFromInt(10),
		Active:          active,
	}
	require.NoError(t, db.Create(tier).Error)
}

func seedOrderWithStatus(t *testing.T, db *gorm.DB, userID uuid.UUID, status enums.OrderStatus) {
	t.Helper()

	order := &models.Order{
		ID:          uuid.New(),
		InvoiceCode: "INV-" + uuid.NewString()[:8],
		UserID:      userID,
		Status:      status,
		Subtotal:    decimal.NewFromInt(10000),
		Total:       decimal.NewFromInt(10000),
	}
	require.NoError(t, db.Create(order).Error)
}

func TestRepositoryListActiveTiers(t *testing.T) {
	db := setupPricingTestDB(t)
	repo := NewRepository(db)

	seedTier(t, db, "gold", 50, true)
	seedTier(t, db, "bronze", 0, true)
	seedTier(t, db, "legacy", 5, false)
	seedTier(t, db, "silver", 10, true)

	tiers, err := repo.ListActiveTiers(context.Background())
	require.NoError(t, err)
	require.Len(t, tiers, 3)
	assert.Equal(t, "bronze", tiers[0].Name)
	assert.Equal(t, "silver", tiers[1].Name)
	assert.Equal(t, "gold", tiers[2].Name)
}

func TestRepositoryCountDeliveredOrders(t *testing.T) {
	db := setupPricingTestDB(t)
	repo := NewRepository(db)

	user := uuid.New()
	seedOrderWithStatus(t, db, user, enums.OrderStatusDelivered)
	seedOrderWithStatus(t, db, user, enums.OrderStatusDelivered)
	// Refunded orders end canceled and drop out of the count; pending and
	// processing never entered it.
	seedOrderWithStatus(t, db, user, enums.OrderStatusCanceled)
	seedOrderWithStatus(t, db, user, enums.OrderStatusProcessing)
	seedOrderWithStatus(t, db, uuid.New(), enums.OrderStatusDelivered)

	count, err := repo.CountDeliveredOrders(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
