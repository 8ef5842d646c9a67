package cron

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/garword/topupid-backend/internal/orders"
	"github.com/garword/topupid-backend/internal/refund"
	"github.com/garword/topupid-backend/internal/wallet"
	"github.com/garword/topupid-backend/pkg/db/models"
	"github.com/garword/topupid-backend/pkg/enums"
	"github.com/garword/topupid-backend/pkg/logger"
)

type sweepTxRunner struct {
	db *gorm.DB
}

func (r sweepTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error { return fn(tx) })
}

func setupSweepTestDB(t *testing.T) *gorm.DB {
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
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  balance NUMERIC NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS wallet_transactions (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  type TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'success',
  amount NUMERIC NOT NULL,
  balance_before NUMERIC NOT NULL,
  balance_after NUMERIC NOT NULL,
  reference TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  created_at DATETIME
);`}
	for _, stmt := range ddl {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func seedSweepOrder(t *testing.T, db *gorm.DB, status enums.OrderStatus, age time.Duration) *models.Order {
	t.Helper()

	user := &models.User{ID: uuid.New(), Email: uuid.NewString()[:8] + "@example.com", Balance: decimal.Zero}
	require.NoError(t, db.Create(user).Error)
	created := time.Now().UTC().Add(-age)
	order := &models.Order{
		ID:          uuid.New(),
		InvoiceCode: "INV-" + uuid.NewString()[:8],
		UserID:      user.ID,
		Status:      status,
		Subtotal:    decimal.NewFromInt(30000),
		Total:       decimal.NewFromInt(30000),
		CreatedAt:   created,
		UpdatedAt:   created,
	}
	require.NoError(t, db.Create(order).Error)
	return order
}

func newSweepJob(t *testing.T, db *gorm.DB) (Job, wallet.Service) {
	t.Helper()

	logg := logger.New(logger.Options{ServiceName: "sweep-test"})
	repo := orders.NewRepository(db)
	ordersSvc, err := orders.NewService(repo, sweepTxRunner{db: db})
	require.NoError(t, err)
	walletSvc, err := wallet.NewService(wallet.NewRepository(db))
	require.NoError(t, err)
	refundSvc, err := refund.NewService(refund.ServiceParams{
		Logger:     logg,
		OrdersRepo: repo,
		Wallet:     walletSvc,
		TxRunner:   sweepTxRunner{db: db},
	})
	require.NoError(t, err)
	job, err := NewOrderTimeoutJob(OrderTimeoutJobParams{
		Logger:     logg,
		OrdersRepo: repo,
		OrdersSvc:  ordersSvc,
		Refunds:    refundSvc,
		Grace:      10 * time.Minute,
		BatchSize:  50,
	})
	require.NoError(t, err)
	return job, walletSvc
}

func TestOrderTimeoutJobCancelsStaleUnpaid(t *testing.T) {
	db := setupSweepTestDB(t)
	job, walletSvc := newSweepJob(t, db)

	stale := seedSweepOrder(t, db, enums.OrderStatusPending, time.Hour)
	fresh := seedSweepOrder(t, db, enums.OrderStatusPending, time.Minute)

	require.NoError(t, job.Run(context.Background()))

	var current models.Order
	require.NoError(t, db.First(&current, "id = ?", stale.ID).Error)
	assert.Equal(t, enums.OrderStatusCanceled, current.Status)

	require.NoError(t, db.First(&current, "id = ?", fresh.ID).Error)
	assert.Equal(t, enums.OrderStatusPending, current.Status)

	// Nothing was captured on an unpaid order, so nothing is credited.
	balance, err := walletSvc.Balance(context.Background(), stale.UserID)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestOrderTimeoutJobRefundsStuckProcessing(t *testing.T) {
	db := setupSweepTestDB(t)
	job, walletSvc := newSweepJob(t, db)

	stuck := seedSweepOrder(t, db, enums.OrderStatusProcessing, time.Hour)
	delivered := seedSweepOrder(t, db, enums.OrderStatusDelivered, time.Hour)

	require.NoError(t, job.Run(context.Background()))

	var current models.Order
	require.NoError(t, db.First(&current, "id = ?", stuck.ID).Error)
	assert.Equal(t, enums.OrderStatusCanceled, current.Status)

	balance, err := walletSvc.Balance(context.Background(), stuck.UserID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(stuck.Total))

	require.NoError(t, db.First(&current, "id = ?", delivered.ID).Error)
	assert.Equal(t, enums.OrderStatusDelivered, current.Status)
}

func TestOrderTimeoutJobRunIsIdempotent(t *testing.T) {
	db := setupSweepTestDB(t)
	job, walletSvc := newSweepJob(t, db)

	stuck := seedSweepOrder(t, db, enums.OrderStatusProcessing, time.Hour)

	require.NoError(t, job.Run(context.Background()))
	require.NoError(t, job.Run(context.Background()))

	balance, err := walletSvc.Balance(context.Background(), stuck.UserID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(stuck.Total))
}
