package reconcile

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

	"github.com/garword/topupid-backend/internal/orders"
	"github.com/garword/topupid-backend/internal/refund"
	"github.com/garword/topupid-backend/internal/wallet"
	"github.com/garword/topupid-backend/pkg/db/models"
	"github.com/garword/topupid-backend/pkg/enums"
	pkgerrors "github.com/garword/topupid-backend/pkg/errors"
	"github.com/garword/topupid-backend/pkg/logger"
)

type testTxRunner struct {
	db *gorm.DB
}

func (r testTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error { return fn(tx) })
}

func setupReconcileTestDB(t *testing.T) *gorm.DB {
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
CREATE TABLE IF NOT EXISTS order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  provider_code TEXT,
  provider_sku TEXT NOT NULL DEFAULT '',
  ref_id TEXT UNIQUE,
  provider_trx_id TEXT,
  status TEXT NOT NULL DEFAULT 'pending',
  serial TEXT,
  target TEXT NOT NULL DEFAULT '',
  quantity INTEGER NOT NULL DEFAULT 1,
  unit_price NUMERIC NOT NULL DEFAULT 0,
  subtotal NUMERIC NOT NULL DEFAULT 0,
  start_count INTEGER,
  remains INTEGER,
  note TEXT,
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

type fixture struct {
	db      *gorm.DB
	svc     Service
	wallet  wallet.Service
	order   *models.Order
	items   []*models.OrderItem
	refIDs  []string
	invoice string
}

// newFixture seeds a processing order with n dispatched digiflazz items of
// 25000 each and wires a reconciler over real services.
func newFixture(t *testing.T, n int) *fixture {
	t.Helper()

	db := setupReconcileTestDB(t)
	logg := logger.New(logger.Options{ServiceName: "reconcile-test"})
	repo := orders.NewRepository(db)
	ordersSvc, err := orders.NewService(repo, testTxRunner{db: db})
	require.NoError(t, err)
	walletSvc, err := wallet.NewService(wallet.NewRepository(db))
	require.NoError(t, err)
	refundSvc, err := refund.NewService(refund.ServiceParams{
		Logger:     logg,
		OrdersRepo: repo,
		Wallet:     walletSvc,
		TxRunner:   testTxRunner{db: db},
	})
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Logger:     logg,
		OrdersRepo: repo,
		OrdersSvc:  ordersSvc,
		Refunds:    refundSvc,
		TxRunner:   testTxRunner{db: db},
	})
	require.NoError(t, err)

	user := &models.User{ID: uuid.New(), Email: uuid.NewString()[:8] + "@example.com", Balance: decimal.Zero}
	require.NoError(t, db.Create(user).Error)

	total := decimal.NewFromInt(int64(25000 * n))
	order := &models.Order{
		ID:          uuid.New(),
		InvoiceCode: "INV-" + uuid.NewString()[:8],
		UserID:      user.ID,
		Status:      enums.OrderStatusProcessing,
		Subtotal:    total,
		Total:       total,
	}
	require.NoError(t, db.Create(order).Error)

	f := &fixture{db: db, svc: svc, wallet: walletSvc, order: order, invoice: order.InvoiceCode}
	code := enums.ProviderCodeDigiflazz
	for i := 0; i < n; i++ {
		refID := fmt.Sprintf("%s-%s", order.InvoiceCode, uuid.NewString())
		item := &models.OrderItem{
			ID:           uuid.New(),
			OrderID:      order.ID,
			ProviderCode: &code,
			ProviderSKU:  "ML86",
			RefID:        &refID,
			Status:       enums.ProviderStatusProcessing,
			Target:       "628123456789",
			Quantity:     1,
			UnitPrice:    decimal.NewFromInt(25000),
			Subtotal:     decimal.NewFromInt(25000),
		}
		require.NoError(t, db.Create(item).Error)
		f.items = append(f.items, item)
		f.refIDs = append(f.refIDs, refID)
	}
	return f
}

func (f *fixture) orderStatus(t *testing.T) enums.OrderStatus {
	t.Helper()
	var current models.Order
	require.NoError(t, f.db.First(&current, "id = ?", f.order.ID).Error)
	return current.Status
}

func (f *fixture) itemStatus(t *testing.T, i int) enums.ProviderStatus {
	t.Helper()
	var current models.OrderItem
	require.NoError(t, f.db.First(&current, "id = ?", f.items[i].ID).Error)
	return current.Status
}

func (f *fixture) refundCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(&models.WalletTransaction{}).
		Where("user_id = ? AND type = ?", f.order.UserID, enums.WalletTransactionTypeRefund).
		Count(&count).Error)
	return count
}

func TestApplySuccessDeliversOrder(t *testing.T) {
	f := newFixture(t, 2)

	require.NoError(t, f.svc.Apply(context.Background(), Event{
		RefID:         f.refIDs[0],
		Status:        enums.ProviderStatusSuccess,
		Serial:        "SN-123",
		ProviderTrxID: "TRX-1",
	}))
	assert.Equal(t, enums.ProviderStatusSuccess, f.itemStatus(t, 0))
	// One item still open, the order keeps processing.
	assert.Equal(t, enums.OrderStatusProcessing, f.orderStatus(t))

	require.NoError(t, f.svc.Apply(context.Background(), Event{
		RefID:  f.refIDs[1],
		Status: enums.ProviderStatusSuccess,
		Serial: "SN-456",
	}))
	assert.Equal(t, enums.OrderStatusDelivered, f.orderStatus(t))

	var item models.OrderItem
	require.NoError(t, f.db.First(&item, "id = ?", f.items[0].ID).Error)
	require.NotNil(t, item.Serial)
	assert.Equal(t, "SN-123", *item.Serial)
	require.NotNil(t, item.ProviderTrxID)
	assert.Equal(t, "TRX-1", *item.ProviderTrxID)
}

func TestApplyFailureRefundsWholeOrder(t *testing.T) {
	f := newFixture(t, 2)

	require.NoError(t, f.svc.Apply(context.Background(), Event{
		RefID:   f.refIDs[0],
		Status:  enums.ProviderStatusFailed,
		Message: "Gagal",
	}))

	assert.Equal(t, enums.ProviderStatusFailed, f.itemStatus(t, 0))
	assert.Equal(t, enums.OrderStatusCanceled, f.orderStatus(t))
	assert.Equal(t, int64(1), f.refundCount(t))

	balance, err := f.wallet.Balance(context.Background(), f.order.UserID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(f.order.Total))
}

func TestApplyFailureReplayRefundsOnce(t *testing.T) {
	f := newFixture(t, 1)

	event := Event{RefID: f.refIDs[0], Status: enums.ProviderStatusFailed, Message: "Gagal"}
	require.NoError(t, f.svc.Apply(context.Background(), event))
	require.NoError(t, f.svc.Apply(context.Background(), event))
	require.NoError(t, f.svc.Apply(context.Background(), event))

	assert.Equal(t, int64(1), f.refundCount(t))
}

func TestApplyPartialRefundsRemainder(t *testing.T) {
	f := newFixture(t, 1)

	// 1000 followers ordered at 100 each; 300 never arrive.
	require.NoError(t, f.db.Model(&models.OrderItem{}).Where("id = ?", f.items[0].ID).Updates(map[string]any{
		"quantity":   1000,
		"unit_price": decimal.NewFromInt(100),
		"subtotal":   decimal.NewFromInt(100000),
	}).Error)
	require.NoError(t, f.db.Model(&models.Order{}).Where("id = ?", f.order.ID).Updates(map[string]any{
		"subtotal": decimal.NewFromInt(100000),
		"total":    decimal.NewFromInt(100000),
	}).Error)

	start := 5000
	remains := 300
	require.NoError(t, f.svc.Apply(context.Background(), Event{
		RefID:      f.refIDs[0],
		Status:     enums.ProviderStatusPartial,
		StartCount: &start,
		Remains:    &remains,
	}))

	assert.Equal(t, enums.ProviderStatusPartial, f.itemStatus(t, 0))
	assert.Equal(t, enums.OrderStatusProcessing, f.orderStatus(t))

	// 300 undelivered units at 100 each.
	balance, err := f.wallet.Balance(context.Background(), f.order.UserID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(30000)), "got %s", balance)

	// The identical partial event replayed carries no new information.
	require.NoError(t, f.svc.Apply(context.Background(), Event{
		RefID:      f.refIDs[0],
		Status:     enums.ProviderStatusPartial,
		StartCount: &start,
		Remains:    &remains,
	}))
	assert.Equal(t, int64(1), f.refundCount(t))
}

func TestApplyPartialProgressCompensatesItemOnce(t *testing.T) {
	f := newFixture(t, 1)

	// 10 units at 2500 each; the panel keeps delivering after its first
	// partial report, so remains ticks down across polls.
	require.NoError(t, f.db.Model(&models.OrderItem{}).Where("id = ?", f.items[0].ID).Updates(map[string]any{
		"quantity":   10,
		"unit_price": decimal.NewFromInt(2500),
		"subtotal":   decimal.NewFromInt(25000),
	}).Error)

	first := 5
	require.NoError(t, f.svc.Apply(context.Background(), Event{
		RefID:   f.refIDs[0],
		Status:  enums.ProviderStatusPartial,
		Remains: &first,
	}))

	second := 3
	require.NoError(t, f.svc.Apply(context.Background(), Event{
		RefID:   f.refIDs[0],
		Status:  enums.ProviderStatusPartial,
		Remains: &second,
	}))

	// One credit for the item, from the first report; the moving count must
	// not stack additional refunds.
	assert.Equal(t, int64(1), f.refundCount(t))
	balance, err := f.wallet.Balance(context.Background(), f.order.UserID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(12500)), "got %s", balance)
}

func TestApplyLateSuccessAfterSweepCancelLeavesOrderCanceled(t *testing.T) {
	f := newFixture(t, 1)

	// The sweep refunded this order while the vendor was still working.
	require.NoError(t, f.db.Model(&models.Order{}).Where("id = ?", f.order.ID).
		Update("status", enums.OrderStatusCanceled).Error)

	require.NoError(t, f.svc.Apply(context.Background(), Event{
		RefID:  f.refIDs[0],
		Status: enums.ProviderStatusSuccess,
		Serial: "SN-LATE",
	}))

	assert.Equal(t, enums.ProviderStatusSuccess, f.itemStatus(t, 0))
	assert.Equal(t, enums.OrderStatusCanceled, f.orderStatus(t))
}

func TestApplyTerminalItemNeverRegresses(t *testing.T) {
	f := newFixture(t, 1)

	require.NoError(t, f.svc.Apply(context.Background(), Event{
		RefID:  f.refIDs[0],
		Status: enums.ProviderStatusSuccess,
	}))

	// A conflicting late failure is dropped; no refund fires.
	require.NoError(t, f.svc.Apply(context.Background(), Event{
		RefID:   f.refIDs[0],
		Status:  enums.ProviderStatusFailed,
		Message: "Gagal",
	}))

	assert.Equal(t, enums.ProviderStatusSuccess, f.itemStatus(t, 0))
	assert.Equal(t, int64(0), f.refundCount(t))
}

func TestApplyValidation(t *testing.T) {
	f := newFixture(t, 1)

	err := f.svc.Apply(context.Background(), Event{RefID: "", Status: enums.ProviderStatusSuccess})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	err = f.svc.Apply(context.Background(), Event{RefID: f.refIDs[0], Status: "weird"})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	err = f.svc.Apply(context.Background(), Event{RefID: "unknown-ref", Status: enums.ProviderStatusSuccess})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestApplyManualItemsDoNotGateDelivery(t *testing.T) {
	f := newFixture(t, 1)

	// A manual item on the same order stays pending forever; delivery keys
	// off vendor-backed items only.
	manual := &models.OrderItem{
		ID:        uuid.New(),
		OrderID:   f.order.ID,
		Status:    enums.ProviderStatusPending,
		Target:    "manual",
		Quantity:  1,
		UnitPrice: decimal.NewFromInt(5000),
		Subtotal:  decimal.NewFromInt(5000),
	}
	require.NoError(t, f.db.Create(manual).Error)

	require.NoError(t, f.svc.Apply(context.Background(), Event{
		RefID:  f.refIDs[0],
		Status: enums.ProviderStatusSuccess,
	}))
	assert.Equal(t, enums.OrderStatusDelivered, f.orderStatus(t))
}
