package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/garword/topupid-backend/internal/orders"
	"github.com/garword/topupid-backend/internal/providers"
	"github.com/garword/topupid-backend/internal/reconcile"
	"github.com/garword/topupid-backend/pkg/db/models"
	"github.com/garword/topupid-backend/pkg/enums"
	"github.com/garword/topupid-backend/pkg/logger"
)

type pollAdapter struct {
	code      enums.ProviderCode
	result    providers.StatusResult
	statusErr error
	checked   []string
}

func (f *pollAdapter) Code() enums.ProviderCode { return f.code }

func (f *pollAdapter) PlaceOrder(context.Context, providers.PlaceOrderInput) (*providers.PlaceOrderResult, error) {
	return nil, errors.New("not used")
}

func (f *pollAdapter) CheckStatus(_ context.Context, refID string) (*providers.StatusResult, error) {
	f.checked = append(f.checked, refID)
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	result := f.result
	return &result, nil
}

type recordingReconciler struct {
	events []reconcile.Event
}

func (f *recordingReconciler) Apply(_ context.Context, event reconcile.Event) error {
	f.events = append(f.events, event)
	return nil
}

func setupPollTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db := setupSweepTestDB(t)
	orderItems := `
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
);`
	require.NoError(t, db.Exec(orderItems).Error)
	return db
}

func seedPollItem(t *testing.T, db *gorm.DB, code enums.ProviderCode, status enums.ProviderStatus, refID string) *models.OrderItem {
	t.Helper()

	item := &models.OrderItem{
		ID:           uuid.New(),
		OrderID:      uuid.New(),
		ProviderCode: &code,
		ProviderSKU:  "SKU-1",
		RefID:        &refID,
		Status:       status,
		Target:       "target",
		Quantity:     1,
		UnitPrice:    decimal.NewFromInt(10000),
		Subtotal:     decimal.NewFromInt(10000),
	}
	require.NoError(t, db.Create(item).Error)
	return item
}

func TestStatusPollJobAppliesVendorResults(t *testing.T) {
	db := setupPollTestDB(t)
	adapter := &pollAdapter{
		code: enums.ProviderCodeDigiflazz,
		result: providers.StatusResult{
			Status:        enums.ProviderStatusSuccess,
			ProviderTrxID: "TRX-1",
			Serial:        "SN-1",
		},
	}
	reconciler := &recordingReconciler{}
	job, err := NewStatusPollJob(StatusPollJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "poll-test"}),
		OrdersRepo: orders.NewRepository(db),
		Registry:   providers.NewRegistry(adapter),
		Reconciler: reconciler,
		BatchSize:  10,
	})
	require.NoError(t, err)

	seedPollItem(t, db, enums.ProviderCodeDigiflazz, enums.ProviderStatusProcessing, "REF-OPEN")
	seedPollItem(t, db, enums.ProviderCodeDigiflazz, enums.ProviderStatusSuccess, "REF-DONE")

	require.NoError(t, job.Run(context.Background()))

	// Only the open item is polled; terminal items are settled already.
	assert.Equal(t, []string{"REF-OPEN"}, adapter.checked)
	require.Len(t, reconciler.events, 1)
	assert.Equal(t, "REF-OPEN", reconciler.events[0].RefID)
	assert.Equal(t, enums.ProviderStatusSuccess, reconciler.events[0].Status)
	assert.Equal(t, "SN-1", reconciler.events[0].Serial)
}

func TestStatusPollJobReportsVendorErrorsButContinues(t *testing.T) {
	db := setupPollTestDB(t)
	broken := &pollAdapter{code: enums.ProviderCodeDigiflazz, statusErr: errors.New("timeout")}
	healthy := &pollAdapter{
		code:   enums.ProviderCodeSosmed,
		result: providers.StatusResult{Status: enums.ProviderStatusSuccess},
	}
	reconciler := &recordingReconciler{}
	job, err := NewStatusPollJob(StatusPollJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "poll-test"}),
		OrdersRepo: orders.NewRepository(db),
		Registry:   providers.NewRegistry(broken, healthy),
		Reconciler: reconciler,
		BatchSize:  10,
	})
	require.NoError(t, err)

	seedPollItem(t, db, enums.ProviderCodeDigiflazz, enums.ProviderStatusProcessing, "REF-BROKEN")
	seedPollItem(t, db, enums.ProviderCodeSosmed, enums.ProviderStatusPartial, "REF-HEALTHY")

	err = job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")

	// The healthy vendor's result still lands.
	require.Len(t, reconciler.events, 1)
	assert.Equal(t, "REF-HEALTHY", reconciler.events[0].RefID)
}
