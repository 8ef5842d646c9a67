package wallet

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

	"github.com/garword/topupid-backend/pkg/db/models"
	"github.com/garword/topupid-backend/pkg/enums"
	pkgerrors "github.com/garword/topupid-backend/pkg/errors"
	"github.com/garword/topupid-backend/pkg/pagination"
)

func setupWalletTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	users := `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  balance NUMERIC NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`
	transactions := `
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
);`
	require.NoError(t, db.Exec(users).Error)
	require.NoError(t, db.Exec(transactions).Error)
	return db
}

func createTestUser(t *testing.T, db *gorm.DB, balance decimal.Decimal) *models.User {
	t.Helper()

	user := &models.User{
		ID:      uuid.New(),
		Email:   uuid.NewString()[:8] + "@example.com",
		Balance: balance,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func TestServiceCreditAndDebit(t *testing.T) {
	db := setupWalletTestDB(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	user := createTestUser(t, db, decimal.Zero)

	trx, err := svc.Credit(context.Background(), db, EntryInput{
		UserID:      user.ID,
		Type:        enums.WalletTransactionTypeDeposit,
		Amount:      decimal.NewFromInt(100000),
		Reference:   "DEP-AAA111",
		Description: "deposit settled",
	})
	require.NoError(t, err)
	assert.True(t, trx.BalanceBefore.IsZero())
	assert.True(t, trx.BalanceAfter.Equal(decimal.NewFromInt(100000)))

	trx, err = svc.Debit(context.Background(), db, EntryInput{
		UserID:      user.ID,
		Type:        enums.WalletTransactionTypeDebit,
		Amount:      decimal.NewFromInt(30000),
		Reference:   "INV-BBB222",
		Description: "order payment",
	})
	require.NoError(t, err)
	assert.True(t, trx.BalanceAfter.Equal(decimal.NewFromInt(70000)))

	balance, err := svc.Balance(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(70000)))
}

func TestServiceDebitInsufficientBalance(t *testing.T) {
	db := setupWalletTestDB(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	user := createTestUser(t, db, decimal.NewFromInt(5000))

	_, err = svc.Debit(context.Background(), db, EntryInput{
		UserID:    user.ID,
		Type:      enums.WalletTransactionTypeDebit,
		Amount:    decimal.NewFromInt(10000),
		Reference: "INV-CCC333",
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))

	// The failed debit must leave no trace: neither balance nor ledger.
	balance, err := svc.Balance(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(5000)))

	var count int64
	require.NoError(t, db.Model(&models.WalletTransaction{}).Where("user_id = ?", user.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestServiceCreditRejectsDebitType(t *testing.T) {
	db := setupWalletTestDB(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	user := createTestUser(t, db, decimal.Zero)

	_, err = svc.Credit(context.Background(), db, EntryInput{
		UserID:    user.ID,
		Type:      enums.WalletTransactionTypeDebit,
		Amount:    decimal.NewFromInt(1000),
		Reference: "X",
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestServiceLedgerReplaysToBalance(t *testing.T) {
	db := setupWalletTestDB(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	user := createTestUser(t, db, decimal.Zero)

	amounts := []int64{50000, 20000, 10000}
	for i, amount := range amounts {
		input := EntryInput{
			UserID:    user.ID,
			Amount:    decimal.NewFromInt(amount),
			Reference: fmt.Sprintf("REF-%d", i),
		}
		if i%2 == 0 {
			input.Type = enums.WalletTransactionTypeCredit
			_, err = svc.Credit(context.Background(), db, input)
		} else {
			input.Type = enums.WalletTransactionTypeDebit
			_, err = svc.Debit(context.Background(), db, input)
		}
		require.NoError(t, err)
	}

	var rows []models.WalletTransaction
	require.NoError(t, db.Where("user_id = ?", user.ID).Order("created_at ASC, balance_after ASC").Find(&rows).Error)
	require.Len(t, rows, 3)

	replayed := decimal.Zero
	for _, row := range rows {
		assert.True(t, row.BalanceBefore.Equal(replayed), "row %s before mismatch", row.Reference)
		replayed = replayed.Add(row.SignedAmount())
		assert.True(t, row.BalanceAfter.Equal(replayed), "row %s after mismatch", row.Reference)
	}

	balance, err := svc.Balance(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(replayed))
}

func TestServiceLedgerPagination(t *testing.T) {
	db := setupWalletTestDB(t)
	repo := NewRepository(db)
	svc, err := NewService(repo)
	require.NoError(t, err)

	user := createTestUser(t, db, decimal.Zero)
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		trx := &models.WalletTransaction{
			ID:            uuid.New(),
			UserID:        user.ID,
			Type:          enums.WalletTransactionTypeCredit,
			Status:        enums.WalletTransactionStatusSuccess,
			Amount:        decimal.NewFromInt(int64(1000 * (i + 1))),
			BalanceBefore: decimal.Zero,
			BalanceAfter:  decimal.Zero,
			Reference:     fmt.Sprintf("PAGE-%d", i),
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, db.Create(trx).Error)
	}

	first, next, err := svc.Ledger(context.Background(), user.ID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.NotEmpty(t, next)
	assert.Equal(t, "PAGE-2", first[0].Reference)
	assert.Equal(t, "PAGE-1", first[1].Reference)

	second, next, err := svc.Ledger(context.Background(), user.ID, pagination.Params{Limit: 2, Cursor: next})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "PAGE-0", second[0].Reference)
	assert.Empty(t, next)

	_, _, err = svc.Ledger(context.Background(), user.ID, pagination.Params{Cursor: "not-base64!"})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestServiceHasEntry(t *testing.T) {
	db := setupWalletTestDB(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	user := createTestUser(t, db, decimal.Zero)

	_, err = svc.Credit(context.Background(), db, EntryInput{
		UserID:    user.ID,
		Type:      enums.WalletTransactionTypeRefund,
		Amount:    decimal.NewFromInt(1000),
		Reference: "INV-REF-1",
	})
	require.NoError(t, err)

	found, err := svc.HasEntry(context.Background(), "INV-REF-1", enums.WalletTransactionTypeRefund)
	require.NoError(t, err)
	assert.True(t, found)

	found, err = svc.HasEntry(context.Background(), "INV-REF-1", enums.WalletTransactionTypeDeposit)
	require.NoError(t, err)
	assert.False(t, found)
}
