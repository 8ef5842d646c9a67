package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/garword/topupid-backend/pkg/enums"
)

// WalletTransaction is one immutable ledger row. Rows are append-only:
// replaying a user's rows in creation order must reproduce their balance.
type WalletTransaction struct {
	ID            uuid.UUID                     `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID        uuid.UUID                     `gorm:"column:user_id;type:uuid;not null;index"`
	Type          enums.WalletTransactionType   `gorm:"column:type;type:wallet_transaction_type;not null"`
	Status        enums.WalletTransactionStatus `gorm:"column:status;type:wallet_transaction_status;not null;default:'success'"`
	Amount        decimal.Decimal               `gorm:"column:amount;type:numeric(18,2);not null"`
	BalanceBefore decimal.Decimal               `gorm:"column:balance_before;type:numeric(18,2);not null"`
	BalanceAfter  decimal.Decimal               `gorm:"column:balance_after;type:numeric(18,2);not null"`
	Reference     string                        `gorm:"column:reference;not null;index"`
	Description   string                        `gorm:"column:description;not null"`
	CreatedAt     time.Time                     `gorm:"column:created_at;autoCreateTime"`
}

// SignedAmount returns the amount with the sign its type implies.
func (t WalletTransaction) SignedAmount() decimal.Decimal {
	if t.Type.IsCredit() {
		return t.Amount
	}
	return t.Amount.Neg()
}
