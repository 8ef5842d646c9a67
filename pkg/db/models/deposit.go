package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/garword/topupid-backend/pkg/enums"
)

// Deposit is a wallet top-up request paid over QRIS. Structurally parallel
// to Order but carries no line items.
type Deposit struct {
	ID          uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	InvoiceCode string              `gorm:"column:invoice_code;uniqueIndex;not null"`
	UserID      uuid.UUID           `gorm:"column:user_id;type:uuid;not null"`
	Amount      decimal.Decimal     `gorm:"column:amount;type:numeric(18,2);not null"`
	Fee         decimal.Decimal     `gorm:"column:fee;type:numeric(18,2);not null;default:0"`
	Total       decimal.Decimal     `gorm:"column:total;type:numeric(18,2);not null"`
	Status      enums.DepositStatus `gorm:"column:status;type:deposit_status;not null;default:'pending'"`
	QRISPayload *string             `gorm:"column:qris_payload"`
	ExpiresAt   *time.Time          `gorm:"column:expires_at"`
	PaidAt      *time.Time          `gorm:"column:paid_at"`
	CreatedAt   time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
