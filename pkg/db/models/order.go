package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/garword/topupid-backend/pkg/enums"
)

// Order is one checkout. Orders are a financial record and are never
// physically deleted; the state machine is the only mutator.
type Order struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	InvoiceCode string            `gorm:"column:invoice_code;uniqueIndex;not null"`
	UserID      uuid.UUID         `gorm:"column:user_id;type:uuid;not null"`
	Status      enums.OrderStatus `gorm:"column:status;type:order_status;not null;default:'pending'"`
	Subtotal    decimal.Decimal   `gorm:"column:subtotal;type:numeric(18,2);not null"`
	Discount    decimal.Decimal   `gorm:"column:discount;type:numeric(18,2);not null;default:0"`
	Fee         decimal.Decimal   `gorm:"column:fee;type:numeric(18,2);not null;default:0"`
	Total       decimal.Decimal   `gorm:"column:total;type:numeric(18,2);not null"`
	Items       []OrderItem       `gorm:"foreignKey:OrderID"`
	DeliveredAt *time.Time        `gorm:"column:delivered_at"`
	ExpiredAt   *time.Time        `gorm:"column:expired_at"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
