package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/garword/topupid-backend/pkg/enums"
)

// OrderItem is one catalog variant within an order. ProviderCode nil means
// the item is fulfilled manually and never counts toward auto-delivery.
// RefID is assigned by the orchestrator at dispatch time and stored here so
// webhooks resolve it by lookup, never by parsing a formatted string.
type OrderItem struct {
	ID            uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID       uuid.UUID            `gorm:"column:order_id;type:uuid;not null;index"`
	ProviderCode  *enums.ProviderCode  `gorm:"column:provider_code;type:provider_code"`
	ProviderSKU   string               `gorm:"column:provider_sku;not null"`
	RefID         *string              `gorm:"column:ref_id;uniqueIndex"`
	ProviderTrxID *string              `gorm:"column:provider_trx_id"`
	Status        enums.ProviderStatus `gorm:"column:status;type:provider_status;not null;default:'pending'"`
	Serial        *string              `gorm:"column:serial"`
	Target        string               `gorm:"column:target;not null"`
	Quantity      int                  `gorm:"column:quantity;not null;default:1"`
	UnitPrice     decimal.Decimal      `gorm:"column:unit_price;type:numeric(18,2);not null"`
	Subtotal      decimal.Decimal      `gorm:"column:subtotal;type:numeric(18,2);not null"`
	StartCount    *int                 `gorm:"column:start_count"`
	Remains       *int                 `gorm:"column:remains"`
	Note          *string              `gorm:"column:note"`
	CreatedAt     time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

// DispatchRefID returns the reference sent to the vendor for this item. It
// is stable across dispatch retries: the invoice code plus the item id. Once
// a dispatch persisted RefID, that stored value wins.
func (i OrderItem) DispatchRefID(invoiceCode string) string {
	if i.RefID != nil && *i.RefID != "" {
		return *i.RefID
	}
	return invoiceCode + "-" + i.ID.String()
}

// VendorBacked reports whether the item is fulfilled through a provider
// adapter. Manual items are excluded from order completion checks.
func (i OrderItem) VendorBacked() bool {
	return i.ProviderCode != nil && *i.ProviderCode != ""
}
