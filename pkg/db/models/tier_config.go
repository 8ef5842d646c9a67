package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TierConfig is one margin bracket. A user's tier is the highest-threshold
// active tier their delivered-order count satisfies.
type TierConfig struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name            string          `gorm:"column:name;uniqueIndex;not null"`
	MinTransactions int             `gorm:"column:min_transactions;not null;default:0"`
	MarginPercent   decimal.Decimal `gorm:"column:margin_percent;type:numeric(6,2);not null"`
	Active          bool            `gorm:"column:active;not null;default:true"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
