package pricing

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/garword/topupid-backend/pkg/db/models"
	"github.com/garword/topupid-backend/pkg/enums"
)

// Repository reads tier configuration and the per-user delivered-order count
// tier selection keys off.
type Repository interface {
	ListActiveTiers(ctx context.Context) ([]models.TierConfig, error)
	CountDeliveredOrders(ctx context.Context, userID uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a pricing repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) ListActiveTiers(ctx context.Context) ([]models.TierConfig, error) {
	var tiers []models.TierConfig
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("min_transactions ASC").
		Find(&tiers).Error
	if err != nil {
		return nil, err
	}
	return tiers, nil
}

// CountDeliveredOrders counts orders currently in DELIVERED. A refunded
// order ends CANCELED, so it drops out of the count.
func (r *repository) CountDeliveredOrders(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("user_id = ? AND status = ?", userID, enums.OrderStatusDelivered).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
