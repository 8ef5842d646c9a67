package deposits

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/garword/topupid-backend/pkg/db/models"
	"github.com/garword/topupid-backend/pkg/enums"
)

// Repository persists deposits.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, deposit *models.Deposit) (*models.Deposit, error)
	Find(ctx context.Context, depositID uuid.UUID) (*models.Deposit, error)
	FindByInvoice(ctx context.Context, invoiceCode string) (*models.Deposit, error)
	FindForUpdate(ctx context.Context, depositID uuid.UUID) (*models.Deposit, error)
	FindExpired(ctx context.Context, now time.Time, limit int) ([]models.Deposit, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Deposit, error)
	Update(ctx context.Context, depositID uuid.UUID, updates map[string]any) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a deposits repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, deposit *models.Deposit) (*models.Deposit, error) {
	if err := r.db.WithContext(ctx).Create(deposit).Error; err != nil {
		return nil, err
	}
	return deposit, nil
}

func (r *repository) Find(ctx context.Context, depositID uuid.UUID) (*models.Deposit, error) {
	var deposit models.Deposit
	err := r.db.WithContext(ctx).
		Where("id = ?", depositID).
		First(&deposit).Error
	if err != nil {
		return nil, err
	}
	return &deposit, nil
}

func (r *repository) FindByInvoice(ctx context.Context, invoiceCode string) (*models.Deposit, error) {
	var deposit models.Deposit
	err := r.db.WithContext(ctx).
		Where("invoice_code = ?", invoiceCode).
		First(&deposit).Error
	if err != nil {
		return nil, err
	}
	return &deposit, nil
}

func (r *repository) FindForUpdate(ctx context.Context, depositID uuid.UUID) (*models.Deposit, error) {
	var deposit models.Deposit
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", depositID).
		First(&deposit).Error
	if err != nil {
		return nil, err
	}
	return &deposit, nil
}

// FindExpired returns pending deposits whose expiry has passed, oldest first.
func (r *repository) FindExpired(ctx context.Context, now time.Time, limit int) ([]models.Deposit, error) {
	var expired []models.Deposit
	q := r.db.WithContext(ctx).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", enums.DepositStatusPending, now).
		Order("expires_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&expired).Error; err != nil {
		return nil, err
	}
	return expired, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Deposit, error) {
	var rows []models.Deposit
	q := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) Update(ctx context.Context, depositID uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Deposit{}).
		Where("id = ?", depositID).
		Updates(updates).Error
}
