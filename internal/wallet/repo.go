package wallet

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/garword/topupid-backend/pkg/db/models"
	"github.com/garword/topupid-backend/pkg/enums"
	"github.com/garword/topupid-backend/pkg/pagination"
)

// Repository manages persistence for users' balances and the ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindUser(ctx context.Context, userID uuid.UUID) (*models.User, error)
	FindUserForUpdate(ctx context.Context, userID uuid.UUID) (*models.User, error)
	UpdateUserBalance(ctx context.Context, userID uuid.UUID, balance decimal.Decimal) error
	CreateTransaction(ctx context.Context, trx *models.WalletTransaction) error
	ListByUser(ctx context.Context, userID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.WalletTransaction, error)
	FindByReferenceAndType(ctx context.Context, reference string, trxType enums.WalletTransactionType) (*models.WalletTransaction, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a wallet repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Where("id = ?", userID).
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindUserForUpdate locks the balance row; concurrent credits to the same
// user serialize on it.
func (r *repository) FindUserForUpdate(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", userID).
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repository) UpdateUserBalance(ctx context.Context, userID uuid.UUID, balance decimal.Decimal) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("balance", balance).Error
}

func (r *repository) CreateTransaction(ctx context.Context, trx *models.WalletTransaction) error {
	return r.db.WithContext(ctx).Create(trx).Error
}

// ListByUser pages the ledger newest first with a keyset cursor on
// (created_at, id).
func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.WalletTransaction, error) {
	q := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC")
	if cursor != nil {
		q = q.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []models.WalletTransaction
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) FindByReferenceAndType(ctx context.Context, reference string, trxType enums.WalletTransactionType) (*models.WalletTransaction, error) {
	var row models.WalletTransaction
	err := r.db.WithContext(ctx).
		Where("reference = ? AND type = ?", reference, trxType).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}
