package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/garword/topupid-backend/pkg/db/models"
	"github.com/garword/topupid-backend/pkg/enums"
	pkgerrors "github.com/garword/topupid-backend/pkg/errors"
	"github.com/garword/topupid-backend/pkg/pagination"
)

// Service writes ledger rows and keeps the balance column consistent with
// them. Credit and Debit run inside the caller's transaction so a balance
// change and its ledger row commit or roll back together.
type Service interface {
	Credit(ctx context.Context, tx *gorm.DB, input EntryInput) (*models.WalletTransaction, error)
	Debit(ctx context.Context, tx *gorm.DB, input EntryInput) (*models.WalletTransaction, error)
	Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	Ledger(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.WalletTransaction, string, error)
	HasEntry(ctx context.Context, reference string, trxType enums.WalletTransactionType) (bool, error)
}

// EntryInput captures the immutable data a ledger row requires.
type EntryInput struct {
	UserID      uuid.UUID
	Type        enums.WalletTransactionType
	Amount      decimal.Decimal
	Reference   string
	Description string
}

type service struct {
	repo Repository
}

// NewService wires a wallet service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Credit(ctx context.Context, tx *gorm.DB, input EntryInput) (*models.WalletTransaction, error) {
	if !input.Type.IsCredit() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("type %s is not a credit", input.Type))
	}
	return s.append(ctx, tx, input)
}

func (s *service) Debit(ctx context.Context, tx *gorm.DB, input EntryInput) (*models.WalletTransaction, error) {
	if input.Type.IsCredit() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("type %s is not a debit", input.Type))
	}
	return s.append(ctx, tx, input)
}

func (s *service) append(ctx context.Context, tx *gorm.DB, input EntryInput) (*models.WalletTransaction, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid wallet transaction type %q", input.Type))
	}
	if input.Amount.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must not be negative")
	}
	if input.Reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference is required")
	}

	repo := s.repo.WithTx(tx)
	user, err := repo.FindUserForUpdate(ctx, input.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("user %s not found", input.UserID))
		}
		return nil, err
	}

	before := user.Balance
	var after decimal.Decimal
	if input.Type.IsCredit() {
		after = before.Add(input.Amount)
	} else {
		after = before.Sub(input.Amount)
		if after.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "insufficient balance")
		}
	}

	if err := repo.UpdateUserBalance(ctx, input.UserID, after); err != nil {
		return nil, err
	}

	trx := &models.WalletTransaction{
		UserID:        input.UserID,
		Type:          input.Type,
		Status:        enums.WalletTransactionStatusSuccess,
		Amount:        input.Amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		Reference:     input.Reference,
		Description:   input.Description,
	}
	if err := repo.CreateTransaction(ctx, trx); err != nil {
		return nil, err
	}
	return trx, nil
}

func (s *service) Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	if userID == uuid.Nil {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	user, err := s.repo.FindUser(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return user.Balance, nil
}

// Ledger returns one page of the user's ledger, newest first, plus the
// cursor for the next page. An empty cursor means the last page.
func (s *service) Ledger(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.WalletTransaction, string, error) {
	if userID == uuid.Nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	rows, err := s.repo.ListByUser(ctx, userID, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, "", err
	}

	next := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return rows, next, nil
}

func (s *service) HasEntry(ctx context.Context, reference string, trxType enums.WalletTransactionType) (bool, error) {
	if reference == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "reference is required")
	}
	_, err := s.repo.FindByReferenceAndType(ctx, reference, trxType)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
