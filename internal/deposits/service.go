package deposits

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/garword/topupid-backend/internal/wallet"
	"github.com/garword/topupid-backend/pkg/db/models"
	"github.com/garword/topupid-backend/pkg/enums"
	pkgerrors "github.com/garword/topupid-backend/pkg/errors"
	"github.com/garword/topupid-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service owns the deposit lifecycle. MarkPaid is the only path that credits
// the wallet, and it does so in the same transaction as the status flip.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Deposit, error)
	MarkPaid(ctx context.Context, invoiceCode string) (*models.Deposit, bool, error)
	Cancel(ctx context.Context, depositID uuid.UUID) (bool, error)
	Fail(ctx context.Context, depositID uuid.UUID) (bool, error)
	Refund(ctx context.Context, depositID uuid.UUID, reason string) (bool, error)
	ExpireStale(ctx context.Context, limit int) (int, error)
}

// CreateInput is a new top-up request.
type CreateInput struct {
	UserID uuid.UUID
	Amount decimal.Decimal
	Fee    decimal.Decimal
}

// ServiceParams configure the deposit service.
type ServiceParams struct {
	Logger   *logger.Logger
	Repo     Repository
	Wallet   wallet.Service
	TxRunner txRunner

	// PendingTTL bounds how long a QRIS code stays payable.
	PendingTTL time.Duration
}

type service struct {
	logg       *logger.Logger
	repo       Repository
	wallet     wallet.Service
	tx         txRunner
	pendingTTL time.Duration
	now        func() time.Time
}

// NewService builds the deposit service.
func NewService(params ServiceParams) (Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("deposits repository required")
	}
	if params.Wallet == nil {
		return nil, fmt.Errorf("wallet service required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.PendingTTL <= 0 {
		params.PendingTTL = time.Hour
	}
	return &service{
		logg:       params.Logger,
		repo:       params.Repo,
		wallet:     params.Wallet,
		tx:         params.TxRunner,
		pendingTTL: params.PendingTTL,
		now:        time.Now,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Deposit, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if input.Fee.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "fee must not be negative")
	}

	expires := s.now().UTC().Add(s.pendingTTL)
	deposit := &models.Deposit{
		InvoiceCode: newInvoiceCode("DEP"),
		UserID:      input.UserID,
		Amount:      input.Amount,
		Fee:         input.Fee,
		Total:       input.Amount.Add(input.Fee),
		Status:      enums.DepositStatusPending,
		ExpiresAt:   &expires,
	}
	return s.repo.Create(ctx, deposit)
}

// MarkPaid settles a pending deposit and credits the wallet for its amount.
// Replayed payment events find the deposit already paid and return without a
// write. The bool reports whether this call performed the transition.
func (s *service) MarkPaid(ctx context.Context, invoiceCode string) (*models.Deposit, bool, error) {
	if invoiceCode == "" {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "invoice code required")
	}

	var (
		result       *models.Deposit
		transitioned bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		deposit, err := repo.FindByInvoice(ctx, invoiceCode)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("deposit %s not found", invoiceCode))
			}
			return err
		}
		locked, err := repo.FindForUpdate(ctx, deposit.ID)
		if err != nil {
			return err
		}
		result = locked
		if locked.Status != enums.DepositStatusPending {
			return nil
		}
		now := s.now().UTC()
		if err := repo.Update(ctx, locked.ID, map[string]any{
			"status":  enums.DepositStatusPaid,
			"paid_at": now,
		}); err != nil {
			return err
		}
		if _, err := s.wallet.Credit(ctx, tx, wallet.EntryInput{
			UserID:      locked.UserID,
			Type:        enums.WalletTransactionTypeDeposit,
			Amount:      locked.Amount,
			Reference:   locked.InvoiceCode,
			Description: "deposit settled",
		}); err != nil {
			return err
		}
		locked.Status = enums.DepositStatusPaid
		locked.PaidAt = &now
		transitioned = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, transitioned, nil
}

func (s *service) Cancel(ctx context.Context, depositID uuid.UUID) (bool, error) {
	return s.closePending(ctx, depositID, enums.DepositStatusCanceled)
}

func (s *service) Fail(ctx context.Context, depositID uuid.UUID) (bool, error) {
	return s.closePending(ctx, depositID, enums.DepositStatusFailed)
}

func (s *service) closePending(ctx context.Context, depositID uuid.UUID, to enums.DepositStatus) (bool, error) {
	var transitioned bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		locked, err := repo.FindForUpdate(ctx, depositID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("deposit %s not found", depositID))
			}
			return err
		}
		if locked.Status != enums.DepositStatusPending {
			return nil
		}
		if err := repo.Update(ctx, depositID, map[string]any{"status": to}); err != nil {
			return err
		}
		transitioned = true
		return nil
	})
	return transitioned, err
}

// Refund reverses a settled deposit: the amount leaves the wallet and the
// deposit ends refunded. The customer is made whole outside this system.
func (s *service) Refund(ctx context.Context, depositID uuid.UUID, reason string) (bool, error) {
	var transitioned bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		locked, err := repo.FindForUpdate(ctx, depositID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("deposit %s not found", depositID))
			}
			return err
		}
		if locked.Status == enums.DepositStatusRefunded {
			return nil
		}
		if locked.Status != enums.DepositStatusPaid {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("deposit %s is %s, not paid", locked.InvoiceCode, locked.Status))
		}
		if err := repo.Update(ctx, depositID, map[string]any{"status": enums.DepositStatusRefunded}); err != nil {
			return err
		}
		description := "deposit refunded"
		if reason != "" {
			description = fmt.Sprintf("deposit refunded: %s", reason)
		}
		if _, err := s.wallet.Debit(ctx, tx, wallet.EntryInput{
			UserID:      locked.UserID,
			Type:        enums.WalletTransactionTypeDebit,
			Amount:      locked.Amount,
			Reference:   locked.InvoiceCode,
			Description: description,
		}); err != nil {
			return err
		}
		transitioned = true
		return nil
	})
	return transitioned, err
}

// ExpireStale cancels pending deposits whose QRIS code lapsed. Each deposit
// cancels in its own transaction so one failure does not poison the batch.
func (s *service) ExpireStale(ctx context.Context, limit int) (int, error) {
	expired, err := s.repo.FindExpired(ctx, s.now().UTC(), limit)
	if err != nil {
		return 0, err
	}
	canceled := 0
	for _, deposit := range expired {
		done, err := s.Cancel(ctx, deposit.ID)
		if err != nil {
			s.logg.Error(s.logg.WithInvoice(ctx, deposit.InvoiceCode), "deposit expiry cancel failed", err)
			continue
		}
		if done {
			canceled++
		}
	}
	return canceled, nil
}

func newInvoiceCode(prefix string) string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%s", prefix, strings.ToUpper(uuid.NewString()[:12]))
	}
	return fmt.Sprintf("%s-%s", prefix, strings.ToUpper(hex.EncodeToString(buf)))
}
