package refund

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/garword/topupid-backend/internal/orders"
	"github.com/garword/topupid-backend/internal/wallet"
	"github.com/garword/topupid-backend/pkg/enums"
	pkgerrors "github.com/garword/topupid-backend/pkg/errors"
	"github.com/garword/topupid-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service reverses a captured charge. The cancel flip, the balance credit
// and the ledger row commit as one transaction; concurrent refund attempts
// for the same order serialize on the order row lock, and whichever loses
// observes the canceled status and exits as a successful no-op.
type Service interface {
	Refund(ctx context.Context, orderID uuid.UUID, reason string) error
	RefundPartial(ctx context.Context, orderID uuid.UUID, amount decimal.Decimal, reference, reason string) error
}

// ServiceParams configure the refund engine.
type ServiceParams struct {
	Logger     *logger.Logger
	OrdersRepo orders.Repository
	Wallet     wallet.Service
	TxRunner   txRunner
}

type service struct {
	logg   *logger.Logger
	orders orders.Repository
	wallet wallet.Service
	tx     txRunner
}

// NewService builds the refund engine.
func NewService(params ServiceParams) (Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.OrdersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Wallet == nil {
		return nil, fmt.Errorf("wallet service required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{
		logg:   params.Logger,
		orders: params.OrdersRepo,
		wallet: params.Wallet,
		tx:     params.TxRunner,
	}, nil
}

// Refund cancels the order and credits the full order total back to the
// user's wallet. Refunding an already-canceled order is a successful no-op.
func (s *service) Refund(ctx context.Context, orderID uuid.UUID, reason string) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		order, err := repo.FindOrderForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("order %s not found", orderID))
			}
			return err
		}
		if order.Status == enums.OrderStatusCanceled {
			return nil
		}

		if err := repo.UpdateOrder(ctx, order.ID, map[string]any{
			"status": enums.OrderStatusCanceled,
		}); err != nil {
			return err
		}

		if _, err := s.wallet.Credit(ctx, tx, wallet.EntryInput{
			UserID:      order.UserID,
			Type:        enums.WalletTransactionTypeRefund,
			Amount:      order.Total,
			Reference:   order.InvoiceCode,
			Description: refundDescription(reason),
		}); err != nil {
			return err
		}

		logCtx := s.logg.WithInvoice(ctx, order.InvoiceCode)
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"amount": order.Total.String(),
			"reason": reason,
		})
		s.logg.Info(logCtx, "order refunded")
		return nil
	})
}

// RefundPartial credits a caller-supplied amount without forcing the order
// to canceled; other items may still be in flight. The reference is the
// ledger idempotency key: a second call carrying a reference that already
// has a refund row is a successful no-op, so callers retry freely.
func (s *service) RefundPartial(ctx context.Context, orderID uuid.UUID, amount decimal.Decimal, reference, reason string) error {
	if amount.Sign() <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "partial refund amount must be positive")
	}
	if reference == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "partial refund reference required")
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		order, err := repo.FindOrderForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("order %s not found", orderID))
			}
			return err
		}
		if order.Status == enums.OrderStatusCanceled {
			return nil
		}
		if amount.GreaterThan(order.Total) {
			return pkgerrors.New(pkgerrors.CodeValidation, "partial refund exceeds order total")
		}

		// Concurrent partial refunds serialize on the order row lock above,
		// so a committed credit for this reference is visible here.
		credited, err := s.wallet.HasEntry(ctx, reference, enums.WalletTransactionTypeRefund)
		if err != nil {
			return err
		}
		if credited {
			return nil
		}

		if _, err := s.wallet.Credit(ctx, tx, wallet.EntryInput{
			UserID:      order.UserID,
			Type:        enums.WalletTransactionTypeRefund,
			Amount:      amount,
			Reference:   reference,
			Description: refundDescription(reason),
		}); err != nil {
			return err
		}

		logCtx := s.logg.WithInvoice(ctx, order.InvoiceCode)
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"amount": amount.String(),
			"reason": reason,
		})
		s.logg.Info(logCtx, "order partially refunded")
		return nil
	})
}

func refundDescription(reason string) string {
	if reason == "" {
		return "refund"
	}
	return "refund: " + reason
}
