package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/garword/topupid-backend/pkg/db/models"
	"github.com/garword/topupid-backend/pkg/enums"
	pkgerrors "github.com/garword/topupid-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the order state machine. Every transition re-checks the
// persisted status under a row lock, so racing triggers converge instead of
// conflicting: the loser of a race observes a terminal or already-advanced
// status and exits as a no-op.
type Service interface {
	MarkPaid(ctx context.Context, invoiceCode string) (*models.Order, bool, error)
	MarkDelivered(ctx context.Context, orderID uuid.UUID) (bool, error)
	CancelPending(ctx context.Context, orderID uuid.UUID) (bool, error)
}

type service struct {
	repo Repository
	tx   txRunner
	now  func() time.Time
}

// NewService builds the order state machine service.
func NewService(repo Repository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx, now: time.Now}, nil
}

// MarkPaid moves a pending order to processing in response to a verified
// payment event. Replayed payment events for an order already past pending
// are acknowledged without a write. The returned bool reports whether this
// call performed the transition.
func (s *service) MarkPaid(ctx context.Context, invoiceCode string) (*models.Order, bool, error) {
	if invoiceCode == "" {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "invoice code required")
	}

	var (
		result       *models.Order
		transitioned bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindOrderByInvoice(ctx, invoiceCode)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("order %s not found", invoiceCode))
			}
			return err
		}
		locked, err := repo.FindOrderForUpdate(ctx, order.ID)
		if err != nil {
			return err
		}
		result = locked
		if locked.Status != enums.OrderStatusPending {
			return nil
		}
		if err := repo.UpdateOrder(ctx, locked.ID, map[string]any{
			"status": enums.OrderStatusProcessing,
		}); err != nil {
			return err
		}
		locked.Status = enums.OrderStatusProcessing
		transitioned = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, transitioned, nil
}

// MarkDelivered finishes a processing order. Orders that were canceled in
// the meantime (a sweep refund racing a late success webhook) stay canceled.
func (s *service) MarkDelivered(ctx context.Context, orderID uuid.UUID) (bool, error) {
	var transitioned bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		locked, err := repo.FindOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if locked.Status != enums.OrderStatusProcessing {
			return nil
		}
		now := s.now().UTC()
		if err := repo.UpdateOrder(ctx, orderID, map[string]any{
			"status":       enums.OrderStatusDelivered,
			"delivered_at": now,
		}); err != nil {
			return err
		}
		transitioned = true
		return nil
	})
	return transitioned, err
}

// CancelPending cancels an order that never received payment. Nothing was
// captured, so no refund is involved. Orders past pending are left alone.
func (s *service) CancelPending(ctx context.Context, orderID uuid.UUID) (bool, error) {
	var transitioned bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		locked, err := repo.FindOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if locked.Status != enums.OrderStatusPending {
			return nil
		}
		now := s.now().UTC()
		if err := repo.UpdateOrder(ctx, orderID, map[string]any{
			"status":     enums.OrderStatusCanceled,
			"expired_at": now,
		}); err != nil {
			return err
		}
		transitioned = true
		return nil
	})
	return transitioned, err
}
