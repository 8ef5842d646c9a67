package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/garword/topupid-backend/internal/orders"
	"github.com/garword/topupid-backend/internal/refund"
	"github.com/garword/topupid-backend/pkg/db/models"
	"github.com/garword/topupid-backend/pkg/enums"
	pkgerrors "github.com/garword/topupid-backend/pkg/errors"
	"github.com/garword/topupid-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Event is the canonical vendor event every webhook service and status
// poller produces. RefID is the caller-assigned reference stored on the
// order item at dispatch time.
type Event struct {
	RefID         string
	Status        enums.ProviderStatus
	Serial        string
	Message       string
	ProviderTrxID string
	StartCount    *int
	Remains       *int
}

// Service applies canonical vendor events to order items idempotently and
// decides the aggregate order outcome.
type Service interface {
	Apply(ctx context.Context, event Event) error
}

// ServiceParams configure the reconciler.
type ServiceParams struct {
	Logger     *logger.Logger
	OrdersRepo orders.Repository
	OrdersSvc  orders.Service
	Refunds    refund.Service
	TxRunner   txRunner
}

type service struct {
	logg   *logger.Logger
	repo   orders.Repository
	orders orders.Service
	refund refund.Service
	tx     txRunner
}

// NewService builds the reconciler.
func NewService(params ServiceParams) (Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.OrdersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.OrdersSvc == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if params.Refunds == nil {
		return nil, fmt.Errorf("refund service required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{
		logg:   params.Logger,
		repo:   params.OrdersRepo,
		orders: params.OrdersSvc,
		refund: params.Refunds,
		tx:     params.TxRunner,
	}, nil
}

// Apply records the event on its order item and drives the consequences:
// a failed item refunds the whole order, a partial delivery credits the
// undelivered remainder, and a fully successful item set delivers the
// order. Replaying an event whose status, serial and counters match the
// stored values writes nothing.
func (s *service) Apply(ctx context.Context, event Event) error {
	if event.RefID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "event ref id required")
	}
	if !event.Status.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid canonical status %q", event.Status))
	}

	item, err := s.repo.FindItemByRefID(ctx, event.RefID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("no order item for ref %s", event.RefID))
		}
		return err
	}

	applied, current, err := s.applyToItem(ctx, item.ID, event)
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"ref_id": event.RefID,
		"status": event.Status.String(),
	})

	switch event.Status {
	case enums.ProviderStatusFailed:
		s.logg.Warn(logCtx, "vendor reported failure, refunding order")
		if err := s.refund.Refund(ctx, current.OrderID, fmt.Sprintf("item %s failed: %s", event.RefID, event.Message)); err != nil {
			return err
		}
	case enums.ProviderStatusPartial:
		amount := partialRefundAmount(current, event.Remains)
		if amount.Sign() > 0 {
			s.logg.Warn(logCtx, "partial delivery, refunding remainder")
			reference := partialRefundReference(event.RefID)
			if err := s.refund.RefundPartial(ctx, current.OrderID, amount, reference, fmt.Sprintf("item %s partial: %s", event.RefID, event.Message)); err != nil {
				return err
			}
		}
	}

	return s.evaluateCompletion(ctx, current.OrderID)
}

// applyToItem persists the event under the item row lock. The returned bool
// reports whether anything changed.
func (s *service) applyToItem(ctx context.Context, itemID uuid.UUID, event Event) (bool, *models.OrderItem, error) {
	var (
		applied bool
		result  *models.OrderItem
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		locked, err := repo.FindItemForUpdate(ctx, itemID)
		if err != nil {
			return err
		}
		result = locked

		if locked.Status.IsTerminal() && locked.Status != event.Status {
			// Terminal items never regress; a late conflicting event is
			// logged and dropped.
			s.logg.Warn(s.logg.WithField(ctx, "ref_id", event.RefID), "event for terminal item ignored")
			return nil
		}
		if unchanged(locked, event) {
			return nil
		}

		updates := map[string]any{
			"status": event.Status,
		}
		if event.Serial != "" {
			updates["serial"] = event.Serial
		}
		if event.Message != "" {
			updates["note"] = event.Message
		}
		if event.ProviderTrxID != "" {
			updates["provider_trx_id"] = event.ProviderTrxID
		}
		if event.StartCount != nil {
			updates["start_count"] = *event.StartCount
		}
		if event.Remains != nil {
			updates["remains"] = *event.Remains
		}
		if err := repo.UpdateOrderItem(ctx, itemID, updates); err != nil {
			return err
		}

		locked.Status = event.Status
		if event.Remains != nil {
			locked.Remains = event.Remains
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, nil, err
	}
	return applied, result, nil
}

// unchanged implements the replay filter: identical status, serial and
// engagement counters mean the event carries no new information.
func unchanged(item *models.OrderItem, event Event) bool {
	if item.Status != event.Status {
		return false
	}
	if event.Serial != "" && (item.Serial == nil || *item.Serial != event.Serial) {
		return false
	}
	if event.StartCount != nil && (item.StartCount == nil || *item.StartCount != *event.StartCount) {
		return false
	}
	if event.Remains != nil && (item.Remains == nil || *item.Remains != *event.Remains) {
		return false
	}
	return true
}

// partialRefundAmount values the undelivered remainder at unit price per
// undelivered unit, capped at the ordered quantity.
func partialRefundAmount(item *models.OrderItem, remains *int) decimal.Decimal {
	if remains == nil || *remains <= 0 || item.Quantity <= 0 {
		return decimal.Zero
	}
	r := *remains
	if r > item.Quantity {
		r = item.Quantity
	}
	return item.UnitPrice.
		Mul(decimal.NewFromInt(int64(r))).
		Round(2)
}

// partialRefundReference scopes the partial-refund ledger key to the item,
// so a panel whose remains count keeps moving compensates the item at most
// once instead of once per report.
func partialRefundReference(refID string) string {
	return refID + ":partial"
}

// evaluateCompletion delivers the order once every vendor-backed item is
// terminal-success. Orders with no vendor-backed items are never delivered
// automatically; manual fulfillment closes them elsewhere.
func (s *service) evaluateCompletion(ctx context.Context, orderID uuid.UUID) error {
	items, err := s.repo.FindItemsByOrder(ctx, orderID)
	if err != nil {
		return err
	}

	vendorBacked := 0
	for _, item := range items {
		if !item.VendorBacked() {
			continue
		}
		vendorBacked++
		if item.Status != enums.ProviderStatusSuccess {
			return nil
		}
	}
	if vendorBacked == 0 {
		return nil
	}

	transitioned, err := s.orders.MarkDelivered(ctx, orderID)
	if err != nil {
		return err
	}
	if transitioned {
		s.logg.Info(s.logg.WithField(ctx, "order_id", orderID.String()), "order delivered")
	}
	return nil
}
