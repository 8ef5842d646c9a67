package fulfillment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/garword/topupid-backend/internal/orders"
	"github.com/garword/topupid-backend/internal/providers"
	"github.com/garword/topupid-backend/pkg/db/models"
	"github.com/garword/topupid-backend/pkg/enums"
	pkgerrors "github.com/garword/topupid-backend/pkg/errors"
	"github.com/garword/topupid-backend/pkg/logger"
)

// Orchestrator dispatches a paid order's items to their bound vendors.
// Each invocation attempts every non-terminal vendor-backed item at most
// once; the reference id is derived from the invoice code and item id, so
// re-invoking the orchestrator replays the same reference and the vendor
// treats it as the same transaction.
type Orchestrator interface {
	DispatchOrder(ctx context.Context, orderID uuid.UUID) error
	RefillItem(ctx context.Context, itemID uuid.UUID) error
}

// OrchestratorParams configure the orchestrator.
type OrchestratorParams struct {
	Logger     *logger.Logger
	OrdersRepo orders.Repository
	Registry   *providers.Registry
}

type orchestrator struct {
	logg     *logger.Logger
	repo     orders.Repository
	registry *providers.Registry
}

// NewOrchestrator builds the fulfillment orchestrator.
func NewOrchestrator(params OrchestratorParams) (Orchestrator, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.OrdersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Registry == nil {
		return nil, fmt.Errorf("provider registry required")
	}
	return &orchestrator{
		logg:     params.Logger,
		repo:     params.OrdersRepo,
		registry: params.Registry,
	}, nil
}

func (o *orchestrator) DispatchOrder(ctx context.Context, orderID uuid.UUID) error {
	order, err := o.repo.FindOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("order %s not found", orderID))
		}
		return err
	}
	if order.Status != enums.OrderStatusProcessing {
		return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order %s is %s, not processing", order.InvoiceCode, order.Status))
	}

	items, err := o.repo.FindItemsByOrder(ctx, orderID)
	if err != nil {
		return err
	}

	ctx = o.logg.WithInvoice(ctx, order.InvoiceCode)
	for _, item := range items {
		if !item.VendorBacked() {
			// Manually fulfilled; an operator closes it out.
			continue
		}
		if item.Status.IsTerminal() {
			continue
		}
		if err := o.dispatchItem(ctx, order, item); err != nil {
			// One slow or broken vendor must not block the other items.
			o.logg.Error(o.logg.WithField(ctx, "item_id", item.ID.String()), "item dispatch failed", err)
		}
	}
	return nil
}

// RefillItem asks an engagement vendor to top up a partially delivered
// item. Only adapters implementing providers.Refiller accept it.
func (o *orchestrator) RefillItem(ctx context.Context, itemID uuid.UUID) error {
	item, err := o.repo.FindItemForUpdate(ctx, itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("order item %s not found", itemID))
		}
		return err
	}
	if item.ProviderCode == nil || item.RefID == nil || *item.RefID == "" {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "item was never dispatched")
	}
	if item.Status != enums.ProviderStatusPartial {
		return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("item is %s, only partial items can be refilled", item.Status))
	}

	adapter, err := o.registry.Resolve(*item.ProviderCode)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve provider adapter")
	}
	refiller, ok := adapter.(providers.Refiller)
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("provider %s does not support refill", item.ProviderCode))
	}

	ctx = o.logg.WithProvider(ctx, item.ProviderCode.String())
	if err := refiller.Refill(ctx, *item.RefID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "vendor refill request")
	}

	o.logg.Info(o.logg.WithField(ctx, "ref_id", *item.RefID), "item refill requested")
	return nil
}

func (o *orchestrator) dispatchItem(ctx context.Context, order *models.Order, item models.OrderItem) error {
	adapter, err := o.registry.Resolve(*item.ProviderCode)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve provider adapter")
	}

	refID := item.DispatchRefID(order.InvoiceCode)
	ctx = o.logg.WithProvider(ctx, item.ProviderCode.String())

	result, err := adapter.PlaceOrder(ctx, providers.PlaceOrderInput{
		SKU:      item.ProviderSKU,
		Target:   item.Target,
		Quantity: item.Quantity,
		RefID:    refID,
	})
	if err != nil {
		return err
	}

	updates := map[string]any{
		"ref_id": refID,
		"status": result.Status,
	}
	if result.ProviderTrxID != "" {
		updates["provider_trx_id"] = result.ProviderTrxID
	}
	if result.Serial != "" {
		updates["serial"] = result.Serial
	}
	if result.Message != "" {
		updates["note"] = result.Message
	}
	if err := o.repo.UpdateOrderItem(ctx, item.ID, updates); err != nil {
		return err
	}

	o.logg.Info(o.logg.WithFields(ctx, map[string]any{
		"ref_id": refID,
		"status": result.Status.String(),
	}), "item dispatched")
	return nil
}
